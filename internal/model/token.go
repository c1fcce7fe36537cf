package model

// BBox is an axis-aligned bounding box in page coordinates.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// CenterX returns the horizontal center of the box.
func (b BBox) CenterX() float64 { return (b.X0 + b.X1) / 2 }

// CenterY returns the vertical center of the box.
func (b BBox) CenterY() float64 { return (b.Y0 + b.Y1) / 2 }

// Contains reports whether the point (x, y) falls inside the box.
func (b BBox) Contains(x, y float64) bool {
	return x >= b.X0 && x <= b.X1 && y >= b.Y0 && y <= b.Y1
}

// WordToken is a single word produced by the upstream PDF-to-tokens service.
// SequenceIndex defines reading order within the document; it is the order
// the aligner and the tagger operate in.
type WordToken struct {
	Text          string `json:"text"`
	BBox          BBox   `json:"bbox"`
	PageIndex     int    `json:"page_index"`
	SequenceIndex int    `json:"sequence_index"`
}

// Document is the token view of one scanned document, in reading order.
type Document struct {
	DocumentID string      `json:"document_id"`
	TemplateID string      `json:"template_id"`
	Tokens     []WordToken `json:"tokens"`
}

// Texts returns the token texts in reading order.
func (d *Document) Texts() []string {
	out := make([]string, len(d.Tokens))
	for i, t := range d.Tokens {
		out[i] = t.Text
	}
	return out
}

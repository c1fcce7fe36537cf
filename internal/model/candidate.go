package model

// StrategyID identifies an extraction strategy.
type StrategyID string

const (
	// StrategyPositional is the rule-based positional matcher.
	StrategyPositional StrategyID = "positional"
	// StrategyCRF is the trained sequence-tagging model.
	StrategyCRF StrategyID = "crf"
)

// FieldCandidate is one strategy's proposed value for a field on a document.
// Immutable once created; strategies never observe each other's candidates.
type FieldCandidate struct {
	FieldName  string            `json:"field_name"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Method     StrategyID        `json:"method"`
	RawValue   string            `json:"raw_value,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Region is a rectangular page area a positional rule searches in.
type Region struct {
	Page int     `json:"page" yaml:"page"`
	X0   float64 `json:"x0" yaml:"x0"`
	Y0   float64 `json:"y0" yaml:"y0"`
	X1   float64 `json:"x1" yaml:"x1"`
	Y1   float64 `json:"y1" yaml:"y1"`
}

// FieldConfig describes one extractable field of a template.
type FieldConfig struct {
	Name string `json:"name" yaml:"name"`

	// Label is the anchor text printed near the value (e.g. "Invoice No:").
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Region bounds the positional search; nil means the whole page.
	Region *Region `json:"region,omitempty" yaml:"region,omitempty"`

	// Pattern optionally constrains the value shape (Go regexp).
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// MaxTokens caps how many tokens a positional match may span.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Template is the extraction profile for one document layout.
type Template struct {
	TemplateID string        `json:"template_id" yaml:"template_id"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Fields     []FieldConfig `json:"fields" yaml:"fields"`
}

// Field returns the config for name, or nil.
func (t *Template) Field(name string) *FieldConfig {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

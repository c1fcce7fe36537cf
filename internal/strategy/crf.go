package strategy

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/modelstore"
	"github.com/fieldforge/extract-cli/internal/tagger"
)

// CRF is the learned strategy: it runs the template's active sequence
// tagger over the document and reads the field's B/I span.
type CRF struct {
	models *modelstore.Registry
}

// NewCRF returns the sequence-tagging strategy backed by the registry.
func NewCRF(models *modelstore.Registry) *CRF {
	return &CRF{models: models}
}

func (c *CRF) ID() model.StrategyID { return model.StrategyCRF }

// Extract decodes the document with the active model and returns the
// highest-confidence span predicted for the field. A template with no
// trained model yields ErrUnavailable (skip, no opinion); a corrupt
// artifact degrades the same way but is logged louder. No predicted B tag
// means abstain.
func (c *CRF) Extract(ctx context.Context, doc *model.Document, field model.FieldConfig) (*model.FieldCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := c.models.Active(doc.TemplateID)
	if eris.Is(err, modelstore.ErrNoModel) {
		return nil, ErrUnavailable
	}
	if eris.Is(err, modelstore.ErrCorrupt) {
		zap.L().Warn("crf: active model artifact is corrupt, skipping strategy",
			zap.String("template_id", doc.TemplateID),
		)
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, eris.Wrap(err, "crf: resolve active model")
	}

	tags, probs := entry.Model.Decode(doc.Tokens)

	var best *tagger.Span
	for _, span := range tagger.Spans(tags, probs) {
		if span.Field != field.Name {
			continue
		}
		if best == nil || span.Confidence > best.Confidence {
			s := span
			best = &s
		}
	}
	if best == nil {
		return nil, nil
	}

	return &model.FieldCandidate{
		FieldName:  field.Name,
		Value:      tagger.SpanValue(doc.Tokens, *best),
		Confidence: best.Confidence,
		Method:     model.StrategyCRF,
		Metadata: map[string]string{
			"model_version": strconv.Itoa(entry.Version),
			"span_start":    strconv.Itoa(best.Start),
			"span_end":      strconv.Itoa(best.End),
		},
	}, nil
}

package strategy

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldforge/extract-cli/internal/model"
)

// lineTokens lays texts out left to right on one line of the given page.
func lineTokens(page int, y float64, seqStart int, texts ...string) []model.WordToken {
	out := make([]model.WordToken, len(texts))
	for i, text := range texts {
		x := float64(i) * 60
		out[i] = model.WordToken{
			Text:          text,
			BBox:          model.BBox{X0: x, Y0: y, X1: x + 50, Y1: y + 12},
			PageIndex:     page,
			SequenceIndex: seqStart + i,
		}
	}
	return out
}

func invoiceDoc() *model.Document {
	tokens := lineTokens(0, 100, 0, "Invoice", "No:", "INV-2024-001")
	tokens = append(tokens, lineTokens(0, 130, 3, "Total:", "1,500.00", "USD")...)
	return &model.Document{DocumentID: "doc-1", TemplateID: "tpl-1", Tokens: tokens}
}

func TestPositional_LabelAnchor(t *testing.T) {
	p := NewPositional()

	cand, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:  "invoice_number",
		Label: "Invoice No:",
	})
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "INV-2024-001", cand.Value)
	assert.Equal(t, model.StrategyPositional, cand.Method)
	assert.InDelta(t, 0.55, cand.Confidence, 0.0001)
}

func TestPositional_LabelStopsAtLineEnd(t *testing.T) {
	p := NewPositional()

	// The value after "Total:" is on the same line; the next line's tokens
	// must not leak into it.
	cand, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:  "total",
		Label: "Total:",
	})
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "1,500.00 USD", cand.Value)
}

func TestPositional_PatternConstrainsValue(t *testing.T) {
	p := NewPositional()

	cand, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:    "total",
		Label:   "Total:",
		Pattern: `\d{1,3}(,\d{3})*\.\d{2}`,
	})
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "1,500.00", cand.Value)
	assert.Equal(t, "1,500.00 USD", cand.RawValue)
	// Label hit plus pattern bonus.
	assert.InDelta(t, 0.80, cand.Confidence, 0.0001)
}

func TestPositional_PatternMismatchAbstains(t *testing.T) {
	p := NewPositional()

	cand, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:    "total",
		Label:   "Total:",
		Pattern: `^[A-Z]{5}$`,
	})
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestPositional_RegionFallback(t *testing.T) {
	p := NewPositional()

	cand, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:      "amount_area",
		Region:    &model.Region{Page: 0, X0: 0, Y0: 125, X1: 200, Y1: 150},
		MaxTokens: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "Total: 1,500.00", cand.Value)
	// Region-only read with full containment bonus.
	assert.InDelta(t, 0.50, cand.Confidence, 0.0001)
}

func TestPositional_NoAnchorIsUnavailable(t *testing.T) {
	p := NewPositional()

	_, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{Name: "unanchored"})
	assert.True(t, eris.Is(err, ErrUnavailable))
}

func TestPositional_MissingLabelAbstains(t *testing.T) {
	p := NewPositional()

	cand, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:  "customer",
		Label: "Customer Name:",
	})
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestPositional_EmptyRegionAbstains(t *testing.T) {
	p := NewPositional()

	cand, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:   "footer",
		Region: &model.Region{Page: 3, X0: 0, Y0: 0, X1: 10, Y1: 10},
	})
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestPositional_InvalidPatternErrors(t *testing.T) {
	p := NewPositional()

	_, err := p.Extract(context.Background(), invoiceDoc(), model.FieldConfig{
		Name:    "total",
		Label:   "Total:",
		Pattern: `([`,
	})
	assert.Error(t, err)
}

func TestPositional_CanceledContext(t *testing.T) {
	p := NewPositional()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Extract(ctx, invoiceDoc(), model.FieldConfig{Name: "total", Label: "Total:"})
	assert.Error(t, err)
}

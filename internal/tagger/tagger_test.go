package tagger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldforge/extract-cli/internal/model"
)

func docTokens(texts ...string) []model.WordToken {
	out := make([]model.WordToken, len(texts))
	for i, text := range texts {
		out[i] = model.WordToken{
			Text:          text,
			BBox:          model.BBox{X0: float64(i) * 50, Y0: 100, X1: float64(i)*50 + 40, Y1: 112},
			SequenceIndex: i,
		}
	}
	return out
}

// invoiceExamples builds regular labeled documents: the name value follows
// "Name:" and the total value follows "Total:".
func invoiceExamples() []model.TrainingExample {
	docs := []struct {
		id          string
		name, total string
	}{
		{"doc-1", "Alice", "42"},
		{"doc-2", "Bob", "17"},
		{"doc-3", "Carol", "93"},
		{"doc-4", "Dave", "8"},
		{"doc-5", "Erin", "250"},
		{"doc-6", "Frank", "61"},
	}

	var examples []model.TrainingExample
	for _, d := range docs {
		tokens := docTokens("Name:", d.name, "Total:", d.total)
		examples = append(examples,
			model.TrainingExample{
				DocumentID: d.id,
				FieldName:  "customer_name",
				Tokens:     tokens,
				Labels:     []string{"O", "B", "O", "O"},
			},
			model.TrainingExample{
				DocumentID: d.id,
				FieldName:  "total",
				Tokens:     tokens,
				Labels:     []string{"O", "O", "O", "B"},
			},
		)
	}
	return examples
}

func TestTrain_Deterministic(t *testing.T) {
	examples := invoiceExamples()

	m1 := Train(examples, 12, 42)
	m2 := Train(examples, 12, 42)

	assert.Equal(t, m1.Tags, m2.Tags)
	assert.Equal(t, m1.Weights, m2.Weights)
}

func TestTrain_DecodeRecoversTrainingSpans(t *testing.T) {
	examples := invoiceExamples()
	m := Train(examples, 12, 42)
	require.True(t, m.Valid())

	tokens := docTokens("Name:", "Alice", "Total:", "42")
	tags, probs := m.Decode(tokens)
	require.Len(t, tags, 4)
	require.Len(t, probs, 4)

	spans := Spans(tags, probs)
	byField := make(map[string]Span, len(spans))
	for _, s := range spans {
		byField[s.Field] = s
	}

	require.Contains(t, byField, "customer_name")
	assert.Equal(t, 1, byField["customer_name"].Start)
	assert.Equal(t, "Alice", SpanValue(tokens, byField["customer_name"]))

	require.Contains(t, byField, "total")
	assert.Equal(t, 3, byField["total"].Start)
	assert.Equal(t, "42", SpanValue(tokens, byField["total"]))

	for _, s := range spans {
		assert.Greater(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}
}

func TestDecode_ZeroScoresAbstain(t *testing.T) {
	// Every tag scores zero: the tie must resolve to O, never to a span tag.
	m := &Model{
		Version: 1,
		Tags:    []string{model.TagO, "B-total", "I-total"},
		Weights: map[string]map[string]float64{"unseen-feature": {"B-total": 1}},
	}

	tags, _ := m.Decode(docTokens("Some", "unrelated", "words"))
	for _, tag := range tags {
		assert.Equal(t, model.TagO, tag)
	}
}

func TestQualifyLabels(t *testing.T) {
	labels := QualifyLabels("total", []string{"O", "B", "I", "O"})
	assert.Equal(t, []string{"O", "B-total", "I-total", "O"}, labels)
}

func TestSpans(t *testing.T) {
	tags := []string{"O", "B-address", "I-address", "O", "B-city"}
	probs := []float64{0.9, 0.8, 0.6, 0.9, 0.5}

	spans := Spans(tags, probs)
	require.Len(t, spans, 2)

	assert.Equal(t, "address", spans[0].Field)
	assert.Equal(t, 1, spans[0].Start)
	assert.Equal(t, 2, spans[0].End)
	assert.InDelta(t, 0.7, spans[0].Confidence, 0.001)

	assert.Equal(t, "city", spans[1].Field)
	assert.Equal(t, 4, spans[1].Start)
	assert.Equal(t, 4, spans[1].End)
}

func TestSpans_OrphanITagIgnored(t *testing.T) {
	tags := []string{"I-address", "O", "B-city", "I-address"}
	probs := []float64{0.5, 0.5, 0.5, 0.5}

	spans := Spans(tags, probs)
	require.Len(t, spans, 1)
	assert.Equal(t, "city", spans[0].Field)
	assert.Equal(t, 2, spans[0].End)
}

func TestModel_Valid(t *testing.T) {
	assert.False(t, (&Model{}).Valid())
	assert.False(t, (&Model{Tags: []string{"O"}}).Valid())
	assert.True(t, (&Model{
		Tags:    []string{"O", "B-x"},
		Weights: map[string]map[string]float64{"bias": {"B-x": 0.1}},
	}).Valid())

	var nilModel *Model
	assert.False(t, nilModel.Valid())
}

func TestEvaluate_FitsTrainingData(t *testing.T) {
	examples := invoiceExamples()
	m := Train(examples, 12, 42)

	metrics := Evaluate(m, examples)
	assert.Greater(t, metrics.TokenAccuracy, 0.95)
	assert.Greater(t, metrics.F1, 0.9)
	assert.Contains(t, metrics.PerFieldF1, "customer_name")
	assert.Contains(t, metrics.PerFieldF1, "total")
}

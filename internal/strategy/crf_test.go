package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/modelstore"
	"github.com/fieldforge/extract-cli/internal/tagger"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// trainRegistry trains a tagger on "Name: X Total: Y" documents and installs
// it as the active model for tpl-1.
func trainRegistry(t *testing.T) *modelstore.Registry {
	t.Helper()

	var examples []model.TrainingExample
	docs := []struct{ name, total string }{
		{"Alice", "42"}, {"Bob", "17"}, {"Carol", "93"},
		{"Dave", "8"}, {"Erin", "250"}, {"Frank", "61"},
	}
	for i, d := range docs {
		tokens := lineTokens(0, 100, 0, "Name:", d.name, "Total:", d.total)
		examples = append(examples,
			model.TrainingExample{DocumentID: docs[i].name, FieldName: "customer_name", Tokens: tokens, Labels: []string{"O", "B", "O", "O"}},
			model.TrainingExample{DocumentID: docs[i].name, FieldName: "total", Tokens: tokens, Labels: []string{"O", "O", "O", "B"}},
		)
	}
	m := tagger.Train(examples, 12, 42)

	reg := modelstore.New(t.TempDir())
	version, err := reg.Save("tpl-1", m)
	require.NoError(t, err)
	require.NoError(t, reg.Activate("tpl-1", version))
	return reg
}

func TestCRF_ExtractsTrainedField(t *testing.T) {
	c := NewCRF(trainRegistry(t))

	doc := &model.Document{
		DocumentID: "doc-9",
		TemplateID: "tpl-1",
		Tokens:     lineTokens(0, 100, 0, "Name:", "Grace", "Total:", "77"),
	}

	cand, err := c.Extract(context.Background(), doc, model.FieldConfig{Name: "total"})
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "77", cand.Value)
	assert.Equal(t, model.StrategyCRF, cand.Method)
	assert.Greater(t, cand.Confidence, 0.0)
	assert.Equal(t, "1", cand.Metadata["model_version"])
	assert.Equal(t, "3", cand.Metadata["span_start"])
}

func TestCRF_NoModelIsUnavailable(t *testing.T) {
	c := NewCRF(modelstore.New(t.TempDir()))

	doc := &model.Document{TemplateID: "tpl-untrained", Tokens: lineTokens(0, 100, 0, "Name:", "Grace")}
	_, err := c.Extract(context.Background(), doc, model.FieldConfig{Name: "total"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCRF_UnknownFieldAbstains(t *testing.T) {
	c := NewCRF(trainRegistry(t))

	doc := &model.Document{
		TemplateID: "tpl-1",
		Tokens:     lineTokens(0, 100, 0, "Name:", "Grace", "Total:", "77"),
	}
	cand, err := c.Extract(context.Background(), doc, model.FieldConfig{Name: "never_trained"})
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestCRF_CanceledContext(t *testing.T) {
	c := NewCRF(trainRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := &model.Document{TemplateID: "tpl-1", Tokens: lineTokens(0, 100, 0, "Name:", "Grace")}
	_, err := c.Extract(ctx, doc, model.FieldConfig{Name: "total"})
	assert.Error(t, err)
}

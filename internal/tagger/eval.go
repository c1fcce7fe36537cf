package tagger

import "github.com/fieldforge/extract-cli/internal/model"

// Evaluate runs the model over held-out examples and reports token accuracy
// plus span-level precision/recall/F1, overall and per field. A predicted
// span counts as correct only on an exact (field, start, end) match.
func Evaluate(m *Model, examples []model.TrainingExample) model.EvalMetrics {
	var tokensSeen, tokensRight int
	type spanKey struct {
		field      string
		start, end int
	}
	perField := make(map[string]*prf)
	overall := &prf{}

	for _, ex := range examples {
		gold := QualifyLabels(ex.FieldName, ex.Labels)
		pred, probs := m.Decode(ex.Tokens)

		for i := range gold {
			tokensSeen++
			// Predictions for other fields read as O here: the example only
			// carries labels for its own field.
			effective := pred[i]
			if _, f := tagField(effective); f != "" && f != ex.FieldName {
				effective = model.TagO
			}
			if effective == gold[i] {
				tokensRight++
			}
		}

		goldSpans := make(map[spanKey]bool)
		for _, s := range Spans(gold, make([]float64, len(gold))) {
			goldSpans[spanKey{s.Field, s.Start, s.End}] = true
		}

		for _, s := range Spans(pred, probs) {
			// Only the example's own field is in scope: the example labels
			// every other field's tokens O, so counting them would punish
			// the model for knowledge it was never given here.
			if s.Field != ex.FieldName {
				continue
			}
			field(perField, s.Field).predicted++
			overall.predicted++
			if goldSpans[spanKey{s.Field, s.Start, s.End}] {
				field(perField, s.Field).correct++
				overall.correct++
			}
		}
		for k := range goldSpans {
			field(perField, k.field).gold++
			overall.gold++
		}
	}

	metrics := model.EvalMetrics{PerFieldF1: make(map[string]float64, len(perField))}
	if tokensSeen > 0 {
		metrics.TokenAccuracy = float64(tokensRight) / float64(tokensSeen)
	}
	metrics.Precision, metrics.Recall, metrics.F1 = overall.scores()
	for name, p := range perField {
		_, _, f1 := p.scores()
		metrics.PerFieldF1[name] = f1
	}
	return metrics
}

type prf struct {
	predicted, gold, correct int
}

func (p *prf) scores() (precision, recall, f1 float64) {
	if p.predicted > 0 {
		precision = float64(p.correct) / float64(p.predicted)
	}
	if p.gold > 0 {
		recall = float64(p.correct) / float64(p.gold)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

func field(m map[string]*prf, name string) *prf {
	if m[name] == nil {
		m[name] = &prf{}
	}
	return m[name]
}

package tagger

import (
	"math/rand"

	"github.com/fieldforge/extract-cli/internal/model"
)

// sequence is one training sequence in the qualified tag space.
type sequence struct {
	tokens []model.WordToken
	normed []string
	labels []string
}

// Train fits an averaged perceptron on field-scoped training examples.
// Examples sharing a document merge into one multi-field sequence first, so
// a token labeled by one field is never simultaneously presented as O by
// another field's example. Deterministic for a given (examples, epochs, seed).
func Train(examples []model.TrainingExample, epochs int, seed int64) *Model {
	if epochs <= 0 {
		epochs = 12
	}

	seqs := buildSequences(examples)

	tags := collectTags(seqs)
	tr := &trainer{
		weights: make(map[string]map[string]float64),
		totals:  make(map[string]map[string]float64),
		stamps:  make(map[string]map[string]int),
		tags:    tags,
	}

	rng := rand.New(rand.NewSource(seed))
	order := make([]int, len(seqs))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			tr.update(seqs[idx])
		}
	}

	return &Model{
		Version: 1,
		Tags:    tags,
		Weights: tr.averaged(),
		Trained: len(seqs),
		Epochs:  epochs,
	}
}

// buildSequences qualifies each example's labels and merges examples of the
// same document into a single sequence. Where two fields both claim a token
// the earlier example keeps it.
func buildSequences(examples []model.TrainingExample) []sequence {
	byDoc := make(map[string]int)
	var seqs []sequence

	for _, ex := range examples {
		qualified := QualifyLabels(ex.FieldName, ex.Labels)

		if idx, ok := byDoc[ex.DocumentID]; ok && ex.DocumentID != "" && len(seqs[idx].labels) == len(qualified) {
			for j, l := range qualified {
				if l != model.TagO && seqs[idx].labels[j] == model.TagO {
					seqs[idx].labels[j] = l
				}
			}
			continue
		}

		seqs = append(seqs, sequence{
			tokens: ex.Tokens,
			normed: normalizeAll(ex.Tokens),
			labels: qualified,
		})
		if ex.DocumentID != "" {
			byDoc[ex.DocumentID] = len(seqs) - 1
		}
	}
	return seqs
}

// trainer carries the running, total and timestamp weights used for
// perceptron averaging.
type trainer struct {
	weights map[string]map[string]float64
	totals  map[string]map[string]float64
	stamps  map[string]map[string]int
	tags    []string
	step    int
}

// update decodes one sequence with the current weights and applies the
// standard structured-perceptron update wherever the prediction disagrees
// with gold.
func (t *trainer) update(seq sequence) {
	prevPred := model.TagO
	prevGold := model.TagO
	for i := range seq.tokens {
		t.step++

		feats := featurize(seq.tokens, seq.normed, i, prevPred)
		pred := t.predict(feats)
		gold := seq.labels[i]

		if pred != gold {
			// The gold-history features are what the gold path would have
			// seen; rewarding them is what lets decoding recover.
			goldFeats := featurize(seq.tokens, seq.normed, i, prevGold)
			for _, f := range goldFeats {
				t.adjust(f, gold, 1)
			}
			for _, f := range feats {
				t.adjust(f, pred, -1)
			}
		}

		prevPred = pred
		prevGold = gold
	}
}

func (t *trainer) predict(feats []string) string {
	best := t.tags[0]
	bestScore := 0.0
	first := true
	for _, tag := range t.tags {
		var s float64
		for _, f := range feats {
			if tw, ok := t.weights[f]; ok {
				s += tw[tag]
			}
		}
		if first || s > bestScore {
			best = tag
			bestScore = s
			first = false
		}
	}
	return best
}

// adjust applies a lazily-averaged weight update (Daumé-style timestamps so
// averaging stays O(updates), not O(steps × features)).
func (t *trainer) adjust(feat, tag string, delta float64) {
	if t.weights[feat] == nil {
		t.weights[feat] = make(map[string]float64)
		t.totals[feat] = make(map[string]float64)
		t.stamps[feat] = make(map[string]int)
	}
	t.totals[feat][tag] += float64(t.step-t.stamps[feat][tag]) * t.weights[feat][tag]
	t.stamps[feat][tag] = t.step
	t.weights[feat][tag] += delta
}

func (t *trainer) averaged() map[string]map[string]float64 {
	if t.step == 0 {
		t.step = 1
	}
	out := make(map[string]map[string]float64, len(t.weights))
	for feat, tw := range t.weights {
		row := make(map[string]float64, len(tw))
		for tag, w := range tw {
			total := t.totals[feat][tag] + float64(t.step-t.stamps[feat][tag])*w
			avg := total / float64(t.step)
			if avg != 0 {
				row[tag] = avg
			}
		}
		if len(row) > 0 {
			out[feat] = row
		}
	}
	return out
}

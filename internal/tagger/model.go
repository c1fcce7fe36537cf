// Package tagger implements the trainable sequence-tagging strategy: a
// linear BIO tagger (averaged structured perceptron, greedy decode) over
// word tokens, with field-qualified tags so one model per template covers
// all of its fields.
package tagger

import (
	"math"
	"sort"
	"strings"

	"github.com/fieldforge/extract-cli/internal/model"
)

// Qualified tag helpers: the tagger's label space is "O" plus
// "B-<field>"/"I-<field>" per field seen in training.

// QualifyLabels maps a field-scoped B/I/O labeling onto the qualified space.
func QualifyLabels(field string, labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		switch l {
		case model.TagB:
			out[i] = "B-" + field
		case model.TagI:
			out[i] = "I-" + field
		default:
			out[i] = model.TagO
		}
	}
	return out
}

func tagField(tag string) (kind, field string) {
	if tag == model.TagO || len(tag) < 3 {
		return model.TagO, ""
	}
	return tag[:1], tag[2:]
}

// Model is a trained tagger: per-feature, per-tag weights. Serialized as the
// template's model artifact.
type Model struct {
	Version int                           `json:"version"`
	Tags    []string                      `json:"tags"`
	Weights map[string]map[string]float64 `json:"weights"`
	Trained int                           `json:"trained_examples"`
	Epochs  int                           `json:"epochs"`
}

// Valid reports whether the artifact is structurally usable.
func (m *Model) Valid() bool {
	return m != nil && len(m.Tags) > 0 && len(m.Weights) > 0
}

// Decode greedily tags the token sequence, returning one tag per token and
// a per-token pseudo-probability (softmax over tag scores) the strategy
// aggregates into span confidence.
func (m *Model) Decode(tokens []model.WordToken) (tags []string, probs []float64) {
	tags = make([]string, len(tokens))
	probs = make([]float64, len(tokens))
	if len(tokens) == 0 {
		return tags, probs
	}

	normed := normalizeAll(tokens)
	prev := model.TagO
	for i := range tokens {
		feats := featurize(tokens, normed, i, prev)
		scores := m.score(feats)
		tag, prob := argmaxSoftmax(m.Tags, scores)
		tags[i] = tag
		probs[i] = prob
		prev = tag
	}
	return tags, probs
}

func (m *Model) score(feats []string) map[string]float64 {
	scores := make(map[string]float64, len(m.Tags))
	for _, f := range feats {
		tw, ok := m.Weights[f]
		if !ok {
			continue
		}
		for tag, w := range tw {
			scores[tag] += w
		}
	}
	return scores
}

// argmaxSoftmax picks the best tag and its softmax probability. Ties break
// by tag-list order, which puts "O" first: an untrained model abstains
// instead of hallucinating spans.
func argmaxSoftmax(tags []string, scores map[string]float64) (string, float64) {
	best := tags[0]
	bestScore := scores[best]
	for _, t := range tags[1:] {
		if scores[t] > bestScore {
			best = t
			bestScore = scores[t]
		}
	}

	// Softmax normalization, shifted by the max for stability.
	var sum float64
	for _, t := range tags {
		sum += math.Exp(scores[t] - bestScore)
	}
	if sum == 0 {
		return best, 0
	}
	return best, 1 / sum
}

// Span is one decoded field value: a B tag followed by its contiguous I run.
type Span struct {
	Field      string
	Start, End int // token index range, inclusive
	Confidence float64
}

// Spans reconstructs field spans from a decoded tag sequence. Span
// confidence is the mean per-token probability over the span.
func Spans(tags []string, probs []float64) []Span {
	var spans []Span
	i := 0
	for i < len(tags) {
		kind, field := tagField(tags[i])
		if kind != "B" {
			i++
			continue
		}
		start := i
		conf := probs[i]
		n := 1
		i++
		for i < len(tags) {
			k, f := tagField(tags[i])
			if k != "I" || f != field {
				break
			}
			conf += probs[i]
			n++
			i++
		}
		spans = append(spans, Span{Field: field, Start: start, End: start + n - 1, Confidence: conf / float64(n)})
	}
	return spans
}

// SpanValue joins the raw token texts covered by the span.
func SpanValue(tokens []model.WordToken, s Span) string {
	parts := make([]string, 0, s.End-s.Start+1)
	for i := s.Start; i <= s.End && i < len(tokens); i++ {
		parts = append(parts, tokens[i].Text)
	}
	return strings.Join(parts, " ")
}

// collectTags builds the stable tag inventory from training data, with "O"
// first so ties favor abstaining.
func collectTags(examples []sequence) []string {
	seen := map[string]bool{model.TagO: true}
	for _, ex := range examples {
		for _, t := range ex.labels {
			seen[t] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		if t != model.TagO {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return append([]string{model.TagO}, tags...)
}

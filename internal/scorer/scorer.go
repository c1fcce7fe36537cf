// Package scorer picks the winning candidate per field by blending each
// strategy's self-reported confidence with its recorded track record on
// this template. The more history a (template, strategy, field) key has,
// the more the recorded accuracy dominates and the less the strategy's own
// confidence or its configured prior matter.
package scorer

import (
	"context"

	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/config"
	"github.com/fieldforge/extract-cli/internal/model"
)

// PerformanceLookup is the slice of the store the scorer needs. A nil
// record (no error) means no history for the key.
type PerformanceLookup interface {
	GetPerformance(ctx context.Context, templateID string, strategyID model.StrategyID, fieldName string) (*model.PerformanceRecord, error)
}

// Scorer selects among competing field candidates.
type Scorer struct {
	perf PerformanceLookup
	cfg  config.ScorerConfig
}

// New returns a Scorer over the given performance history and weights.
func New(perf PerformanceLookup, cfg config.ScorerConfig) *Scorer {
	return &Scorer{perf: perf, cfg: cfg}
}

// Select returns the winning candidate, or nil when candidates is empty —
// an unextracted field is reported empty, never fabricated. Performance
// lookups that fail degrade to the no-history tier for that candidate; a
// store hiccup must not take down the extraction path.
func (s *Scorer) Select(ctx context.Context, templateID, fieldName string, candidates []model.FieldCandidate) *model.FieldCandidate {
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	bestScore := s.combined(ctx, templateID, fieldName, best)
	for _, c := range candidates[1:] {
		score := s.combined(ctx, templateID, fieldName, c)
		if s.beats(c, score, best, bestScore) {
			best, bestScore = c, score
		}
	}

	zap.L().Debug("scorer: selected candidate",
		zap.String("template_id", templateID),
		zap.String("field", fieldName),
		zap.String("method", string(best.Method)),
		zap.Float64("combined_score", bestScore),
		zap.Float64("confidence", best.Confidence),
	)
	return &best
}

// combined computes confidence×Wc + prior×Wp + accuracy×Wa with the tier
// weights chosen by the key's own extraction count.
func (s *Scorer) combined(ctx context.Context, templateID, fieldName string, c model.FieldCandidate) float64 {
	rec, err := s.perf.GetPerformance(ctx, templateID, c.Method, fieldName)
	if err != nil {
		zap.L().Warn("scorer: performance lookup failed, treating as no history",
			zap.String("template_id", templateID),
			zap.String("field", fieldName),
			zap.String("method", string(c.Method)),
			zap.Error(err),
		)
		rec = nil
	}

	total := 0
	accuracy := 0.0
	if rec != nil {
		total = rec.TotalExtractions
		accuracy = rec.Accuracy
	}

	w := s.weightsFor(total)
	return c.Confidence*w.Confidence + s.prior(c.Method)*w.Prior + accuracy*w.Performance
}

func (s *Scorer) weightsFor(totalExtractions int) config.TierWeights {
	switch model.TierFor(totalExtractions) {
	case model.TierProven:
		return s.cfg.Proven
	case model.TierEstablished:
		return s.cfg.Established
	default:
		return s.cfg.New
	}
}

func (s *Scorer) prior(method model.StrategyID) float64 {
	return s.cfg.Priors[string(method)]
}

// beats applies the tie-break ladder: combined score, then raw confidence,
// then configured strategy precedence.
func (s *Scorer) beats(c model.FieldCandidate, score float64, best model.FieldCandidate, bestScore float64) bool {
	if score != bestScore {
		return score > bestScore
	}
	if c.Confidence != best.Confidence {
		return c.Confidence > best.Confidence
	}
	return s.precedence(c.Method) < s.precedence(best.Method)
}

// precedence returns the method's rank in the configured order; unknown
// strategies sort last.
func (s *Scorer) precedence(method model.StrategyID) int {
	for i, m := range s.cfg.Precedence {
		if m == string(method) {
			return i
		}
	}
	return len(s.cfg.Precedence)
}

// Package extract wires strategies and the scorer into the two operations
// the outside world calls on the read/feedback path: extract fields from a
// token document, and accept a user correction.
package extract

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/scorer"
	"github.com/fieldforge/extract-cli/internal/store"
	"github.com/fieldforge/extract-cli/internal/strategy"
	"github.com/fieldforge/extract-cli/internal/textnorm"
)

// maxConcurrentFields bounds the per-request field fan-out.
const maxConcurrentFields = 8

// Service runs the multi-strategy extraction and feedback paths.
type Service struct {
	strategies []strategy.Strategy
	scorer     *scorer.Scorer
	store      store.Store
}

// NewService builds the façade. Strategy order fixes the candidate order
// handed to the scorer, so construction order is part of configuration.
func NewService(strategies []strategy.Strategy, sc *scorer.Scorer, st store.Store) *Service {
	return &Service{strategies: strategies, scorer: sc, store: st}
}

// ExtractFields runs every strategy on every configured field and selects
// one winner per field. Every requested field appears in the result; a nil
// value means no strategy produced a usable candidate. Strategy failures
// degrade field-by-field and never fail the request; only context
// cancellation aborts.
func (s *Service) ExtractFields(ctx context.Context, doc *model.Document, fields []model.FieldConfig) (map[string]*model.FieldCandidate, error) {
	results := make(map[string]*model.FieldCandidate, len(fields))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFields)

	for _, field := range fields {
		g.Go(func() error {
			candidates := s.candidatesFor(gctx, doc, field)
			if err := gctx.Err(); err != nil {
				return err
			}
			winner := s.scorer.Select(gctx, doc.TemplateID, field.Name, candidates)

			mu.Lock()
			results[field.Name] = winner
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "extract: fields")
	}
	return results, nil
}

// candidatesFor collects each strategy's opinion on one field. Unavailable
// strategies are skipped silently; unexpected strategy errors are logged
// and cost only that strategy's vote.
func (s *Service) candidatesFor(ctx context.Context, doc *model.Document, field model.FieldConfig) []model.FieldCandidate {
	var candidates []model.FieldCandidate
	for _, st := range s.strategies {
		cand, err := st.Extract(ctx, doc, field)
		switch {
		case eris.Is(err, strategy.ErrUnavailable):
			zap.L().Debug("extract: strategy unavailable",
				zap.String("method", string(st.ID())),
				zap.String("field", field.Name),
			)
		case err != nil && ctx.Err() != nil:
			return candidates
		case err != nil:
			zap.L().Warn("extract: strategy failed",
				zap.String("method", string(st.ID())),
				zap.String("field", field.Name),
				zap.String("document_id", doc.DocumentID),
				zap.Error(err),
			)
		case cand != nil:
			candidates = append(candidates, *cand)
		}
	}
	return candidates
}

// SubmitFeedback records one user correction: the originating strategy's
// outcome is folded into its performance record (correct iff its original
// value matches the correction under normalization), then the correction is
// appended for the next retraining run.
func (s *Service) SubmitFeedback(ctx context.Context, fb model.FeedbackRecord) (*model.FeedbackRecord, error) {
	if fb.TemplateID == "" || fb.FieldName == "" {
		return nil, eris.New("extract: feedback requires template_id and field_name")
	}

	if fb.StrategyUsed != "" {
		wasCorrect := textnorm.Equivalent(fb.OriginalValue, fb.CorrectedValue)
		if err := s.store.RecordOutcome(ctx, fb.TemplateID, fb.StrategyUsed, fb.FieldName, wasCorrect); err != nil {
			return nil, eris.Wrap(err, "extract: record outcome")
		}
		zap.L().Info("extract: recorded feedback outcome",
			zap.String("template_id", fb.TemplateID),
			zap.String("field", fb.FieldName),
			zap.String("method", string(fb.StrategyUsed)),
			zap.Bool("was_correct", wasCorrect),
		)
	}

	saved, err := s.store.AppendFeedback(ctx, fb)
	if err != nil {
		return nil, eris.Wrap(err, "extract: append feedback")
	}
	return saved, nil
}

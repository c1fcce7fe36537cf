// Package training orchestrates retraining: it turns accumulated feedback
// into weak-labeled examples via alignment, fits a fresh tagger, evaluates it
// on a held-out split, and only then activates the new artifact. A run that
// cannot gather enough usable examples leaves the active model and all
// performance stats untouched.
package training

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/align"
	"github.com/fieldforge/extract-cli/internal/config"
	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/modelstore"
	"github.com/fieldforge/extract-cli/internal/store"
	"github.com/fieldforge/extract-cli/internal/tagger"
	"github.com/fieldforge/extract-cli/internal/textnorm"
)

// TokenSource resolves a document's word tokens by id. Extraction and
// feedback only carry document ids; the token layout lives with whoever
// produced it.
type TokenSource interface {
	Tokens(ctx context.Context, documentID string) ([]model.WordToken, error)
}

// Pipeline runs retraining for one or more templates. At most one run per
// template executes at a time; concurrent callers for the same template
// queue behind the per-template lock.
type Pipeline struct {
	store   store.Store
	models  *modelstore.Registry
	tokens  TokenSource
	aligner *align.Aligner
	cfg     config.TrainingConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPipeline wires the retraining pipeline.
func NewPipeline(st store.Store, models *modelstore.Registry, tokens TokenSource, aligner *align.Aligner, cfg config.TrainingConfig) *Pipeline {
	if cfg.SplitRatio <= 0 || cfg.SplitRatio >= 1 {
		cfg.SplitRatio = 0.8
	}
	if cfg.MinExamples <= 0 {
		cfg.MinExamples = 10
	}
	return &Pipeline{
		store:   st,
		models:  models,
		tokens:  tokens,
		aligner: aligner,
		cfg:     cfg,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Retrain runs one full retraining cycle for the template. With useAll set it
// rebuilds from the entire feedback history; otherwise only corrections not
// yet consumed by a completed run are used. Context cancellation between
// stages aborts the run before anything is activated or consumed.
func (p *Pipeline) Retrain(ctx context.Context, templateID string, useAll bool) (*model.TrainingResult, error) {
	lock := p.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	result := &model.TrainingResult{TemplateID: templateID, StartedAt: started}
	finish := func() *model.TrainingResult {
		result.DurationSeconds = time.Since(started).Seconds()
		return result
	}

	feedback, err := p.store.ListFeedback(ctx, templateID, !useAll)
	if err != nil {
		return nil, eris.Wrap(err, "training: list feedback")
	}
	result.FeedbackCount = len(feedback)

	if err := p.checkAbort(ctx, templateID, result); err != nil {
		return finish(), err
	}

	examples, usedIDs, skipped, err := p.buildExamples(ctx, feedback)
	if err != nil {
		return nil, err
	}
	result.ExampleCount = len(examples)
	result.SkippedFields = skipped

	if len(examples) < p.cfg.MinExamples {
		result.Outcome = model.TrainingInsufficientData
		result.Reason = "not enough aligned training examples"
		zap.L().Warn("training: insufficient data, model left untouched",
			zap.String("template_id", templateID),
			zap.Int("examples", len(examples)),
			zap.Int("min_examples", p.cfg.MinExamples),
		)
		p.appendRun(ctx, templateID, result)
		return finish(), nil
	}

	if err := p.checkAbort(ctx, templateID, result); err != nil {
		return finish(), err
	}

	train, test := p.split(examples)
	result.TrainCount = len(train)
	result.TestCount = len(test)

	m := tagger.Train(train, p.cfg.Epochs, p.cfg.Seed)
	metrics := tagger.Evaluate(m, test)
	result.Metrics = &metrics

	if err := p.checkAbort(ctx, templateID, result); err != nil {
		return finish(), err
	}

	version, err := p.models.Save(templateID, m)
	if err != nil {
		return nil, eris.Wrap(err, "training: save model")
	}
	if err := p.models.Activate(templateID, version); err != nil {
		return nil, eris.Wrap(err, "training: activate model")
	}
	result.ModelVersion = version
	result.Outcome = model.TrainingCompleted

	// Seed the new model's track record from the held-out set so the scorer
	// does not treat a freshly trained strategy as a total unknown.
	p.replayHeldOut(ctx, templateID, m, test)

	if err := p.store.MarkFeedbackConsumed(ctx, usedIDs); err != nil {
		zap.L().Warn("training: failed to mark feedback consumed",
			zap.String("template_id", templateID),
			zap.Int("rows", len(usedIDs)),
			zap.Error(err),
		)
	}

	p.appendRun(ctx, templateID, result)

	zap.L().Info("training: run completed",
		zap.String("template_id", templateID),
		zap.Int("model_version", version),
		zap.Int("train", len(train)),
		zap.Int("test", len(test)),
		zap.Float64("f1", metrics.F1),
	)
	return finish(), nil
}

// buildExamples converts feedback rows into weak-labeled training examples.
// The latest correction per (document, field) wins; earlier corrections are
// consumed as superseded. Corrections that cannot be anchored to document
// tokens are skipped with a warning and stay unconsumed.
func (p *Pipeline) buildExamples(ctx context.Context, feedback []model.FeedbackRecord) ([]model.TrainingExample, []string, int, error) {
	type fieldCorrection struct {
		row        model.FeedbackRecord
		superseded []string
	}
	byDoc := make(map[string]map[string]*fieldCorrection)
	fieldOrder := make(map[string][]string)
	var docOrder []string

	for _, fb := range feedback {
		fields, ok := byDoc[fb.DocumentID]
		if !ok {
			fields = make(map[string]*fieldCorrection)
			byDoc[fb.DocumentID] = fields
			docOrder = append(docOrder, fb.DocumentID)
		}
		if prev, ok := fields[fb.FieldName]; ok {
			prev.superseded = append(prev.superseded, prev.row.ID)
			prev.row = fb
		} else {
			fields[fb.FieldName] = &fieldCorrection{row: fb}
			fieldOrder[fb.DocumentID] = append(fieldOrder[fb.DocumentID], fb.FieldName)
		}
	}

	var examples []model.TrainingExample
	var usedIDs []string
	skipped := 0

	for _, docID := range docOrder {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}
		tokens, err := p.tokens.Tokens(ctx, docID)
		if err != nil {
			zap.L().Warn("training: document tokens unavailable, skipping its corrections",
				zap.String("document_id", docID),
				zap.Error(err),
			)
			skipped += len(byDoc[docID])
			continue
		}

		spans := make(map[string][]int)
		for field, fc := range byDoc[docID] {
			r := p.aligner.Align(tokens, fc.row.CorrectedValue)
			if !p.aligner.Aligned(r) {
				zap.L().Warn("training: correction could not be aligned",
					zap.String("document_id", docID),
					zap.String("field", field),
					zap.Float64("score", r.Score),
				)
				skipped++
				continue
			}
			spans[field] = r.MatchedIndices
		}

		// Earlier-corrected fields own contested tokens.
		spans = align.ResolveOverlaps(spans, fieldOrder[docID])

		for _, field := range fieldOrder[docID] {
			indices, ok := spans[field]
			if !ok || len(indices) == 0 {
				continue
			}
			fc := byDoc[docID][field]
			examples = append(examples, model.TrainingExample{
				DocumentID: docID,
				FieldName:  field,
				Tokens:     tokens,
				Labels:     align.LabelSpan(len(tokens), indices),
			})
			usedIDs = append(usedIDs, fc.row.ID)
			usedIDs = append(usedIDs, fc.superseded...)
		}
	}

	return examples, usedIDs, skipped, nil
}

// split shuffles examples with the configured seed and cuts them at the
// configured ratio. Sorting first makes the shuffle independent of feedback
// arrival order, so a rerun over the same corrections reproduces the split.
func (p *Pipeline) split(examples []model.TrainingExample) (train, test []model.TrainingExample) {
	sorted := make([]model.TrainingExample, len(examples))
	copy(sorted, examples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DocumentID != sorted[j].DocumentID {
			return sorted[i].DocumentID < sorted[j].DocumentID
		}
		return sorted[i].FieldName < sorted[j].FieldName
	})

	rng := rand.New(rand.NewSource(p.cfg.Seed))
	rng.Shuffle(len(sorted), func(i, j int) { sorted[i], sorted[j] = sorted[j], sorted[i] })

	cut := int(float64(len(sorted)) * p.cfg.SplitRatio)
	if cut >= len(sorted) {
		cut = len(sorted) - 1
	}
	if cut < 1 {
		cut = 1
	}
	return sorted[:cut], sorted[cut:]
}

// replayHeldOut scores the fresh model's predictions on the held-out set and
// folds each one into the performance records. Errors here are logged, not
// fatal: the model is already active and the stats will catch up from live
// feedback.
func (p *Pipeline) replayHeldOut(ctx context.Context, templateID string, m *tagger.Model, test []model.TrainingExample) {
	for _, ex := range test {
		gold := goldValue(ex)
		if gold == "" {
			continue
		}
		predicted := predictedValue(m, ex)
		correct := predicted != "" && textnorm.Equivalent(predicted, gold)
		if err := p.store.RecordOutcome(ctx, templateID, model.StrategyCRF, ex.FieldName, correct); err != nil {
			zap.L().Warn("training: held-out outcome not recorded",
				zap.String("template_id", templateID),
				zap.String("field", ex.FieldName),
				zap.Error(err),
			)
			return
		}
	}
}

// checkAbort records an aborted run when the context is done between stages.
// The history row is written on a detached context so the abort itself is
// still visible after cancellation.
func (p *Pipeline) checkAbort(ctx context.Context, templateID string, result *model.TrainingResult) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	result.Outcome = model.TrainingAborted
	result.Reason = err.Error()
	p.appendRun(context.WithoutCancel(ctx), templateID, result)
	zap.L().Warn("training: run aborted",
		zap.String("template_id", templateID),
		zap.Error(err),
	)
	return eris.Wrap(err, "training: aborted")
}

func (p *Pipeline) appendRun(ctx context.Context, templateID string, result *model.TrainingResult) {
	run := model.TrainingRun{
		TemplateID:   templateID,
		ModelVersion: result.ModelVersion,
		Outcome:      result.Outcome,
		ExampleCount: result.ExampleCount,
		TrainCount:   result.TrainCount,
		TestCount:    result.TestCount,
		Metrics:      result.Metrics,
	}
	if _, err := p.store.AppendTrainingRun(ctx, run); err != nil {
		zap.L().Warn("training: failed to append run history",
			zap.String("template_id", templateID),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) templateLock(templateID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks[templateID] == nil {
		p.locks[templateID] = &sync.Mutex{}
	}
	return p.locks[templateID]
}

// goldValue reconstructs the labeled span's text from the example itself.
func goldValue(ex model.TrainingExample) string {
	var parts []string
	for i, label := range ex.Labels {
		if label == model.TagB || label == model.TagI {
			parts = append(parts, ex.Tokens[i].Text)
		}
	}
	return strings.Join(parts, " ")
}

// predictedValue decodes the example and returns the model's best span text
// for the example's field, or "" when the model abstains.
func predictedValue(m *tagger.Model, ex model.TrainingExample) string {
	tags, probs := m.Decode(ex.Tokens)
	var best *tagger.Span
	for _, span := range tagger.Spans(tags, probs) {
		if span.Field != ex.FieldName {
			continue
		}
		if best == nil || span.Confidence > best.Confidence {
			s := span
			best = &s
		}
	}
	if best == nil {
		return ""
	}
	return tagger.SpanValue(ex.Tokens, *best)
}

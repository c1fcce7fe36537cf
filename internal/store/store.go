package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fieldforge/extract-cli/internal/config"
	"github.com/fieldforge/extract-cli/internal/model"
)

// Store defines the persistence interface for performance statistics,
// feedback and training history.
type Store interface {
	// Performance. RecordOutcome is atomic per (template, strategy, field)
	// key under concurrent callers: N concurrent calls mean exactly N
	// increments. It also maintains the per-strategy aggregate row
	// (field_name = model.FieldAggregate) in the same transaction.
	RecordOutcome(ctx context.Context, templateID string, strategyID model.StrategyID, fieldName string, wasCorrect bool) error
	GetPerformance(ctx context.Context, templateID string, strategyID model.StrategyID, fieldName string) (*model.PerformanceRecord, error)
	ListPerformance(ctx context.Context, templateID string) ([]model.PerformanceRecord, error)
	ResetPerformance(ctx context.Context, templateID string) (int, error)

	// Feedback (append-only, one row per user correction).
	AppendFeedback(ctx context.Context, fb model.FeedbackRecord) (*model.FeedbackRecord, error)
	ListFeedback(ctx context.Context, templateID string, onlyUnconsumed bool) ([]model.FeedbackRecord, error)
	MarkFeedbackConsumed(ctx context.Context, ids []string) error

	// Training history.
	AppendTrainingRun(ctx context.Context, run model.TrainingRun) (*model.TrainingRun, error)
	ListTrainingRuns(ctx context.Context, templateID string, limit int) ([]model.TrainingRun, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the configured backend.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/resilience"
)

// pgxPool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool  pgxPool
	retry resilience.RetryConfig
}

// NewPostgres connects to the given database URL.
func NewPostgres(databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return NewPostgresFromPool(pool), nil
}

// NewPostgresFromPool wraps an existing pool (used by tests).
func NewPostgresFromPool(pool pgxPool) *PostgresStore {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("postgres", "record_outcome")
	return &PostgresStore{pool: pool, retry: retry}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS performance_records (
	template_id         TEXT NOT NULL,
	strategy_id         TEXT NOT NULL,
	field_name          TEXT NOT NULL DEFAULT '',
	total_extractions   INTEGER NOT NULL DEFAULT 0,
	correct_extractions INTEGER NOT NULL DEFAULT 0,
	accuracy            DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_updated        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (template_id, strategy_id, field_name),
	CHECK (correct_extractions >= 0 AND correct_extractions <= total_extractions)
);

CREATE TABLE IF NOT EXISTS feedback_records (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	template_id     TEXT NOT NULL,
	field_name      TEXT NOT NULL,
	original_value  TEXT NOT NULL,
	corrected_value TEXT NOT NULL,
	strategy_used   TEXT NOT NULL,
	consumed        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS training_runs (
	id            TEXT PRIMARY KEY,
	template_id   TEXT NOT NULL,
	model_version INTEGER NOT NULL,
	outcome       TEXT NOT NULL,
	example_count INTEGER NOT NULL,
	train_count   INTEGER NOT NULL,
	test_count    INTEGER NOT NULL,
	metrics       JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_template ON feedback_records(template_id, consumed);
CREATE INDEX IF NOT EXISTS idx_feedback_document ON feedback_records(document_id);
CREATE INDEX IF NOT EXISTS idx_training_runs_template ON training_runs(template_id, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// postgresOutcomeUpsert mirrors the SQLite statement: one row-atomic upsert
// per touched key, accuracy recomputed from the new counters.
const postgresOutcomeUpsert = `
INSERT INTO performance_records
	(template_id, strategy_id, field_name, total_extractions, correct_extractions, accuracy, last_updated)
VALUES ($1, $2, $3, 1, $4, $5, $6)
ON CONFLICT (template_id, strategy_id, field_name) DO UPDATE SET
	total_extractions   = performance_records.total_extractions + 1,
	correct_extractions = performance_records.correct_extractions + EXCLUDED.correct_extractions,
	accuracy            = (performance_records.correct_extractions + EXCLUDED.correct_extractions)::double precision
	                      / (performance_records.total_extractions + 1),
	last_updated        = EXCLUDED.last_updated
`

func (s *PostgresStore) RecordOutcome(ctx context.Context, templateID string, strategyID model.StrategyID, fieldName string, wasCorrect bool) error {
	correct := 0
	if wasCorrect {
		correct = 1
	}
	now := time.Now().UTC()

	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		for _, field := range outcomeFields(fieldName) {
			if _, err := tx.Exec(ctx, postgresOutcomeUpsert,
				templateID, string(strategyID), field, correct, float64(correct), now,
			); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
	return eris.Wrapf(err, "postgres: record outcome %s/%s/%s", templateID, strategyID, fieldName)
}

func (s *PostgresStore) GetPerformance(ctx context.Context, templateID string, strategyID model.StrategyID, fieldName string) (*model.PerformanceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT template_id, strategy_id, field_name, total_extractions, correct_extractions, accuracy, last_updated
		 FROM performance_records
		 WHERE template_id = $1 AND strategy_id = $2 AND field_name = $3`,
		templateID, string(strategyID), fieldName,
	)

	var r model.PerformanceRecord
	err := row.Scan(&r.TemplateID, &r.StrategyID, &r.FieldName,
		&r.TotalExtractions, &r.CorrectExtractions, &r.Accuracy, &r.LastUpdated)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get performance")
	}
	return &r, nil
}

func (s *PostgresStore) ListPerformance(ctx context.Context, templateID string) ([]model.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT template_id, strategy_id, field_name, total_extractions, correct_extractions, accuracy, last_updated
		 FROM performance_records
		 WHERE template_id = $1
		 ORDER BY strategy_id, field_name`,
		templateID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list performance")
	}
	defer rows.Close()

	var records []model.PerformanceRecord
	for rows.Next() {
		var r model.PerformanceRecord
		if err := rows.Scan(&r.TemplateID, &r.StrategyID, &r.FieldName,
			&r.TotalExtractions, &r.CorrectExtractions, &r.Accuracy, &r.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan performance")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list performance iterate")
}

func (s *PostgresStore) ResetPerformance(ctx context.Context, templateID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM performance_records WHERE template_id = $1`, templateID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset performance")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AppendFeedback(ctx context.Context, fb model.FeedbackRecord) (*model.FeedbackRecord, error) {
	fb.ID = uuid.New().String()
	fb.CreatedAt = time.Now().UTC()
	fb.Consumed = false

	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback_records
			(id, document_id, template_id, field_name, original_value, corrected_value, strategy_used, consumed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`,
		fb.ID, fb.DocumentID, fb.TemplateID, fb.FieldName,
		fb.OriginalValue, fb.CorrectedValue, string(fb.StrategyUsed), fb.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: append feedback")
	}
	return &fb, nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, templateID string, onlyUnconsumed bool) ([]model.FeedbackRecord, error) {
	query := `SELECT id, document_id, template_id, field_name, original_value, corrected_value, strategy_used, consumed, created_at
	          FROM feedback_records WHERE template_id = $1`
	if onlyUnconsumed {
		query += ` AND consumed = FALSE`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, templateID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var fb model.FeedbackRecord
		if err := rows.Scan(&fb.ID, &fb.DocumentID, &fb.TemplateID, &fb.FieldName,
			&fb.OriginalValue, &fb.CorrectedValue, &fb.StrategyUsed, &fb.Consumed, &fb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		records = append(records, fb)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

func (s *PostgresStore) MarkFeedbackConsumed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE feedback_records SET consumed = TRUE WHERE id = ANY($1)`, ids)
	return eris.Wrap(err, "postgres: mark feedback consumed")
}

func (s *PostgresStore) AppendTrainingRun(ctx context.Context, run model.TrainingRun) (*model.TrainingRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	var metricsJSON []byte
	if run.Metrics != nil {
		data, err := json.Marshal(run.Metrics)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal metrics")
		}
		metricsJSON = data
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO training_runs
			(id, template_id, model_version, outcome, example_count, train_count, test_count, metrics, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.TemplateID, run.ModelVersion, string(run.Outcome),
		run.ExampleCount, run.TrainCount, run.TestCount, metricsJSON, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: append training run")
	}
	return &run, nil
}

func (s *PostgresStore) ListTrainingRuns(ctx context.Context, templateID string, limit int) ([]model.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, template_id, model_version, outcome, example_count, train_count, test_count, metrics, created_at
		 FROM training_runs WHERE template_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		templateID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list training runs")
	}
	defer rows.Close()

	var runs []model.TrainingRun
	for rows.Next() {
		var run model.TrainingRun
		var metricsJSON []byte
		if err := rows.Scan(&run.ID, &run.TemplateID, &run.ModelVersion, &run.Outcome,
			&run.ExampleCount, &run.TrainCount, &run.TestCount, &metricsJSON, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan training run")
		}
		if len(metricsJSON) > 0 {
			run.Metrics = &model.EvalMetrics{}
			if err := json.Unmarshal(metricsJSON, run.Metrics); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal metrics")
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list training runs iterate")
}

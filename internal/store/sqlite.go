package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	retry resilience.RetryConfig
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("sqlite", "record_outcome")
	return &SQLiteStore{db: db, retry: retry}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS performance_records (
	template_id         TEXT NOT NULL,
	strategy_id         TEXT NOT NULL,
	field_name          TEXT NOT NULL DEFAULT '',
	total_extractions   INTEGER NOT NULL DEFAULT 0,
	correct_extractions INTEGER NOT NULL DEFAULT 0,
	accuracy            REAL NOT NULL DEFAULT 0,
	last_updated        DATETIME NOT NULL,
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
	consumed        INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS training_runs (
	id            TEXT PRIMARY KEY,
	template_id   TEXT NOT NULL,
	model_version INTEGER NOT NULL,
	outcome       TEXT NOT NULL,
	example_count INTEGER NOT NULL,
	train_count   INTEGER NOT NULL,
	test_count    INTEGER NOT NULL,
	metrics       TEXT,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_template ON feedback_records(template_id, consumed);
CREATE INDEX IF NOT EXISTS idx_feedback_document ON feedback_records(document_id);
CREATE INDEX IF NOT EXISTS idx_training_runs_template ON training_runs(template_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteOutcomeUpsert folds one outcome into a record in a single statement,
// so the read-modify-write happens inside the engine and concurrent callers
// can never interleave between read and write. Accuracy is recomputed from
// the updated counters, never drifted.
const sqliteOutcomeUpsert = `
INSERT INTO performance_records
	(template_id, strategy_id, field_name, total_extractions, correct_extractions, accuracy, last_updated)
VALUES (?, ?, ?, 1, ?, ?, ?)
ON CONFLICT(template_id, strategy_id, field_name) DO UPDATE SET
	total_extractions   = total_extractions + 1,
	correct_extractions = correct_extractions + excluded.correct_extractions,
	accuracy            = CAST(correct_extractions + excluded.correct_extractions AS REAL) / (total_extractions + 1),
	last_updated        = excluded.last_updated
`

func (s *SQLiteStore) RecordOutcome(ctx context.Context, templateID string, strategyID model.StrategyID, fieldName string, wasCorrect bool) error {
	correct := 0
	if wasCorrect {
		correct = 1
	}
	now := time.Now().UTC()

	// WAL allows one writer at a time; contention surfaces as SQLITE_BUSY
	// and is retried rather than dropped.
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		for _, field := range outcomeFields(fieldName) {
			if _, err := tx.ExecContext(ctx, sqliteOutcomeUpsert,
				templateID, string(strategyID), field, correct, float64(correct), now,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	return eris.Wrapf(err, "sqlite: record outcome %s/%s/%s", templateID, strategyID, fieldName)
}

// outcomeFields returns the rows one outcome touches: the field-level row
// and the per-strategy aggregate, unless the outcome already targets the
// aggregate itself.
func outcomeFields(fieldName string) []string {
	if fieldName == model.FieldAggregate {
		return []string{model.FieldAggregate}
	}
	return []string{fieldName, model.FieldAggregate}
}

func (s *SQLiteStore) GetPerformance(ctx context.Context, templateID string, strategyID model.StrategyID, fieldName string) (*model.PerformanceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT template_id, strategy_id, field_name, total_extractions, correct_extractions, accuracy, last_updated
		 FROM performance_records
		 WHERE template_id = ? AND strategy_id = ? AND field_name = ?`,
		templateID, string(strategyID), fieldName,
	)

	var r model.PerformanceRecord
	err := row.Scan(&r.TemplateID, &r.StrategyID, &r.FieldName,
		&r.TotalExtractions, &r.CorrectExtractions, &r.Accuracy, &r.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get performance")
	}
	return &r, nil
}

func (s *SQLiteStore) ListPerformance(ctx context.Context, templateID string) ([]model.PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_id, strategy_id, field_name, total_extractions, correct_extractions, accuracy, last_updated
		 FROM performance_records
		 WHERE template_id = ?
		 ORDER BY strategy_id, field_name`,
		templateID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list performance")
	}
	defer rows.Close()

	var records []model.PerformanceRecord
	for rows.Next() {
		var r model.PerformanceRecord
		if err := rows.Scan(&r.TemplateID, &r.StrategyID, &r.FieldName,
			&r.TotalExtractions, &r.CorrectExtractions, &r.Accuracy, &r.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan performance")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list performance iterate")
}

func (s *SQLiteStore) ResetPerformance(ctx context.Context, templateID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM performance_records WHERE template_id = ?`, templateID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset performance")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) AppendFeedback(ctx context.Context, fb model.FeedbackRecord) (*model.FeedbackRecord, error) {
	fb.ID = uuid.New().String()
	fb.CreatedAt = time.Now().UTC()
	fb.Consumed = false

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback_records
			(id, document_id, template_id, field_name, original_value, corrected_value, strategy_used, consumed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		fb.ID, fb.DocumentID, fb.TemplateID, fb.FieldName,
		fb.OriginalValue, fb.CorrectedValue, string(fb.StrategyUsed), fb.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: append feedback")
	}
	return &fb, nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, templateID string, onlyUnconsumed bool) ([]model.FeedbackRecord, error) {
	query := `SELECT id, document_id, template_id, field_name, original_value, corrected_value, strategy_used, consumed, created_at
	          FROM feedback_records WHERE template_id = ?`
	if onlyUnconsumed {
		query += ` AND consumed = 0`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var fb model.FeedbackRecord
		if err := rows.Scan(&fb.ID, &fb.DocumentID, &fb.TemplateID, &fb.FieldName,
			&fb.OriginalValue, &fb.CorrectedValue, &fb.StrategyUsed, &fb.Consumed, &fb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		records = append(records, fb)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

func (s *SQLiteStore) MarkFeedbackConsumed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mark consumed")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE feedback_records SET consumed = 1 WHERE id = ?`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare mark consumed")
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return eris.Wrapf(err, "sqlite: mark feedback %s consumed", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit mark consumed")
}

func (s *SQLiteStore) AppendTrainingRun(ctx context.Context, run model.TrainingRun) (*model.TrainingRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	var metricsJSON sql.NullString
	if run.Metrics != nil {
		data, err := json.Marshal(run.Metrics)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal metrics")
		}
		metricsJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_runs
			(id, template_id, model_version, outcome, example_count, train_count, test_count, metrics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TemplateID, run.ModelVersion, string(run.Outcome),
		run.ExampleCount, run.TrainCount, run.TestCount, metricsJSON, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: append training run")
	}
	return &run, nil
}

func (s *SQLiteStore) ListTrainingRuns(ctx context.Context, templateID string, limit int) ([]model.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_id, model_version, outcome, example_count, train_count, test_count, metrics, created_at
		 FROM training_runs WHERE template_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		templateID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list training runs")
	}
	defer rows.Close()

	var runs []model.TrainingRun
	for rows.Next() {
		var run model.TrainingRun
		var metricsJSON sql.NullString
		if err := rows.Scan(&run.ID, &run.TemplateID, &run.ModelVersion, &run.Outcome,
			&run.ExampleCount, &run.TrainCount, &run.TestCount, &metricsJSON, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan training run")
		}
		if metricsJSON.Valid {
			run.Metrics = &model.EvalMetrics{}
			if err := json.Unmarshal([]byte(metricsJSON.String), run.Metrics); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list training runs iterate")
}

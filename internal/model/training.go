package model

import "time"

// BIO tags for word-level field labeling.
const (
	TagB = "B" // first token of a field value
	TagI = "I" // continuation token
	TagO = "O" // outside any field value
)

// TrainingExample is one labeled document for one field. Labels align 1:1
// with Tokens. Ephemeral: regenerated from feedback on every retraining run.
type TrainingExample struct {
	DocumentID string
	FieldName  string
	Tokens     []WordToken
	Labels     []string
}

// TrainingOutcome classifies how a retraining run ended.
type TrainingOutcome string

const (
	TrainingCompleted        TrainingOutcome = "completed"
	TrainingInsufficientData TrainingOutcome = "insufficient_data"
	TrainingAborted          TrainingOutcome = "aborted"
)

// EvalMetrics holds held-out evaluation results for a trained tagger.
type EvalMetrics struct {
	TokenAccuracy float64            `json:"token_accuracy"`
	Precision     float64            `json:"precision"`
	Recall        float64            `json:"recall"`
	F1            float64            `json:"f1"`
	PerFieldF1    map[string]float64 `json:"per_field_f1,omitempty"`
}

// TrainingResult is the outcome object a retraining run reports back.
type TrainingResult struct {
	TemplateID      string          `json:"template_id"`
	Outcome         TrainingOutcome `json:"outcome"`
	ModelVersion    int             `json:"model_version,omitempty"`
	FeedbackCount   int             `json:"feedback_count"`
	ExampleCount    int             `json:"example_count"`
	SkippedFields   int             `json:"skipped_fields"`
	TrainCount      int             `json:"train_count"`
	TestCount       int             `json:"test_count"`
	Metrics         *EvalMetrics    `json:"metrics,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	DurationSeconds float64         `json:"duration_seconds"`
}

// TrainingRun is the persisted history row for one retraining run.
type TrainingRun struct {
	ID           string          `json:"id"`
	TemplateID   string          `json:"template_id"`
	ModelVersion int             `json:"model_version"`
	Outcome      TrainingOutcome `json:"outcome"`
	ExampleCount int             `json:"example_count"`
	TrainCount   int             `json:"train_count"`
	TestCount    int             `json:"test_count"`
	Metrics      *EvalMetrics    `json:"metrics,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

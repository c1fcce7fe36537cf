package model

import "time"

// FeedbackRecord is one user correction to an extracted value. Append-only;
// it drives both performance accounting and training-example generation.
type FeedbackRecord struct {
	ID             string     `json:"id"`
	DocumentID     string     `json:"document_id"`
	TemplateID     string     `json:"template_id"`
	FieldName      string     `json:"field_name"`
	OriginalValue  string     `json:"original_value"`
	CorrectedValue string     `json:"corrected_value"`
	StrategyUsed   StrategyID `json:"strategy_used"`
	Consumed       bool       `json:"consumed"`
	CreatedAt      time.Time  `json:"created_at"`
}

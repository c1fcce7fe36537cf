package model

import "time"

// FieldAggregate is the field_name value used for the per-strategy aggregate
// record spanning all fields of a template.
const FieldAggregate = ""

// PerformanceRecord tracks historical accuracy for one
// (template, strategy, field) key. Exactly one record exists per key; it is
// created lazily on the first recorded outcome and mutated in place after.
// Accuracy is always recomputed from the counters, never drifted.
type PerformanceRecord struct {
	TemplateID         string     `json:"template_id"`
	StrategyID         StrategyID `json:"strategy_id"`
	FieldName          string     `json:"field_name"`
	Accuracy           float64    `json:"accuracy"`
	TotalExtractions   int        `json:"total_extractions"`
	CorrectExtractions int        `json:"correct_extractions"`
	LastUpdated        time.Time  `json:"last_updated"`
}

// Tier buckets a record by how much history backs it.
type Tier string

const (
	TierNew         Tier = "new"         // < 5 outcomes
	TierEstablished Tier = "established" // 5-9 outcomes
	TierProven      Tier = "proven"      // >= 10 outcomes
)

// TierFor returns the history tier for a given outcome count.
func TierFor(totalExtractions int) Tier {
	switch {
	case totalExtractions >= 10:
		return TierProven
	case totalExtractions >= 5:
		return TierEstablished
	default:
		return TierNew
	}
}

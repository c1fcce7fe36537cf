// Package strategy holds the competing extraction strategies. Each strategy
// proposes at most one candidate per field, independently of the others:
// strategies never observe each other's output, and abstaining is always
// preferred over guessing.
package strategy

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fieldforge/extract-cli/internal/model"
)

// ErrUnavailable means the strategy cannot run at all for this template
// (missing model, missing config). Callers skip the strategy — "no opinion",
// never a zero-confidence candidate.
var ErrUnavailable = eris.New("strategy: unavailable")

// Strategy is one independent extraction method.
type Strategy interface {
	ID() model.StrategyID

	// Extract proposes a candidate for the field, or (nil, nil) to abstain.
	Extract(ctx context.Context, doc *model.Document, field model.FieldConfig) (*model.FieldCandidate, error)
}

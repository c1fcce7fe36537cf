package strategy

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/textnorm"
)

const defaultMaxValueTokens = 6

// Positional is the rule-based strategy: it anchors on the configured label
// text and/or page region and reads the value tokens that follow.
type Positional struct{}

// NewPositional returns the rule-based positional strategy.
func NewPositional() *Positional { return &Positional{} }

func (p *Positional) ID() model.StrategyID { return model.StrategyPositional }

// Extract finds the field value near its configured anchor. It abstains
// (nil, nil) when neither the label nor any in-region token is found: a rule
// with no anchor has no basis for even a low-confidence guess.
func (p *Positional) Extract(ctx context.Context, doc *model.Document, field model.FieldConfig) (*model.FieldCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if field.Label == "" && field.Region == nil {
		// Nothing to anchor on; this field is not positional-extractable.
		return nil, ErrUnavailable
	}

	scope := scopeTokens(doc.Tokens, field.Region)
	if len(scope) == 0 {
		return nil, nil
	}

	var valueTokens []model.WordToken
	confidence := 0.0

	if field.Label != "" {
		anchor := findLabel(scope, field.Label)
		if anchor < 0 && field.Region == nil {
			return nil, nil
		}
		if anchor >= 0 {
			valueTokens = tokensAfterLabel(scope, anchor, maxValueTokens(field))
			confidence = 0.55
		}
	}
	if len(valueTokens) == 0 && field.Region != nil {
		// No label hit; fall back to reading the region itself.
		valueTokens = limitTokens(scope, maxValueTokens(field))
		confidence = 0.35
	}
	if len(valueTokens) == 0 {
		return nil, nil
	}
	if field.Region != nil && withinRegion(valueTokens, field.Region) {
		confidence += 0.15
	}

	raw := joinTexts(valueTokens)
	value := raw

	if field.Pattern != "" {
		re, err := regexp.Compile(field.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "positional: field %q pattern", field.Name)
		}
		m := re.FindString(raw)
		if m == "" {
			// A configured shape the text does not have means this is not
			// the value; abstain instead of guessing.
			return nil, nil
		}
		value = m
		confidence += 0.25
	}

	return &model.FieldCandidate{
		FieldName:  field.Name,
		Value:      strings.TrimSpace(value),
		RawValue:   raw,
		Confidence: math.Min(confidence, 1.0),
		Method:     model.StrategyPositional,
	}, nil
}

// scopeTokens restricts tokens to the configured region (center-in-box on
// the region's page), preserving reading order.
func scopeTokens(tokens []model.WordToken, region *model.Region) []model.WordToken {
	if region == nil {
		return tokens
	}
	box := model.BBox{X0: region.X0, Y0: region.Y0, X1: region.X1, Y1: region.Y1}
	var scoped []model.WordToken
	for _, t := range tokens {
		if t.PageIndex == region.Page && box.Contains(t.BBox.CenterX(), t.BBox.CenterY()) {
			scoped = append(scoped, t)
		}
	}
	return scoped
}

// findLabel locates the configured label (possibly multi-word) as a
// consecutive normalized token run and returns the index of its last token,
// or -1.
func findLabel(tokens []model.WordToken, label string) int {
	words := textnorm.Fields(label)
	if len(words) == 0 {
		return -1
	}
	normedLabel := make([]string, len(words))
	for i, w := range words {
		normedLabel[i] = textnorm.Normalize(w)
	}

	for i := 0; i+len(normedLabel) <= len(tokens); i++ {
		match := true
		for j, lw := range normedLabel {
			if textnorm.Normalize(tokens[i+j].Text) != lw {
				match = false
				break
			}
		}
		if match {
			return i + len(normedLabel) - 1
		}
	}
	return -1
}

// tokensAfterLabel reads value tokens following the anchor on the same text
// line (same page, vertically overlapping the anchor), capped at limit.
func tokensAfterLabel(tokens []model.WordToken, anchor, limit int) []model.WordToken {
	anchorTok := tokens[anchor]
	lineTol := math.Max(anchorTok.BBox.Height()/2, 2)

	var out []model.WordToken
	for _, t := range tokens[anchor+1:] {
		if t.PageIndex != anchorTok.PageIndex {
			break
		}
		if math.Abs(t.BBox.CenterY()-anchorTok.BBox.CenterY()) > lineTol {
			break
		}
		out = append(out, t)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func limitTokens(tokens []model.WordToken, limit int) []model.WordToken {
	sorted := make([]model.WordToken, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SequenceIndex < sorted[j].SequenceIndex
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func withinRegion(tokens []model.WordToken, region *model.Region) bool {
	box := model.BBox{X0: region.X0, Y0: region.Y0, X1: region.X1, Y1: region.Y1}
	for _, t := range tokens {
		if t.PageIndex != region.Page || !box.Contains(t.BBox.CenterX(), t.BBox.CenterY()) {
			return false
		}
	}
	return true
}

func maxValueTokens(field model.FieldConfig) int {
	if field.MaxTokens > 0 {
		return field.MaxTokens
	}
	return defaultMaxValueTokens
}

func joinTexts(tokens []model.WordToken) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

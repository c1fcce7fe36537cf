// Package align turns a user's free-text correction into word-level labels
// by locating the best-matching token span in the document. It is the weak
// labeling step: corrections only become training signal when they can be
// anchored to actual document tokens.
package align

import (
	"github.com/agext/levenshtein"

	"github.com/fieldforge/extract-cli/internal/config"
	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/textnorm"
)

// Result is the outcome of aligning one corrected value against a document.
type Result struct {
	// MatchedIndices are the token indices reconstructing the corrected
	// value, ascending. Empty when nothing matched.
	MatchedIndices []int `json:"matched_indices"`

	// Score is matched-target fraction minus the per-skip penalty.
	Score float64 `json:"score"`

	// Skips counts document tokens stepped over inside the span.
	Skips int `json:"skips"`
}

// Aligner finds token spans for corrected values using a greedy matcher with
// bounded lookahead. Matching tolerates casing, punctuation and small OCR
// edit noise but never reorders tokens.
type Aligner struct {
	cfg    config.AlignConfig
	params *levenshtein.Params
}

// New returns an Aligner. Zero-valued config fields fall back to the same
// defaults config.Load sets.
func New(cfg config.AlignConfig) *Aligner {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 3
	}
	if cfg.SkipPenalty <= 0 {
		cfg.SkipPenalty = 0.1
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.65
	}
	if cfg.FuzzyMinSimilarity <= 0 {
		cfg.FuzzyMinSimilarity = 0.8
	}
	return &Aligner{cfg: cfg, params: levenshtein.NewParams()}
}

// Aligned reports whether r clears the acceptance threshold. Results below
// it must be excluded from training rather than mislabeled.
func (a *Aligner) Aligned(r Result) bool {
	return len(r.MatchedIndices) > 0 && r.Score >= a.cfg.MinScore
}

// Align finds the best-scoring token span reconstructing corrected.
// Ties break toward the earliest document position, so reruns on identical
// input always return identical indices.
func (a *Aligner) Align(tokens []model.WordToken, corrected string) Result {
	targets := normalizeTargets(corrected)
	if len(targets) == 0 || len(tokens) == 0 {
		return Result{}
	}

	normed := make([]string, len(tokens))
	for i, t := range tokens {
		normed[i] = textnorm.Normalize(t.Text)
	}

	best := Result{Score: -1}
	for start := range normed {
		if !a.tokensMatch(normed[start], targets[0]) {
			continue
		}
		r := a.matchFrom(normed, targets, start)
		if r.Score > best.Score {
			best = r
		}
	}
	if best.Score < 0 {
		return Result{}
	}
	return best
}

// matchFrom runs the greedy-with-lookahead match anchored at start, which is
// already known to match the first target token.
func (a *Aligner) matchFrom(normed, targets []string, start int) Result {
	matched := []int{start}
	skips := 0
	di := start + 1

	for ti := 1; ti < len(targets); ti++ {
		if di >= len(normed) {
			break
		}
		if a.tokensMatch(normed[di], targets[ti]) {
			matched = append(matched, di)
			di++
			continue
		}
		// Probe forward for a resynchronization point before abandoning
		// this target token.
		found := -1
		limit := di + a.cfg.Lookahead
		for k := di + 1; k <= limit && k < len(normed); k++ {
			if a.tokensMatch(normed[k], targets[ti]) {
				found = k
				break
			}
		}
		if found < 0 {
			// Target token has no counterpart near the cursor; drop it and
			// keep matching the rest from the same document position.
			continue
		}
		skips += found - di
		matched = append(matched, found)
		di = found + 1
	}

	score := float64(len(matched))/float64(len(targets)) - a.cfg.SkipPenalty*float64(skips)
	return Result{MatchedIndices: matched, Score: score, Skips: skips}
}

// tokensMatch compares two normalized tokens: exact equality, or fuzzy
// equality for tokens long enough that an edit is plausibly OCR noise
// rather than a different word.
func (a *Aligner) tokensMatch(doc, target string) bool {
	if doc == "" || target == "" {
		return false
	}
	if doc == target {
		return true
	}
	if len(doc) < 3 || len(target) < 3 {
		return false
	}
	return levenshtein.Similarity(doc, target, a.params) >= a.cfg.FuzzyMinSimilarity
}

// normalizeTargets whitespace-splits the corrected value and drops tokens
// that normalize to nothing (pure punctuation).
func normalizeTargets(corrected string) []string {
	raw := textnorm.Fields(corrected)
	targets := make([]string, 0, len(raw))
	for _, r := range raw {
		if n := textnorm.Normalize(r); n != "" {
			targets = append(targets, n)
		}
	}
	return targets
}

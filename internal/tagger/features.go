package tagger

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/textnorm"
)

// featurize returns the feature strings for position i. prevTag is the tag
// decided for position i-1 (gold during training, predicted during decode).
func featurize(tokens []model.WordToken, normed []string, i int, prevTag string) []string {
	cur := normed[i]

	feats := make([]string, 0, 16)
	feats = append(feats,
		"bias",
		"w="+cur,
		"shape="+shape(tokens[i].Text),
		"len="+lenBucket(cur),
		"pt="+prevTag,
		"page="+strconv.Itoa(tokens[i].PageIndex),
	)

	if n := len(cur); n >= 3 {
		feats = append(feats, "pre="+cur[:3], "suf="+cur[n-3:])
	}
	if isNumeric(cur) {
		feats = append(feats, "num")
	}
	if strings.ContainsRune(tokens[i].Text, ':') {
		feats = append(feats, "colon")
	}

	if i > 0 {
		feats = append(feats, "w-1="+normed[i-1], "shape-1="+shape(tokens[i-1].Text))
	} else {
		feats = append(feats, "bos")
	}
	if i < len(tokens)-1 {
		feats = append(feats, "w+1="+normed[i+1], "shape+1="+shape(tokens[i+1].Text))
	} else {
		feats = append(feats, "eos")
	}

	// Coarse reading-order position: early tokens are headers, late tokens
	// are footers, which is strong signal for positional fields.
	feats = append(feats, "pos="+strconv.Itoa(i*4/maxInt(len(tokens), 1)))

	return feats
}

func normalizeAll(tokens []model.WordToken) []string {
	normed := make([]string, len(tokens))
	for i, t := range tokens {
		normed[i] = textnorm.Normalize(t.Text)
	}
	return normed
}

// shape maps a token to a compact character-class signature with squeezed
// repeats, e.g. "Jalan" -> "Xx", "153" -> "d", "ID:" -> "Xp".
func shape(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range s {
		var c rune
		switch {
		case unicode.IsUpper(r):
			c = 'X'
		case unicode.IsLetter(r):
			c = 'x'
		case unicode.IsDigit(r):
			c = 'd'
		default:
			c = 'p'
		}
		if c != last {
			b.WriteRune(c)
			last = c
		}
	}
	return b.String()
}

func lenBucket(s string) string {
	switch n := len(s); {
	case n <= 2:
		return "xs"
	case n <= 5:
		return "s"
	case n <= 10:
		return "m"
	default:
		return "l"
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

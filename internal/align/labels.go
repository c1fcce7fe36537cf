package align

import "github.com/fieldforge/extract-cli/internal/model"

// LabelSpan converts matched token indices into per-token BIO labels for one
// field. The first matched index is tagged B; following matched indices are
// tagged I while they stay contiguous. A gap ends the span — matched indices
// after it stay O, so every example carries exactly one clean span.
func LabelSpan(numTokens int, matched []int) []string {
	labels := make([]string, numTokens)
	for i := range labels {
		labels[i] = model.TagO
	}
	if len(matched) == 0 {
		return labels
	}

	first := matched[0]
	if first < 0 || first >= numTokens {
		return labels
	}
	labels[first] = model.TagB
	prev := first
	for _, idx := range matched[1:] {
		if idx != prev+1 || idx >= numTokens {
			break
		}
		labels[idx] = model.TagI
		prev = idx
	}
	return labels
}

// ResolveOverlaps drops, from each field's matched indices, any token
// already owned by an earlier field in order. Fields never share token
// ownership; the later field loses the contested tokens.
func ResolveOverlaps(spans map[string][]int, order []string) map[string][]int {
	owned := make(map[int]bool)
	out := make(map[string][]int, len(spans))
	for _, field := range order {
		indices, ok := spans[field]
		if !ok {
			continue
		}
		kept := make([]int, 0, len(indices))
		for _, idx := range indices {
			if owned[idx] {
				continue
			}
			owned[idx] = true
			kept = append(kept, idx)
		}
		out[field] = kept
	}
	return out
}

package mining

// DefaultMinVariantCases is the minimum distinct-case count for a pattern to
// qualify as a variant candidate for workflow clustering.
const DefaultMinVariantCases = 3

// Variants filters a mined pattern list down to the subset usable as
// workflow-discovery input: patterns observed across at least minCases
// distinct cases, excluding any pattern that is a strict subsequence of
// another pattern with equal-or-greater case coverage and support —
// that pattern is redundant, since its occurrences are already implied by
// the longer one.
func Variants(patterns []Pattern, minCases int) []Pattern {
	if minCases <= 0 {
		minCases = DefaultMinVariantCases
	}

	eligible := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if distinctCount(p.CaseIDs) >= minCases {
			eligible = append(eligible, p)
		}
	}

	var out []Pattern
	for i, p := range eligible {
		redundant := false
		for j, q := range eligible {
			if i == j {
				continue
			}
			if q.Support < p.Support {
				continue
			}
			if len(q.CaseIDs) < len(p.CaseIDs) {
				continue
			}
			if isStrictSubsequence(p.Labels, q.Labels) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, p)
		}
	}
	return out
}

func distinctCount(ids []string) int {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return len(seen)
}

// isStrictSubsequence reports whether a appears as a (not necessarily
// contiguous) subsequence of b and a is strictly shorter than b.
func isStrictSubsequence(a, b []string) bool {
	if len(a) >= len(b) {
		return false
	}
	i := 0
	for j := 0; j < len(b) && i < len(a); j++ {
		if a[i] == b[j] {
			i++
		}
	}
	return i == len(a)
}

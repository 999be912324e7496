// Package mining discovers frequent sequential patterns over a set of cases,
// clusters them into named workflows, and matches saved workflows against
// new cases. No teacher repo in the reference pack implements sequence
// mining or edit-distance clustering, so this package is built directly
// against the specification using plain Go (see the repository's design
// notes for why the standard library suffices here).
package mining

import (
	"math"
	"sort"
	"time"
)

// TimeSpan is the [Start, End) interval a single sequence position covers.
type TimeSpan struct {
	Start time.Time
	End   time.Time
}

// CaseSequence is one case reduced to its ordered step-label sequence, the
// input shape the miner and matcher both operate over.
type CaseSequence struct {
	CaseID  string
	StepIDs []string
	Labels  []string
	Spans   []TimeSpan
}

// Options configures Mine. Zero-value Options resolve to spec's documented
// defaults via DefaultOptions.
type Options struct {
	MinSupport float64 // fraction of cases, default 0.1
	MinLength  int     // default 2
	MaxLength  int     // default 10
	Contiguous bool    // default true: gap of 1 label between positions
}

// DefaultOptions returns the miner defaults named in the specification.
func DefaultOptions() Options {
	return Options{MinSupport: 0.1, MinLength: 2, MaxLength: 10, Contiguous: true}
}

func (o Options) maxGap() int {
	if o.Contiguous {
		return 1
	}
	return 2
}

// Pattern is one frequent sequential pattern discovered by Mine.
type Pattern struct {
	Labels      []string
	CaseIDs     []string
	Support     float64
	AvgDuration float64
}

type projEntry struct {
	caseIdx  int
	startPos int
	pos      int
}

// Mine runs a PrefixSpan-style depth-first expansion over cases and returns
// every pattern at or above MinSupport, ordered by descending support, then
// ascending length, then lexicographically by label sequence — deterministic
// for a fixed input.
func Mine(cases []CaseSequence, opts Options) []Pattern {
	if opts.MinLength <= 0 {
		opts.MinLength = 2
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 10
	}
	if opts.MinSupport <= 0 {
		opts.MinSupport = 0.1
	}

	n := len(cases)
	if n == 0 {
		return nil
	}
	minCount := int(math.Ceil(opts.MinSupport*float64(n) - 1e-9))
	if minCount < 1 {
		minCount = 1
	}

	initial := make(map[string][]projEntry)
	for ci, c := range cases {
		for pi, label := range c.Labels {
			initial[label] = append(initial[label], projEntry{caseIdx: ci, startPos: pi, pos: pi})
		}
	}

	var results []Pattern
	for _, label := range sortedKeys(initial) {
		entries := firstPerCase(initial[label])
		if distinctCaseCount(entries) < minCount {
			continue
		}
		grow(cases, []string{label}, entries, opts, minCount, n, &results)
	}

	sortPatterns(results)
	return results
}

func grow(cases []CaseSequence, prefix []string, entries []projEntry, opts Options, minCount, totalCases int, results *[]Pattern) {
	if len(prefix) >= opts.MinLength {
		*results = append(*results, buildPattern(cases, prefix, entries, totalCases))
	}
	if len(prefix) >= opts.MaxLength {
		return
	}

	gap := opts.maxGap()
	next := make(map[string][]projEntry)
	for _, e := range entries {
		labels := cases[e.caseIdx].Labels
		limit := e.pos + 1 + gap
		if limit > len(labels) {
			limit = len(labels)
		}
		for p := e.pos + 1; p < limit; p++ {
			next[labels[p]] = append(next[labels[p]], projEntry{caseIdx: e.caseIdx, startPos: e.startPos, pos: p})
		}
	}

	extended := append([]string(nil), prefix...)
	for _, label := range sortedKeys(next) {
		candidates := firstPerCase(next[label])
		if distinctCaseCount(candidates) < minCount {
			continue
		}
		grow(cases, append(extended, label), candidates, opts, minCount, totalCases, results)
	}
}

func buildPattern(cases []CaseSequence, prefix []string, entries []projEntry, totalCases int) Pattern {
	caseIDs := make([]string, 0, len(entries))
	var totalDuration float64
	for _, e := range entries {
		c := cases[e.caseIdx]
		caseIDs = append(caseIDs, c.CaseID)
		if e.startPos < len(c.Spans) && e.pos < len(c.Spans) {
			totalDuration += c.Spans[e.pos].End.Sub(c.Spans[e.startPos].Start).Seconds()
		}
	}
	sort.Strings(caseIDs)

	avg := 0.0
	if len(entries) > 0 {
		avg = totalDuration / float64(len(entries))
	}

	return Pattern{
		Labels:      append([]string(nil), prefix...),
		CaseIDs:     caseIDs,
		Support:     float64(len(entries)) / float64(totalCases),
		AvgDuration: avg,
	}
}

func firstPerCase(entries []projEntry) []projEntry {
	best := make(map[int]projEntry)
	for _, e := range entries {
		cur, ok := best[e.caseIdx]
		if !ok || e.pos < cur.pos {
			best[e.caseIdx] = e
		}
	}
	out := make([]projEntry, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].caseIdx < out[j].caseIdx })
	return out
}

func distinctCaseCount(entries []projEntry) int {
	seen := make(map[int]bool)
	for _, e := range entries {
		seen[e.caseIdx] = true
	}
	return len(seen)
}

func sortedKeys(m map[string][]projEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortPatterns(patterns []Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		if len(a.Labels) != len(b.Labels) {
			return len(a.Labels) < len(b.Labels)
		}
		for k := range a.Labels {
			if a.Labels[k] != b.Labels[k] {
				return a.Labels[k] < b.Labels[k]
			}
		}
		return false
	})
}

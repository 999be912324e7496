package mining

import (
	"time"

	"github.com/processlens/engine/internal/domain"
)

// DefaultMaxGapInsideWorkflow is the default tolerance (in skipped case
// positions) a workflow match may absorb between consecutive pattern steps.
const DefaultMaxGapInsideWorkflow = 1

// MatchOptions configures Match.
type MatchOptions struct {
	MaxGapInsideWorkflow int
}

// DefaultMatchOptions returns spec's documented matcher default.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{MaxGapInsideWorkflow: DefaultMaxGapInsideWorkflow}
}

// Match slides a workflow's pattern across one case's label sequence and
// returns every disjoint occurrence found via greedy earliest-match
// selection: scan left to right, and whenever a match completes, emit it and
// resume scanning immediately after its last consumed position.
func Match(c CaseSequence, w domain.Workflow, opts MatchOptions) []domain.Occurrence {
	if opts.MaxGapInsideWorkflow <= 0 {
		opts.MaxGapInsideWorkflow = DefaultMaxGapInsideWorkflow
	}
	pattern := w.Pattern
	if len(pattern) == 0 {
		return nil
	}

	var occurrences []domain.Occurrence
	start := 0
	for start < len(c.Labels) {
		positions, ok := matchFrom(c, pattern, start, opts.MaxGapInsideWorkflow)
		if !ok {
			start++
			continue
		}
		occurrences = append(occurrences, buildOccurrence(c, w, positions))
		start = positions[len(positions)-1] + 1
	}
	return occurrences
}

// matchFrom attempts to match pattern against c.Labels beginning the search
// at or after from, consuming at most maxGap skipped positions between
// consecutive (non-optional) matched steps. Optional steps that aren't found
// within the gap tolerance are simply skipped.
func matchFrom(c CaseSequence, pattern []domain.PatternStep, from, maxGap int) ([]int, bool) {
	pos := from
	var matched []int
	for _, step := range pattern {
		found := -1
		limit := pos + 1 + maxGap
		if limit > len(c.Labels) {
			limit = len(c.Labels)
		}
		for p := pos; p < limit; p++ {
			if c.Labels[p] == step.Label {
				found = p
				break
			}
		}
		if found == -1 {
			if step.Optional {
				continue
			}
			return nil, false
		}
		matched = append(matched, found)
		pos = found + 1
	}
	if len(matched) == 0 {
		return nil, false
	}
	return matched, true
}

func buildOccurrence(c CaseSequence, w domain.Workflow, positions []int) domain.Occurrence {
	instances := make([]domain.StepInstance, len(positions))
	for i, p := range positions {
		instances[i] = domain.StepInstance{Position: i, StepID: c.StepIDs[p]}
	}

	start := c.Spans[positions[0]].Start
	end := c.Spans[positions[len(positions)-1]].End

	return domain.Occurrence{
		WorkflowID:      w.ID,
		StepInstances:   instances,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: durationSeconds(start, end),
	}
}

func durationSeconds(start, end time.Time) float64 {
	if end.Before(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}

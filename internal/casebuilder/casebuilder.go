// Package casebuilder turns a flat, timestamp-ordered event window into
// candidate process instances: gap-based sessionisation followed by
// object-coherence refinement and activity-label step synthesis. It is pure
// over its inputs — no store access — so an analysis run can build every
// case from one consistent snapshot read.
package casebuilder

import (
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/processlens/engine/internal/domain"
)

// DefaultMaxGap is the sessionisation cut threshold between consecutive
// events absent any per-job override.
const DefaultMaxGap = 120 * time.Second

// DefaultAFKCut is the minimum AFK interval that forces a case boundary.
const DefaultAFKCut = 60 * time.Second

// AFKInterval is one away-from-keyboard span that must split any case
// crossing it, independent of the gap threshold.
type AFKInterval struct {
	Start time.Time
	End   time.Time
}

// Options configures one Build invocation.
type Options struct {
	MaxGap       time.Duration
	AFKIntervals []AFKInterval
}

// DefaultOptions returns spec's documented defaults.
func DefaultOptions() Options {
	return Options{MaxGap: DefaultMaxGap}
}

// Build produces the full set of candidate cases for one event window:
// gap-and-AFK sessionisation, then object-coherence sub-case refinement.
// Events must already be sorted (timestamp ASC, id ASC on ties) — the
// contract Store.ReadEvents guarantees.
func Build(events []domain.Event, objectsByEvent map[domain.EventKey][]string, opts Options) []domain.Case {
	if opts.MaxGap <= 0 {
		opts.MaxGap = DefaultMaxGap
	}

	sessions := sessionize(events, opts)

	var cases []domain.Case
	for _, session := range sessions {
		cases = append(cases, refineByObjectCoherence(session, objectsByEvent)...)
	}
	return cases
}

// sessionize cuts events into gap-derived windows. A boundary between e_i and
// e_{i+1} is cut iff the gap between e_i's end and e_{i+1}'s start exceeds
// MaxGap, or an AFK interval of >= 60s spans the gap.
func sessionize(events []domain.Event, opts Options) [][]domain.Event {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]domain.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var sessions [][]domain.Event
	current := []domain.Event{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		gap := next.Timestamp.Sub(prev.End())
		if gap > opts.MaxGap || crossesAFK(prev.End(), next.Timestamp, opts.AFKIntervals) {
			sessions = append(sessions, current)
			current = []domain.Event{next}
			continue
		}
		current = append(current, next)
	}
	sessions = append(sessions, current)
	return sessions
}

func crossesAFK(from, to time.Time, intervals []AFKInterval) bool {
	for _, afk := range intervals {
		overlapStart := maxTime(from, afk.Start)
		overlapEnd := minTime(to, afk.End)
		if overlapEnd.Sub(overlapStart) >= DefaultAFKCut {
			return true
		}
	}
	return false
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// refineByObjectCoherence splits a gap-derived session into overlapping
// sub-cases where every event shares at least one common object id, keeping
// a sub-case only if it has >= 2 events; otherwise the original session
// stands as a single case. Multiple overlapping cases can emerge from one
// window by design — a window may carry both a per-order and a per-session
// process simultaneously.
func refineByObjectCoherence(session []domain.Event, objectsByEvent map[domain.EventKey][]string) []domain.Case {
	if len(session) == 0 {
		return nil
	}

	byObject := make(map[string][]domain.Event)
	for _, e := range session {
		for _, objID := range objectsByEvent[e.Key()] {
			byObject[objID] = append(byObject[objID], e)
		}
	}

	var subCases []domain.Case
	for objID, evs := range byObject {
		if len(evs) < 2 {
			continue
		}
		subCases = append(subCases, newCase(evs, []string{objID}))
	}

	if len(subCases) == 0 {
		return []domain.Case{newCase(session, allObjectIDs(session, objectsByEvent))}
	}

	// Deterministic ordering for reproducible analysis output.
	sort.Slice(subCases, func(i, j int) bool { return subCases[i].Start().Before(subCases[j].Start()) })
	return subCases
}

func allObjectIDs(events []domain.Event, objectsByEvent map[domain.EventKey][]string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range events {
		for _, id := range objectsByEvent[e.Key()] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func newCase(events []domain.Event, objectIDs []string) domain.Case {
	return domain.Case{
		ID:        uuid.NewString(),
		Events:    events,
		ObjectIDs: objectIDs,
	}
}

// ActivityLabel derives the step label for an event: data.app if present,
// else the host of data.url, else data.title truncated to 64 chars, else
// "unknown".
func ActivityLabel(e domain.Event) string {
	if app := e.Field("app"); app != "" {
		return app
	}
	if rawURL := e.Field("url"); rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			return u.Host
		}
	}
	if title := e.Field("title"); title != "" {
		return truncate(title, 64)
	}
	return "unknown"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// BuildSteps collapses consecutive same-label events in a case into Steps. A
// step's duration is the sum of its events' durations (foreground time), not
// end-start.
func BuildSteps(c domain.Case, objectsByEvent map[domain.EventKey][]string) []domain.Step {
	if len(c.Events) == 0 {
		return nil
	}

	var steps []domain.Step
	label := ActivityLabel(c.Events[0])
	group := []domain.Event{c.Events[0]}

	flush := func() {
		steps = append(steps, stepFromGroup(label, group, objectsByEvent))
	}

	for i := 1; i < len(c.Events); i++ {
		e := c.Events[i]
		l := ActivityLabel(e)
		if l != label {
			flush()
			label = l
			group = []domain.Event{e}
			continue
		}
		group = append(group, e)
	}
	flush()
	return steps
}

func stepFromGroup(label string, group []domain.Event, objectsByEvent map[domain.EventKey][]string) domain.Step {
	var durationSum float64
	keys := make([]domain.EventKey, len(group))
	objSeen := make(map[string]bool)
	var objIDs []string
	for i, e := range group {
		durationSum += e.DurationSeconds
		keys[i] = e.Key()
		for _, objID := range objectsByEvent[e.Key()] {
			if !objSeen[objID] {
				objSeen[objID] = true
				objIDs = append(objIDs, objID)
			}
		}
	}
	sort.Strings(objIDs)

	return domain.Step{
		ID:              uuid.NewString(),
		Name:            label,
		Data:            map[string]any{"app": label},
		EventKeys:       keys,
		ObjectIDs:       objIDs,
		StartTime:       group[0].Timestamp,
		EndTime:         group[len(group)-1].End(),
		DurationSeconds: durationSum,
	}
}

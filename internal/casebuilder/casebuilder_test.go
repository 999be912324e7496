package casebuilder_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processlens/engine/internal/casebuilder"
	"github.com/processlens/engine/internal/domain"
)

func ev(id int64, t time.Time, dur float64, data map[string]any) domain.Event {
	return domain.Event{BucketID: "b", ID: id, Timestamp: t, DurationSeconds: dur, Data: data}
}

func TestBuild_CutsOnGap(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []domain.Event{
		ev(1, base, 10, map[string]any{"app": "mail"}),
		ev(2, base.Add(15*time.Second), 10, map[string]any{"app": "mail"}),
		ev(3, base.Add(10*time.Minute), 10, map[string]any{"app": "mail"}),
	}

	cases := casebuilder.Build(events, nil, casebuilder.DefaultOptions())
	require.Len(t, cases, 2)
	assert.Len(t, cases[0].Events, 2)
	assert.Len(t, cases[1].Events, 1)
}

func TestBuild_ObjectCoherenceSubCases(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []domain.Event{
		ev(1, base, 5, map[string]any{"app": "browser"}),
		ev(2, base.Add(10*time.Second), 5, map[string]any{"app": "mail"}),
		ev(3, base.Add(20*time.Second), 5, map[string]any{"app": "browser"}),
	}
	objByEvent := map[domain.EventKey][]string{
		{BucketID: "b", ID: 1}: {"obj-A"},
		{BucketID: "b", ID: 3}: {"obj-A"},
	}

	cases := casebuilder.Build(events, objByEvent, casebuilder.DefaultOptions())
	require.Len(t, cases, 1)
	assert.Len(t, cases[0].Events, 2)
	assert.Equal(t, []string{"obj-A"}, cases[0].ObjectIDs)
}

func TestActivityLabel_Precedence(t *testing.T) {
	assert.Equal(t, "Slack", casebuilder.ActivityLabel(ev(1, time.Now(), 0, map[string]any{"app": "Slack", "url": "https://x.com"})))
	assert.Equal(t, "example.com", casebuilder.ActivityLabel(ev(1, time.Now(), 0, map[string]any{"url": "https://example.com/path"})))
	assert.Equal(t, "unknown", casebuilder.ActivityLabel(ev(1, time.Now(), 0, nil)))
}

func TestBuildSteps_SumsDurationNotSpan(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := domain.Case{
		ID: "c1",
		Events: []domain.Event{
			ev(1, base, 5, map[string]any{"app": "mail"}),
			ev(2, base.Add(time.Minute), 5, map[string]any{"app": "mail"}),
		},
	}
	steps := casebuilder.BuildSteps(c, nil)
	require.Len(t, steps, 1)
	assert.Equal(t, float64(10), steps[0].DurationSeconds)
	assert.True(t, steps[0].EndTime.After(steps[0].StartTime))
}

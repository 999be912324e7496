package mining_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/mining"
	"github.com/processlens/engine/internal/store/memory"
)

func seq(caseID string, labels ...string) mining.CaseSequence {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	spans := make([]mining.TimeSpan, len(labels))
	stepIDs := make([]string, len(labels))
	for i := range labels {
		start := base.Add(time.Duration(i) * time.Minute)
		spans[i] = mining.TimeSpan{Start: start, End: start.Add(30 * time.Second)}
		stepIDs[i] = caseID + "-step-" + string(rune('a'+i))
	}
	return mining.CaseSequence{CaseID: caseID, Labels: labels, StepIDs: stepIDs, Spans: spans}
}

func TestMine_FindsFrequentPatternDeterministically(t *testing.T) {
	cases := []mining.CaseSequence{
		seq("c1", "open", "review", "approve"),
		seq("c2", "open", "review", "approve"),
		seq("c3", "open", "review", "reject"),
		seq("c4", "open", "review", "approve"),
	}

	patterns := mining.Mine(cases, mining.Options{MinSupport: 0.5, MinLength: 2, MaxLength: 3})
	require.NotEmpty(t, patterns)
	assert.Equal(t, []string{"open", "review"}, patterns[0].Labels)
	assert.InDelta(t, 1.0, patterns[0].Support, 1e-9)

	// Re-running on identical input must produce an identical ordering.
	again := mining.Mine(cases, mining.Options{MinSupport: 0.5, MinLength: 2, MaxLength: 3})
	require.Equal(t, len(patterns), len(again))
	for i := range patterns {
		assert.Equal(t, patterns[i].Labels, again[i].Labels)
	}
}

func TestNormalizedSimilarity_IdenticalIsOne(t *testing.T) {
	a := []string{"open", "review", "approve"}
	assert.Equal(t, 1.0, mining.NormalizedSimilarity(a, a))
	assert.Less(t, mining.NormalizedSimilarity(a, []string{"open", "review", "reject"}), 1.0)
}

func TestLCS_CommonSubsequence(t *testing.T) {
	a := []string{"open", "review", "approve", "close"}
	b := []string{"open", "edit", "review", "close"}
	assert.Equal(t, []string{"open", "review", "close"}, mining.LCS(a, b))
}

func TestClusterWorkflows_MergesSimilarPatterns(t *testing.T) {
	patterns := []mining.Pattern{
		{Labels: []string{"open", "review", "approve"}, CaseIDs: []string{"c1", "c2"}, Support: 0.8},
		{Labels: []string{"open", "review", "reject"}, CaseIDs: []string{"c3", "c4"}, Support: 0.6},
		{Labels: []string{"export", "upload"}, CaseIDs: []string{"c5"}, Support: 0.3},
	}
	candidates := mining.ClusterWorkflows(patterns, 0.6)
	require.Len(t, candidates, 2)
	assert.Equal(t, "process-0", candidates[0].Name)
	assert.Equal(t, []string{"open", "review"}, candidates[0].Pattern)
}

func TestMatch_SlidingWindowWithGapTolerance(t *testing.T) {
	c := seq("c1", "open", "note", "review", "approve", "archive")
	w := domain.Workflow{
		ID: "wf1",
		Pattern: []domain.PatternStep{
			{Label: "open"},
			{Label: "review"},
			{Label: "approve"},
		},
	}
	occs := mining.Match(c, w, mining.MatchOptions{MaxGapInsideWorkflow: 2})
	require.Len(t, occs, 1)
	assert.Len(t, occs[0].StepInstances, 3)
	assert.True(t, occs[0].EndTime.After(occs[0].StartTime))
}

func TestVariants_DropsRedundantSubsequence(t *testing.T) {
	patterns := []mining.Pattern{
		{Labels: []string{"open", "review", "approve"}, CaseIDs: []string{"c1", "c2", "c3"}, Support: 0.9},
		{Labels: []string{"open", "review"}, CaseIDs: []string{"c1", "c2", "c3"}, Support: 0.5},
		{Labels: []string{"export", "upload"}, CaseIDs: []string{"c4", "c5", "c6"}, Support: 0.4},
	}
	variants := mining.Variants(patterns, 3)
	var labels [][]string
	for _, v := range variants {
		labels = append(labels, v.Labels)
	}
	assert.Contains(t, labels, []string{"open", "review", "approve"})
	assert.Contains(t, labels, []string{"export", "upload"})
	assert.NotContains(t, labels, []string{"open", "review"})
}

func TestRegistry_DiscoverWorkflowsCreatesDrafts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reg := mining.New(st)

	sequences := []mining.CaseSequence{
		seq("c1", "open", "review", "approve"),
		seq("c2", "open", "review", "approve"),
		seq("c3", "open", "review", "approve"),
	}

	result, err := reg.DiscoverWorkflows(ctx, sequences, mining.Options{MinSupport: 0.5, MinLength: 2, MaxLength: 3}, 0.8)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, domain.WorkflowDraft, result.Created[0].State)

	promoted, err := reg.Promote(ctx, result.Created[0].ID, domain.WorkflowActive)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowActive, promoted.State)

	_, err = reg.Promote(ctx, promoted.ID, domain.WorkflowDraft)
	assert.Error(t, err, "active->draft is not an allowed lifecycle edge")
}

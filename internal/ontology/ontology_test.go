package ontology_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/ontology"
	"github.com/processlens/engine/internal/store/memory"
)

func TestExtractEvent_MatchesSeedRule(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, ontology.Bootstrap(ctx, st))

	ex := ontology.New(st, nil)
	ev := domain.Event{
		BucketID:  "bucket-1",
		ID:        1,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"title": "Review PO-12345 before shipping"},
	}

	links, err := ex.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "rule:", links[0].Provenance[:5])

	obj, err := st.GetObject(ctx, links[0].ObjectID)
	require.NoError(t, err)
	assert.Equal(t, "purchase_order", obj.Type)
	assert.Equal(t, "PO-12345", obj.Name)
}

func TestConfirmReject_MonotoneConfidence(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rule, err := st.CreateRule(ctx, domain.ExtractionRule{
		ObjectType:   "task",
		SourceFields: []string{"title"},
		Pattern:      `(?<x>\w+)`,
		NameTemplate: "{x}",
		Enabled:      true,
		Confidence:   0.5,
	})
	require.NoError(t, err)

	ex := ontology.New(st, nil)

	last := rule.Confidence
	for i := 0; i < 10; i++ {
		updated, err := ex.Confirm(ctx, rule.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, updated.Confidence, last)
		last = updated.Confidence
	}
	assert.GreaterOrEqual(t, last, 0.80)

	for i := 0; i < 30; i++ {
		updated, err := ex.Reject(ctx, rule.ID)
		require.NoError(t, err)
		last = updated.Confidence
	}
	final, err := st.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, final.Enabled)
}

func TestGeneralizePattern_EscapesAndAbstracts(t *testing.T) {
	// exercised indirectly through Correct(): after enough corrections of
	// the same (rule, type) pair, a learned candidate rule is proposed.
	ctx := context.Background()
	st := memory.New()
	ex := ontology.New(st, nil)

	rule, err := st.CreateRule(ctx, domain.ExtractionRule{
		ObjectType:   "invoice",
		SourceFields: []string{"title"},
		Pattern:      `(?<x>\w+)`,
		NameTemplate: "{x}",
		Enabled:      true,
		Confidence:   0.6,
	})
	require.NoError(t, err)

	link := domain.EventObjectLink{
		BucketID:   "b",
		EventID:    1,
		ObjectID:   "orig-obj",
		Provenance: domain.RuleProvenance(rule.ID),
	}

	for i := 0; i < 3; i++ {
		_, err := ex.Correct(ctx, ontology.Correction{
			BucketID:      "b",
			EventID:       int64(i + 1),
			OriginalLink:  link,
			CorrectedType: "invoice",
			CorrectedName: "INV-9001",
			SourceText:    "INV-9001",
		})
		require.NoError(t, err)
	}

	rules, err := st.ListRules(ctx, false)
	require.NoError(t, err)
	found := false
	for _, r := range rules {
		if r.Provenance == domain.RuleProvenanceLearned {
			found = true
			assert.Equal(t, `(?P<match>[A-Z]+-\d+)`, r.Pattern)
		}
	}
	assert.True(t, found, "expected a learned rule candidate after 3 corrections")
}

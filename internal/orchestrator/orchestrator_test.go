package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/ontology"
	"github.com/processlens/engine/internal/orchestrator"
	"github.com/processlens/engine/internal/store"
	"github.com/processlens/engine/internal/store/memory"
)

func seedEvents(t *testing.T, st *memory.Store, bucket string, n int) []domain.Event {
	t.Helper()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var events []domain.Event
	for i := 0; i < n; i++ {
		ev := domain.Event{
			BucketID:        bucket,
			ID:              int64(i + 1),
			Timestamp:       base.Add(time.Duration(i) * 10 * time.Second),
			DurationSeconds: 5,
			Data:            map[string]any{"app": "mail", "title": "Review PO-1000" + string(rune('0'+i%10))},
		}
		events = append(events, ev)
	}
	require.NoError(t, st.AppendEvents(context.Background(), events))
	return events
}

func TestOrchestrator_TriggerRunsToCompletion(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, ontology.Bootstrap(ctx, st))
	seedEvents(t, st, "bucket-1", 20)

	orch := orchestrator.New(st, nil)
	job, err := orch.Trigger(ctx, "bucket-1", store.TimeRange{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}, orchestrator.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		j, err := st.GetJob(ctx, job.ID)
		require.NoError(t, err)
		return j.Status == domain.JobDone || j.Status == domain.JobFailed
	}, 2*time.Second, 5*time.Millisecond)

	final, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, final.Status)
	assert.NotNil(t, final.ResultRef)
	assert.EqualValues(t, 20, final.ResultRef["events_processed"])
}

func TestOrchestrator_RejectsConcurrentTrigger(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, ontology.Bootstrap(ctx, st))
	seedEvents(t, st, "bucket-1", 5)

	orch := orchestrator.New(st, nil)
	r := store.TimeRange{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	_, err := orch.Trigger(ctx, "bucket-1", r, orchestrator.Options{})
	require.NoError(t, err)

	_, err = orch.Trigger(ctx, "bucket-1", r, orchestrator.Options{})
	require.Error(t, err)
}

package llmqueue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/llmqueue"
	"github.com/processlens/engine/internal/store"
	"github.com/processlens/engine/internal/store/memory"
)

type classifiedErr struct {
	class llmqueue.FailureClass
}

func (e classifiedErr) Error() string               { return "provider error" }
func (e classifiedErr) Class() llmqueue.FailureClass { return e.class }

type stubProvider struct {
	calls atomic.Int32
	fn    func(call int32) ([]llmqueue.Item, error)
}

func (s *stubProvider) Analyze(_ context.Context, _ string, _ []byte) ([]llmqueue.Item, error) {
	n := s.calls.Add(1)
	return s.fn(n)
}

func TestQueue_DropsOldestNormalUnderBackpressure(t *testing.T) {
	q := llmqueue.NewQueue(2)
	q.Enqueue(llmqueue.Task{Fingerprint: "a", Priority: llmqueue.PriorityNormal})
	q.Enqueue(llmqueue.Task{Fingerprint: "b", Priority: llmqueue.PriorityNormal})
	dropped := q.Enqueue(llmqueue.Task{Fingerprint: "c", Priority: llmqueue.PriorityNormal})
	assert.True(t, dropped)
	assert.EqualValues(t, 1, q.Dropped())

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", first.Fingerprint)
}

func TestQueue_HighPriorityDequeuesFirst(t *testing.T) {
	q := llmqueue.NewQueue(10)
	q.Enqueue(llmqueue.Task{Fingerprint: "normal", Priority: llmqueue.PriorityNormal})
	q.Enqueue(llmqueue.Task{Fingerprint: "high", Priority: llmqueue.PriorityHigh})

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "high", first.Fingerprint)
}

func TestCache_PutGetAndExpiry(t *testing.T) {
	c, err := llmqueue.NewCache(10, time.Millisecond)
	require.NoError(t, err)

	c.Put("fp", []llmqueue.Item{{ObjectType: "invoice"}})
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("fp")
	assert.False(t, ok, "entry should have expired")
}

func TestRetry_StopsOnPermanentFailure(t *testing.T) {
	provider := &stubProvider{fn: func(n int32) ([]llmqueue.Item, error) {
		return nil, classifiedErr{class: llmqueue.FailurePermanent}
	}}

	q := llmqueue.NewQueue(4)
	cache, err := llmqueue.NewCache(10, time.Hour)
	require.NoError(t, err)
	st := memory.New()

	pool := llmqueue.NewPool(q, provider, cache, st, llmqueue.PoolConfig{
		Workers:  1,
		RetryCfg: llmqueue.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, Jitter: 0},
	})
	pool.Start(context.Background())
	q.Enqueue(llmqueue.Task{Event: domain.Event{BucketID: "b", ID: 1}, Fingerprint: "fp1"})

	require.Eventually(t, func() bool {
		_, failed, _ := pool.Stats()
		return failed == 1
	}, time.Second, time.Millisecond)
	pool.Stop()

	assert.EqualValues(t, 1, provider.calls.Load(), "permanent failure must not retry")
}

func TestPool_AutoLinksHighConfidenceItems(t *testing.T) {
	provider := &stubProvider{fn: func(n int32) ([]llmqueue.Item, error) {
		return []llmqueue.Item{{ObjectType: "invoice", Identifier: "INV-1", IdentifierKey: "number", Confidence: 0.95}}, nil
	}}

	q := llmqueue.NewQueue(4)
	cache, err := llmqueue.NewCache(10, time.Hour)
	require.NoError(t, err)
	st := memory.New()

	pool := llmqueue.NewPool(q, provider, cache, st, llmqueue.PoolConfig{Workers: 1})
	pool.Start(context.Background())
	q.Enqueue(llmqueue.Task{Event: domain.Event{BucketID: "b", ID: 1}, Fingerprint: "fp2"})

	require.Eventually(t, func() bool {
		s, _, _ := pool.Stats()
		return s == 1
	}, time.Second, time.Millisecond)
	pool.Stop()

	objs, err := st.ListObjects(context.Background(), store.ObjectFilter{})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "invoice", objs[0].Type)
}

func TestFailover_SwitchesAfterConsecutiveTransientFailures(t *testing.T) {
	primary := &stubProvider{fn: func(n int32) ([]llmqueue.Item, error) {
		return nil, classifiedErr{class: llmqueue.FailureTransient}
	}}
	fallback := &stubProvider{fn: func(n int32) ([]llmqueue.Item, error) {
		return []llmqueue.Item{{ObjectType: "order", Confidence: 0.9}}, nil
	}}
	fo := llmqueue.NewFailover(primary, fallback)

	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = fo.Analyze(context.Background(), "p", nil)
	}
	assert.Error(t, lastErr)

	items, err := fo.Analyze(context.Background(), "p", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "order", items[0].ObjectType)
	assert.EqualValues(t, 3, primary.calls.Load(), "fallback must take over without calling primary again")
}

func TestClassify_DefaultsToTransientForUnknownError(t *testing.T) {
	assert.Equal(t, llmqueue.FailureTransient, llmqueue.Classify(errors.New("boom")))
	assert.Equal(t, llmqueue.FailureNone, llmqueue.Classify(nil))
}

package llmqueue

import (
	"sync"
	"time"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/pkg/metrics"
)

// Priority orders tasks within the bounded queue. High-priority tasks are
// always dequeued before normal ones and are the last to be dropped under
// backpressure.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// DefaultCapacity is the bounded queue size absent an override.
const DefaultCapacity = 256

// Task is one enrichment request: an event reference, the text the
// provider should analyze, an optional image, and the content fingerprint
// used for cache lookups.
type Task struct {
	Event       domain.Event
	Prompt      string
	Image       []byte
	Fingerprint string
	Priority    Priority

	// Deadline, if set, is the enqueuing caller's own deadline. The worker
	// abandons an in-flight provider call once it passes rather than
	// inheriting the worker's own timeout.
	Deadline time.Time
}

// Queue is a bounded FIFO with two priority lanes. It never blocks
// producers: Enqueue past capacity discards the oldest unstarted task
// (preferring to drop normal-priority tasks first) and reports the drop so
// the caller can bump a metric.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	high     []Task
	normal   []Task
	closed   bool

	dropped uint64
}

// NewQueue builds a Queue with the given capacity (falls back to
// DefaultCapacity if <= 0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds t to the queue, returning true if an existing unstarted task
// had to be dropped to make room.
func (q *Queue) Enqueue(t Task) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if t.Priority == PriorityHigh {
		q.high = append(q.high, t)
	} else {
		q.normal = append(q.normal, t)
	}

	if q.len() > q.capacity {
		victim := q.dropOldestLocked()
		dropped = true
		q.dropped++
		metrics.RecordLLMQueueDrop(victim.Event.BucketID)
	}
	metrics.SetLLMQueueDepth(q.len())
	q.cond.Signal()
	return dropped
}

func (q *Queue) len() int {
	return len(q.high) + len(q.normal)
}

// dropOldestLocked discards and returns the oldest normal-priority task if
// one exists, else the oldest high-priority task. Must hold q.mu.
func (q *Queue) dropOldestLocked() Task {
	if len(q.normal) > 0 {
		victim := q.normal[0]
		q.normal = q.normal[1:]
		return victim
	}
	victim := q.high[0]
	q.high = q.high[1:]
	return victim
}

// Dequeue blocks until a task is available or the queue is closed, in which
// case ok is false.
func (q *Queue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.len() == 0 && q.closed {
		return Task{}, false
	}

	var t Task
	if len(q.high) > 0 {
		t = q.high[0]
		q.high = q.high[1:]
	} else {
		t = q.normal[0]
		q.normal = q.normal[1:]
	}
	metrics.SetLLMQueueDepth(q.len())
	return t, true
}

// Close wakes every blocked Dequeue call and prevents further enqueues.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Dropped returns the cumulative count of tasks discarded under
// backpressure, exposed as a health metric.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

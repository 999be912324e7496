package llmqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
	"github.com/processlens/engine/pkg/metrics"
)

// DefaultWorkerTimeout bounds a single provider call absent a tighter
// caller-supplied Task.Deadline.
const DefaultWorkerTimeout = 30 * time.Second

// DefaultWorkerCount is the fixed pool size absent an override.
const DefaultWorkerCount = 2

// Thresholds control how a returned Item becomes a link or a review task.
type Thresholds struct {
	Low  float64 // items below this confidence are ignored entirely
	Auto float64 // items at or above this confidence link immediately
}

// DefaultThresholds matches spec's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.5, Auto: 0.8}
}

// Pool is the fixed long-lived worker pool draining a Queue against a
// Provider, in the same Start(ctx)/Stop()-with-WaitGroup shape as the
// teacher's long-lived service runners.
type Pool struct {
	queue      *Queue
	provider   Provider
	cache      *Cache
	st         store.Store
	retryCfg   RetryConfig
	thresholds Thresholds
	workers    int
	timeout    time.Duration
	log        *logrus.Entry

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Bool

	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// PoolConfig configures NewPool. Zero values resolve to documented
// defaults.
type PoolConfig struct {
	Workers    int
	Timeout    time.Duration
	RetryCfg   RetryConfig
	Thresholds Thresholds
	Logger     *logrus.Logger
}

// NewPool builds a Pool. provider is typically a *Failover when a fallback
// is configured, but any Provider works.
func NewPool(q *Queue, provider Provider, cache *Cache, st store.Store, cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultWorkerTimeout
	}
	retryCfg := cfg.RetryCfg
	if retryCfg.MaxAttempts == 0 {
		retryCfg = DefaultRetryConfig()
	}
	thresholds := cfg.Thresholds
	if thresholds.Auto == 0 && thresholds.Low == 0 {
		thresholds = DefaultThresholds()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Pool{
		queue:      q,
		provider:   provider,
		cache:      cache,
		st:         st,
		retryCfg:   retryCfg,
		thresholds: thresholds,
		workers:    workers,
		timeout:    timeout,
		log:        logger.WithField("component", "llmqueue"),
	}
}

// Start launches the fixed worker pool. Each worker drains the queue until
// Stop is called or ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i)
	}
}

// Stop signals every worker to exit and waits for them to drain their
// current task.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.queue.Close()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		task, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.process(ctx, task, id)
	}
}

func (p *Pool) process(ctx context.Context, task Task, workerID int) {
	bucket := task.Event.BucketID
	if items, hit := p.cache.Get(task.Fingerprint); hit {
		metrics.RecordLLMCacheLookup(bucket, true)
		p.applyItems(ctx, task, items)
		return
	}
	metrics.RecordLLMCacheLookup(bucket, false)

	callCtx, cancel := p.deadlineContext(ctx, task)
	defer cancel()

	providerName := fmt.Sprintf("%T", p.provider)
	callStart := time.Now()
	var items []Item
	err := retry(callCtx, p.retryCfg, func() error {
		var callErr error
		items, callErr = p.provider.Analyze(callCtx, task.Prompt, task.Image)
		return callErr
	})

	if err != nil {
		metrics.RecordLLMProviderCall(providerName, "failure", time.Since(callStart))
		p.failed.Add(1)
		p.log.WithFields(logrus.Fields{
			"worker": workerID,
			"class":  Classify(err),
			"error":  err,
		}).Warn("llm enrichment task dropped")
		return
	}

	metrics.RecordLLMProviderCall(providerName, "success", time.Since(callStart))
	p.cache.Put(task.Fingerprint, items)
	p.succeeded.Add(1)
	p.applyItems(ctx, task, items)
}

func (p *Pool) deadlineContext(ctx context.Context, task Task) (context.Context, context.CancelFunc) {
	if !task.Deadline.IsZero() && task.Deadline.Before(time.Now().Add(p.timeout)) {
		return context.WithDeadline(ctx, task.Deadline)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Pool) applyItems(ctx context.Context, task Task, items []Item) {
	for _, item := range items {
		if item.Confidence < p.thresholds.Low {
			continue
		}
		if item.Confidence >= p.thresholds.Auto {
			p.linkImmediately(ctx, task, item)
			continue
		}
		p.createReviewTask(ctx, task, item)
	}
}

func (p *Pool) linkImmediately(ctx context.Context, task Task, item Item) {
	obj, err := p.st.UpsertObject(ctx, item.ObjectType, item.Identifier, map[string]any{item.IdentifierKey: item.Identifier}, false)
	if err != nil {
		p.log.WithError(err).Warn("llm link: upsert object failed")
		return
	}
	link := domain.EventObjectLink{
		BucketID:   task.Event.BucketID,
		EventID:    task.Event.ID,
		ObjectID:   obj.ID,
		Provenance: domain.ProvenanceLLM,
		Confidence: item.Confidence,
	}
	if err := p.st.LinkEventToObject(ctx, link); err != nil {
		p.log.WithError(err).Warn("llm link: link event to object failed")
	}
}

func (p *Pool) createReviewTask(ctx context.Context, task Task, item Item) {
	rt := domain.ReviewTask{
		BucketID:      task.Event.BucketID,
		EventID:       task.Event.ID,
		ObjectType:    item.ObjectType,
		Identifier:    item.Identifier,
		IdentifierKey: item.IdentifierKey,
		Confidence:    item.Confidence,
		Status:        domain.ReviewStatusPending,
		Reason:        fmt.Sprintf("llm confidence %.2f below auto-link threshold", item.Confidence),
	}
	if _, err := p.st.CreateReviewTask(ctx, rt); err != nil {
		p.log.WithError(err).Warn("llm review: create review task failed")
	}
}

// Stats returns cumulative success/failure/drop counters for health
// reporting.
func (p *Pool) Stats() (succeeded, failed, dropped uint64) {
	return p.succeeded.Load(), p.failed.Load(), p.queue.Dropped()
}

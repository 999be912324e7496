// Package orchestrator coordinates one on-demand analysis job: snapshot a
// bucket's event range, run extraction over it, build cases, mine patterns,
// and reconcile the result against the workflow registry — writing each
// extraction chunk and the persisted step set in their own transactions.
// Only one job runs at a time; the
// single-flight guard mirrors the teacher's singleton-service readiness
// flag, scoped here to a single in-flight job id.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/casebuilder"
	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/llmqueue"
	"github.com/processlens/engine/internal/mining"
	"github.com/processlens/engine/internal/ontology"
	"github.com/processlens/engine/internal/store"
	"github.com/processlens/engine/pkg/metrics"
)

// enrichSourceFields lists the event fields a rule miss falls back to the
// LLM provider for: long OCR blocks and screenshot references rules don't
// scan at all.
var enrichSourceFields = [...]string{"ocr_text", "screenshot"}

// ChunkSize is the number of events the extraction stage processes between
// cancellation checks.
const ChunkSize = 500

// Options configures one Trigger call. Zero values resolve to each
// sub-package's documented defaults.
type Options struct {
	CaseBuilder casebuilder.Options
	Mining      mining.Options
	Matching    mining.MatchOptions
	SimilarityThreshold float64
}

// Summary is the ResultRef recorded on a completed job.
type Summary struct {
	EventsProcessed  int     `json:"events_processed"`
	LinksCreated     int     `json:"links_created"`
	CasesBuilt       int     `json:"cases_built"`
	StepsBuilt       int     `json:"steps_built"`
	PatternsMined    int     `json:"patterns_mined"`
	WorkflowsCreated int     `json:"workflows_created"`
	OccurrencesFound int     `json:"occurrences_found"`
	Canceled         bool    `json:"canceled"`
}

func (s Summary) asMap() map[string]any {
	return map[string]any{
		"events_processed":  s.EventsProcessed,
		"links_created":     s.LinksCreated,
		"cases_built":       s.CasesBuilt,
		"steps_built":       s.StepsBuilt,
		"patterns_mined":    s.PatternsMined,
		"workflows_created": s.WorkflowsCreated,
		"occurrences_found": s.OccurrencesFound,
		"canceled":          s.Canceled,
	}
}

// Orchestrator runs analysis jobs against a Store.
type Orchestrator struct {
	st        store.Store
	extractor *ontology.Extractor
	registry  *mining.Registry
	log       *logrus.Entry
	enqueue   *llmqueue.Queue

	mu         sync.Mutex
	runningJob string
	cancels    map[string]context.CancelFunc
}

// SetEnrichmentQueue wires the LLM enrichment queue the extraction stage
// feeds whenever rule-based extraction finds nothing on an event carrying
// OCR or screenshot text. Nil (the default) disables enrichment producing
// from analysis jobs, e.g. when no LLM provider is configured.
func (o *Orchestrator) SetEnrichmentQueue(q *llmqueue.Queue) {
	o.enqueue = q
}

// New builds an Orchestrator. onDemotion, if non-nil, is invoked in addition
// to the metrics.RecordRuleDemotion hook every demotion already feeds.
func New(st store.Store, onDemotion func(ruleID, reason string)) *Orchestrator {
	wired := func(ruleID, reason string) {
		metrics.RecordRuleDemotion("global", reason)
		if onDemotion != nil {
			onDemotion(ruleID, reason)
		}
	}
	return &Orchestrator{
		st:        st,
		extractor: ontology.New(st, wired),
		registry:  mining.New(st),
		log:       logrus.StandardLogger().WithField("component", "orchestrator"),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Trigger starts a new analysis job over bucket's events in r and returns
// immediately with the queued job record. If a job is already running,
// returns apperr.CodeJobInProgress naming the in-flight job id.
func (o *Orchestrator) Trigger(ctx context.Context, bucket string, r store.TimeRange, opts Options) (domain.AnalysisJob, error) {
	reservedID := NewJobID()

	o.mu.Lock()
	if o.runningJob != "" {
		inFlight := o.runningJob
		o.mu.Unlock()
		return domain.AnalysisJob{}, apperr.New(apperr.CodeJobInProgress, "Trigger", inFlight)
	}
	o.runningJob = reservedID
	o.mu.Unlock()

	job, err := o.st.CreateJob(ctx, domain.AnalysisJob{ID: reservedID, Kind: "analysis", Status: domain.JobQueued})
	if err != nil {
		o.mu.Lock()
		if o.runningJob == reservedID {
			o.runningJob = ""
		}
		o.mu.Unlock()
		return domain.AnalysisJob{}, fmt.Errorf("create job: %w", err)
	}

	o.mu.Lock()
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	go o.run(runCtx, job.ID, bucket, r, opts)

	return job, nil
}

// Cancel requests cooperative cancellation of jobID. It has no effect if
// the job has already finished or isn't the tracked in-flight job.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.cancels[jobID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Extractor returns the Extractor instance this Orchestrator runs analysis
// jobs against, so the HTTP layer can route rule CRUD/invalidation and
// training-queue feedback through the same rule snapshot cache instead of
// maintaining a second, independently-versioned one.
func (o *Orchestrator) Extractor() *ontology.Extractor {
	return o.extractor
}

func (o *Orchestrator) finish(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runningJob == jobID {
		o.runningJob = ""
	}
	delete(o.cancels, jobID)
}

func (o *Orchestrator) run(ctx context.Context, jobID, bucket string, r store.TimeRange, opts Options) {
	defer o.finish(jobID)
	started := time.Now()

	if err := o.setStatus(context.Background(), jobID, domain.JobRunning, 0, ""); err != nil {
		o.log.WithError(err).Error("mark job running")
		return
	}

	summary, err := o.execute(ctx, jobID, bucket, r, opts)

	final := context.Background()
	if err != nil {
		if ctx.Err() != nil {
			summary.Canceled = true
			metrics.RecordOrchestratorJob(bucket, "canceled", time.Since(started))
			o.completeWithResult(final, jobID, domain.JobDone, summary)
			return
		}
		metrics.RecordOrchestratorJob(bucket, domain.JobFailed, time.Since(started))
		_ = o.setStatus(final, jobID, domain.JobFailed, 0, err.Error())
		return
	}
	metrics.RecordOrchestratorJob(bucket, domain.JobDone, time.Since(started))
	o.completeWithResult(final, jobID, domain.JobDone, summary)
}

func (o *Orchestrator) completeWithResult(ctx context.Context, jobID, status string, s Summary) {
	job, err := o.st.GetJob(ctx, jobID)
	if err != nil {
		o.log.WithError(err).Error("load job before completion")
		return
	}
	job.Status = status
	job.Progress = 1.0
	job.ResultRef = s.asMap()
	if _, err := o.st.UpdateJob(ctx, job); err != nil {
		o.log.WithError(err).Error("record job completion")
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, jobID, status string, progress float64, errText string) error {
	job, err := o.st.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = status
	job.Progress = progress
	job.Error = errText
	_, err = o.st.UpdateJob(ctx, job)
	return err
}

// execute runs the five analysis stages in order, checking for cancellation
// between each and at every ChunkSize-event boundary during extraction.
func (o *Orchestrator) execute(ctx context.Context, jobID, bucket string, r store.TimeRange, opts Options) (Summary, error) {
	var summary Summary

	events, err := o.st.ReadEvents(ctx, bucket, r)
	if err != nil {
		return summary, fmt.Errorf("read events: %w", err)
	}
	summary.EventsProcessed = len(events)

	if err := o.checkCanceled(ctx); err != nil {
		return summary, err
	}

	linksCreated, err := o.extractInChunks(ctx, events, &summary)
	if err != nil {
		return summary, err
	}
	summary.LinksCreated = linksCreated

	if err := o.updateProgress(jobID, 0.4); err != nil {
		o.log.WithError(err).Warn("update progress")
	}

	objectsByEvent, err := o.collectObjectsByEvent(ctx, bucket, events)
	if err != nil {
		return summary, fmt.Errorf("collect objects by event: %w", err)
	}

	if err := o.checkCanceled(ctx); err != nil {
		return summary, err
	}

	cases := casebuilder.Build(events, objectsByEvent, opts.CaseBuilder)
	summary.CasesBuilt = len(cases)

	sequences, err := o.persistSteps(ctx, cases, objectsByEvent)
	if err != nil {
		return summary, fmt.Errorf("persist steps: %w", err)
	}
	for _, seq := range sequences {
		summary.StepsBuilt += len(seq.Labels)
	}

	if err := o.updateProgress(jobID, 0.7); err != nil {
		o.log.WithError(err).Warn("update progress")
	}

	if err := o.checkCanceled(ctx); err != nil {
		return summary, err
	}

	mineOpts := opts.Mining
	discovery, err := o.registry.DiscoverWorkflows(ctx, sequences, mineOpts, opts.SimilarityThreshold)
	if err != nil {
		return summary, fmt.Errorf("discover workflows: %w", err)
	}
	summary.PatternsMined = len(discovery.Patterns)
	summary.WorkflowsCreated = len(discovery.Created)
	metrics.RecordWorkflowsDiscovered(bucket, len(discovery.Created))

	occCount, err := o.registry.MatchActiveWorkflows(ctx, sequences, opts.Matching)
	if err != nil {
		return summary, fmt.Errorf("match active workflows: %w", err)
	}
	summary.OccurrencesFound = occCount

	return summary, nil
}

func (o *Orchestrator) updateProgress(jobID string, progress float64) error {
	return o.setStatus(context.Background(), jobID, domain.JobRunning, progress, "")
}

func (o *Orchestrator) checkCanceled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// extractInChunks runs the rule extractor over events ChunkSize at a time,
// writing each chunk's links in a single transaction and checking for
// cancellation between chunks.
func (o *Orchestrator) extractInChunks(ctx context.Context, events []domain.Event, summary *Summary) (int, error) {
	total := 0
	for start := 0; start < len(events); start += ChunkSize {
		if err := o.checkCanceled(ctx); err != nil {
			return total, err
		}
		end := start + ChunkSize
		if end > len(events) {
			end = len(events)
		}
		chunk := events[start:end]

		count := 0
		err := o.st.WithTx(ctx, func(txCtx context.Context) error {
			for _, ev := range chunk {
				links, err := o.extractor.ExtractEvent(txCtx, ev)
				if err != nil {
					return fmt.Errorf("extract event %s/%d: %w", ev.BucketID, ev.ID, err)
				}
				count += len(links)
				if len(links) == 0 {
					o.maybeEnqueueEnrichment(ev)
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

// maybeEnqueueEnrichment hands ev to the LLM queue when it carries OCR or
// screenshot text and rule-based extraction found no objects on it. This is
// the "batch re-analysis" producer from the enrichment queue's contract;
// the other producer, the live ingest path, is outside the engine.
func (o *Orchestrator) maybeEnqueueEnrichment(ev domain.Event) {
	if o.enqueue == nil {
		return
	}
	var fields []string
	for _, name := range enrichSourceFields {
		if v := ev.Field(name); v != "" {
			fields = append(fields, v)
		}
	}
	if len(fields) == 0 {
		return
	}
	dropped := o.enqueue.Enqueue(llmqueue.Task{
		Event:       ev,
		Prompt:      fields[0],
		Fingerprint: llmqueue.Fingerprint(fields...),
		Priority:    llmqueue.PriorityNormal,
	})
	if dropped {
		o.log.WithField("bucket", ev.BucketID).Warn("llm queue full, dropped oldest unstarted task")
	}
}

func (o *Orchestrator) collectObjectsByEvent(ctx context.Context, bucket string, events []domain.Event) (map[domain.EventKey][]string, error) {
	out := make(map[domain.EventKey][]string, len(events))
	for _, ev := range events {
		objs, err := o.st.ObjectsForEvent(ctx, bucket, ev.ID)
		if err != nil {
			return nil, err
		}
		if len(objs) == 0 {
			continue
		}
		ids := make([]string, len(objs))
		for i, obj := range objs {
			ids[i] = obj.ID
		}
		out[ev.Key()] = ids
	}
	return out, nil
}

// persistSteps builds and saves Steps for every case inside one transaction
// and returns the mining.CaseSequence view of each case for downstream
// pattern mining and matching.
func (o *Orchestrator) persistSteps(ctx context.Context, cases []domain.Case, objectsByEvent map[domain.EventKey][]string) ([]mining.CaseSequence, error) {
	sequences := make([]mining.CaseSequence, 0, len(cases))

	err := o.st.WithTx(ctx, func(txCtx context.Context) error {
		for _, c := range cases {
			steps := casebuilder.BuildSteps(c, objectsByEvent)
			seq := mining.CaseSequence{CaseID: c.ID}
			for _, step := range steps {
				created, err := o.st.CreateStep(txCtx, step)
				if err != nil {
					return fmt.Errorf("create step: %w", err)
				}
				seq.StepIDs = append(seq.StepIDs, created.ID)
				seq.Labels = append(seq.Labels, created.Name)
				seq.Spans = append(seq.Spans, mining.TimeSpan{Start: created.StartTime, End: created.EndTime})
			}
			sequences = append(sequences, seq)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sequences, nil
}

// NewJobID pre-allocates a job id before the job record exists, so Trigger
// can reserve the single-flight slot under its lock before the CreateJob
// store round trip completes.
func NewJobID() string { return uuid.NewString() }

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "processlens",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "processlens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	llmQueueDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "llm_queue",
			Name:      "dropped_total",
			Help:      "Total enrichment requests dropped because the queue was full.",
		},
		[]string{"bucket"},
	)

	llmQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "processlens",
			Subsystem: "llm_queue",
			Name:      "depth",
			Help:      "Current number of pending enrichment requests.",
		},
	)

	llmCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "llm_cache",
			Name:      "hits_total",
			Help:      "Total enrichment cache lookups that found a fingerprint match.",
		},
		[]string{"bucket"},
	)

	llmCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "llm_cache",
			Name:      "misses_total",
			Help:      "Total enrichment cache lookups with no fingerprint match.",
		},
		[]string{"bucket"},
	)

	llmProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "llm_provider",
			Name:      "calls_total",
			Help:      "Total calls made to an enrichment provider, by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	llmProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "processlens",
			Subsystem: "llm_provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of enrichment provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider"},
	)

	ruleDemoted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "ontology",
			Name:      "rule_demoted_total",
			Help:      "Total extraction rules disabled, by reason (runtime failure or low confirm rate).",
		},
		[]string{"bucket", "reason"},
	)

	ruleLearned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "ontology",
			Name:      "rule_learned_total",
			Help:      "Total extraction rules learned from confirm/reject/correct feedback.",
		},
		[]string{"bucket", "object_type"},
	)

	orchestratorJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "orchestrator",
			Name:      "job_runs_total",
			Help:      "Total analysis jobs run, by terminal status.",
		},
		[]string{"bucket", "status"},
	)

	orchestratorJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "processlens",
			Subsystem: "orchestrator",
			Name:      "job_duration_seconds",
			Help:      "Duration of analysis job runs end to end.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"bucket"},
	)

	workflowsDiscovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "processlens",
			Subsystem: "mining",
			Name:      "workflows_discovered_total",
			Help:      "Total distinct workflows discovered by the pattern miner.",
		},
		[]string{"bucket"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		llmQueueDropped,
		llmQueueDepth,
		llmCacheHits,
		llmCacheMisses,
		llmProviderCalls,
		llmProviderDuration,
		ruleDemoted,
		ruleLearned,
		orchestratorJobs,
		orchestratorJobDuration,
		workflowsDiscovered,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordLLMQueueDrop increments the drop counter for a bucket whose
// enrichment queue was full at enqueue time.
func RecordLLMQueueDrop(bucket string) {
	llmQueueDropped.WithLabelValues(bucket).Inc()
}

// SetLLMQueueDepth reports the current depth of the enrichment queue.
func SetLLMQueueDepth(depth int) {
	llmQueueDepth.Set(float64(depth))
}

// RecordLLMCacheLookup increments the cache hit or miss counter for a bucket.
func RecordLLMCacheLookup(bucket string, hit bool) {
	if hit {
		llmCacheHits.WithLabelValues(bucket).Inc()
		return
	}
	llmCacheMisses.WithLabelValues(bucket).Inc()
}

// RecordLLMProviderCall records the outcome and latency of a provider call.
func RecordLLMProviderCall(provider, outcome string, dur time.Duration) {
	llmProviderCalls.WithLabelValues(provider, outcome).Inc()
	llmProviderDuration.WithLabelValues(provider).Observe(dur.Seconds())
}

// RecordRuleDemotion increments the demotion counter for a bucket/reason pair
// (e.g. "timeout", "match_rate_floor").
func RecordRuleDemotion(bucket, reason string) {
	ruleDemoted.WithLabelValues(bucket, reason).Inc()
}

// RecordRuleLearned increments the learned-rule counter for a bucket/object type pair.
func RecordRuleLearned(bucket, objectType string) {
	ruleLearned.WithLabelValues(bucket, objectType).Inc()
}

// RecordOrchestratorJob records a terminal analysis job outcome and its duration.
func RecordOrchestratorJob(bucket, status string, dur time.Duration) {
	orchestratorJobs.WithLabelValues(bucket, status).Inc()
	orchestratorJobDuration.WithLabelValues(bucket).Observe(dur.Seconds())
}

// RecordWorkflowsDiscovered adds to the discovered-workflow count for a bucket.
func RecordWorkflowsDiscovered(bucket string, n int) {
	if n <= 0 {
		return
	}
	workflowsDiscovered.WithLabelValues(bucket).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so requests to different buckets,
// workflows, or jobs aggregate under one label instead of exploding label
// cardinality.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "buckets" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/buckets"
	}
	if len(parts) == 2 {
		return "/buckets/:bucket"
	}
	resource := parts[2]
	path := "/buckets/:bucket/" + resource
	if len(parts) >= 4 {
		path += "/:id"
	}
	if len(parts) >= 5 {
		path += "/" + parts[4]
	}
	if len(parts) >= 6 {
		path += "/:id"
	}
	return path
}

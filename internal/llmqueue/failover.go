package llmqueue

import (
	"context"
	"sync"
	"time"
)

// DefaultFailoverWindow is the span transient/timeout failures must fall
// within to trip a fallback switch, and the minimum fallback dwell time
// before a primary probe is attempted again.
const DefaultFailoverWindow = 60 * time.Second

// DefaultFailoverThreshold is the consecutive-failure count that trips the
// switch to the fallback provider.
const DefaultFailoverThreshold = 3

// Failover wraps a primary and an optional fallback Provider, switching to
// the fallback after a burst of consecutive transient/timeout failures and
// probing back to the primary once the fallback has been active for the
// failover window — the same open/half-open shape as a classic circuit
// breaker, specialized to two concrete providers instead of a single
// protected call.
type Failover struct {
	mu        sync.Mutex
	primary   Provider
	fallback  Provider
	threshold int
	window    time.Duration

	consecFailures int
	firstFailureAt time.Time
	onFallback     bool
	fallbackSince  time.Time
}

// NewFailover builds a Failover. fallback may be nil, in which case the
// primary is always used and failures simply propagate.
func NewFailover(primary, fallback Provider) *Failover {
	return &Failover{
		primary:   primary,
		fallback:  fallback,
		threshold: DefaultFailoverThreshold,
		window:    DefaultFailoverWindow,
	}
}

// Analyze routes to whichever provider is currently active, updating
// failover state from the outcome.
func (f *Failover) Analyze(ctx context.Context, prompt string, image []byte) ([]Item, error) {
	provider, probing := f.selectProvider()
	items, err := provider.Analyze(ctx, prompt, image)
	f.recordOutcome(probing, err)
	return items, err
}

// selectProvider returns the provider to use for the next call, and whether
// this call is a half-open probe of the primary while on the fallback.
func (f *Failover) selectProvider() (Provider, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.onFallback || f.fallback == nil {
		return f.primary, false
	}
	if time.Since(f.fallbackSince) >= f.window {
		return f.primary, true
	}
	return f.fallback, false
}

func (f *Failover) recordOutcome(probing bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	class := Classify(err)
	retryable := class == FailureTransient || class == FailureTimeout

	if probing {
		if err == nil {
			f.onFallback = false
			f.consecFailures = 0
			return
		}
		// Probe failed: stay on fallback for another full window.
		f.fallbackSince = time.Now()
		return
	}

	if !f.onFallback {
		if !retryable {
			f.consecFailures = 0
			return
		}
		if f.consecFailures == 0 || time.Since(f.firstFailureAt) > f.window {
			f.firstFailureAt = time.Now()
			f.consecFailures = 1
			return
		}
		f.consecFailures++
		if f.consecFailures >= f.threshold && f.fallback != nil {
			f.onFallback = true
			f.fallbackSince = time.Now()
			f.consecFailures = 0
		}
		return
	}

	// On fallback and this wasn't a probe: nothing to update.
}

// Package llmqueue runs a bounded, backpressured queue of vision/text
// enrichment tasks against a pluggable LLM provider: a fixed worker pool
// drains the queue, a content-fingerprint LRU with a TTL short-circuits
// repeat calls, and a primary/fallback failover protects the ingest path
// from a wedged provider.
package llmqueue

import "context"

// Item is one object candidate the provider extracted from a task's
// prompt/image.
type Item struct {
	ObjectType    string
	Identifier    string
	IdentifierKey string
	Confidence    float64
}

// Provider is the capability interface an LLM enrichment backend satisfies.
// Image is optional — nil for text-only prompts.
type Provider interface {
	Analyze(ctx context.Context, prompt string, image []byte) ([]Item, error)
}

// FailureClass categorizes a provider error for the retry/drop decision.
type FailureClass int

const (
	FailureNone FailureClass = iota
	FailureTransient
	FailurePermanent
	FailureMalformed
	FailureTimeout
)

// ClassifiableError lets a Provider tag its own errors with a FailureClass
// instead of relying on string/status sniffing at the queue layer.
type ClassifiableError interface {
	error
	Class() FailureClass
}

// Classify extracts the FailureClass from err, defaulting to FailureTransient
// for errors that don't implement ClassifiableError — an unrecognized error
// is assumed retryable rather than silently swallowed.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureNone
	}
	if ce, ok := err.(ClassifiableError); ok {
		return ce.Class()
	}
	return FailureTransient
}

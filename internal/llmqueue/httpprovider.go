package llmqueue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHTTPProviderTimeout   = 20 * time.Second
	defaultHTTPProviderBodyLimit = int64(1 << 20)
)

// providerError tags an HTTP provider failure with a FailureClass derived
// from the response status, so the retry/failover layers never have to
// sniff strings.
type providerError struct {
	class FailureClass
	msg   string
}

func (e *providerError) Error() string       { return e.msg }
func (e *providerError) Class() FailureClass { return e.class }

// HTTPProvider calls an external LLM enrichment endpoint over HTTP, posting
// the prompt text and an optional base64-encoded image and decoding a JSON
// array of candidate items back.
type HTTPProvider struct {
	url     string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProvider builds an HTTPProvider. rps/burst bound the outbound call
// rate of this provider, shared by every worker that calls it, so a
// misbehaving provider can't be hammered; a zero rps disables throttling.
func NewHTTPProvider(url, apiKey, model string, rps float64, burst int) *HTTPProvider {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &HTTPProvider{
		url:     url,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: defaultHTTPProviderTimeout},
		limiter: limiter,
	}
}

type httpProviderRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

type httpProviderResponse struct {
	Items []Item `json:"items"`
}

// Analyze satisfies Provider.
func (p *HTTPProvider) Analyze(ctx context.Context, prompt string, image []byte) ([]Item, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, &providerError{class: FailureTimeout, msg: fmt.Sprintf("rate limiter: %v", err)}
		}
	}

	reqBody := httpProviderRequest{Model: p.model, Prompt: prompt}
	if len(image) > 0 {
		reqBody.Image = base64.StdEncoding.EncodeToString(image)
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &providerError{class: FailureMalformed, msg: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &providerError{class: FailureTransient, msg: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &providerError{class: FailureTimeout, msg: fmt.Sprintf("provider call: %v", err)}
		}
		return nil, &providerError{class: FailureTransient, msg: fmt.Sprintf("provider call: %v", err)}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, defaultHTTPProviderBodyLimit)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &providerError{class: FailureTransient, msg: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &providerError{class: FailureTransient, msg: fmt.Sprintf("provider status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerError{class: FailurePermanent, msg: fmt.Sprintf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var parsed httpProviderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &providerError{class: FailureMalformed, msg: fmt.Sprintf("decode response: %v", err)}
	}
	return parsed.Items, nil
}

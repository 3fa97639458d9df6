// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package completion issues structured prompts to an external
// text-completion service and retries transient failures.
package completion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pillumina/PaperFuse/pkg/types"
)

const (
	backoffBase   = 1 * time.Second
	backoffCap    = 30 * time.Second
	jitterFactor  = 0.25
	defaultTokens = 4096
)

// Request is one structured completion request.
type Request struct {
	// System carries the system instructions.
	System string

	// User carries the user content (prompt plus evidence).
	User string

	// MaxTokens caps the output length; 0 uses the configured default.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64
}

// Client sends completion requests to one named provider/model.
type Client interface {
	// Complete returns the raw text output for the request.
	Complete(ctx context.Context, req Request) (string, error)

	// Name identifies the provider/model pair (e.g. "anthropic/claude-x").
	Name() string
}

// httpStatusError carries a non-2xx provider response.
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("completion service: HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// provider is the wire-level half of a client: one request, one response.
type provider interface {
	send(ctx context.Context, req Request) (string, error)
	name() string
}

// retryingClient wraps a provider with the transient-failure retry loop.
type retryingClient struct {
	p           provider
	maxAttempts int

	// sleep is the backoff wait; tests substitute it to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a client for the configured provider. Supported providers
// are "anthropic" and "openrouter".
func New(cfg types.CompletionConfig) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var p provider
	switch cfg.Provider {
	case "anthropic":
		p = &anthropicProvider{cfg: cfg, client: httpClient}
	case "openrouter":
		p = &openrouterProvider{cfg: cfg, client: httpClient}
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &retryingClient{
		p:           p,
		maxAttempts: maxAttempts,
		sleep:       sleepContext,
	}, nil
}

func (c *retryingClient) Name() string { return c.p.name() }

// Complete sends the request, retrying transient failures with
// exponential backoff and jitter. Non-retryable errors propagate
// immediately.
func (c *retryingClient) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		out, err := c.p.send(ctx, req)
		if err == nil {
			return out, nil
		}
		if !isTransient(err) {
			return "", err
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// backoffDelay computes the wait before the next attempt: exponential
// from backoffBase, capped at backoffCap, with ±25% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}
	jitter := 1 - jitterFactor + 2*jitterFactor*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

// transientMessagePatterns are provider error strings that indicate
// rate-limiting, overload, or timeouts regardless of HTTP status.
var transientMessagePatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"overloaded",
	"overloaded_error",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"connection reset",
}

// isTransient classifies an error as worth retrying: the fixed HTTP
// status taxonomy, network timeouts, or recognized message patterns.
// Context cancellation is never retried.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessagePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

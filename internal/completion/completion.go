// Package completion performs one completion call against a provider with a
// bounded retry budget, and classifies the outcome for the callers that
// shrink context or fall back to another route.
package completion

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stupiduntilnot/lyra/internal/control"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client wraps a provider with the retry policy.
type Client struct {
	provider modelpkg.Provider
	policy   control.Policy
	sleep    SleepFunc
}

// NewClient creates a completion client. A nil sleep uses a timer.
func NewClient(provider modelpkg.Provider, policy control.Policy, sleep SleepFunc) *Client {
	if sleep == nil {
		sleep = sleepContext
	}
	return &Client{provider: provider, policy: policy, sleep: sleep}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() modelpkg.Provider {
	return c.provider
}

// Outcome is the final result of Call plus how many attempts it took.
type Outcome struct {
	modelpkg.Result
	Attempts int
}

// Call sends req, retrying transient failures until the budget is spent.
// The last result is returned as-is.
func (c *Client) Call(ctx context.Context, req modelpkg.Request) Outcome {
	var result modelpkg.Result
	retries := 0
	for {
		result = c.provider.Send(ctx, req)
		if result.OK() || !IsTransient(result) || !control.ShouldRetry(c.policy, retries) {
			break
		}
		wait := control.ClampBackoff(c.policy, result.RetryAfter)
		slog.WarnContext(ctx, "transient completion failure, retrying",
			"provider", c.provider.Name(),
			"status", result.Status,
			"kind", result.Kind,
			"backoff_ms", wait.Milliseconds())
		if err := c.sleep(ctx, wait); err != nil {
			break
		}
		retries++
	}
	return Outcome{Result: result, Attempts: retries + 1}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTransient reports rate limits, transient server errors and transport
// failures.
func IsTransient(r modelpkg.Result) bool {
	switch r.Kind {
	case modelpkg.ResultTransport:
		return true
	case modelpkg.ResultHTTP:
		switch r.Status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// IsAuth reports a rejected or missing credential.
func IsAuth(r modelpkg.Result) bool {
	return r.Kind == modelpkg.ResultHTTP &&
		(r.Status == http.StatusUnauthorized || r.Status == http.StatusForbidden)
}

// IsContextLength reports a request rejected for carrying too much context:
// a 413, or a 4xx or malformed body carrying an over-length marker. Server
// errors never qualify; they stay transient.
func IsContextLength(r modelpkg.Result) bool {
	switch r.Kind {
	case modelpkg.ResultHTTP:
		if r.Status == http.StatusRequestEntityTooLarge {
			return true
		}
		return r.Status >= 400 && r.Status < 500 && mentionsOverLength(r.Body)
	case modelpkg.ResultMalformed:
		return mentionsOverLength(r.Body)
	}
	return false
}

var overLengthMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
	"context window",
	"too many tokens",
	"reduce the length",
	"prompt is too long",
}

func mentionsOverLength(body string) bool {
	s := strings.ToLower(body)
	for _, m := range overLengthMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return strings.Contains(s, "context") && strings.Contains(s, "length")
}

// ErrorKind maps a failed result to the CallMeta error kind.
func ErrorKind(r modelpkg.Result) string {
	switch {
	case r.OK():
		return modelpkg.ErrorNone
	case IsAuth(r):
		return modelpkg.ErrorAuth
	case IsContextLength(r):
		return modelpkg.ErrorContextLength
	case IsTransient(r):
		return modelpkg.ErrorTransient
	case r.Kind == modelpkg.ResultMalformed:
		return modelpkg.ErrorMalformed
	default:
		return modelpkg.ErrorHTTP
	}
}

// Package fallback routes a completion call over an ordered list of
// providers, each guarded by its own circuit breaker.
package fallback

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/stupiduntilnot/lyra/internal/completion"
	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/control"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

// PreviewRunes bounds the raw body kept in CallMeta.
const PreviewRunes = 200

// Route is one provider in the fallback order.
type Route struct {
	// Name is reported as CallMeta.Route (primary, secondary).
	Name   string
	Client *completion.Client
	// Breaker may be nil; the route is then always tried.
	Breaker *control.CircuitBreaker
	// Credential names the env var holding this route's API key.
	Credential string
}

type Router struct {
	routes []Route
	now    func() time.Time
}

func NewRouter(routes ...Route) *Router {
	return &Router{routes: routes, now: time.Now}
}

// Routes returns the configured route names in order.
func (r *Router) Routes() []string {
	names := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		names = append(names, rt.Name)
	}
	return names
}

// Call tries each route in order. The first success wins. A context-length
// failure stops the walk so the caller can shrink. When nothing succeeds
// the returned text is empty and meta.Route is RouteError.
func (r *Router) Call(ctx context.Context, messages []ctxpkg.Message, temperature float64, maxTokens int) (string, modelpkg.CallMeta) {
	start := r.now()
	req := modelpkg.Request{
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	preview := PromptPreview(messages)
	meta := modelpkg.CallMeta{
		Route:         modelpkg.RouteError,
		ErrorKind:     modelpkg.ErrorUnavailable,
		Error:         "no completion route available",
		MessagesSent:  len(messages),
		PromptPreview: preview,
	}
	attempts := 0

	for _, rt := range r.routes {
		if rt.Breaker != nil && !rt.Breaker.Allow(r.now()) {
			slog.WarnContext(ctx, "completion route skipped, circuit open",
				"route", rt.Name,
				"kind", rt.Breaker.OpenedKind())
			continue
		}

		out := rt.Client.Call(ctx, req)
		attempts += out.Attempts
		provider := rt.Client.Provider()

		if out.OK() {
			if rt.Breaker != nil {
				rt.Breaker.RecordSuccess()
			}
			return out.Reply.Content, modelpkg.CallMeta{
				Route:            rt.Name,
				Provider:         provider.Name(),
				Model:            provider.Model(),
				Credential:       rt.Credential,
				PromptTokens:     out.Reply.Usage.PromptTokens,
				CompletionTokens: out.Reply.Usage.CompletionTokens,
				Status:           out.Status,
				FinishReason:     out.Reply.FinishReason,
				MessagesSent:     len(messages),
				PromptPreview:    preview,
				Attempts:         attempts,
				LatencyMs:        r.now().Sub(start).Milliseconds(),
			}
		}

		kind := completion.ErrorKind(out.Result)
		meta = modelpkg.CallMeta{
			Route:         modelpkg.RouteError,
			Provider:      provider.Name(),
			Model:         provider.Model(),
			Credential:    rt.Credential,
			Status:        out.Status,
			ErrorKind:     kind,
			Error:         failureDetail(out.Result),
			BodyPreview:   Preview(out.Body, PreviewRunes),
			MessagesSent:  len(messages),
			PromptPreview: preview,
		}
		slog.WarnContext(ctx, "completion route failed",
			"route", rt.Name,
			"provider", provider.Name(),
			"status", out.Status,
			"error_kind", kind)

		if kind == modelpkg.ErrorContextLength {
			break
		}
		if rt.Breaker != nil {
			rt.Breaker.RecordFailure(kind, r.now())
		}
	}

	meta.Attempts = attempts
	meta.LatencyMs = r.now().Sub(start).Milliseconds()
	return "", meta
}

func failureDetail(res modelpkg.Result) string {
	if d := strings.TrimSpace(res.Detail); d != "" {
		return d
	}
	return strings.TrimSpace(res.Body)
}

// PromptPreview lists each message sent as "[role] content", content cut
// at PreviewRunes.
func PromptPreview(messages []ctxpkg.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, "["+m.Role+"] "+Preview(m.Content, PreviewRunes))
	}
	return strings.Join(lines, "\n\n")
}

// Preview returns the first n runes of s.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

package model

import (
	"context"
	"strconv"
	"strings"
	"time"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
)

// Request is one chat-completion call.
type Request struct {
	Messages    []ctxpkg.Message
	Temperature float64
	MaxTokens   int
}

// Usage holds token counts when the provider reports them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Reply is a parsed successful completion.
type Reply struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// ResultKind tags the outcome of one provider call.
type ResultKind string

const (
	// ResultOK carries a parsed Reply.
	ResultOK ResultKind = "ok"
	// ResultHTTP is a non-2xx response; Status and Body are set.
	ResultHTTP ResultKind = "http"
	// ResultTransport means no response was received; Detail is set.
	ResultTransport ResultKind = "transport"
	// ResultMalformed is a 2xx response whose body could not be used.
	ResultMalformed ResultKind = "malformed"
)

// Result is the tagged outcome of a provider call. Provider failures are
// values, never Go errors, so retry and fallback logic can inspect them.
type Result struct {
	Kind       ResultKind
	Status     int
	Body       string
	Detail     string
	RetryAfter time.Duration
	Reply      Reply
}

// OK reports whether the result carries a usable reply.
func (r Result) OK() bool {
	return r.Kind == ResultOK
}

// Provider is the model backend abstraction used by the completion client.
type Provider interface {
	Name() string
	Model() string
	Send(ctx context.Context, req Request) Result
}

// ParseRetryAfter reads a Retry-After value given in (possibly fractional)
// seconds. HTTP-date values and garbage yield zero.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// Package continuation runs one assistant turn: it shrinks the context on
// over-length failures and stitches truncated replies back together.
package continuation

import (
	"context"
	"log/slog"
	"strings"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/control"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

// Directive is sent as a user message after each truncated chunk.
const Directive = "Output only the continuation. Do not repeat or rephrase anything already written."

// EmptyResponse replaces a turn whose assembled text is blank.
const EmptyResponse = "(empty model response)"

// Caller is the completion entry point, normally a *fallback.Router.
type Caller interface {
	Call(ctx context.Context, messages []ctxpkg.Message, temperature float64, maxTokens int) (string, modelpkg.CallMeta)
}

// Params are the sampling settings for one turn.
type Params struct {
	Temperature float64
	MaxTokens   int
}

type Controller struct {
	caller      Caller
	builder     *ctxpkg.SliceBuilder
	policy      control.Policy
	personaName string
}

func NewController(caller Caller, builder *ctxpkg.SliceBuilder, policy control.Policy, personaName string) *Controller {
	if builder == nil {
		builder = ctxpkg.NewSliceBuilder(0, 0)
	}
	return &Controller{caller: caller, builder: builder, policy: policy, personaName: personaName}
}

// Run produces the assistant reply for transcript, whose last message is
// the user's input. The reply is never empty. The returned meta describes
// the last completion attempt and carries turn-wide counters.
func (c *Controller) Run(ctx context.Context, transcript []ctxpkg.Message, p Params) (string, modelpkg.CallMeta) {
	var (
		parts    []string
		extra    []ctxpkg.Message
		used     int
		attempts int
		last     modelpkg.CallMeta
	)
	limit := c.builder.Ceiling

	for {
		text, meta := c.attempt(ctx, transcript, extra, &limit, p)
		attempts += meta.Attempts

		if meta.Failed() {
			if len(parts) == 0 {
				meta.Attempts = attempts
				meta.ContextLimit = limit
				return FailureMessage(meta, c.personaName), meta
			}
			slog.WarnContext(ctx, "continuation failed, keeping assembled parts",
				"parts", len(parts),
				"error_kind", meta.ErrorKind)
			break
		}

		parts = append(parts, text)
		last = meta
		if !control.ShouldContinue(c.policy, used, meta.FinishReason, text) {
			break
		}
		used++
		extra = append(extra,
			ctxpkg.Message{Role: ctxpkg.RoleAssistant, Content: text},
			ctxpkg.Message{Role: ctxpkg.RoleUser, Content: Directive},
		)
		slog.DebugContext(ctx, "reply truncated, requesting continuation",
			"continuation", used,
			"finish_reason", meta.FinishReason)
	}

	last.Attempts = attempts
	last.Continuations = used
	last.ContextLimit = limit
	reply := strings.TrimSpace(strings.Join(parts, ""))
	if reply == "" {
		reply = EmptyResponse
	}
	return reply, last
}

// attempt issues one logical call, halving the limit while the provider
// reports an over-length request. limit only decreases.
func (c *Controller) attempt(ctx context.Context, transcript, extra []ctxpkg.Message, limit *int, p Params) (string, modelpkg.CallMeta) {
	attempts := 0
	for {
		convo := append(c.builder.Build(transcript, *limit), extra...)
		text, meta := c.caller.Call(ctx, convo, p.Temperature, p.MaxTokens)
		attempts += meta.Attempts
		if meta.ErrorKind != modelpkg.ErrorContextLength || c.builder.AtFloor(*limit) {
			meta.Attempts = attempts
			return text, meta
		}
		next := c.builder.Shrink(*limit)
		slog.InfoContext(ctx, "context too long, shrinking",
			"from", *limit,
			"to", next)
		*limit = next
	}
}

// Package dummy provides a scripted completion provider for offline runs and
// tests. A script is a comma-separated list of actions consumed one per call;
// the last action repeats once the script is exhausted.
//
//	ok[:text]            successful reply, finish_reason=stop
//	msg:text             successful reply, finish_reason=stop
//	msgb64:base64        successful reply from base64 text
//	len:text             successful reply, finish_reason=length
//	status:code[:body]   non-2xx HTTP response
//	bad[:body]           2xx response with an unusable body
//	err[:detail]         transport failure
//	sleep:ms             wait, then reply "dummy-after-sleep"
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

type action struct {
	kind string
	arg  string
}

var kinds = []string{"ok", "msg", "msgb64", "len", "status", "bad", "err", "sleep"}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		a, err := parseAction(token)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

func parseAction(token string) (action, error) {
	kind, arg, _ := strings.Cut(token, ":")
	for _, k := range kinds {
		if kind != k {
			continue
		}
		if k == "status" {
			code, _, _ := strings.Cut(arg, ":")
			if _, err := strconv.Atoi(code); err != nil {
				return action{}, fmt.Errorf("invalid dummy status: %s", token)
			}
		}
		return action{kind: kind, arg: arg}, nil
	}
	return action{}, fmt.Errorf("invalid dummy action: %s", token)
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

type Provider struct {
	mu       sync.Mutex
	name     string
	model    string
	script   *scriptRunner
	requests []modelpkg.Request
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{name: "dummy", model: model, script: runner}, nil
}

// Named overrides the provider name reported in call metadata.
func (p *Provider) Named(name string) *Provider {
	p.name = name
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Model() string {
	return p.model
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []modelpkg.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]modelpkg.Request, len(p.requests))
	for i, r := range p.requests {
		r.Messages = ctxpkg.Clone(r.Messages)
		out[i] = r
	}
	return out
}

func (p *Provider) Send(ctx context.Context, r modelpkg.Request) modelpkg.Result {
	p.mu.Lock()
	r.Messages = ctxpkg.Clone(r.Messages)
	p.requests = append(p.requests, r)
	a := p.script.next()
	p.mu.Unlock()

	switch a.kind {
	case "ok":
		return reply(emptyAs(a.arg, "dummy-ok"), "stop")
	case "msg":
		return reply(a.arg, "stop")
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return modelpkg.Result{Kind: modelpkg.ResultMalformed, Status: 200, Body: a.arg, Detail: "dummy provider msgb64 decode failed"}
		}
		return reply(string(raw), "stop")
	case "len":
		return reply(a.arg, "length")
	case "status":
		code, body, _ := strings.Cut(a.arg, ":")
		status, _ := strconv.Atoi(code)
		return modelpkg.Result{
			Kind:   modelpkg.ResultHTTP,
			Status: status,
			Body:   body,
			Detail: fmt.Sprintf("dummy non-success status=%d", status),
		}
	case "bad":
		return modelpkg.Result{Kind: modelpkg.ResultMalformed, Status: 200, Body: a.arg, Detail: "dummy malformed response"}
	case "err":
		return modelpkg.Result{Kind: modelpkg.ResultTransport, Detail: fmt.Sprintf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))}
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return modelpkg.Result{Kind: modelpkg.ResultTransport, Detail: ctx.Err().Error()}
			}
		}
		return reply("dummy-after-sleep", "stop")
	default:
		return reply("dummy-ok", "stop")
	}
}

func reply(content, finish string) modelpkg.Result {
	return modelpkg.Result{
		Kind:   modelpkg.ResultOK,
		Status: 200,
		Reply: modelpkg.Reply{
			Content:      content,
			FinishReason: finish,
			Usage:        modelpkg.Usage{PromptTokens: 1, CompletionTokens: 1},
		},
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

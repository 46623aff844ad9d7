package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
}

func testRequest() modelpkg.Request {
	return modelpkg.Request{
		Messages: []ctxpkg.Message{
			{Role: ctxpkg.RoleSystem, Content: "sys"},
			{Role: ctxpkg.RoleUser, Content: "hi"},
			{Role: ctxpkg.RoleAssistant, Content: "hello"},
		},
		Temperature: 0.5,
		MaxTokens:   64,
	}
}

func TestSend_Success(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "test-model" || len(body.Messages) != 3 || body.Messages[2].Role != "assistant" {
			t.Errorf("unexpected request: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "test-model",
			"choices": [{"index": 0, "finish_reason": "length",
				"message": {"role": "assistant", "content": "Once upon a time"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	})

	result := p.Send(context.Background(), testRequest())
	if !result.OK() {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if result.Reply.Content != "Once upon a time" || result.Reply.FinishReason != "length" {
		t.Errorf("unexpected reply: %+v", result.Reply)
	}
	if result.Reply.Usage.PromptTokens != 12 || result.Reply.Usage.CompletionTokens != 4 {
		t.Errorf("unexpected usage: %+v", result.Reply.Usage)
	}
}

func TestSend_HTTPErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`))
	})

	result := p.Send(context.Background(), testRequest())
	if result.Kind != modelpkg.ResultHTTP || result.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.Body, "context length") {
		t.Errorf("expected body detail, got %q", result.Body)
	}
	if result.RetryAfter != time.Second {
		t.Errorf("expected 1s retry hint, got %s", result.RetryAfter)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", calls.Load())
	}
}

func TestSend_EmptyChoicesIsMalformed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	})

	result := p.Send(context.Background(), testRequest())
	if result.Kind != modelpkg.ResultMalformed {
		t.Fatalf("expected malformed result, got %+v", result)
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{APIKey: "k"})
	if p.Model() != DefaultModel {
		t.Fatalf("expected default model, got %q", p.Model())
	}
	if p.Name() != "openrouter" {
		t.Fatalf("unexpected name %q", p.Name())
	}
}

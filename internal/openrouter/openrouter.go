// Package openrouter is the secondary completion route: any endpoint that
// speaks the OpenAI chat-completions wire format, reached through the
// openai-go SDK.
package openrouter

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "nousresearch/hermes-3-llama-3.1-70b"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Provider struct {
	client openai.Client
	model  string
}

// New creates the provider. SDK-level retries are disabled; the completion
// client owns the retry budget.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (p *Provider) Name() string {
	return "openrouter"
}

func (p *Provider) Model() string {
	return p.model
}

// Send issues one chat completion through the SDK and folds its errors into
// a Result.
func (p *Provider) Send(ctx context.Context, r modelpkg.Request) modelpkg.Result {
	params := openai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    convertMessages(r.Messages),
		Temperature: openai.Float(r.Temperature),
	}
	if r.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(r.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			result := modelpkg.Result{
				Kind:   modelpkg.ResultHTTP,
				Status: apiErr.StatusCode,
				Body:   apiErr.Error(),
				Detail: "openrouter non-success status",
			}
			if apiErr.Response != nil {
				result.RetryAfter = modelpkg.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return result
		}
		return modelpkg.Result{Kind: modelpkg.ResultTransport, Detail: "openrouter request failed: " + err.Error()}
	}

	if len(resp.Choices) == 0 {
		return modelpkg.Result{
			Kind:   modelpkg.ResultMalformed,
			Status: 200,
			Body:   resp.RawJSON(),
			Detail: "openrouter response has no choices",
		}
	}

	choice := resp.Choices[0]
	return modelpkg.Result{
		Kind:   modelpkg.ResultOK,
		Status: 200,
		Reply: modelpkg.Reply{
			Content:      choice.Message.Content,
			FinishReason: string(choice.FinishReason),
			Usage: modelpkg.Usage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
			},
		},
	}
}

func convertMessages(msgs []ctxpkg.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case ctxpkg.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case ctxpkg.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

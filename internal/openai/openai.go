package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

// Client is a minimal OpenAI chat completions client.
type Client struct {
	apiKey     string
	url        string
	model      string
	httpClient *http.Client
}

// NewClient creates an OpenAI client. timeout bounds connect and read.
func NewClient(apiKey, url, model string, timeout time.Duration) *Client {
	return &Client{
		apiKey: apiKey,
		url:    url,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the provider in call metadata.
func (c *Client) Name() string {
	return "openai"
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []ctxpkg.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *modelpkg.Usage `json:"usage"`
}

// Send issues one chat completion request. Every failure is returned as a
// Result; Send never panics on provider input.
func (c *Client) Send(ctx context.Context, r modelpkg.Request) modelpkg.Result {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    r.Messages,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return modelpkg.Result{Kind: modelpkg.ResultTransport, Detail: "failed to marshal openai request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return modelpkg.Result{Kind: modelpkg.ResultTransport, Detail: "failed to create openai request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return modelpkg.Result{Kind: modelpkg.ResultTransport, Detail: "openai request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return modelpkg.Result{
			Kind:   modelpkg.ResultTransport,
			Status: resp.StatusCode,
			Detail: "failed reading openai response: " + err.Error(),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return modelpkg.Result{
			Kind:       modelpkg.ResultHTTP,
			Status:     resp.StatusCode,
			Body:       string(body),
			Detail:     "openai non-success status=" + strconv.Itoa(resp.StatusCode),
			RetryAfter: modelpkg.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return parseReply(resp.StatusCode, body)
}

func parseReply(status int, body []byte) modelpkg.Result {
	malformed := func(detail string) modelpkg.Result {
		return modelpkg.Result{Kind: modelpkg.ResultMalformed, Status: status, Body: string(body), Detail: detail}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return malformed("failed to parse openai response")
	}
	if len(parsed.Choices) == 0 {
		return malformed("openai response has no choices")
	}
	choice := parsed.Choices[0]
	if choice.Message.Content == nil {
		return malformed("openai response has no message content")
	}

	result := modelpkg.Result{
		Kind:   modelpkg.ResultOK,
		Status: status,
		Reply: modelpkg.Reply{
			Content:      *choice.Message.Content,
			FinishReason: choice.FinishReason,
		},
	}
	if parsed.Usage != nil {
		result.Reply.Usage = *parsed.Usage
	}
	return result
}

package model

// Route names reported in CallMeta.
const (
	RoutePrimary   = "primary"
	RouteSecondary = "secondary"
	RouteError     = "error"
)

// Error kinds reported in CallMeta.
const (
	ErrorNone          = ""
	ErrorAuth          = "auth"
	ErrorTransient     = "transient"
	ErrorContextLength = "context_length"
	ErrorMalformed     = "malformed"
	ErrorHTTP          = "http"
	ErrorUnavailable   = "unavailable"
)

// CallMeta describes the most recent completion attempt.
type CallMeta struct {
	Route            string `json:"route"`
	Provider         string `json:"provider,omitempty"`
	Model            string `json:"model,omitempty"`
	Credential       string `json:"credential,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	Status           int    `json:"status,omitempty"`
	ErrorKind        string `json:"error_kind,omitempty"`
	Error            string `json:"error,omitempty"`
	BodyPreview      string `json:"body_preview,omitempty"`
	FinishReason     string `json:"finish_reason,omitempty"`
	MessagesSent     int    `json:"messages_sent"`
	PromptPreview    string `json:"prompt_preview,omitempty"`
	Attempts         int    `json:"attempts"`
	Continuations    int    `json:"continuations"`
	ContextLimit     int    `json:"context_limit"`
	LatencyMs        int64  `json:"latency_ms"`
}

// Failed reports whether the call produced no usable reply.
func (m CallMeta) Failed() bool {
	return m.Route == RouteError
}

// Payload flattens the meta for the event journal.
func (m CallMeta) Payload() map[string]any {
	return map[string]any{
		"route":             m.Route,
		"provider":          m.Provider,
		"model":             m.Model,
		"prompt_tokens":     m.PromptTokens,
		"completion_tokens": m.CompletionTokens,
		"status":            m.Status,
		"error_kind":        m.ErrorKind,
		"error":             m.Error,
		"finish_reason":     m.FinishReason,
		"messages_sent":     m.MessagesSent,
		"attempts":          m.Attempts,
		"continuations":     m.Continuations,
		"context_limit":     m.ContextLimit,
		"latency_ms":        m.LatencyMs,
	}
}

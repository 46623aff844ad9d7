// Package render formats the dialog, call metadata and import previews for
// the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
)

// DefaultWidth is used when the configured width is not positive.
const DefaultWidth = 80

// UserLabel heads user turns.
const UserLabel = "You"

var (
	userHeader      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("176"))
	bodyStyle       = lipgloss.NewStyle().PaddingLeft(2)
	faintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// Dialog renders user and assistant turns wrapped to width. System
// messages are skipped.
func Dialog(messages []ctxpkg.Message, personaName string, width int) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == ctxpkg.RoleSystem {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Turn(m, personaName, width))
	}
	return b.String()
}

// Turn renders one message with its speaker header.
func Turn(m ctxpkg.Message, personaName string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	header := userHeader.Render(UserLabel)
	if m.Role == ctxpkg.RoleAssistant {
		name := personaName
		if name == "" {
			name = "Assistant"
		}
		header = assistantHeader.Render(name)
	}
	body := bodyStyle.Width(width).Render(m.Content)
	return header + "\n" + body + "\n"
}

// Meta renders the last call metadata as aligned key/value lines.
func Meta(meta modelpkg.CallMeta) string {
	rows := [][2]string{
		{"route", meta.Route},
		{"provider", meta.Provider},
		{"model", meta.Model},
		{"status", fmt.Sprint(meta.Status)},
		{"finish_reason", meta.FinishReason},
		{"prompt_tokens", fmt.Sprint(meta.PromptTokens)},
		{"completion_tokens", fmt.Sprint(meta.CompletionTokens)},
		{"messages_sent", fmt.Sprint(meta.MessagesSent)},
		{"context_limit", fmt.Sprint(meta.ContextLimit)},
		{"attempts", fmt.Sprint(meta.Attempts)},
		{"continuations", fmt.Sprint(meta.Continuations)},
		{"latency_ms", fmt.Sprint(meta.LatencyMs)},
	}
	if meta.ErrorKind != "" {
		rows = append(rows, [2]string{"error_kind", meta.ErrorKind}, [2]string{"error", meta.Error})
	}
	if meta.BodyPreview != "" {
		rows = append(rows, [2]string{"body_preview", meta.BodyPreview})
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(faintStyle.Render(fmt.Sprintf("%-18s", r[0])))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	if meta.PromptPreview != "" {
		b.WriteString(faintStyle.Render("prompt_preview"))
		b.WriteString("\n")
		b.WriteString(bodyStyle.Render(meta.PromptPreview))
		b.WriteString("\n")
	}
	return b.String()
}

// Preview renders the first n messages of an import, one line each,
// cutting content at width.
func Preview(messages []ctxpkg.Message, n, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if n > len(messages) {
		n = len(messages)
	}
	var b strings.Builder
	for i, m := range messages[:n] {
		line := fmt.Sprintf("%d. [%s] %s", i+1, m.Role, strings.ReplaceAll(m.Content, "\n", " "))
		b.WriteString(lipgloss.NewStyle().MaxWidth(width).Render(line))
		b.WriteString("\n")
	}
	if rest := len(messages) - n; rest > 0 {
		b.WriteString(faintStyle.Render(fmt.Sprintf("… and %d more", rest)))
		b.WriteString("\n")
	}
	return b.String()
}

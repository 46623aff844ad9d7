package control

import (
	"strings"
	"time"
)

// Policy bounds retries, backoff and continuation for one user turn.
type Policy struct {
	MaxRetries       int
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	DefaultBackoff   time.Duration
	AutoContinue     bool
	MaxContinuations int
}

// DefaultPolicy returns one retry, a 0.5s–3s backoff window and up to three
// continuations.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:       1,
		BackoffMin:       500 * time.Millisecond,
		BackoffMax:       3 * time.Second,
		DefaultBackoff:   time.Second,
		AutoContinue:     true,
		MaxContinuations: 3,
	}
}

// ClampBackoff turns a provider retry hint into a sleep inside
// [BackoffMin, BackoffMax]. A zero hint uses DefaultBackoff.
func ClampBackoff(p Policy, hint time.Duration) time.Duration {
	d := hint
	if d <= 0 {
		d = p.DefaultBackoff
	}
	if d < p.BackoffMin {
		d = p.BackoffMin
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		d = p.BackoffMax
	}
	return d
}

// ShouldRetry returns whether another attempt fits the budget, given the
// number of retries already spent.
func ShouldRetry(p Policy, retries int) bool {
	return retries < p.MaxRetries
}

// truncationReasons are finish reasons meaning the reply hit a length cap.
var truncationReasons = map[string]bool{
	"length":            true,
	"max_tokens":        true,
	"max_output_tokens": true,
}

// IsTruncated reports whether finishReason marks a length cutoff.
func IsTruncated(finishReason string) bool {
	return truncationReasons[strings.ToLower(strings.TrimSpace(finishReason))]
}

const sentenceTerminals = "。！？.!?」』”\"…"

// EndsNaturally reports whether chunk already ends on a sentence terminal.
func EndsNaturally(chunk string) bool {
	trimmed := strings.TrimRight(chunk, " \t\r\n")
	if trimmed == "" {
		return false
	}
	r := []rune(trimmed)
	return strings.ContainsRune(sentenceTerminals, r[len(r)-1])
}

// ShouldContinue decides whether a truncated chunk earns another call.
// used is the number of continuations already issued this turn.
func ShouldContinue(p Policy, used int, finishReason, chunk string) bool {
	if !p.AutoContinue || used >= p.MaxContinuations {
		return false
	}
	return IsTruncated(finishReason) && !EndsNaturally(chunk)
}

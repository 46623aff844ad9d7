// Package transcript owns the conversation log: the system preamble, the
// retained length bound, display truncation and the import/export format.
package transcript

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/persona"
)

const (
	DefaultMaxLog       = 500
	DefaultDisplayLimit = 20000

	truncatedSuffix = " …[truncated]"
)

var (
	// ErrEmptyInput is returned when a user submission is blank after trimming.
	ErrEmptyInput = errors.New("transcript: empty user input")
	// ErrInvalidRecord is returned when an imported record lacks role or content.
	ErrInvalidRecord = errors.New("transcript: invalid record")
)

// Mode selects how Import combines records with the current transcript.
type Mode string

const (
	ModeReplace Mode = "replace"
	ModeAppend  Mode = "append"
)

// ParseMode maps a user-supplied mode name to a Mode. Empty means replace.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeReplace):
		return ModeReplace, nil
	case string(ModeAppend):
		return ModeAppend, nil
	}
	return "", errors.Newf("transcript: unknown import mode %q", s)
}

// Store is the ordered message log. messages[0] is always the system message.
type Store struct {
	mu           sync.Mutex
	persona      persona.Persona
	maxLog       int
	displayLimit int
	messages     []ctxpkg.Message
}

// NewStore creates a store seeded with the persona's system prompt.
// Non-positive limits fall back to the defaults; maxLog is at least 2 so a
// user turn always survives eviction.
func NewStore(p persona.Persona, maxLog, displayLimit int) *Store {
	if maxLog <= 0 {
		maxLog = DefaultMaxLog
	}
	if maxLog < 2 {
		maxLog = 2
	}
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	s := &Store{persona: p, maxLog: maxLog, displayLimit: displayLimit}
	s.messages = []ctxpkg.Message{s.systemMessage()}
	return s
}

func (s *Store) systemMessage() ctxpkg.Message {
	return ctxpkg.Message{Role: ctxpkg.RoleSystem, Content: s.persona.SystemPrompt}
}

// AppendUser appends a user turn. Blank text is rejected with ErrEmptyInput.
func (s *Store) AppendUser(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(ctxpkg.Message{Role: ctxpkg.RoleUser, Content: text})
	return nil
}

// AppendAssistant appends an assistant turn unconditionally.
func (s *Store) AppendAssistant(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(ctxpkg.Message{Role: ctxpkg.RoleAssistant, Content: text})
}

func (s *Store) appendLocked(m ctxpkg.Message) {
	s.messages = append(s.messages, m)
	if len(s.messages) <= s.maxLog {
		return
	}
	// The window after the leading system message holds non-system turns only.
	keep := make([]ctxpkg.Message, 0, len(s.messages)-1)
	for _, m := range s.messages[1:] {
		if m.Role != ctxpkg.RoleSystem {
			keep = append(keep, m)
		}
	}
	if n := s.maxLog - 1; len(keep) > n {
		keep = keep[len(keep)-n:]
	}
	next := make([]ctxpkg.Message, 0, len(keep)+1)
	next = append(next, s.messages[0])
	next = append(next, keep...)
	s.messages = next
}

// Reset replaces the transcript with the persona's system message.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []ctxpkg.Message{s.systemMessage()}
}

// Import validates records and merges them into the transcript. Nothing is
// changed when any record is invalid.
func (s *Store) Import(records []Record, mode Mode) error {
	imported := make([]ctxpkg.Message, 0, len(records)+1)
	for i, r := range records {
		m, err := r.message()
		if err != nil {
			return errors.Wrapf(err, "record %d", i)
		}
		imported = append(imported, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch mode {
	case ModeReplace, "":
		if len(imported) == 0 || imported[0].Role != ctxpkg.RoleSystem {
			imported = append([]ctxpkg.Message{s.systemMessage()}, imported...)
		}
		s.messages = imported
	case ModeAppend:
		tail := imported
		if len(tail) > 0 && tail[0].Role == ctxpkg.RoleSystem {
			tail = tail[1:]
		}
		next := make([]ctxpkg.Message, 0, len(s.messages)+len(tail))
		next = append(next, s.messages...)
		next = append(next, tail...)
		s.messages = next
	default:
		return errors.Newf("transcript: unknown import mode %q", mode)
	}
	return nil
}

// Export returns a copy of the full transcript with no display truncation.
func (s *Store) Export() []ctxpkg.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ctxpkg.Clone(s.messages)
}

// Len returns the transcript length including the system message.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Persona returns the persona the store was seeded with.
func (s *Store) Persona() persona.Persona {
	return s.persona
}

// Dialog returns the user and assistant messages prepared for display:
// content is trimmed and cut at the display limit.
func (s *Store) Dialog() []ctxpkg.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ctxpkg.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Role != ctxpkg.RoleUser && m.Role != ctxpkg.RoleAssistant {
			continue
		}
		out = append(out, ctxpkg.Message{Role: m.Role, Content: s.display(m.Content)})
	}
	return out
}

// Recent returns the last n dialog messages.
func (s *Store) Recent(n int) []ctxpkg.Message {
	dialog := s.Dialog()
	if n <= 0 {
		return nil
	}
	if len(dialog) > n {
		dialog = dialog[len(dialog)-n:]
	}
	return dialog
}

func (s *Store) display(content string) string {
	raw := strings.TrimSpace(content)
	runes := []rune(raw)
	if len(runes) <= s.displayLimit {
		return raw
	}
	return string(runes[:s.displayLimit]) + truncatedSuffix
}

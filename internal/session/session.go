// Package session holds the state of the single chat session: the
// transcript, the turn controller, sampling parameters, the busy gate and
// the metadata of the last completion.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/continuation"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
	"github.com/stupiduntilnot/lyra/internal/persona"
	"github.com/stupiduntilnot/lyra/internal/transcript"
)

// ErrBusy is returned while a turn is in flight.
var ErrBusy = errors.New("session: a reply is still being generated")

// ErrEmptyInput is returned for blank submissions. Nothing is recorded.
var ErrEmptyInput = transcript.ErrEmptyInput

// Journal event types.
const (
	EventTurnCompleted = "turn.completed"
	EventTurnFailed    = "turn.failed"
	EventReset         = "session.reset"
	EventImported      = "session.imported"
)

// Journal persists transcript snapshots and turn events. Failures are
// logged and never fail a turn.
type Journal interface {
	SaveTranscript(ctx context.Context, sessionID string, messages []ctxpkg.Message) error
	LogEvent(ctx context.Context, sessionID, eventType string, payload map[string]any) error
}

// Runner produces the assistant reply for one turn.
type Runner interface {
	Run(ctx context.Context, transcript []ctxpkg.Message, p continuation.Params) (string, modelpkg.CallMeta)
}

type Options struct {
	ID      string
	Params  continuation.Params
	Journal Journal
}

type Session struct {
	id      string
	store   *transcript.Store
	runner  Runner
	journal Journal

	mu       sync.Mutex
	params   continuation.Params
	busy     bool
	lastMeta *modelpkg.CallMeta
}

func New(store *transcript.Store, runner Runner, opts Options) *Session {
	return &Session{
		id:      opts.ID,
		store:   store,
		runner:  runner,
		journal: opts.Journal,
		params:  opts.Params,
	}
}

// ID returns the session identifier used by the journal.
func (s *Session) ID() string {
	return s.id
}

// Submit records text as a user turn, generates the reply and records it
// as exactly one assistant turn. The reply is returned.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.busy = true
	params := s.params
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if err := s.store.AppendUser(text); err != nil {
		return "", err
	}
	reply, meta := s.runner.Run(ctx, s.store.Export(), params)
	s.store.AppendAssistant(reply)

	s.mu.Lock()
	s.lastMeta = &meta
	s.mu.Unlock()

	event := EventTurnCompleted
	if meta.Failed() {
		event = EventTurnFailed
	}
	slog.InfoContext(ctx, "turn finished",
		"session_id", s.id,
		"route", meta.Route,
		"error_kind", meta.ErrorKind,
		"continuations", meta.Continuations,
		"context_limit", meta.ContextLimit,
		"latency_ms", meta.LatencyMs)
	s.persist(ctx, event, meta.Payload())
	return reply, nil
}

// Reset empties the transcript back to the system message.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.acquireIdle(); err != nil {
		return err
	}
	defer s.release()
	s.store.Reset()
	s.clearMeta()
	s.persist(ctx, EventReset, nil)
	return nil
}

// Import merges records into the transcript. An invalid record leaves the
// transcript unchanged.
func (s *Session) Import(ctx context.Context, records []transcript.Record, mode transcript.Mode) error {
	if err := s.acquireIdle(); err != nil {
		return err
	}
	defer s.release()
	if err := s.store.Import(records, mode); err != nil {
		return err
	}
	s.clearMeta()
	s.persist(ctx, EventImported, map[string]any{
		"mode":    string(mode),
		"records": len(records),
	})
	return nil
}

// Restore replaces the transcript with a journaled snapshot without
// writing a new one.
func (s *Session) Restore(messages []ctxpkg.Message) error {
	return s.store.Import(transcript.Records(messages), transcript.ModeReplace)
}

func (s *Session) Export() []ctxpkg.Message {
	return s.store.Export()
}

// Dialog returns the display view of the transcript.
func (s *Session) Dialog() []ctxpkg.Message {
	return s.store.Dialog()
}

func (s *Session) Recent(n int) []ctxpkg.Message {
	return s.store.Recent(n)
}

// LastMeta returns the metadata of the last completed turn, if any.
func (s *Session) LastMeta() (modelpkg.CallMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastMeta == nil {
		return modelpkg.CallMeta{}, false
	}
	return *s.lastMeta, true
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Session) Persona() persona.Persona {
	return s.store.Persona()
}

func (s *Session) acquireIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) clearMeta() {
	s.mu.Lock()
	s.lastMeta = nil
	s.mu.Unlock()
}

func (s *Session) persist(ctx context.Context, eventType string, payload map[string]any) {
	if s.journal == nil {
		return
	}
	if err := s.journal.SaveTranscript(ctx, s.id, s.store.Export()); err != nil {
		slog.ErrorContext(ctx, "save transcript failed", "session_id", s.id, "error", err)
	}
	if err := s.journal.LogEvent(ctx, s.id, eventType, payload); err != nil {
		slog.ErrorContext(ctx, "log event failed", "session_id", s.id, "event", eventType, "error", err)
	}
}

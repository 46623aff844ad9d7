package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/stupiduntilnot/lyra/internal/completion"
	"github.com/stupiduntilnot/lyra/internal/config"
	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/continuation"
	"github.com/stupiduntilnot/lyra/internal/control"
	"github.com/stupiduntilnot/lyra/internal/db"
	"github.com/stupiduntilnot/lyra/internal/dummy"
	"github.com/stupiduntilnot/lyra/internal/fallback"
	modelpkg "github.com/stupiduntilnot/lyra/internal/model"
	"github.com/stupiduntilnot/lyra/internal/openai"
	"github.com/stupiduntilnot/lyra/internal/openrouter"
	"github.com/stupiduntilnot/lyra/internal/persona"
	"github.com/stupiduntilnot/lyra/internal/session"
	"github.com/stupiduntilnot/lyra/internal/transcript"
)

type app struct {
	cfg     config.Config
	db      *sql.DB
	journal *db.Journal
	router  *fallback.Router
	session *session.Session
}

func newApp(ctx context.Context, cfg config.Config, fresh bool) (*app, error) {
	pers := persona.Default()
	if cfg.PersonaFile != "" {
		p, err := persona.Load(cfg.PersonaFile)
		if err != nil {
			return nil, err
		}
		pers = p
	}

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to init schema")
	}
	journal, err := db.NewJournal(database, pers.Name)
	if err != nil {
		database.Close()
		return nil, err
	}
	if _, err := db.LogEvent(ctx, database, "", db.EventProcessStarted, map[string]any{
		"pid":      os.Getpid(),
		"provider": cfg.ModelProvider,
	}); err != nil {
		slog.WarnContext(ctx, "failed to log process.started", "error", err)
	}

	router, err := newRouter(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}
	policy := newPolicy(cfg)
	ctrl := continuation.NewController(router, ctxpkg.NewSliceBuilder(cfg.ContextCeiling, cfg.ContextFloor), policy, pers.Name)
	store := transcript.NewStore(pers, cfg.MaxLog, cfg.DisplayLimit)

	id, snapshot, err := resume(ctx, journal, fresh)
	if err != nil {
		database.Close()
		return nil, err
	}
	sess := session.New(store, ctrl, session.Options{
		ID:      id,
		Params:  continuation.Params{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		Journal: journal,
	})
	if snapshot != nil {
		if err := sess.Restore(snapshot); err != nil {
			slog.WarnContext(ctx, "stored transcript unusable, starting fresh", "session_id", id, "error", err)
		} else {
			slog.InfoContext(ctx, "resumed session", "session_id", id, "messages", len(snapshot))
		}
	}

	return &app{cfg: cfg, db: database, journal: journal, router: router, session: sess}, nil
}

func (a *app) close() {
	a.db.Close()
}

// resume returns the latest journaled session, or a new id when fresh is
// set or nothing is stored.
func resume(ctx context.Context, journal *db.Journal, fresh bool) (string, []ctxpkg.Message, error) {
	if !fresh {
		id, err := journal.LatestSession(ctx)
		if err != nil {
			return "", nil, err
		}
		if id != "" {
			msgs, err := journal.LoadTranscript(ctx, id)
			if err == nil {
				return id, msgs, nil
			}
			if !errors.Is(err, db.ErrNoSession) {
				return "", nil, err
			}
		}
	}
	return journal.NewSessionID(), nil, nil
}

func newPolicy(cfg config.Config) control.Policy {
	p := control.DefaultPolicy()
	p.MaxRetries = cfg.MaxRetries
	p.BackoffMin = cfg.BackoffMin
	p.BackoffMax = cfg.BackoffMax
	p.AutoContinue = cfg.AutoContinue
	p.MaxContinuations = cfg.MaxContinuations
	return p
}

func newRouter(cfg config.Config) (*fallback.Router, error) {
	policy := newPolicy(cfg)
	primary, err := newModelProvider(cfg)
	if err != nil {
		return nil, err
	}
	routes := []fallback.Route{{
		Name:       modelpkg.RoutePrimary,
		Client:     completion.NewClient(primary, policy, nil),
		Breaker:    control.NewCircuitBreaker(5, 30*time.Second),
		Credential: "OPENAI_API_KEY",
	}}
	if cfg.ModelProvider != config.ProviderDummy && cfg.OpenRouter.Enabled() {
		secondary := openrouter.New(openrouter.Config{
			APIKey:  cfg.OpenRouter.APIKey,
			BaseURL: cfg.OpenRouter.BaseURL,
			Model:   cfg.OpenRouter.Model,
			Timeout: cfg.HTTPTimeout,
		})
		routes = append(routes, fallback.Route{
			Name:       modelpkg.RouteSecondary,
			Client:     completion.NewClient(secondary, policy, nil),
			Breaker:    control.NewCircuitBreaker(5, 30*time.Second),
			Credential: "OPENROUTER_API_KEY",
		})
	}
	return fallback.NewRouter(routes...), nil
}

func newModelProvider(cfg config.Config) (modelpkg.Provider, error) {
	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.URL, cfg.OpenAI.Model, cfg.HTTPTimeout), nil
	case config.ProviderDummy:
		return dummy.NewProvider(cfg.OpenAI.Model, cfg.DummyProviderScript)
	default:
		return nil, errors.Newf("unsupported model provider: %s", cfg.ModelProvider)
	}
}

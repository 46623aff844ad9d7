package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/db"
)

// runPing sends a tiny fixed request through the router to check that
// credentials and routes work.
func runPing(ctx context.Context, a *app, stdout io.Writer) error {
	messages := []ctxpkg.Message{
		{Role: ctxpkg.RoleSystem, Content: "ping"},
		{Role: ctxpkg.RoleUser, Content: "pong?"},
	}
	text, meta := a.router.Call(ctx, messages, 0, 16)

	if _, err := db.LogEvent(ctx, a.db, a.session.ID(), db.EventPing, meta.Payload()); err != nil {
		slog.WarnContext(ctx, "failed to log ping", "error", err)
	}
	if meta.Failed() {
		return errors.Newf("ping failed: route=%s kind=%s status=%d %s", meta.Route, meta.ErrorKind, meta.Status, meta.Error)
	}
	fmt.Fprintf(stdout, "routes=%s\n", strings.Join(a.router.Routes(), ","))
	fmt.Fprintf(stdout, "route=%s provider=%s model=%s latency_ms=%d\n", meta.Route, meta.Provider, meta.Model, meta.LatencyMs)
	fmt.Fprintf(stdout, "reply: %s\n", text)
	return nil
}

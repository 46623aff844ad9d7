package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/db"
)

func setupEnv(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lyra.db")
	t.Setenv("LYRA_ENV", "test")
	t.Setenv("LYRA_LOG_LEVEL", "error")
	t.Setenv("LYRA_MODEL_PROVIDER", "dummy")
	t.Setenv("LYRA_DUMMY_PROVIDER_SCRIPT", script)
	t.Setenv("LYRA_DB_PATH", dbPath)
	t.Setenv("LYRA_PERSONA_FILE", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	return dir
}

func runWith(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseArgs([]string{"export", "--new", "-o", "x.json"}, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	if opts.command != cmdExport || !opts.fresh || opts.out != "x.json" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = parseArgs([]string{"--temperature", "0.2"}, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	if opts.command != cmdChat || !opts.flags.Changed("temperature") || opts.flags.Changed("max-tokens") {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := parseArgs([]string{"dance"}, &stderr); err == nil {
		t.Fatal("expected unknown command error")
	}
	if _, err := parseArgs([]string{"chat", "extra"}, &stderr); err == nil {
		t.Fatal("expected unexpected argument error")
	}
}

func TestRun_FlagOverridesAreValidated(t *testing.T) {
	setupEnv(t, "ok")
	if _, err := runWith(t, "", "ping", "--temperature", "2.0"); err == nil || !strings.Contains(err.Error(), "LYRA_TEMPERATURE") {
		t.Fatalf("expected temperature validation error, got %v", err)
	}
}

func TestRun_FlagOverridesFixBadEnv(t *testing.T) {
	setupEnv(t, "msg:pong")
	t.Setenv("LYRA_TEMPERATURE", "2")
	if _, err := runWith(t, "", "ping"); err == nil || !strings.Contains(err.Error(), "LYRA_TEMPERATURE") {
		t.Fatalf("expected temperature validation error, got %v", err)
	}
	out, err := runWith(t, "", "ping", "--temperature", "0.5")
	if err != nil {
		t.Fatalf("flag should override the bad env value: %v", err)
	}
	if !strings.Contains(out, "reply: pong") {
		t.Fatalf("unexpected ping output: %q", out)
	}
}

func TestRun_ChatTurnIsJournaled(t *testing.T) {
	dir := setupEnv(t, "msg:雪がきれいですね。")
	out, err := runWith(t, "こんばんは\n\n/meta\n/quit\n", "chat")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "雪がきれいですね。") {
		t.Fatalf("reply missing from output: %q", out)
	}
	if !strings.Contains(out, "primary") {
		t.Fatalf("meta missing from output: %q", out)
	}

	database, err := db.OpenDB(filepath.Join(dir, "lyra.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	j, err := db.NewJournal(database, "")
	if err != nil {
		t.Fatal(err)
	}
	id, err := j.LatestSession(context.Background())
	if err != nil || id == "" {
		t.Fatalf("expected a journaled session, got %q %v", id, err)
	}
	msgs, err := j.LoadTranscript(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected system+user+assistant, got %d", len(msgs))
	}
	events, err := db.ListEvents(context.Background(), database, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != "turn.completed" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRun_ResumeAndExport(t *testing.T) {
	dir := setupEnv(t, "msg:はい。")
	if _, err := runWith(t, "one\ntwo\n/quit\n", "chat"); err != nil {
		t.Fatal(err)
	}

	out, err := runWith(t, "", "export")
	if err != nil {
		t.Fatal(err)
	}
	var exported []ctxpkg.Message
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("export is not a JSON array: %v\n%s", err, out)
	}
	if len(exported) != 5 || exported[0].Role != ctxpkg.RoleSystem || exported[1].Content != "one" {
		t.Fatalf("unexpected export: %+v", exported)
	}

	freshOut := filepath.Join(dir, "fresh.json")
	if _, err := runWith(t, "", "export", "--new", "--out", freshOut); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(freshOut)
	if err != nil {
		t.Fatal(err)
	}
	var fresh []ctxpkg.Message
	if err := json.Unmarshal(data, &fresh); err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 {
		t.Fatalf("a new session holds only the system message, got %d", len(fresh))
	}
}

func TestRun_ChatSaveLoadReset(t *testing.T) {
	dir := setupEnv(t, "msg:ok.")
	saved := filepath.Join(dir, "saved.json")
	script := strings.Join([]string{
		"hello",
		"/save " + saved,
		"/reset",
		"n",
		"/reset",
		"y",
		"/load " + saved + " append",
		"y",
		"/recent",
		"/quit",
	}, "\n") + "\n"
	out, err := runWith(t, script, "chat", "--new")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"saved 3 messages", "reset cancelled", "conversation cleared", "contains 3 records", "now holds 3 messages"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRun_ChatUnknownCommand(t *testing.T) {
	setupEnv(t, "ok")
	out, err := runWith(t, "/dance\n/hint\n", "chat", "--new")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "unknown command /dance") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRun_Ping(t *testing.T) {
	setupEnv(t, "msg:pong")
	out, err := runWith(t, "", "ping")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "routes=primary\n") || !strings.Contains(out, "route=primary") || !strings.Contains(out, "reply: pong") {
		t.Fatalf("unexpected ping output: %q", out)
	}
}

func TestRun_PingFailure(t *testing.T) {
	setupEnv(t, "status:401")
	if _, err := runWith(t, "", "ping"); err == nil || !strings.Contains(err.Error(), "auth") {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

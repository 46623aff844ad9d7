package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	ctxpkg "github.com/stupiduntilnot/lyra/internal/context"
	"github.com/stupiduntilnot/lyra/internal/render"
	"github.com/stupiduntilnot/lyra/internal/session"
	"github.com/stupiduntilnot/lyra/internal/transcript"
)

const (
	recentCount  = 10
	previewCount = 5
)

const chatHelp = `Commands:
  /recent                        show the last 10 messages
  /meta                          show details of the last completion
  /hint                          show a starter line
  /save <file>                   write the transcript to a file
  /load <file> [replace|append]  import a transcript file
  /reset                         clear the conversation
  /quit                          exit
`

type repl struct {
	app   *app
	in    *bufio.Scanner
	out   io.Writer
	width int
	name  string
}

func runChat(ctx context.Context, a *app, stdin io.Reader, stdout io.Writer) error {
	in := bufio.NewScanner(stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	r := &repl{
		app:   a,
		in:    in,
		out:   stdout,
		width: a.cfg.WrapWidth,
		name:  a.session.Persona().Name,
	}

	fmt.Fprintf(r.out, "lyra: chatting with %s (session %s). Type /help for commands.\n", r.name, a.session.ID())
	if dialog := a.session.Dialog(); len(dialog) > 0 {
		fmt.Fprintln(r.out, render.Dialog(a.session.Recent(recentCount), r.name, r.width))
	}

	for {
		line, ok := r.prompt("> ")
		if !ok {
			return in.Err()
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		reply, err := a.session.Submit(ctx, line)
		switch {
		case errors.Is(err, session.ErrEmptyInput):
			continue
		case err != nil:
			fmt.Fprintf(r.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(r.out, render.Turn(ctxpkg.Message{Role: ctxpkg.RoleAssistant, Content: reply}, r.name, r.width))
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) prompt(p string) (string, bool) {
	fmt.Fprint(r.out, p)
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimRight(r.in.Text(), "\r"), true
}

func (r *repl) confirm(question string) bool {
	answer, ok := r.prompt(question + " [y/N] ")
	if !ok {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	sess := r.app.session
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprint(r.out, chatHelp)
	case "/recent":
		recent := sess.Recent(recentCount)
		if len(recent) == 0 {
			fmt.Fprintln(r.out, "(no messages yet)")
			return false, nil
		}
		fmt.Fprintln(r.out, render.Dialog(recent, r.name, r.width))
	case "/meta":
		meta, ok := sess.LastMeta()
		if !ok {
			fmt.Fprintln(r.out, "(no completion yet)")
			return false, nil
		}
		fmt.Fprint(r.out, render.Meta(meta))
	case "/hint":
		fmt.Fprintln(r.out, sess.Persona().StarterHint)
	case "/reset":
		if !r.confirm("Clear the whole conversation?") {
			fmt.Fprintln(r.out, "reset cancelled")
			return false, nil
		}
		if err := sess.Reset(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "conversation cleared")
	case "/save":
		if len(fields) < 2 {
			return false, errors.New("usage: /save <file>")
		}
		if err := saveTranscript(fields[1], sess.Export()); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "saved %d messages to %s\n", len(sess.Export()), fields[1])
	case "/load":
		return false, r.load(ctx, fields[1:])
	default:
		return false, errors.Newf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

func (r *repl) load(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: /load <file> [replace|append]")
	}
	modeArg := ""
	if len(args) == 2 {
		modeArg = args[1]
	}
	mode, err := transcript.ParseMode(modeArg)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "read %s", args[0])
	}
	records, err := transcript.Decode(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "%s contains %d records:\n", args[0], len(records))
	fmt.Fprint(r.out, render.Preview(previewMessages(records), previewCount, r.width))
	if !r.confirm(fmt.Sprintf("Import with mode %s?", mode)) {
		fmt.Fprintln(r.out, "import cancelled")
		return nil
	}
	if err := r.app.session.Import(ctx, records, mode); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "imported; transcript now holds %d messages\n", len(r.app.session.Export()))
	return nil
}

// previewMessages shows records as they were read; missing fields render
// empty and are rejected later by Import.
func previewMessages(records []transcript.Record) []ctxpkg.Message {
	out := make([]ctxpkg.Message, 0, len(records))
	for _, rec := range records {
		var m ctxpkg.Message
		if rec.Role != nil {
			m.Role = *rec.Role
		}
		if rec.Content != nil {
			m.Content = *rec.Content
		}
		out = append(out, m)
	}
	return out
}

func saveTranscript(path string, messages []ctxpkg.Message) error {
	data, err := transcript.Encode(messages)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}

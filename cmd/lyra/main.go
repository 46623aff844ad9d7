package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/stupiduntilnot/lyra/internal/config"
	"github.com/stupiduntilnot/lyra/internal/logger"
)

const (
	cmdChat   = "chat"
	cmdServe  = "serve"
	cmdPing   = "ping"
	cmdExport = "export"
)

type options struct {
	command string
	fresh   bool
	out     string

	flags *pflag.FlagSet

	temperature      float64
	maxTokens        int
	autoContinue     bool
	maxContinuations int
	wrapWidth        int
	listenAddr       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "lyra: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Read()
	if err != nil {
		return err
	}
	if err := opts.apply(&cfg); err != nil {
		return err
	}
	logger.Setup(cfg.Env, cfg.LogLevel)

	a, err := newApp(ctx, cfg, opts.fresh)
	if err != nil {
		return err
	}
	defer a.close()

	switch opts.command {
	case cmdChat:
		return runChat(ctx, a, stdin, stdout)
	case cmdServe:
		return runServe(ctx, a)
	case cmdPing:
		return runPing(ctx, a, stdout)
	case cmdExport:
		return runExport(a, opts.out, stdout)
	}
	return errors.Newf("unknown command %q", opts.command)
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{command: cmdChat}
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		opts.command = args[0]
		args = args[1:]
	}
	switch opts.command {
	case cmdChat, cmdServe, cmdPing, cmdExport:
	default:
		return nil, errors.Newf("unknown command %q (want chat, serve, ping or export)", opts.command)
	}

	fs := pflag.NewFlagSet("lyra "+opts.command, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.fresh, "new", false, "start a new session instead of resuming the latest one")
	fs.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature (0.0-1.5)")
	fs.IntVar(&opts.maxTokens, "max-tokens", 0, "max tokens per completion (64-4096)")
	fs.BoolVar(&opts.autoContinue, "auto-continue", true, "request continuations for truncated replies")
	fs.IntVar(&opts.maxContinuations, "max-continuations", 0, "continuation budget per turn (1-6)")
	fs.IntVar(&opts.wrapWidth, "wrap", 0, "dialog wrap width (20-100)")
	fs.StringVar(&opts.listenAddr, "listen", "", "listen address for serve")
	fs.StringVarP(&opts.out, "out", "o", "", "export destination file (default stdout)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lyra [chat|serve|ping|export] [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Newf("unexpected argument: %s", fs.Arg(0))
	}
	opts.flags = fs
	return opts, nil
}

// apply copies explicitly set flags over cfg and validates the result.
func (o *options) apply(cfg *config.Config) error {
	if o.flags == nil {
		return cfg.Validate()
	}
	if o.flags.Changed("temperature") {
		cfg.Temperature = o.temperature
	}
	if o.flags.Changed("max-tokens") {
		cfg.MaxTokens = o.maxTokens
	}
	if o.flags.Changed("auto-continue") {
		cfg.AutoContinue = o.autoContinue
	}
	if o.flags.Changed("max-continuations") {
		cfg.MaxContinuations = o.maxContinuations
	}
	if o.flags.Changed("wrap") {
		cfg.WrapWidth = o.wrapWidth
	}
	if o.flags.Changed("listen") {
		cfg.ListenAddr = o.listenAddr
	}
	return cfg.Validate()
}

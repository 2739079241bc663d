package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/conorfennell/qbank/internal/bank"
	"github.com/conorfennell/qbank/internal/config"
	"github.com/conorfennell/qbank/internal/logging"
	"github.com/conorfennell/qbank/internal/sources"
	"github.com/conorfennell/qbank/internal/storage"
)

const usage = `Usage: qbank [global flags] <command> [flags] [args]

Commands:
  list [--search TERM] [--sort none|asc|desc] [--answers]
  add --question TEXT [--answer TEXT] [--hidden]
  edit <id> [--question TEXT] [--answer TEXT] [--show-in-review=BOOL]
  delete <id>
  clear --yes
  toggle-review
  import <file> [--format json|yaml|markdown]
  export [--format json|yaml|markdown] [--out FILE]
  review
  source add <path|git-url> | source list | source remove <id>
  sync
  serve

Global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	db     *storage.DB
	bank   *bank.Service
	syncer *sources.Syncer
	in     *bufio.Scanner
	out    io.Writer
	errOut io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := config.NewFlagSet("qbank")
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(fs)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	_, logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	db, err := storage.Open(cfg.DB)
	if err != nil {
		printError(stderr, fmt.Errorf("failed to open database: %w", err))
		return 1
	}
	defer db.Close()

	a := &app{
		cfg:    cfg,
		db:     db,
		bank:   bank.NewService(db),
		syncer: sources.NewSyncer(db, cfg.ReposDir, stderr),
		in:     bufio.NewScanner(stdin),
		out:    stdout,
		errOut: stderr,
	}
	if err := a.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		printError(stderr, err)
		return 1
	}
	return 0
}

func (a *app) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "list":
		return a.list(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "edit":
		return a.edit(ctx, args)
	case "delete":
		return a.delete(ctx, args)
	case "clear":
		return a.clear(ctx, args)
	case "toggle-review":
		return a.toggleReview(ctx, args)
	case "import":
		return a.importFile(ctx, args)
	case "export":
		return a.export(ctx, args)
	case "review":
		return a.review(ctx, args)
	case "source":
		return a.source(ctx, args)
	case "sync":
		return a.sync(ctx, args)
	case "serve":
		return a.serve(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, run 'qbank --help' for usage", name)
	}
}

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func printError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintf(w, "Error: %v\n", err)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/listing"
	"github.com/conorfennell/qbank/internal/review"
	"github.com/conorfennell/qbank/internal/transfer"
	"github.com/conorfennell/qbank/internal/web"
)

// Preference names. Choices made with a flag are remembered for later runs.
const (
	prefSort         = "list.sort"
	prefShowAnswers  = "list.show_answers"
	prefExportFormat = "export.format"
)

// preference returns the stored value of name, or fallback when unset.
func (a *app) preference(ctx context.Context, name, fallback string) (string, error) {
	v, ok, err := a.db.Preference(ctx, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return v, nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	search := fs.String("search", "", "only show questions containing this text")
	sortFlag := fs.String("sort", "", "order by question: none, asc or desc")
	answers := fs.Bool("answers", false, "show answers")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sortName, err := a.preference(ctx, prefSort, a.cfg.List.Sort)
	if err != nil {
		return err
	}
	if fs.Changed("sort") {
		sortName = *sortFlag
	}
	order, err := listing.ParseSortOrder(sortName)
	if err != nil {
		return err
	}

	showAnswers := a.cfg.List.ShowAnswers
	stored, err := a.preference(ctx, prefShowAnswers, strconv.FormatBool(showAnswers))
	if err != nil {
		return err
	}
	showAnswers, _ = strconv.ParseBool(stored)
	if fs.Changed("answers") {
		showAnswers = *answers
	}

	if fs.Changed("sort") {
		if err := a.db.SetPreference(ctx, prefSort, string(order)); err != nil {
			return err
		}
	}
	if fs.Changed("answers") {
		if err := a.db.SetPreference(ctx, prefShowAnswers, strconv.FormatBool(showAnswers)); err != nil {
			return err
		}
	}

	qs, err := a.bank.List(ctx, *search, order)
	if err != nil {
		return err
	}
	if len(qs) == 0 {
		if *search != "" {
			fmt.Fprintln(a.out, "No questions match your search.")
		} else {
			fmt.Fprintln(a.out, "No questions yet. Add one with 'qbank add'.")
		}
		return nil
	}

	idColor := color.New(color.FgHiBlack)
	hidden := color.New(color.FgYellow)
	for _, q := range qs {
		idColor.Fprintf(a.out, "%s  ", q.ID)
		if !q.ShowInReview {
			hidden.Fprint(a.out, "[hidden] ")
		}
		fmt.Fprintln(a.out, q.Question)
		if showAnswers && q.Answer != "" {
			for _, line := range strings.Split(q.Answer, "\n") {
				fmt.Fprintf(a.out, "    %s\n", line)
			}
		}
	}
	fmt.Fprintf(a.out, "%d question(s)\n", len(qs))
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := a.flagSet("add")
	question := fs.String("question", "", "question text")
	answer := fs.String("answer", "", "answer text")
	hidden := fs.Bool("hidden", false, "exclude the question from review")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := a.bank.Save(ctx, domain.Question{
		Question:     *question,
		Answer:       *answer,
		ShowInReview: !*hidden,
	})
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "Question added: %s\n", id)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := a.flagSet("edit")
	question := fs.String("question", "", "new question text")
	answer := fs.String("answer", "", "new answer text")
	show := fs.Bool("show-in-review", true, "include the question in review")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: qbank edit <id> [--question TEXT] [--answer TEXT] [--show-in-review=BOOL]")
	}
	id := fs.Arg(0)

	q, err := a.db.Get(ctx, id)
	if err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if fs.Changed("question") {
		q.Question = *question
	}
	if fs.Changed("answer") {
		q.Answer = *answer
	}
	if fs.Changed("show-in-review") {
		q.ShowInReview = *show
	}
	if _, err := a.bank.Save(ctx, *q); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "Question updated: %s\n", id)
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: qbank delete <id>")
	}
	id, err := a.bank.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Question deleted: %s\n", id)
	return nil
}

func (a *app) clear(ctx context.Context, args []string) error {
	fs := a.flagSet("clear")
	yes := fs.Bool("yes", false, "confirm deleting every question")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("this deletes every question; rerun with --yes to confirm")
	}
	if err := a.bank.ClearAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "All questions deleted.")
	return nil
}

func (a *app) toggleReview(ctx context.Context, _ []string) error {
	show, n, err := a.bank.ToggleAllReview(ctx)
	if err != nil {
		return fmt.Errorf("updated %d question(s) before failing: %w", n, err)
	}
	state := "hidden from"
	if show {
		state = "shown in"
	}
	fmt.Fprintf(a.out, "%d question(s) %s review.\n", n, state)
	return nil
}

func (a *app) importFile(ctx context.Context, args []string) error {
	fs := a.flagSet("import")
	formatName := fs.String("format", "", "file format: json, yaml or markdown (default from the file extension)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: qbank import <file> [--format FORMAT]")
	}
	path := fs.Arg(0)

	var format transfer.Format
	var err error
	if *formatName != "" {
		format, err = transfer.ParseFormat(*formatName)
	} else {
		format, err = transfer.FormatFromFilename(path)
	}
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	n, err := a.bank.Import(ctx, f, format)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "Imported %d question(s).\n", n)
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := a.flagSet("export")
	formatName := fs.String("format", "", "output format: json, yaml or markdown")
	outPath := fs.String("out", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	name, err := a.preference(ctx, prefExportFormat, a.cfg.Export.Format)
	if err != nil {
		return err
	}
	if fs.Changed("format") {
		name = *formatName
	}
	format, err := transfer.ParseFormat(name)
	if err != nil {
		return err
	}
	if fs.Changed("format") {
		if err := a.db.SetPreference(ctx, prefExportFormat, string(format)); err != nil {
			return err
		}
	}

	var w io.Writer = a.out
	var f *os.File
	if *outPath != "" && *outPath != "-" {
		f, err = os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *outPath, err)
		}
		w = f
	}

	n, err := a.bank.Export(ctx, w, format)
	if f != nil {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to write %s: %w", *outPath, cerr)
		}
	}
	if err != nil {
		return err
	}
	if w != a.out {
		fmt.Fprintf(a.out, "Exported %d question(s) to %s.\n", n, *outPath)
	}
	return nil
}

func (a *app) source(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: qbank source add <path|git-url> | list | remove <id>")
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			return errors.New("usage: qbank source add <path|git-url>")
		}
		src, err := a.syncer.AddSource(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added %s source %d: %s\n", src.Type, src.ID, src.Path)
		return nil
	case "list":
		list, err := a.syncer.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(a.out, "No sources configured.")
			return nil
		}
		for _, src := range list {
			scanned := "never"
			if src.LastScanned.Valid {
				scanned = src.LastScanned.Time.Local().Format(time.DateTime)
			}
			fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\n", src.ID, src.Type, src.Path, scanned)
		}
		return nil
	case "remove":
		if len(args) != 2 {
			return errors.New("usage: qbank source remove <id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source id %q", args[1])
		}
		if err := a.syncer.RemoveSource(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed source %d.\n", id)
		return nil
	default:
		return fmt.Errorf("unknown source command %q", args[0])
	}
}

func (a *app) sync(ctx context.Context, _ []string) error {
	report, err := a.syncer.Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Synced %d source(s): %d added, %d already known, %d error(s).\n",
		report.Sources, report.Added, report.Skipped, report.Errors)
	return nil
}

func (a *app) serve(ctx context.Context, _ []string) error {
	format, err := transfer.ParseFormat(a.cfg.Export.Format)
	if err != nil {
		return err
	}
	session, err := review.NewSession(ctx, a.db, a.db)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           web.NewServer(a.bank, session, a.syncer, web.WithExportFormat(format)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(a.out, "Listening on http://%s\n", a.cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/review"
)

const reviewHelp = "[enter/n] next  [p] prev  [a] answer  [r] random  [h] hide  [e] edit  [x] reset  [q] quit"

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	answerColor  = color.New(color.FgGreen)
	statusColor  = color.New(color.FgYellow)
	noticeColor  = color.New(color.FgMagenta)
	keyHelpColor = color.New(color.FgHiBlack)
)

// review runs an interactive session on the terminal. Commands are read one
// per line so the loop also works with piped input.
func (a *app) review(ctx context.Context, _ []string) error {
	session, err := review.NewSession(ctx, a.db, a.db)
	if err != nil {
		return err
	}
	if err := session.Load(ctx, nil); err != nil {
		return err
	}

	a.render(session)
	for {
		fmt.Fprint(a.out, "> ")
		if !a.in.Scan() {
			fmt.Fprintln(a.out)
			return a.in.Err()
		}
		cmd := strings.TrimSpace(a.in.Text())
		if cmd == "q" {
			return nil
		}

		var err error
		switch cmd {
		case "", "n":
			err = session.Advance(ctx)
		case "p":
			err = session.Retreat(ctx)
		case "a", "space":
			session.ToggleReveal()
		case "r":
			err = session.ToggleRandomOrder(ctx)
			if err == nil {
				state := "off"
				if session.Persisted().RandomOrder {
					state = "on"
				}
				noticeColor.Fprintf(a.out, "Random order %s.\n", state)
			}
		case "h":
			err = session.HideCurrent(ctx)
			if err == nil {
				noticeColor.Fprintln(a.out, "Question hidden from review.")
			}
		case "e":
			err = a.editCurrent(ctx, session)
		case "x":
			err = session.Restart(ctx)
		default:
			keyHelpColor.Fprintln(a.out, reviewHelp)
			continue
		}
		if err != nil {
			if !errors.Is(err, domain.ErrNoQuestions) {
				return err
			}
			noticeColor.Fprintln(a.out, "No questions to review.")
		}
		a.render(session)
	}
}

// editCurrent prompts for a new question and answer. An empty line keeps the
// current text.
func (a *app) editCurrent(ctx context.Context, session *review.Session) error {
	if err := session.BeginEdit(); err != nil {
		return err
	}
	draft := *session.Transient().Draft

	draft.Question = a.prompt("Question", draft.Question)
	draft.Answer = a.prompt("Answer", draft.Answer)
	if err := session.SetDraft(draft); err != nil {
		session.CancelEdit()
		return err
	}
	if err := session.SaveEdit(ctx); err != nil {
		session.CancelEdit()
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			noticeColor.Fprintf(a.out, "Not saved: %v\n", verr)
			return nil
		}
		return err
	}
	noticeColor.Fprintln(a.out, "Question saved.")
	return nil
}

func (a *app) prompt(label, current string) string {
	fmt.Fprintf(a.out, "%s [%s]: ", label, current)
	if !a.in.Scan() {
		return current
	}
	if line := a.in.Text(); strings.TrimSpace(line) != "" {
		return line
	}
	return current
}

func (a *app) render(session *review.Session) {
	v := session.View()
	switch v.Status {
	case review.StatusEmpty:
		statusColor.Fprintln(a.out, "There are no questions marked for review.")
		return
	case review.StatusComplete:
		statusColor.Fprintf(a.out, "Review complete: %d question(s). Press x to start again or q to quit.\n", v.Total)
		return
	}

	statusColor.Fprintf(a.out, "\nQuestion %d of %d", v.Position+1, v.Total)
	if v.RandomOrder {
		statusColor.Fprint(a.out, " (random)")
	}
	fmt.Fprintln(a.out)
	headingColor.Fprintln(a.out, v.Current.Question)
	if v.Revealed {
		answerColor.Fprintln(a.out, v.Current.Answer)
	}
	keyHelpColor.Fprintln(a.out, reviewHelp)
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/humanity"
	"github.com/aretw0/twin3/pkg/session"
)

const helpText = "Commands: /new, /verify <method>, /score, /help, /quit. A number picks a suggestion."

// Runner handles the chat loop of one conversation using the provided IO.
// This allows for easy testing and integration with different frontends.
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// SessionID names the conversation to resume. Empty creates a new one.
	SessionID string

	// Renderer is applied to message text by the default TextHandler.
	Renderer ContentRenderer

	sessions *session.Manager

	generation  uint64
	printed     int
	suggestions []domain.Suggestion
}

// NewRunner creates a Runner for the given session manager.
func NewRunner(sessions *session.Manager, opts ...Option) *Runner {
	r := &Runner{
		sessions: sessions,
		Logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts or resumes the session and loops until the input ends,
// the user quits or ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	handler := r.resolveHandler()

	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.flush(ctx, handler); err != nil {
		return err
	}

	for {
		line, err := handler.Input(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				r.Logger.Debug("Runner input: stopped", "session_id", r.SessionID, "err", err)
				return nil
			}
			if errors.Is(err, ErrInputTooLarge) || errors.Is(err, ErrInvalidUTF8) {
				if err := r.report(ctx, handler, err); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("input error: %w", err)
		}

		quit, err := r.handle(ctx, handler, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		if err := r.flush(ctx, handler); err != nil {
			return err
		}
	}
}

func (r *Runner) open(ctx context.Context) error {
	var (
		conv *domain.Conversation
		err  error
	)
	if r.SessionID == "" {
		conv, err = r.sessions.Create(ctx)
	} else {
		conv, err = r.sessions.Start(ctx, r.SessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	r.SessionID = conv.SessionID
	r.generation = conv.Generation
	r.Logger.Debug("session opened", "session_id", r.SessionID, "messages", len(conv.Messages))
	return nil
}

// flush prints the part of the log not shown yet. A reset restarts from the top.
func (r *Runner) flush(ctx context.Context, handler IOHandler) error {
	conv, err := r.sessions.Get(ctx, r.SessionID)
	if err != nil {
		return err
	}
	if conv.Generation != r.generation || r.printed > len(conv.Messages) {
		r.generation = conv.Generation
		r.printed = 0
	}
	fresh := conv.Messages[r.printed:]
	r.printed = len(conv.Messages)
	r.suggestions = conv.Suggestions
	return handler.Output(ctx, fresh, conv.Suggestions)
}

// handle dispatches one input line. It reports whether the loop should end.
func (r *Runner) handle(ctx context.Context, handler IOHandler, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "exit", "quit":
		return true, nil
	case "/help":
		return false, handler.SystemOutput(ctx, helpText)
	case "/new":
		_, err := r.sessions.Reset(ctx, r.SessionID)
		return false, r.report(ctx, handler, err)
	case "/score":
		report, err := r.sessions.Score(ctx, r.SessionID)
		if err != nil {
			return false, r.report(ctx, handler, err)
		}
		return false, handler.SystemOutput(ctx, FormatReport(report))
	case "/verify":
		if len(fields) < 2 {
			return false, handler.SystemOutput(ctx, "Usage: /verify <method>. Methods: "+r.methodIDs())
		}
		report, err := r.sessions.CompleteMethod(ctx, r.SessionID, fields[1])
		if err != nil {
			return false, r.report(ctx, handler, err)
		}
		return false, handler.SystemOutput(ctx, fmt.Sprintf("Humanity Index: %d/%d", report.Score, humanity.MaxScore))
	}

	action := domain.Say(line)
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(r.suggestions) {
		action = r.sessions.Engine().Inventory().ActionFor(r.suggestions[n-1])
	}
	_, err := r.sessions.Send(ctx, r.SessionID, action)
	return false, r.report(ctx, handler, err)
}

// report shows recoverable errors to the user and returns the rest.
func (r *Runner) report(ctx context.Context, handler IOHandler, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrBusy):
		return handler.SystemOutput(ctx, "Still replying, please wait.")
	case errors.Is(err, session.ErrSuperseded):
		return nil
	case errors.Is(err, session.ErrUnknownMethod):
		return handler.SystemOutput(ctx, fmt.Sprintf("%v. Methods: %s", err, r.methodIDs()))
	case errors.Is(err, ErrInputTooLarge), errors.Is(err, ErrInvalidUTF8):
		return handler.SystemOutput(ctx, err.Error())
	}
	return err
}

func (r *Runner) methodIDs() string {
	methods := r.sessions.Methods()
	ids := make([]string, len(methods))
	for i, m := range methods {
		ids[i] = m.ID
	}
	return strings.Join(ids, ", ")
}

// FormatReport renders a score breakdown as plain text.
func FormatReport(report humanity.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Humanity Index: %d/%d", report.Score, humanity.MaxScore)
	for _, c := range report.Methods {
		mark := " "
		if c.Completed {
			mark = "x"
		}
		fmt.Fprintf(&b, "\n  [%s] %-16s %3.0f%%", mark, c.Method.DisplayName, c.Method.Weight*100)
	}
	return b.String()
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout, WithTextHandlerRenderer(r.Renderer))
	}
	return r.Handler
}

// Package cli holds the command implementations shared by the twin3 binary.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/twin3"
	"github.com/aretw0/twin3/internal/presentation/tui"
	"github.com/aretw0/twin3/pkg/runner"
)

// ChatOptions contains the configuration for the chat command.
type ChatOptions struct {
	SessionID string
	JSON      bool
	Plain     bool
	Fresh     bool

	// Interactive enables the banner and markdown rendering.
	Interactive bool
	Width       int
}

// RunChat runs the terminal chat loop until the input ends or ctx is canceled.
func RunChat(ctx context.Context, app *twin3.App, opts ChatOptions, in io.Reader, out io.Writer) error {
	if opts.Fresh && opts.SessionID != "" {
		if err := app.Sessions.Delete(ctx, opts.SessionID); err != nil {
			return fmt.Errorf("failed to reset session %q: %w", opts.SessionID, err)
		}
	}

	runnerOpts := []runner.Option{
		runner.WithLogger(app.Logger),
		runner.WithSessionID(opts.SessionID),
	}

	switch {
	case opts.JSON:
		runnerOpts = append(runnerOpts, runner.WithInputHandler(runner.NewJSONHandler(in, out)))
	default:
		var textOpts []runner.TextHandlerOption
		if opts.Interactive && !opts.Plain {
			render, err := tui.NewRenderer(opts.Width)
			if err != nil {
				app.Logger.Warn("markdown rendering disabled", "err", err)
			} else {
				textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
			}
		}
		if opts.Interactive {
			tui.PrintBanner(out, twin3.Version)
		} else {
			textOpts = append(textOpts, runner.WithPrompt(""))
		}
		runnerOpts = append(runnerOpts, runner.WithInputHandler(runner.NewTextHandler(in, out, textOpts...)))
	}

	r := runner.NewRunner(app.Sessions, runnerOpts...)
	if err := r.Run(ctx); err != nil {
		return err
	}
	app.Logger.Debug("chat ended", "session_id", r.SessionID)
	return nil
}

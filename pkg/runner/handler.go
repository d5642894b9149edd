package runner

import (
	"context"

	"github.com/aretw0/twin3/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (terminal) and JSON (structured) modes.
type IOHandler interface {
	// Output presents newly appended messages and the current suggestions.
	Output(ctx context.Context, msgs []domain.Message, suggestions []domain.Suggestion) error

	// Input reads one line from the user.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (score, errors, help),
	// distinct from conversation content.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for terminal rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

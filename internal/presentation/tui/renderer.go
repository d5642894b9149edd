package tui

import (
	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the column at which rendered markdown wraps.
const DefaultWordWrap = 80

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background unless opts override it.
func NewRenderer(width int, opts ...glamour.TermRendererOption) (func(string) (string, error), error) {
	if width <= 0 {
		width = DefaultWordWrap
	}
	all := append([]glamour.TermRendererOption{
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	}, opts...)
	r, err := glamour.NewTermRenderer(all...)
	if err != nil {
		return nil, err
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}, nil
}

package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/twin3/pkg/domain"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	// Prompt is printed before each read. Empty disables it.
	Prompt string

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithPrompt overrides the input prompt.
func WithPrompt(prompt string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Prompt = prompt
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
		Prompt: "> ",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so Input can honor ctx cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Backoff for non-fatal errors to prevent CPU spikes on persistent failure
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) Output(ctx context.Context, msgs []domain.Message, suggestions []domain.Suggestion) error {
	for _, msg := range msgs {
		if msg.Role == domain.RoleUser {
			continue
		}
		switch msg.Kind {
		case domain.KindWidget:
			fmt.Fprintf(h.Writer, "[%s]\n", msg.Widget)
		case domain.KindCard:
			fmt.Fprintln(h.Writer, h.render(msg.Content))
			fmt.Fprint(h.Writer, formatCard(msg.Card))
		default:
			fmt.Fprintln(h.Writer, h.render(msg.Content))
		}
	}
	if len(msgs) > 0 && len(suggestions) > 0 {
		for i, s := range suggestions {
			fmt.Fprintf(h.Writer, "  %d) %s\n", i+1, s.Label)
		}
	}
	return nil
}

func (h *TextHandler) render(content string) string {
	output := content
	if h.Renderer != nil {
		if rendered, err := h.Renderer(content); err == nil {
			output = rendered
		}
	}
	return strings.TrimSpace(output)
}

// formatCard prints the title first, then the remaining fields in key order.
func formatCard(card map[string]any) string {
	if len(card) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("  +--\n")
	if title, ok := card["title"]; ok {
		fmt.Fprintf(&b, "  | %v\n", title)
	}
	for _, k := range slices.Sorted(maps.Keys(card)) {
		if k == "title" {
			continue
		}
		fmt.Fprintf(&b, "  | %s: %v\n", k, card[k])
	}
	b.WriteString("  +--\n")
	return b.String()
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, h.Prompt)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			text := strings.TrimSpace(res.text)
			if text == "" {
				continue
			}

			clean, err := SanitizeInput(text)
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return nil
}

package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/twin3/pkg/domain"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// TurnEvent is one line of JSON output.
type TurnEvent struct {
	Type        string              `json:"type"`
	Messages    []domain.Message    `json:"messages,omitempty"`
	Suggestions []domain.Suggestion `json:"suggestions,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(ctx context.Context, msgs []domain.Message, suggestions []domain.Suggestion) error {
	if len(msgs) == 0 {
		return nil
	}
	return h.Encoder.Encode(TurnEvent{Type: "turn", Messages: msgs, Suggestions: suggestions})
}

// Input reads one line. A JSON string is unquoted; anything else is taken verbatim.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		text = val
	}
	return SanitizeInput(text)
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(TurnEvent{Type: "system", Message: msg})
}

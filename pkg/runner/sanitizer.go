package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize caps a single chat line when neither the caller nor
// the environment sets a limit.
const DefaultMaxInputSize = 4096

// EnvMaxInputSize overrides DefaultMaxInputSize for SanitizeInput.
const EnvMaxInputSize = "TWIN3_MAX_INPUT_SIZE"

// Sanitizer errors. Transports map both to a client error.
var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput is SanitizeInputLimit with the environment limit.
func SanitizeInput(input string) (string, error) {
	return SanitizeInputLimit(input, envInputLimit())
}

// SanitizeInputLimit checks a user message before it reaches the dispatcher.
// Oversized text is rejected, never truncated, so the echoed message is what
// the user sent. Control runes other than \n, \t and \r are dropped.
// A limit of zero or less selects the environment limit.
func SanitizeInputLimit(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = envInputLimit()
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(input, stripped) < 0 {
		return input, nil
	}
	return strings.Map(func(r rune) rune {
		if stripped(r) {
			return -1
		}
		return r
	}, input), nil
}

// stripped reports whether r is a control rune that could corrupt logs or the terminal.
func stripped(r rune) bool {
	switch r {
	case '\n', '\t', '\r':
		return false
	}
	return unicode.IsControl(r)
}

func envInputLimit() int {
	if n, err := strconv.Atoi(os.Getenv(EnvMaxInputSize)); err == nil && n > 0 {
		return n
	}
	return DefaultMaxInputSize
}

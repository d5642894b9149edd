package ports

import (
	"context"
	"errors"

	"github.com/aretw0/twin3/pkg/domain"
)

// ErrGeneratorDisabled is returned by generators that are not configured.
var ErrGeneratorDisabled = errors.New("text generator disabled")

// TextGenerator is the external text-completion collaborator used when no
// scripted node matches the user's free text. Both calls may fail; callers
// must degrade gracefully.
type TextGenerator interface {
	// Available reports whether the generator can be called at all.
	Available() bool

	// Generate produces a short reply to text given recent conversation history.
	Generate(ctx context.Context, text string, history []domain.HistoryEntry) (domain.Reply, error)

	// Suggest proposes three to four short follow-up labels for lastReply.
	Suggest(ctx context.Context, lastReply, context string) ([]string, error)
}

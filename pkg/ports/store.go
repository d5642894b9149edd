package ports

import (
	"context"

	"github.com/aretw0/twin3/pkg/domain"
)

// ConversationStore defines the interface for persisting conversation state.
type ConversationStore interface {
	// Save persists the conversation for a given session ID.
	Save(ctx context.Context, sessionID string, conv *domain.Conversation) error

	// Load retrieves the conversation for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Conversation, error)

	// Delete removes the conversation for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

// FlagStore is the persisted key/value boundary for session flags
// (verified status, accumulated score, completed steps).
type FlagStore interface {
	// Get returns domain.ErrFlagNotFound for keys that were never set.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

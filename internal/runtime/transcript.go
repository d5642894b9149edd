package runtime

import (
	"slices"
	"sync"

	"github.com/aretw0/twin3/pkg/domain"
)

// Transcript is the session handle the dispatcher writes a turn into.
// The dispatcher only reads Verified and Recent; every mutation of the
// Conversation State goes through Append, SetSuggestions and SetBusy.
type Transcript interface {
	Verified() bool
	Recent(n int) []domain.Message
	Append(msgs ...domain.Message)
	SetSuggestions(suggestions []domain.Suggestion)
	SetBusy(busy bool)
}

// ConversationTranscript is an in-memory Transcript over a Conversation.
// Safe for concurrent use.
type ConversationTranscript struct {
	mu   sync.Mutex
	conv *domain.Conversation
}

// NewConversationTranscript wraps conv. The transcript takes ownership of it.
func NewConversationTranscript(conv *domain.Conversation) *ConversationTranscript {
	return &ConversationTranscript{conv: conv}
}

func (t *ConversationTranscript) Verified() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conv.Verified
}

func (t *ConversationTranscript) Recent(n int) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conv.Recent(n)
}

func (t *ConversationTranscript) Append(msgs ...domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conv.Messages = append(t.conv.Messages, msgs...)
}

func (t *ConversationTranscript) SetSuggestions(suggestions []domain.Suggestion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conv.Suggestions = slices.Clone(suggestions)
}

func (t *ConversationTranscript) SetBusy(busy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conv.Busy = busy
}

// Snapshot returns a copy of the underlying conversation.
func (t *ConversationTranscript) Snapshot() *domain.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conv.Clone()
}

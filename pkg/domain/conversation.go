package domain

import (
	"slices"
	"time"
)

// Conversation is the persisted Conversation State of one session.
type Conversation struct {
	SessionID   string       `json:"session_id"`
	Messages    []Message    `json:"messages"`
	Suggestions []Suggestion `json:"suggestions"`

	// Busy is set while a turn is in flight. No new turn may start while it is true.
	Busy bool `json:"busy"`

	Verified bool `json:"verified"`

	// Completed lists the verification methods satisfied in this session, in completion order.
	Completed []string `json:"completed,omitempty"`

	// Generation increments on every "new conversation" reset. Turns started
	// under an older generation must not write into the log.
	Generation uint64 `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an idle, empty conversation.
func NewConversation(sessionID string, now time.Time) *Conversation {
	return &Conversation{
		SessionID:   sessionID,
		Messages:    []Message{},
		Suggestions: []Suggestion{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a copy whose slices can be modified independently.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = slices.Clone(c.Messages)
	out.Suggestions = slices.Clone(c.Suggestions)
	out.Completed = slices.Clone(c.Completed)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if out.Suggestions == nil {
		out.Suggestions = []Suggestion{}
	}
	return &out
}

// HasCompleted reports whether a verification method is already recorded.
func (c *Conversation) HasCompleted(methodID string) bool {
	return slices.Contains(c.Completed, methodID)
}

// Recent returns up to n of the latest messages.
func (c *Conversation) Recent(n int) []Message {
	if n <= 0 || len(c.Messages) == 0 {
		return nil
	}
	start := max(len(c.Messages)-n, 0)
	return slices.Clone(c.Messages[start:])
}

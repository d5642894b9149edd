package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind selects how a message is rendered.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindCard   MessageKind = "card"
	KindWidget MessageKind = "widget"
)

// Message is one entry in the conversation log. Messages are never mutated after creation.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Kind      MessageKind    `json:"kind"`
	Content   string         `json:"content"`
	Card      map[string]any `json:"card,omitempty"`
	Widget    Widget         `json:"widget,omitempty"`
	NodeID    string         `json:"node_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessageID returns a time-ordered identifier (UUIDv7), falling back to a random one.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// UserText builds the echo of what the user typed.
func UserText(text string, now time.Time) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Kind:      KindText,
		Content:   text,
		CreatedAt: now,
	}
}

// AssistantText builds a plain assistant reply that is not backed by a node.
func AssistantText(text string, now time.Time) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Kind:      KindText,
		Content:   text,
		CreatedAt: now,
	}
}

// NodeMessages renders a node into its assistant messages: the text (or card)
// message, immediately followed by a widget message when the node names one.
func NodeMessages(n Node, now time.Time) []Message {
	first := Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Kind:      KindText,
		Content:   n.Response.Text,
		NodeID:    n.ID,
		CreatedAt: now,
	}
	if n.HasCard() {
		first.Kind = KindCard
		first.Card = cloneMap(n.Response.Card)
	}

	msgs := []Message{first}
	if n.Response.Widget != WidgetNone {
		msgs = append(msgs, Message{
			ID:        NewMessageID(),
			Role:      RoleAssistant,
			Kind:      KindWidget,
			Widget:    n.Response.Widget,
			NodeID:    n.ID,
			CreatedAt: now,
		})
	}
	return msgs
}

// HistoryEntry is the reduced view of a message handed to a text generator.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History converts messages into generator history, skipping widget-only entries.
func History(msgs []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}

// Reply is the output of a text generator.
type Reply struct {
	Text string `json:"text"`
}

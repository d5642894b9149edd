package domain

import (
	"slices"
)

// ConversationDiff represents the changes between two conversation snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type ConversationDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	// Reset is true when the log was cleared by a "new conversation" action.
	// Clients should drop their local log before applying Appended.
	Reset bool `json:"reset,omitempty"`

	// Appended contains the messages added since the old snapshot.
	Appended []Message `json:"appended,omitempty"`

	// Suggestions is set whenever the suggestion set was replaced.
	Suggestions *[]Suggestion `json:"suggestions,omitempty"`

	Busy      *bool    `json:"busy,omitempty"`
	Verified  *bool    `json:"verified,omitempty"`
	Completed []string `json:"completed,omitempty"`
}

// Diff calculates the difference between oldConv and newConv.
// If oldConv is nil, it returns a diff representing the entire newConv (initial load).
func Diff(oldConv, newConv *Conversation) *ConversationDiff {
	if newConv == nil {
		return nil
	}

	diff := &ConversationDiff{SessionID: newConv.SessionID}

	if oldConv != nil && oldConv.Generation != newConv.Generation {
		diff.Reset = true
		oldConv = nil
	}

	if oldConv == nil {
		diff.Appended = slices.Clone(newConv.Messages)
		s := slices.Clone(newConv.Suggestions)
		diff.Suggestions = &s
		diff.Busy = &newConv.Busy
		diff.Verified = &newConv.Verified
		diff.Completed = slices.Clone(newConv.Completed)
		return diff
	}

	// The log is append-only, so anything past the old length is new.
	if len(newConv.Messages) > len(oldConv.Messages) {
		diff.Appended = slices.Clone(newConv.Messages[len(oldConv.Messages):])
	}
	if !slices.Equal(oldConv.Suggestions, newConv.Suggestions) {
		s := slices.Clone(newConv.Suggestions)
		diff.Suggestions = &s
	}
	if oldConv.Busy != newConv.Busy {
		diff.Busy = &newConv.Busy
	}
	if oldConv.Verified != newConv.Verified {
		diff.Verified = &newConv.Verified
	}
	if len(newConv.Completed) > len(oldConv.Completed) {
		diff.Completed = slices.Clone(newConv.Completed[len(oldConv.Completed):])
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *ConversationDiff) IsEmpty() bool {
	return !d.Reset &&
		len(d.Appended) == 0 &&
		d.Suggestions == nil &&
		d.Busy == nil &&
		d.Verified == nil &&
		len(d.Completed) == 0
}

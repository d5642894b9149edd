package session

import (
	"context"
	"errors"
	"slices"

	"github.com/aretw0/twin3/pkg/domain"
)

var errStale = errors.New("stale generation")

// turnTranscript persists each dispatcher mutation under the session lock.
// Writes from a turn whose generation was replaced by a reset are dropped.
type turnTranscript struct {
	ctx        context.Context
	m          *Manager
	sessionID  string
	generation uint64

	stale bool
	err   error
}

func (t *turnTranscript) Verified() bool {
	conv, err := t.m.Get(t.ctx, t.sessionID)
	if err != nil {
		return false
	}
	return conv.Verified
}

func (t *turnTranscript) Recent(n int) []domain.Message {
	conv, err := t.m.Get(t.ctx, t.sessionID)
	if err != nil || conv.Generation != t.generation {
		return nil
	}
	return conv.Recent(n)
}

func (t *turnTranscript) Append(msgs ...domain.Message) {
	t.apply(func(conv *domain.Conversation) {
		conv.Messages = append(conv.Messages, msgs...)
	})
}

func (t *turnTranscript) SetSuggestions(suggestions []domain.Suggestion) {
	t.apply(func(conv *domain.Conversation) {
		conv.Suggestions = slices.Clone(suggestions)
	})
}

func (t *turnTranscript) SetBusy(busy bool) {
	t.apply(func(conv *domain.Conversation) {
		conv.Busy = busy
	})
}

func (t *turnTranscript) apply(fn func(*domain.Conversation)) {
	if t.stale {
		return
	}
	_, err := t.m.update(t.ctx, t.sessionID, func(conv *domain.Conversation) error {
		if conv.Generation != t.generation {
			return errStale
		}
		fn(conv)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, domain.ErrSessionNotFound):
		t.stale = true
		t.m.logger.Debug("dropping writes of a superseded turn", "session_id", t.sessionID)
	default:
		t.m.logger.Warn("failed to persist turn", "session_id", t.sessionID, "err", err)
		if t.err == nil {
			t.err = err
		}
	}
}

// forceIdle clears busy after a failed turn so the session is not stuck.
func (t *turnTranscript) forceIdle() {
	if t.stale {
		return
	}
	_, err := t.m.update(t.ctx, t.sessionID, func(conv *domain.Conversation) error {
		if conv.Generation != t.generation {
			return errStale
		}
		conv.Busy = false
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		t.m.logger.Error("failed to clear busy flag", "session_id", t.sessionID, "err", err)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/google/uuid"
)

// Create starts a conversation under a fresh session id.
func (m *Manager) Create(ctx context.Context) (*domain.Conversation, error) {
	return m.Start(ctx, uuid.NewString())
}

// Start creates the session if it does not exist and runs the welcome turn.
// Starting an existing session returns it unchanged, so the welcome turn runs exactly once.
func (m *Manager) Start(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	var created *domain.Conversation
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, sessionID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		conv := domain.NewConversation(sessionID, m.now())
		m.restoreFlags(ctx, conv)
		conv.Busy = true
		if err := m.store.Save(ctx, sessionID, conv); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		created = conv.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created != nil {
		m.notify(ctx, domain.Diff(nil, created))
		if _, err := m.runTurn(ctx, sessionID, created.Generation, domain.Goto(m.welcomeNode)); err != nil {
			return nil, err
		}
	}
	return m.Get(ctx, sessionID)
}

// Send runs one turn for action. It returns ErrBusy without touching the
// conversation when another turn is in flight.
//
// The turn is detached from ctx cancellation: once admitted it runs to
// completion (a canceled ctx only skips the remaining delay).
func (m *Manager) Send(ctx context.Context, sessionID string, action domain.Action) (domain.TurnResult, error) {
	var generation uint64
	_, err := m.update(ctx, sessionID, func(conv *domain.Conversation) error {
		if conv.Busy {
			return ErrBusy
		}
		conv.Busy = true
		generation = conv.Generation
		return nil
	})
	if err != nil {
		return domain.TurnResult{}, err
	}
	return m.runTurn(ctx, sessionID, generation, action)
}

// Reset is the "new conversation" action: it clears the log and the
// suggestions and runs exactly one welcome turn. Verification status is kept.
// Turns still in flight from before the reset are dropped.
func (m *Manager) Reset(ctx context.Context, sessionID string) (domain.TurnResult, error) {
	var generation uint64
	_, err := m.update(ctx, sessionID, func(conv *domain.Conversation) error {
		conv.Generation++
		conv.Messages = []domain.Message{}
		conv.Suggestions = []domain.Suggestion{}
		conv.Busy = true
		generation = conv.Generation
		return nil
	})
	if err != nil {
		return domain.TurnResult{}, err
	}
	return m.runTurn(ctx, sessionID, generation, domain.Goto(m.welcomeNode))
}

func (m *Manager) runTurn(ctx context.Context, sessionID string, generation uint64, action domain.Action) (domain.TurnResult, error) {
	ctx = runtime.WithSessionID(context.WithoutCancel(ctx), sessionID)
	tr := &turnTranscript{
		ctx:        ctx,
		m:          m,
		sessionID:  sessionID,
		generation: generation,
	}

	result, err := m.engine.Dispatch(ctx, tr, action)
	if tr.err != nil {
		// The final busy write may have failed along with the rest.
		tr.forceIdle()
		if err == nil {
			err = tr.err
		}
	}
	if err != nil {
		return result, err
	}
	if tr.stale {
		return result, ErrSuperseded
	}
	return result, nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/humanity"
)

// Flag key suffixes.
const (
	FlagVerified  = "verified"
	FlagScore     = "score"
	FlagCompleted = "completed"
)

// FlagKey builds the persisted key of a session flag.
func FlagKey(sessionID, flag string) string {
	return sessionID + ":" + flag
}

// CompleteMethod records a completed verification method and recomputes the
// humanity score. The session becomes verified once the score reaches the
// threshold. When the method is new, the completion node is shown as a turn.
func (m *Manager) CompleteMethod(ctx context.Context, sessionID, methodID string) (humanity.Report, error) {
	if !humanity.Known(methodID, m.methods) {
		return humanity.Report{}, fmt.Errorf("%w: %q", ErrUnknownMethod, methodID)
	}

	var added bool
	conv, err := m.update(ctx, sessionID, func(conv *domain.Conversation) error {
		if !conv.HasCompleted(methodID) {
			conv.Completed = append(conv.Completed, methodID)
			added = true
		}
		if humanity.Score(conv.Completed, m.methods) >= m.threshold {
			conv.Verified = true
		}
		return nil
	})
	if err != nil {
		return humanity.Report{}, err
	}

	report := humanity.Breakdown(conv.Completed, m.methods)
	if err := m.saveFlags(ctx, sessionID, conv.Verified, report.Score, conv.Completed); err != nil {
		return report, err
	}

	if added && m.completionNode != "" && m.engine.Inventory().Has(m.completionNode) {
		_, err := m.Send(ctx, sessionID, domain.Goto(m.completionNode))
		if err != nil && !errors.Is(err, ErrBusy) {
			return report, err
		}
	}
	return report, nil
}

// Score returns the humanity score breakdown of the session.
func (m *Manager) Score(ctx context.Context, sessionID string) (humanity.Report, error) {
	conv, err := m.Get(ctx, sessionID)
	if err != nil {
		return humanity.Report{}, err
	}
	return humanity.Breakdown(conv.Completed, m.methods), nil
}

func (m *Manager) saveFlags(ctx context.Context, sessionID string, verified bool, score int, completed []string) error {
	if m.flags == nil {
		return nil
	}
	values := map[string]string{
		FlagVerified:  strconv.FormatBool(verified),
		FlagScore:     strconv.Itoa(score),
		FlagCompleted: strings.Join(completed, ","),
	}
	for _, flag := range []string{FlagCompleted, FlagScore, FlagVerified} {
		if err := m.flags.Set(ctx, FlagKey(sessionID, flag), values[flag]); err != nil {
			return fmt.Errorf("failed to persist %s flag: %w", flag, err)
		}
	}
	return nil
}

// restoreFlags seeds a new conversation with verification progress persisted
// by an earlier conversation of the same session.
func (m *Manager) restoreFlags(ctx context.Context, conv *domain.Conversation) {
	if m.flags == nil {
		return
	}
	raw, err := m.flags.Get(ctx, FlagKey(conv.SessionID, FlagCompleted))
	if err != nil {
		if !errors.Is(err, domain.ErrFlagNotFound) {
			m.logger.Warn("failed to read session flags", "session_id", conv.SessionID, "err", err)
		}
		return
	}
	for _, id := range strings.Split(raw, ",") {
		if humanity.Known(id, m.methods) && !conv.HasCompleted(id) {
			conv.Completed = append(conv.Completed, id)
		}
	}
	conv.Verified = humanity.Score(conv.Completed, m.methods) >= m.threshold
}

package runtime

import (
	"context"
	"time"

	"github.com/aretw0/twin3/pkg/domain"
)

type sessionKey struct{}

// WithSessionID tags ctx with the session a turn belongs to, so hooks and logs can report it.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionIDFrom returns the session id set by WithSessionID, or "".
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func (e *Engine) base(ctx context.Context, t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, SessionID: SessionIDFrom(ctx)}
}

func (e *Engine) emitTurnStart(ctx context.Context, action domain.Action) {
	if e.hooks.OnTurnStart == nil {
		return
	}
	e.hooks.OnTurnStart(ctx, &domain.TurnEvent{
		EventBase: e.base(ctx, domain.EventTurnStart),
		Action:    action,
	})
}

func (e *Engine) emitTurnEnd(ctx context.Context, action domain.Action, d time.Duration, err error) {
	if e.hooks.OnTurnEnd == nil {
		return
	}
	e.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
		EventBase: e.base(ctx, domain.EventTurnEnd),
		Action:    action,
		Duration:  d,
		Err:       err,
	})
}

func (e *Engine) emitNodeShown(ctx context.Context, node domain.Node) {
	if e.hooks.OnNodeShown == nil {
		return
	}
	e.hooks.OnNodeShown(ctx, &domain.NodeEvent{
		EventBase: e.base(ctx, domain.EventNodeShown),
		NodeID:    node.ID,
		Widget:    node.Response.Widget,
	})
}

func (e *Engine) emitGateRedirect(ctx context.Context, target string) {
	if e.hooks.OnGateRedirect == nil {
		return
	}
	e.hooks.OnGateRedirect(ctx, &domain.GateEvent{
		EventBase:  e.base(ctx, domain.EventGateRedirect),
		Target:     target,
		RedirectTo: e.verificationNode,
	})
}

func (e *Engine) emitFallback(ctx context.Context, kind domain.FallbackKind, err error) {
	if e.hooks.OnFallback == nil {
		return
	}
	t := domain.EventFallback
	if err != nil {
		t = domain.EventGeneratorError
	}
	e.hooks.OnFallback(ctx, &domain.FallbackEvent{
		EventBase: e.base(ctx, t),
		Kind:      kind,
		Err:       err,
	})
}

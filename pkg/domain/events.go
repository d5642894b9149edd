package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurnStart      EventType = "turn_start"
	EventTurnEnd        EventType = "turn_end"
	EventNodeShown      EventType = "node_shown"
	EventGateRedirect   EventType = "gate_redirect"
	EventFallback       EventType = "fallback"
	EventGeneratorError EventType = "generator_error"
)

// FallbackKind tells which branch answered an unmatched turn.
type FallbackKind string

const (
	FallbackNode      FallbackKind = "node"
	FallbackGenerator FallbackKind = "generator"
	FallbackApology   FallbackKind = "apology"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

// TurnEvent marks the start or end of a turn.
type TurnEvent struct {
	EventBase
	Action   Action        `json:"action"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// NodeEvent is emitted when a node's response is shown.
type NodeEvent struct {
	EventBase
	NodeID string `json:"node_id"`
	Widget Widget `json:"widget,omitempty"`
}

// GateEvent is emitted when an unverified user is redirected away from a gated action.
type GateEvent struct {
	EventBase
	Target     string `json:"target"`
	RedirectTo string `json:"redirect_to"`
}

// FallbackEvent is emitted when no node matched the free text.
type FallbackEvent struct {
	EventBase
	Kind FallbackKind `json:"kind"`
	Err  error        `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTurnStart    func(context.Context, *TurnEvent)
	OnTurnEnd      func(context.Context, *TurnEvent)
	OnNodeShown    func(context.Context, *NodeEvent)
	OnGateRedirect func(context.Context, *GateEvent)
	OnFallback     func(context.Context, *FallbackEvent)
}

// Merge combines several hook sets; every non-nil callback is invoked in order.
func Merge(all ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range all {
		out.OnTurnStart = chain(out.OnTurnStart, h.OnTurnStart)
		out.OnTurnEnd = chain(out.OnTurnEnd, h.OnTurnEnd)
		out.OnNodeShown = chain(out.OnNodeShown, h.OnNodeShown)
		out.OnGateRedirect = chain(out.OnGateRedirect, h.OnGateRedirect)
		out.OnFallback = chain(out.OnFallback, h.OnFallback)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

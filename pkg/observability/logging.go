package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/twin3/pkg/domain"
)

// LoggingHooks logs engine events. Turn boundaries and shown nodes go to
// debug; gate redirects and fallbacks to info; failed turns to warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnStart: func(ctx context.Context, e *domain.TurnEvent) {
			logger.Debug("turn_start",
				"session_id", e.SessionID,
				"node_id", e.Action.ExplicitNodeID,
				"has_text", e.Action.FreeText != "",
			)
		},
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			if e.Err != nil {
				logger.Warn("turn_failed", "session_id", e.SessionID, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.Debug("turn_end", "session_id", e.SessionID, "duration", e.Duration)
		},
		OnNodeShown: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("node_shown", "session_id", e.SessionID, "node_id", e.NodeID, "widget", e.Widget)
		},
		OnGateRedirect: func(ctx context.Context, e *domain.GateEvent) {
			logger.Info("gate_redirect", "session_id", e.SessionID, "target", e.Target, "redirect_to", e.RedirectTo)
		},
		OnFallback: func(ctx context.Context, e *domain.FallbackEvent) {
			args := []any{"session_id", e.SessionID, "kind", e.Kind}
			if e.Err != nil {
				args = append(args, "err", e.Err)
			}
			logger.Info("fallback", args...)
		},
	}
}

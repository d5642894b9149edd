package runtime

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/twin3/pkg/domain"
)

// Dispatch runs one turn: it applies the access gate, echoes the user's text,
// resolves the target node (or falls back) and writes the resulting messages
// and suggestions into tr. The busy flag is set for the whole turn and is
// always cleared before Dispatch returns.
//
// The only error is domain.ErrNodeNotFound for an explicit id that the
// inventory does not define, which indicates a broken internal reference.
// Generator failures degrade to an apology message.
func (e *Engine) Dispatch(ctx context.Context, tr Transcript, action domain.Action) (result domain.TurnResult, err error) {
	start := e.now()
	tr.SetBusy(true)
	e.emitTurnStart(ctx, action)
	defer func() {
		tr.SetBusy(false)
		e.emitTurnEnd(ctx, action, e.now().Sub(start), err)
	}()

	emit := func(msgs ...domain.Message) {
		tr.Append(msgs...)
		result.Messages = append(result.Messages, msgs...)
	}
	suggest := func(s []domain.Suggestion) {
		if s == nil {
			s = []domain.Suggestion{}
		}
		tr.SetSuggestions(s)
		result.Suggestions = slices.Clone(s)
	}

	target := action.ExplicitNodeID
	text := action.FreeText
	echo := action.ShowUserMessage && text != ""

	// Captured before the echo so the generator sees the text only once.
	var history []domain.HistoryEntry
	if target == "" && text != "" && e.GeneratorAvailable() {
		history = domain.History(tr.Recent(e.historyWindow))
	}

	if gatedTarget, ok := e.gate(tr, target, text); ok {
		e.logger.Debug("gated action redirected",
			"session_id", SessionIDFrom(ctx),
			"target", gatedTarget,
			"redirect_to", e.verificationNode,
		)
		e.emitGateRedirect(ctx, gatedTarget)
		target, text, echo = e.verificationNode, "", false
	}

	if echo {
		emit(domain.UserText(text, e.now()))
	}
	if action.IsEmpty() {
		e.logger.Debug("empty action routed to fallback", "session_id", SessionIDFrom(ctx))
	}

	var (
		node  domain.Node
		found bool
	)
	switch {
	case target != "":
		node, err = e.inventory.Lookup(target)
		if err != nil {
			e.logger.Error("explicit node lookup failed",
				"session_id", SessionIDFrom(ctx),
				"node_id", target,
				"err", err,
			)
			suggest(nil)
			return result, fmt.Errorf("dispatch: %w", err)
		}
		found = true
	case text != "":
		node, found = e.inventory.Resolve(text)
	}

	if found {
		e.pause(ctx, time.Duration(node.Response.DelayMs)*time.Millisecond)
		e.show(ctx, node, emit, suggest)
		return result, nil
	}

	if text != "" && e.GeneratorAvailable() {
		e.generate(ctx, text, history, emit, suggest)
		return result, nil
	}

	e.emitFallback(ctx, domain.FallbackNode, nil)
	e.pause(ctx, e.fallbackDelay)
	e.show(ctx, e.inventory.Fallback(), emit, suggest)
	return result, nil
}

func (e *Engine) show(ctx context.Context, node domain.Node, emit func(...domain.Message), suggest func([]domain.Suggestion)) {
	emit(domain.NodeMessages(node, e.now())...)
	suggest(node.Response.SuggestedActions)
	e.emitNodeShown(ctx, node)
}

// pause waits for the simulated latency. A canceled context only shortens
// the wait; the turn still completes.
func (e *Engine) pause(ctx context.Context, d time.Duration) {
	if err := e.wait(ctx, d); err != nil {
		e.logger.Debug("turn delay interrupted", "err", err)
	}
}

// gate returns the gated identifier when an unverified user targets a gated action.
// Free text is gated only when it literally names a gated action; text that
// merely resolves to a gated node is echoed and shown like any other match.
func (e *Engine) gate(tr Transcript, target, text string) (string, bool) {
	if len(e.gated) == 0 || tr.Verified() {
		return "", false
	}
	if target != "" {
		if e.isGated(target) {
			return target, true
		}
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	if e.isGated(text) {
		return text, true
	}
	return "", false
}

func (e *Engine) isGated(s string) bool {
	_, ok := e.gated[normalize(s)]
	return ok
}

// normalize makes "Browse Tasks", "browse_tasks" and " browse  tasks " equal.
func normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	return strings.Join(strings.Fields(s), " ")
}

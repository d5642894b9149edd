package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/inventory"
	"github.com/aretw0/twin3/pkg/ports"
)

// Defaults for the dispatcher.
const (
	DefaultVerificationNode = "verification_required"
	DefaultGatedAction      = "browse_tasks"
	DefaultFallbackDelay    = 300 * time.Millisecond
	DefaultHistoryWindow    = 10
	DefaultGeneratorTimeout = 15 * time.Second
	DefaultApology          = "Sorry, I'm having trouble answering that right now. Try one of these instead."
)

// DefaultSuggestions are offered when the generator fails or proposes nothing.
var DefaultSuggestions = []domain.Suggestion{
	{Label: "View Tasks", Payload: "browse_tasks"},
	{Label: "Twin Matrix", Payload: "matrix_reveal"},
	{Label: "Dashboard", Payload: "dashboard"},
}

// WaitFunc suspends the caller for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Engine is the Response Dispatcher. It resolves an action to a scripted node
// (or the generative fallback) and writes the result into a Transcript.
// It holds no per-session state and is safe for concurrent use.
type Engine struct {
	inventory *inventory.Inventory
	generator ports.TextGenerator

	gated            map[string]struct{}
	verificationNode string
	fallbackDelay    time.Duration
	historyWindow    int
	generatorTimeout time.Duration
	apology          string
	defaults         []domain.Suggestion

	wait   WaitFunc
	now    func() time.Time
	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithGenerator sets the fallback text generator. A nil or unavailable
// generator routes unmatched text to the fallback node.
func WithGenerator(gen ports.TextGenerator) EngineOption {
	return func(e *Engine) {
		e.generator = gen
	}
}

// WithGate sets the gated action identifiers and the node unverified users are redirected to.
func WithGate(redirectTo string, gated ...string) EngineOption {
	return func(e *Engine) {
		e.verificationNode = redirectTo
		e.gated = make(map[string]struct{}, len(gated))
		for _, g := range gated {
			e.gated[normalize(g)] = struct{}{}
		}
	}
}

// WithFallbackDelay sets the fixed delay used for the fallback node.
func WithFallbackDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.fallbackDelay = d
	}
}

// WithHistoryWindow sets how many recent messages are handed to the generator.
func WithHistoryWindow(n int) EngineOption {
	return func(e *Engine) {
		e.historyWindow = n
	}
}

// WithGeneratorTimeout bounds each generator call.
func WithGeneratorTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.generatorTimeout = d
	}
}

// WithApology overrides the message and suggestions shown when the generator fails.
func WithApology(text string, suggestions []domain.Suggestion) EngineOption {
	return func(e *Engine) {
		e.apology = text
		e.defaults = suggestions
	}
}

// WithWait replaces the timer used for simulated latency (useful in tests).
func WithWait(wait WaitFunc) EngineOption {
	return func(e *Engine) {
		e.wait = wait
	}
}

// WithClock replaces the time source used to stamp messages.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a dispatcher over an inventory.
// It fails if the gate redirects to a node the inventory does not define.
func NewEngine(inv *inventory.Inventory, opts ...EngineOption) (*Engine, error) {
	if inv == nil {
		return nil, fmt.Errorf("inventory is required")
	}

	e := &Engine{
		inventory:        inv,
		verificationNode: DefaultVerificationNode,
		gated:            map[string]struct{}{normalize(DefaultGatedAction): {}},
		fallbackDelay:    DefaultFallbackDelay,
		historyWindow:    DefaultHistoryWindow,
		generatorTimeout: DefaultGeneratorTimeout,
		apology:          DefaultApology,
		defaults:         DefaultSuggestions,
		wait:             sleep,
		now:              time.Now,
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if len(e.gated) > 0 && !inv.Has(e.verificationNode) {
		return nil, fmt.Errorf("gate redirect %q: %w", e.verificationNode, domain.ErrNodeNotFound)
	}
	return e, nil
}

// Inventory returns the inventory the engine dispatches over.
func (e *Engine) Inventory() *inventory.Inventory {
	return e.inventory
}

// GeneratorAvailable reports whether unmatched text is sent to the generator.
func (e *Engine) GeneratorAvailable() bool {
	return e.generator != nil && e.generator.Available()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

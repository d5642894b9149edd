package twin3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aretw0/twin3/internal/config"
	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/adapters/file"
	"github.com/aretw0/twin3/pkg/adapters/genai"
	httpAdapter "github.com/aretw0/twin3/pkg/adapters/http"
	"github.com/aretw0/twin3/pkg/adapters/mcp"
	"github.com/aretw0/twin3/pkg/adapters/memory"
	"github.com/aretw0/twin3/pkg/adapters/nop"
	"github.com/aretw0/twin3/pkg/adapters/redis"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/inventory"
	"github.com/aretw0/twin3/pkg/observability"
	"github.com/aretw0/twin3/pkg/persistence/middleware"
	"github.com/aretw0/twin3/pkg/ports"
	"github.com/aretw0/twin3/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is the fully wired conversation engine: inventory, dispatcher,
// session manager and the adapters selected by the configuration.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Inventory *inventory.Inventory
	Engine    *runtime.Engine
	Sessions  *session.Manager
	Streams   *httpAdapter.StreamManager
	Registry  *prometheus.Registry

	store     ports.ConversationStore
	flags     ports.FlagStore
	generator ports.TextGenerator
	observers []session.Observer
	engineOps []runtime.EngineOption
	closers   []func() error
}

// Option defines a functional option for configuring the App.
type Option func(*App)

// WithLogger sets a custom structured logger instead of the one built from the config.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.Logger = logger
	}
}

// WithStore injects a conversation store, bypassing the configured driver.
func WithStore(store ports.ConversationStore, flags ports.FlagStore) Option {
	return func(a *App) {
		a.store = store
		a.flags = flags
	}
}

// WithGenerator injects a text generator, bypassing the configured provider.
func WithGenerator(gen ports.TextGenerator) Option {
	return func(a *App) {
		a.generator = gen
	}
}

// WithObserver registers an extra observer of conversation diffs.
func WithObserver(o session.Observer) Option {
	return func(a *App) {
		a.observers = append(a.observers, o)
	}
}

// WithEngineOptions appends low-level dispatcher options (e.g. runtime.WithWait in tests).
func WithEngineOptions(opts ...runtime.EngineOption) Option {
	return func(a *App) {
		a.engineOps = append(a.engineOps, opts...)
	}
}

// New wires an App from cfg. A nil cfg uses config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	app := &App{Config: cfg}
	for _, opt := range opts {
		opt(app)
	}

	if app.Logger == nil {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		app.Logger = logging.NewWithWriter(os.Stderr, level, logging.Format(cfg.LogFormat))
	}

	inv, err := LoadInventory(cfg.Inventory)
	if err != nil {
		return nil, err
	}
	for _, dangling := range inv.DanglingPayloads() {
		app.Logger.Warn("suggestion payload names no node, it will be routed as text", "edge", dangling)
	}
	app.Inventory = inv

	if err := app.setupGenerator(ctx); err != nil {
		return nil, err
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(app.Registry)

	engineOpts := []runtime.EngineOption{
		runtime.WithGenerator(app.generator),
		runtime.WithGate(cfg.Dispatch.VerificationNode, cfg.Dispatch.GatedActions...),
		runtime.WithFallbackDelay(cfg.Dispatch.FallbackDelay),
		runtime.WithHistoryWindow(cfg.Dispatch.HistoryWindow),
		runtime.WithGeneratorTimeout(cfg.Generator.Timeout),
		runtime.WithLifecycleHooks(domain.Merge(metrics.Hooks(), observability.LoggingHooks(app.Logger))),
		runtime.WithLogger(app.Logger),
	}
	app.Engine, err = runtime.NewEngine(inv, append(engineOpts, app.engineOps...)...)
	if err != nil {
		return nil, err
	}
	for role, id := range map[string]string{
		"welcome":         session.DefaultWelcomeNode,
		"completion_node": cfg.Verification.CompletionNode,
	} {
		if id != "" && !inv.Has(id) {
			return nil, fmt.Errorf("%s %q: %w", role, id, domain.ErrNodeNotFound)
		}
	}

	sessionOpts, err := app.setupStore(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.protectStore(); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Streams = httpAdapter.NewStreamManager(app.Logger)
	sessionOpts = append(sessionOpts,
		session.WithThreshold(cfg.Verification.Threshold),
		session.WithCompletionNode(cfg.Verification.CompletionNode),
		session.WithObserver(app.Streams.Observe),
		session.WithLogger(app.Logger),
	)
	for _, o := range app.observers {
		sessionOpts = append(sessionOpts, session.WithObserver(o))
	}
	app.Sessions = session.NewManager(app.Engine, app.store, sessionOpts...)

	app.Logger.Debug("twin3 ready",
		"nodes", inv.Len(),
		"store", cfg.Store.Driver,
		"generator", app.Engine.GeneratorAvailable(),
	)
	return app, nil
}

// LoadInventory reads the inventory at path, or the embedded default when path is empty.
func LoadInventory(path string) (*inventory.Inventory, error) {
	if path == "" {
		return inventory.Default()
	}
	return inventory.Load(path)
}

func (a *App) setupGenerator(ctx context.Context) error {
	if a.generator != nil {
		return nil
	}
	if !a.Config.GeneratorEnabled() {
		a.generator = nop.Generator{}
		return nil
	}
	gen, err := genai.New(ctx, a.Config.Generator.APIKey,
		genai.WithModel(a.Config.Generator.Model),
		genai.WithRequestsPerMinute(a.Config.Generator.RequestsPerMinute),
		genai.WithLogger(a.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %w", err)
	}
	a.generator = gen
	return nil
}

func (a *App) setupStore(ctx context.Context) ([]session.Option, error) {
	var opts []session.Option
	if a.store != nil {
		if a.flags != nil {
			opts = append(opts, session.WithFlagStore(a.flags))
		}
		return opts, nil
	}

	sc := a.Config.Store
	switch sc.Driver {
	case config.StoreFile:
		a.store = file.New(sc.Path)
		a.flags = file.NewFlagStore(filepath.Dir(sc.Path))
	case config.StoreRedis:
		client := redis.NewClient(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB)
		a.closers = append(a.closers, client.Close)
		store := redis.NewFromClient(client, redis.WithTTL(sc.TTL), redis.WithPrefix(sc.Redis.Prefix))
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unavailable at %s: %w", sc.Redis.Addr, err)
		}
		a.store = store
		a.flags = redis.NewFlagStore(client, sc.Redis.Prefix)
		opts = append(opts,
			session.WithLocker(redis.NewLocker(client, sc.Redis.Prefix)),
			session.WithLockTTL(sc.Redis.LockTTL),
		)
	default:
		a.store = memory.NewStore()
		a.flags = memory.NewFlagStore()
	}
	return append(opts, session.WithFlagStore(a.flags)), nil
}

// protectStore wraps the store with PII redaction and encryption at rest when configured.
func (a *App) protectStore() error {
	sc := a.Config.Store
	var mws []middleware.Middleware
	if sc.RedactPII {
		patterns := sc.RedactPatterns
		if len(patterns) == 0 {
			patterns = middleware.DefaultPIIPatterns
		}
		mw, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	if sc.EncryptionKey != "" {
		enc := middleware.EncryptionConfig{}
		key, err := middleware.ParseKey(sc.EncryptionKey)
		if err != nil {
			return err
		}
		enc.ActiveKey = key
		for _, k := range sc.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return fmt.Errorf("fallback key: %w", err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	a.store = middleware.Chain(a.store, mws...)
	return nil
}

// HTTPHandler returns the REST/SSE API, with /metrics served from the App registry.
func (a *App) HTTPHandler() http.Handler {
	return httpAdapter.NewHandler(a.Sessions,
		httpAdapter.WithStreams(a.Streams),
		httpAdapter.WithMetricsHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})),
		httpAdapter.WithMaxInputSize(a.Config.MaxInputSize),
		httpAdapter.WithVersion(Version),
		httpAdapter.WithLogger(a.Logger),
	)
}

// MCPServer returns the Model Context Protocol adapter.
func (a *App) MCPServer() *mcp.Server {
	return mcp.NewServer(a.Sessions, Version,
		mcp.WithMaxInputSize(a.Config.MaxInputSize),
		mcp.WithLogger(a.Logger),
	)
}

// Close releases external connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

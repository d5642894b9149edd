package twin3_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/twin3"
	"github.com/aretw0/twin3/internal/config"
	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noWait(context.Context, time.Duration) error { return nil }

func newApp(t *testing.T, cfg *config.Config, opts ...twin3.Option) *twin3.App {
	t.Helper()
	all := append([]twin3.Option{
		twin3.WithLogger(logging.NewNop()),
		twin3.WithEngineOptions(runtime.WithWait(noWait)),
	}, opts...)
	app, err := twin3.New(context.Background(), cfg, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNew_Defaults(t *testing.T) {
	app := newApp(t, nil)
	ctx := context.Background()

	assert.False(t, app.Engine.GeneratorAvailable())
	assert.Equal(t, config.StoreMemory, app.Config.Store.Driver)

	conv, err := app.Sessions.Create(ctx)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, session.DefaultWelcomeNode, conv.Messages[0].NodeID)

	res, err := app.Sessions.Send(ctx, conv.SessionID, domain.Goto("browse_tasks"))
	require.NoError(t, err)
	assert.Equal(t, "verification_required", res.Messages[0].NodeID, "browse_tasks is gated by default")
}

func TestNew_Observer(t *testing.T) {
	var diffs int
	app := newApp(t, nil, twin3.WithObserver(func(ctx context.Context, d *domain.ConversationDiff) {
		diffs++
	}))
	_, err := app.Sessions.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Positive(t, diffs)
}

type stubGenerator struct{}

func (stubGenerator) Available() bool { return true }
func (stubGenerator) Generate(ctx context.Context, text string, history []domain.HistoryEntry) (domain.Reply, error) {
	return domain.Reply{Text: "generated: " + text}, nil
}
func (stubGenerator) Suggest(ctx context.Context, lastReply, userText string) ([]string, error) {
	return nil, errors.New("no suggestions")
}

func TestNew_InjectedGenerator(t *testing.T) {
	app := newApp(t, nil, twin3.WithGenerator(stubGenerator{}))
	ctx := context.Background()
	require.True(t, app.Engine.GeneratorAvailable())

	_, err := app.Sessions.Start(ctx, "s1")
	require.NoError(t, err)
	res, err := app.Sessions.Send(ctx, "s1", domain.Say("zzz qqq"))
	require.NoError(t, err)
	assert.Equal(t, "generated: zzz qqq", res.Messages[1].Content)
}

func TestNew_FileStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Driver = config.StoreFile
	cfg.Store.Path = filepath.Join(dir, "sessions")

	app := newApp(t, cfg)
	ctx := context.Background()
	_, err := app.Sessions.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = app.Sessions.CompleteMethod(ctx, "s1", "email")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "sessions", "s1.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "flags.json"))
	assert.NoError(t, err)

	// A second app over the same directory sees the session.
	again := newApp(t, cfg)
	report, err := again.Sessions.Score(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 31, report.Score)
}

func TestNew_ProtectedStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Driver = config.StoreFile
	cfg.Store.Path = filepath.Join(dir, "sessions")
	cfg.Store.RedactPII = true
	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

	app := newApp(t, cfg)
	ctx := context.Background()
	_, err := app.Sessions.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = app.Sessions.Send(ctx, "s1", domain.Say("hello, my email is jane@example.com"))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "sessions", "s1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "jane@example.com")
	assert.NotContains(t, string(raw), "hello, my email")

	again := newApp(t, cfg)
	conv, err := again.Sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(conv.Messages), 2)
	assert.Equal(t, "hello, my email is ***", conv.Messages[1].Content)
}

func TestNew_InvalidEncryptionKey(t *testing.T) {
	cfg := config.Default()
	cfg.Store.EncryptionKey = "c2hvcnQ="
	_, err := twin3.New(context.Background(), cfg, twin3.WithLogger(logging.NewNop()))
	assert.ErrorContains(t, err, "32 bytes")
}

func TestNew_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store.Driver = config.StoreRedis
	cfg.Store.Redis.Addr = mr.Addr()

	app := newApp(t, cfg)
	ctx := context.Background()
	_, err := app.Sessions.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = app.Sessions.CompleteMethod(ctx, "s1", "passport")
	require.NoError(t, err)

	assert.True(t, mr.Exists("twin3:session:s1"))
	verified, err := mr.Get("twin3:flag:" + session.FlagKey("s1", session.FlagVerified))
	require.NoError(t, err)
	assert.Equal(t, "true", verified)
}

func TestNew_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Store.Driver = config.StoreRedis
	cfg.Store.Redis.Addr = addr

	_, err := twin3.New(context.Background(), cfg, twin3.WithLogger(logging.NewNop()))
	assert.ErrorContains(t, err, "redis unavailable")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "chatty"
	_, err := twin3.New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Inventory = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = twin3.New(context.Background(), cfg, twin3.WithLogger(logging.NewNop()))
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Dispatch.VerificationNode = "nowhere"
	_, err = twin3.New(context.Background(), cfg, twin3.WithLogger(logging.NewNop()))
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	cfg = config.Default()
	cfg.Verification.CompletionNode = "nowhere"
	_, err = twin3.New(context.Background(), cfg, twin3.WithLogger(logging.NewNop()))
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestNew_InventoryWithoutWelcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`nodes:
  - id: verification_required
    response:
      text: Verify first
  - id: verification_complete
    response:
      text: Done
  - id: browse_tasks
    response:
      text: Tasks
  - id: fallback
    response:
      text: Sorry
`), 0o644))

	cfg := config.Default()
	cfg.Inventory = path
	_, err := twin3.New(context.Background(), cfg, twin3.WithLogger(logging.NewNop()))
	require.ErrorIs(t, err, domain.ErrNodeNotFound)
	assert.ErrorContains(t, err, `welcome "welcome"`)
}

func TestHTTPHandler_Metrics(t *testing.T) {
	app := newApp(t, nil)
	h := app.HTTPHandler()

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `twin3_node_visits_total{node_id="welcome"} 1`)
	assert.Contains(t, body, "go_goroutines")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	assert.Contains(t, w.Body.String(), strings.TrimSpace(twin3.Version))
}

func TestMCPServer(t *testing.T) {
	app := newApp(t, nil)
	assert.NotNil(t, app.MCPServer().MCPServer())
}

package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/adapters/memory"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/humanity"
	"github.com/aretw0/twin3/pkg/inventory"
	"github.com/aretw0/twin3/pkg/runner"
	"github.com/aretw0/twin3/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (http.Handler, *session.Manager) {
	t.Helper()
	inv, err := inventory.Default()
	require.NoError(t, err)
	eng, err := runtime.NewEngine(inv, runtime.WithWait(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, err)

	streams := NewStreamManager(logging.NewNop())
	mgr := session.NewManager(eng, memory.NewStore(), session.WithObserver(streams.Observe))
	all := append([]Option{WithStreams(streams)}, opts...)
	return NewHandler(mgr, all...), mgr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler, id string) domain.Conversation {
	t.Helper()
	w := do(t, h, http.MethodPost, "/sessions", fmt.Sprintf(`{"session_id": %q}`, id))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Conversation](t, w)
}

func TestHealthAndInfo(t *testing.T) {
	h, _ := newTestServer(t, WithVersion("1.2.3\n"))

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[map[string]any](t, w)
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, false, info["generator"])
	assert.Positive(t, info["inventory_nodes"])
}

func TestInventoryAndMethods(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodGet, "/inventory", "")
	require.Equal(t, http.StatusOK, w.Code)
	nodes := decode[[]domain.Node](t, w)
	assert.Equal(t, "welcome", nodes[0].ID)

	w = do(t, h, http.MethodGet, "/methods", "")
	require.Equal(t, http.StatusOK, w.Code)
	methods := decode[[]domain.VerificationMethod](t, w)
	assert.Equal(t, humanity.DefaultMethods(), methods)
}

func TestCreateSession(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	conv := decode[domain.Conversation](t, w)
	assert.NotEmpty(t, conv.SessionID)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "welcome", conv.Messages[0].NodeID)
	assert.False(t, conv.Busy)

	named := createSession(t, h, "abc")
	assert.Equal(t, "abc", named.SessionID)

	w = do(t, h, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string][]string](t, w)
	assert.ElementsMatch(t, []string{conv.SessionID, "abc"}, list["sessions"])
}

func TestGetSession_NotFound(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodGet, "/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestSendAction(t *testing.T) {
	h, _ := newTestServer(t)
	createSession(t, h, "s1")

	w := do(t, h, http.MethodPost, "/sessions/s1/actions", `{"text": "I want to verify"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[domain.TurnResult](t, w)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, domain.RoleUser, res.Messages[0].Role)
	assert.Equal(t, "verify_start", res.Messages[1].NodeID)
	assert.Equal(t, domain.KindWidget, res.Messages[2].Kind)

	w = do(t, h, http.MethodPost, "/sessions/s1/actions", `{"text": "about twin3", "show_user_message": false}`)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[domain.TurnResult](t, w)
	assert.Equal(t, domain.RoleAssistant, res.Messages[0].Role, "echo suppressed on request")
}

func TestSendAction_Suggestion(t *testing.T) {
	h, _ := newTestServer(t)
	createSession(t, h, "s1")

	w := do(t, h, http.MethodPost, "/sessions/s1/actions", `{"suggestion": {"label": "Verify my humanity", "payload": "verify_start"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[domain.TurnResult](t, w)
	assert.Equal(t, "verify_start", res.Messages[0].NodeID, "payload naming a node is an explicit action")
}

func TestSendAction_GateRedirect(t *testing.T) {
	h, _ := newTestServer(t)
	createSession(t, h, "s1")

	w := do(t, h, http.MethodPost, "/sessions/s1/actions", `{"node_id": "browse_tasks"}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[domain.TurnResult](t, w)
	assert.Equal(t, "verification_required", res.Messages[0].NodeID)
}

func TestSendAction_Rejected(t *testing.T) {
	h, _ := newTestServer(t, WithMaxInputSize(16))
	createSession(t, h, "s1")

	w := do(t, h, http.MethodPost, "/sessions/s1/actions", `{"text": "this text is far too long"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/s1/actions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/missing/actions", `{"text": "hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/s1/actions", `{"node_id": "nowhere"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/sessions/s1", "")
	conv := decode[domain.Conversation](t, w)
	assert.False(t, conv.Busy, "failed turns leave the session idle")
}

func TestVerificationAndScore(t *testing.T) {
	h, _ := newTestServer(t)
	createSession(t, h, "s1")

	w := do(t, h, http.MethodPost, "/sessions/s1/verifications", `{"method_id": "passport"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[humanity.Report](t, w)
	assert.Equal(t, 64, report.Score)

	w = do(t, h, http.MethodPost, "/sessions/s1/verifications", `{"method_id": "retina"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/sessions/s1/score", "")
	require.Equal(t, http.StatusOK, w.Code)
	report = decode[humanity.Report](t, w)
	assert.Equal(t, 64, report.Score)

	w = do(t, h, http.MethodGet, "/sessions/s1", "")
	conv := decode[domain.Conversation](t, w)
	assert.True(t, conv.Verified)
}

func TestResetAndDelete(t *testing.T) {
	h, _ := newTestServer(t)
	createSession(t, h, "s1")
	do(t, h, http.MethodPost, "/sessions/s1/actions", `{"text": "hello"}`)

	w := do(t, h, http.MethodPost, "/sessions/s1/reset", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/sessions/s1", "")
	conv := decode[domain.Conversation](t, w)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "welcome", conv.Messages[0].NodeID)

	w = do(t, h, http.MethodDelete, "/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/sessions/s1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "twin3_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h, _ := newTestServer(t, WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "twin3_test_total 1")
}

func TestCORS(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodOptions, "/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := map[error]int{
		domain.ErrSessionNotFound:                       http.StatusNotFound,
		fmt.Errorf("x: %w", domain.ErrNodeNotFound):     http.StatusNotFound,
		session.ErrBusy:                                 http.StatusConflict,
		session.ErrSuperseded:                           http.StatusConflict,
		fmt.Errorf("%w: size", runner.ErrInputTooLarge): http.StatusBadRequest,
		runner.ErrInvalidUTF8:                           http.StatusBadRequest,
		session.ErrUnknownMethod:                        http.StatusBadRequest,
		errors.New("disk full"):                         http.StatusInternalServerError,
	}
	for err, want := range tests {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestMatchesWatch(t *testing.T) {
	busy := false
	diff := domain.ConversationDiff{SessionID: "s1", Busy: &busy}
	data, err := json.Marshal(diff)
	require.NoError(t, err)

	assert.True(t, matchesWatch(string(data), []string{"status"}))
	assert.False(t, matchesWatch(string(data), []string{"messages", " suggestions"}))
}

func TestSubscribeEvents(t *testing.T) {
	h, _ := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	createSession(t, h, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/s1/events?watch=messages", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	next := func() string {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream closed early")
			return l
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for SSE line")
			return ""
		}
	}
	require.Equal(t, "event: ping", next())

	post, err := http.Post(srv.URL+"/sessions/s1/actions", "application/json", bytes.NewBufferString(`{"text": "verify"}`))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)

	for {
		line := next()
		if !strings.HasPrefix(line, "data: {") {
			continue
		}
		var diff domain.ConversationDiff
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &diff))
		assert.Equal(t, "s1", diff.SessionID)
		require.NotEmpty(t, diff.Appended, "watch=messages only forwards log changes")
		assert.Equal(t, "verify", diff.Appended[0].Content)
		break
	}

	cancel()
	for range lines {
	}
}

func TestSubscribeEvents_UnknownSession(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodGet, "/sessions/missing/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

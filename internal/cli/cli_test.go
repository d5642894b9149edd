package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/twin3"
	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *twin3.App {
	t.Helper()
	app, err := twin3.New(context.Background(), nil,
		twin3.WithLogger(logging.NewNop()),
		twin3.WithEngineOptions(runtime.WithWait(func(context.Context, time.Duration) error { return nil })),
	)
	require.NoError(t, err)
	return app
}

func TestRunChat_Plain(t *testing.T) {
	app := newApp(t)
	out := &bytes.Buffer{}

	err := RunChat(context.Background(), app, ChatOptions{SessionID: "cli"}, strings.NewReader("verify\n/score\n"), out)
	require.NoError(t, err)

	text := out.String()
	assert.NotContains(t, text, "> ", "no prompt when not interactive")
	assert.NotContains(t, text, "your digital twin guide", "no banner when not interactive")
	assert.Contains(t, text, "Welcome to twin3.")
	assert.Contains(t, text, "[verification]")
	assert.Contains(t, text, "Humanity Index: 0/255")
}

func TestRunChat_Interactive(t *testing.T) {
	app := newApp(t)
	out := &bytes.Buffer{}

	err := RunChat(context.Background(), app, ChatOptions{Interactive: true, Plain: true}, strings.NewReader(""), out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "your digital twin guide")
	assert.Contains(t, out.String(), "**Welcome to twin3.**", "plain keeps raw markdown")
}

func TestRunChat_Fresh(t *testing.T) {
	app := newApp(t)
	ctx := context.Background()
	_, err := app.Sessions.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = app.Sessions.Send(ctx, "s1", domain.Say("rewards"))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	require.NoError(t, RunChat(ctx, app, ChatOptions{SessionID: "s1", Fresh: true}, strings.NewReader(""), out))
	assert.NotContains(t, out.String(), "Season 1 rewards")

	conv, err := app.Sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1)
}

func TestRunChat_JSON(t *testing.T) {
	app := newApp(t)
	out := &bytes.Buffer{}
	require.NoError(t, RunChat(context.Background(), app, ChatOptions{JSON: true}, strings.NewReader(`"hello"`+"\n"), out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"node_id":"greeting"`)
}

func TestServeListener(t *testing.T) {
	app := newApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, app, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServe_BadAddress(t *testing.T) {
	app := newApp(t)
	err := Serve(context.Background(), app, "256.0.0.1:-1")
	assert.ErrorContains(t, err, "failed to listen")
}

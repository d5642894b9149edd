package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/adapters/memory"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/inventory"
	"github.com/aretw0/twin3/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const slowDelay = 777 * time.Millisecond

// blocker holds every wait for slowDelay until released; other waits return immediately.
type blocker struct {
	release chan struct{}
	once    sync.Once
}

func newBlocker() *blocker {
	return &blocker{release: make(chan struct{})}
}

func (b *blocker) Wait(ctx context.Context, d time.Duration) error {
	if d != slowDelay {
		return nil
	}
	<-b.release
	return nil
}

func (b *blocker) Release() {
	b.once.Do(func() { close(b.release) })
}

func testInventory(t *testing.T) *inventory.Inventory {
	t.Helper()
	b := inventory.NewBuilder()
	b.Add("welcome").Text("Welcome to twin3").
		Suggest("Verify", "verify_start")
	b.Add("verify_start").On("verify").Text("Pick a method").
		Widget(domain.WidgetVerification)
	b.Add("verification_required").Text("Please verify first")
	b.Add("verification_complete").Text("Verified!").
		Widget(domain.WidgetHumanity)
	b.Add("browse_tasks").On("task").Text("Open tasks").
		Widget(domain.WidgetTaskBoard)
	b.Add("slow").On("slow").Text("...finally").Delay(int(slowDelay / time.Millisecond))
	b.Add(domain.FallbackNodeID).Text("Not sure I got that")
	inv, err := b.Build()
	require.NoError(t, err)
	return inv
}

type fixture struct {
	mgr     *session.Manager
	flags   *memory.FlagStore
	blocker *blocker
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	bl := newBlocker()
	t.Cleanup(bl.Release)

	eng, err := runtime.NewEngine(testInventory(t), runtime.WithWait(bl.Wait))
	require.NoError(t, err)

	flags := memory.NewFlagStore()
	all := append([]session.Option{session.WithFlagStore(flags)}, opts...)
	return &fixture{
		mgr:     session.NewManager(eng, memory.NewStore(), all...),
		flags:   flags,
		blocker: bl,
	}
}

func contents(conv *domain.Conversation) []string {
	out := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.Kind == domain.KindWidget {
			out = append(out, "<"+string(m.Widget)+">")
			continue
		}
		out = append(out, m.Content)
	}
	return out
}

func TestManager_StartRunsWelcomeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome to twin3"}, contents(conv))
	assert.Equal(t, []domain.Suggestion{{Label: "Verify", Payload: "verify_start"}}, conv.Suggestions)
	assert.False(t, conv.Busy)

	conv, err = f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1, "starting an existing session is a no-op")
}

func TestManager_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	b, err := f.mgr.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID, b.SessionID)

	ids, err := f.mgr.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.SessionID, b.SessionID}, ids)
}

func TestManager_Send(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)

	res, err := f.mgr.Send(ctx, "s1", domain.Say("I want to verify"))
	require.NoError(t, err)
	assert.Len(t, res.Messages, 3)

	conv, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome to twin3", "I want to verify", "Pick a method", "<verification>"}, contents(conv))
	assert.Empty(t, conv.Suggestions)
	assert.False(t, conv.Busy)
}

func TestManager_SendUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Send(context.Background(), "missing", domain.Say("hi"))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_SendWhileBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Send(ctx, "s1", domain.Say("slow please"))
		done <- err
	}()

	require.Eventually(t, func() bool {
		conv, err := f.mgr.Get(ctx, "s1")
		return err == nil && conv.Busy && len(conv.Messages) == 2
	}, time.Second, 5*time.Millisecond)

	before, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)

	_, err = f.mgr.Send(ctx, "s1", domain.Say("hello?"))
	assert.ErrorIs(t, err, session.ErrBusy)

	after, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, len(before.Messages), len(after.Messages), "a rejected action leaves no trace")

	f.blocker.Release()
	require.NoError(t, <-done)

	conv, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, conv.Busy)
	assert.Equal(t, "...finally", conv.Messages[len(conv.Messages)-1].Content)
}

func TestManager_SendSurvivesCanceledContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Start(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.mgr.Send(ctx, "s1", domain.Say("verify"))
	require.NoError(t, err)

	conv, err := f.mgr.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
	assert.False(t, conv.Busy)
}

func TestManager_ResetIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = f.mgr.Send(ctx, "s1", domain.Say("verify"))
	require.NoError(t, err)
	_, err = f.mgr.Send(ctx, "s1", domain.Say("gibberish"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.mgr.Reset(ctx, "s1")
		require.NoError(t, err)

		conv, err := f.mgr.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Welcome to twin3"}, contents(conv))
		assert.Equal(t, []domain.Suggestion{{Label: "Verify", Payload: "verify_start"}}, conv.Suggestions)
		assert.False(t, conv.Busy)
		assert.Equal(t, uint64(i+1), conv.Generation)
	}
}

func TestManager_ResetKeepsVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = f.mgr.CompleteMethod(ctx, "s1", "email")
	require.NoError(t, err)

	_, err = f.mgr.Reset(ctx, "s1")
	require.NoError(t, err)

	conv, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, conv.Verified)
	assert.Equal(t, []string{"email"}, conv.Completed)
}

func TestManager_ResetDropsPendingTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Send(ctx, "s1", domain.Goto("slow"))
		done <- err
	}()
	require.Eventually(t, func() bool {
		conv, err := f.mgr.Get(ctx, "s1")
		return err == nil && conv.Busy
	}, time.Second, 5*time.Millisecond)

	_, err = f.mgr.Reset(ctx, "s1")
	require.NoError(t, err)

	f.blocker.Release()
	assert.ErrorIs(t, <-done, session.ErrSuperseded)

	conv, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome to twin3"}, contents(conv), "the superseded reply never lands")
	assert.False(t, conv.Busy)
}

func TestManager_GateOpensAfterVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)

	res, err := f.mgr.Send(ctx, "s1", domain.Say("browse tasks"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Please verify first", res.Messages[0].Content)

	_, err = f.mgr.CompleteMethod(ctx, "s1", "passport")
	require.NoError(t, err)

	res, err = f.mgr.Send(ctx, "s1", domain.Say("browse tasks"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "Open tasks", res.Messages[1].Content)
}

func TestManager_CompleteMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)

	report, err := f.mgr.CompleteMethod(ctx, "s1", "email")
	require.NoError(t, err)
	assert.Equal(t, 31, report.Score)

	conv, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, conv.Verified)
	assert.Equal(t, []string{"Welcome to twin3", "Verified!", "<humanity_index>"}, contents(conv))

	for flag, want := range map[string]string{
		session.FlagVerified:  "true",
		session.FlagScore:     "31",
		session.FlagCompleted: "email",
	} {
		got, err := f.flags.Get(ctx, session.FlagKey("s1", flag))
		require.NoError(t, err)
		assert.Equal(t, want, got, flag)
	}

	report, err = f.mgr.CompleteMethod(ctx, "s1", "email")
	require.NoError(t, err)
	assert.Equal(t, 31, report.Score, "duplicates count once")

	conv, err = f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 3, "no follow-up turn for a repeated method")

	report, err = f.mgr.Score(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 31, report.Score)
}

func TestManager_CompleteUnknownMethod(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Start(context.Background(), "s1")
	require.NoError(t, err)

	_, err = f.mgr.CompleteMethod(context.Background(), "s1", "retina")
	assert.ErrorIs(t, err, session.ErrUnknownMethod)
}

func TestManager_Threshold(t *testing.T) {
	f := newFixture(t, session.WithThreshold(128), session.WithCompletionNode(""))
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)

	_, err = f.mgr.CompleteMethod(ctx, "s1", "email")
	require.NoError(t, err)
	conv, err := f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, conv.Verified)
	assert.Len(t, conv.Messages, 1, "completion turn disabled")

	for _, id := range []string{"passport", "world_id"} {
		_, err = f.mgr.CompleteMethod(ctx, "s1", id)
		require.NoError(t, err)
	}
	conv, err = f.mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, conv.Verified, "0.57 of 255 is past 128")
}

func TestManager_StartRestoresFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.flags.Set(ctx, session.FlagKey("s1", session.FlagCompleted), "passport,bogus,world_id"))

	conv, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, conv.Verified)
	assert.Equal(t, []string{"passport", "world_id"}, conv.Completed)
}

func TestManager_DeleteClearsFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = f.mgr.CompleteMethod(ctx, "s1", "email")
	require.NoError(t, err)

	require.NoError(t, f.mgr.Delete(ctx, "s1"))

	_, err = f.mgr.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	conv, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, conv.Verified)
	assert.Empty(t, conv.Completed)
}

func TestManager_Observer(t *testing.T) {
	var (
		mu    sync.Mutex
		diffs []*domain.ConversationDiff
	)
	f := newFixture(t, session.WithObserver(func(ctx context.Context, d *domain.ConversationDiff) {
		mu.Lock()
		defer mu.Unlock()
		diffs = append(diffs, d)
	}))
	ctx := context.Background()

	_, err := f.mgr.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = f.mgr.Reset(ctx, "s1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, diffs)

	var appended, resets int
	for _, d := range diffs {
		assert.Equal(t, "s1", d.SessionID)
		assert.False(t, d.IsEmpty())
		appended += len(d.Appended)
		if d.Reset {
			resets++
		}
	}
	assert.Equal(t, 1, resets)
	assert.Equal(t, 2, appended, "one welcome message per conversation")

	last := diffs[len(diffs)-1]
	require.NotNil(t, last.Busy)
	assert.False(t, *last.Busy, "every turn ends idle")
}

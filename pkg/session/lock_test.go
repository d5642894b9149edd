package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/adapters/memory"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/inventory"
	"github.com/aretw0/twin3/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	inv, err := inventory.Default()
	require.NoError(t, err)
	eng, err := runtime.NewEngine(inv, runtime.WithWait(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, err)
	return NewManager(eng, memory.NewStore(), opts...)
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	count := 1000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_, _ = mgr.Start(ctx, sid)
		_ = mgr.Delete(ctx, sid)
	}

	assert.Empty(t, mgr.locks, "locks must be released once no caller holds them")
}

func TestManager_ConcurrentStart(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Start(ctx, "atomic-init")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	conv, err := mgr.Get(ctx, "atomic-init")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1, "only one welcome turn")
	assert.False(t, conv.Busy)
}

type stubLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
	err     error
}

func (l *stubLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locks++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocks++
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &stubLocker{}
	mgr := newTestManager(t, WithLocker(locker), WithLockTTL(time.Second))
	ctx := context.Background()

	_, err := mgr.Start(ctx, "s1")
	require.NoError(t, err)

	locker.mu.Lock()
	assert.Positive(t, locker.locks)
	assert.Equal(t, locker.locks, locker.unlocks)
	locker.mu.Unlock()

	locker.err = errors.New("redis down")
	_, err = mgr.Get(ctx, "s1")
	assert.ErrorContains(t, err, "distributed lock")
}

func TestManager_StuckBusyIsCleared(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore()}
	inv, err := inventory.Default()
	require.NoError(t, err)
	eng, err := runtime.NewEngine(inv, runtime.WithWait(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, err)
	mgr := NewManager(eng, store)
	ctx := context.Background()

	_, err = mgr.Start(ctx, "s1")
	require.NoError(t, err)

	store.failNext(1)
	_, err = mgr.Send(ctx, "s1", domain.Say("hello"))
	assert.Error(t, err)

	conv, err := mgr.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, conv.Busy)
}

// flakyStore fails a number of saves after admission.
type flakyStore struct {
	*memory.Store
	mu    sync.Mutex
	skip  int
	fails int
}

func (s *flakyStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skip = 1 // let the admission save through
	s.fails = n
}

func (s *flakyStore) Save(ctx context.Context, sessionID string, conv *domain.Conversation) error {
	s.mu.Lock()
	if s.skip > 0 {
		s.skip--
		s.mu.Unlock()
		return s.Store.Save(ctx, sessionID, conv)
	}
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("disk full")
	}
	s.mu.Unlock()
	return s.Store.Save(ctx, sessionID, conv)
}

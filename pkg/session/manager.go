package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/internal/runtime"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/humanity"
	"github.com/aretw0/twin3/pkg/ports"
)

var (
	// ErrBusy is returned when an action arrives while a turn is in flight.
	ErrBusy = errors.New("a turn is already in progress")

	// ErrSuperseded is returned when a "new conversation" reset replaced the
	// log while the turn was running. Its messages were dropped.
	ErrSuperseded = errors.New("turn superseded by a new conversation")

	// ErrUnknownMethod is returned for verification methods missing from the table.
	ErrUnknownMethod = errors.New("unknown verification method")
)

// Defaults for the manager.
const (
	DefaultWelcomeNode    = "welcome"
	DefaultCompletionNode = "verification_complete"
	DefaultLockTTL        = 30 * time.Second
)

// Observer receives the change produced by each persisted mutation.
type Observer func(ctx context.Context, diff *domain.ConversationDiff)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	engine  *runtime.Engine
	store   ports.ConversationStore
	flags   ports.FlagStore
	methods []domain.VerificationMethod

	welcomeNode    string
	completionNode string
	threshold      int

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration

	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithFlagStore persists the verified status, score and completed methods
// under "<session>:verified", "<session>:score" and "<session>:completed".
func WithFlagStore(flags ports.FlagStore) Option {
	return func(m *Manager) {
		m.flags = flags
	}
}

// WithMethods replaces the verification method table.
func WithMethods(methods []domain.VerificationMethod) Option {
	return func(m *Manager) {
		m.methods = methods
	}
}

// WithThreshold sets the humanity score at which a session becomes verified.
func WithThreshold(score int) Option {
	return func(m *Manager) {
		if score > 0 {
			m.threshold = score
		}
	}
}

// WithWelcomeNode sets the node shown when a conversation starts.
func WithWelcomeNode(id string) Option {
	return func(m *Manager) {
		m.welcomeNode = id
	}
}

// WithCompletionNode sets the node shown after a verification method
// completes. An empty id disables the follow-up turn.
func WithCompletionNode(id string) Option {
	return func(m *Manager) {
		m.completionNode = id
	}
}

// WithObserver registers a change listener. It is called outside the session lock.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Session Manager that runs turns on engine and persists them in store.
func NewManager(engine *runtime.Engine, store ports.ConversationStore, opts ...Option) *Manager {
	m := &Manager{
		engine:         engine,
		store:          store,
		methods:        humanity.DefaultMethods(),
		welcomeNode:    DefaultWelcomeNode,
		completionNode: DefaultCompletionNode,
		threshold:      1,
		locks:          make(map[string]*lockEntry),
		lockTTL:        DefaultLockTTL,
		logger:         logging.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// update applies fn to the stored conversation under the session lock and
// persists the result. When fn returns an error nothing is saved.
func (m *Manager) update(ctx context.Context, sessionID string, fn func(*domain.Conversation) error) (*domain.Conversation, error) {
	var before, after *domain.Conversation
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		conv, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		before = conv.Clone()
		if err := fn(conv); err != nil {
			return err
		}
		conv.UpdatedAt = m.now()
		if err := m.store.Save(ctx, sessionID, conv); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		after = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.Diff(before, after))
	return after.Clone(), nil
}

func (m *Manager) notify(ctx context.Context, diff *domain.ConversationDiff) {
	if diff == nil {
		return
	}
	for _, o := range m.observers {
		o(ctx, diff)
	}
}

// Get returns a snapshot of the session's conversation.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		conv, err = m.store.Load(ctx, sessionID)
		return err
	})
	return conv, err
}

// Delete removes the session and clears its persisted flags.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	return m.saveFlags(ctx, sessionID, false, 0, nil)
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Engine returns the dispatcher turns run on.
func (m *Manager) Engine() *runtime.Engine {
	return m.engine
}

// Methods returns the verification method table.
func (m *Manager) Methods() []domain.VerificationMethod {
	return m.methods
}

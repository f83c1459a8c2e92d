package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/runtime"
)

// Sentinel errors
var (
	ErrInvalidChatID = errors.New("invalid chat id")
	// ErrUnavailable marks a hard acquisition failure; callers should retry later.
	ErrUnavailable = errors.New("sandbox unavailable")
)

// errResetDuringAcquire tells waiters of a discarded flight to start over.
var errResetDuringAcquire = errors.New("chat reset during acquisition")

const (
	// acquireTimeout bounds one shared reconnect/recreate flight.
	acquireTimeout = 2 * time.Minute

	maxAcquireAttempts = 3
)

type Manager struct {
	ttl          time.Duration
	minRemaining time.Duration

	driver runtime.Driver
	store  RecordStore
	files  FileSource
	cache  *InstanceCache
	pool   SandboxPool
	logger *slog.Logger

	// flights coalesces concurrent reconnect/recreate work per chat id.
	flights singleflight.Group

	// resets counts Reset calls per chat. A flight only publishes its
	// sandbox if the count did not move while it ran.
	resetMu sync.Mutex
	resets  map[string]uint64

	now func() time.Time

	warmHits   atomic.Int64
	reconnects atomic.Int64
	recreates  atomic.Int64
}

// NewManager wires the lifecycle manager. pool may be nil.
func NewManager(cfg *config.Config, driver runtime.Driver, st RecordStore, files FileSource, cache *InstanceCache, pool SandboxPool, logger *slog.Logger) *Manager {
	return &Manager{
		ttl:          cfg.SandboxTTL(),
		minRemaining: cfg.MinRemainingTTL(),
		driver:       driver,
		store:        st,
		files:        files,
		cache:        cache,
		pool:         pool,
		logger:       logger.With("component", "session"),
		now:          time.Now,
		resets:       make(map[string]uint64),
	}
}

// Driver returns the driver sandboxes are created with.
func (m *Manager) Driver() runtime.Driver {
	return m.driver
}

// Invalidate drops the process-local handle for chatID. Durable state is
// untouched, so the next Acquire re-verifies through the reconnect path.
func (m *Manager) Invalidate(chatID string) {
	if _, ok := m.cache.Delete(chatID); ok {
		m.logger.Debug("cache entry invalidated", "chat_id", chatID)
	}
}

// Reset forces the next Acquire to create a fresh sandbox and rehydrate it
// from saved files. The current sandbox, if known, is killed best-effort.
// A flight already in progress for the chat is detached: its result is
// discarded and its waiters start over.
func (m *Manager) Reset(ctx context.Context, chatID string) error {
	m.resetMu.Lock()
	m.resets[chatID]++
	sb, ok := m.cache.Delete(chatID)
	m.resetMu.Unlock()
	m.flights.Forget(chatID)

	if ok {
		if err := sb.Kill(ctx); err != nil {
			m.logger.Debug("kill on reset failed", "chat_id", chatID, "sandbox_id", sb.ID(), "error", err)
		}
	}
	return m.store.ClearSandbox(ctx, chatID, "")
}

func (m *Manager) resetCount(chatID string) uint64 {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	return m.resets[chatID]
}

// publish caches sb unless the chat was reset since gen was read.
func (m *Manager) publish(chatID string, gen uint64, sb runtime.Sandbox, expiresAt time.Time) bool {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	if m.resets[chatID] != gen {
		return false
	}
	m.cache.Put(chatID, sb, expiresAt)
	return true
}

type Stats struct {
	CachedSandboxes int   `json:"cached_sandboxes"`
	WarmHits        int64 `json:"warm_hits"`
	Reconnects      int64 `json:"reconnects"`
	Recreates       int64 `json:"recreates"`
}

func (m *Manager) Stats() Stats {
	return Stats{
		CachedSandboxes: m.cache.Len(),
		WarmHits:        m.warmHits.Load(),
		Reconnects:      m.reconnects.Load(),
		Recreates:       m.recreates.Load(),
	}
}

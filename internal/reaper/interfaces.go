package reaper

import (
	"context"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/store"
)

// ReaperStore abstracts store operations needed by the reaper.
type ReaperStore interface {
	ListExpiredSandboxRecords(ctx context.Context, now time.Time) ([]*store.SandboxRecord, error)
	ListSandboxRecords(ctx context.Context) ([]*store.SandboxRecord, error)
	ClearSandbox(ctx context.Context, chatID, sandboxID string) error
}

// ReaperRuntime is the part of runtime.Driver the reaper uses. Drivers that
// also implement runtime.Lister get orphan removal and reconciliation.
type ReaperRuntime interface {
	Name() string
	Connect(ctx context.Context, sandboxID string) (runtime.Sandbox, error)
}

// CacheSweeper drops expired process-local cache entries.
type CacheSweeper interface {
	Sweep(now time.Time) int
}

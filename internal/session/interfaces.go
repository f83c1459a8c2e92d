package session

import (
	"context"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/store"
)

type RecordStore interface {
	GetSandboxRecord(ctx context.Context, chatID string) (*store.SandboxRecord, error)
	UpsertSandboxRecord(ctx context.Context, rec *store.SandboxRecord) error
	ExtendSandboxExpiry(ctx context.Context, chatID, sandboxID string, expiresAt time.Time) error
	ClearSandbox(ctx context.Context, chatID, sandboxID string) error
}

// FileSource supplies the saved workspace used to rehydrate a new sandbox.
type FileSource interface {
	ListSavedFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error)
	// ResolveContent returns the bytes to write for a saved file, following
	// blob references.
	ResolveContent(ctx context.Context, f *store.WorkspaceFile) ([]byte, error)
}

type SandboxPool interface {
	Get(ctx context.Context) (runtime.Sandbox, bool)
}

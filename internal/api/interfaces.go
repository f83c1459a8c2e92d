package api

import (
	"context"

	"github.com/p-arndt/werkbank/internal/ingest"
	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/session"
	"github.com/p-arndt/werkbank/protocol"
)

// SessionService abstracts sandbox lifecycle operations needed by API handlers.
type SessionService interface {
	Acquire(ctx context.Context, chatID string) (runtime.Sandbox, error)
	Invalidate(chatID string)
	Reset(ctx context.Context, chatID string) error
	Stats() session.Stats
	Driver() runtime.Driver
}

// WorkspaceService abstracts the saved workspace of a chat.
type WorkspaceService interface {
	ListPaths(ctx context.Context, chatID string) ([]string, error)
	AddPath(ctx context.Context, chatID, path string) error
	RemovePath(ctx context.Context, chatID, path string) error
	SaveFile(ctx context.Context, chatID, path, content string) error
	SaveBinaryFile(ctx context.Context, chatID, path string, data []byte) error
	ReadFile(ctx context.Context, chatID, path string) ([]byte, bool, error)
	DeleteFile(ctx context.Context, chatID, path string) error
	BuildContext(ctx context.Context, chatID string) string
	SyncFromSandbox(ctx context.Context, chatID, path string) ([]byte, bool, error)
}

type Ingester interface {
	IngestMessageAttachments(ctx context.Context, chatID string, msg protocol.Message) (*ingest.Result, error)
}

type Rollbacker interface {
	RollbackToSequence(ctx context.Context, chatID string, upTo int, messages []protocol.Message) ([]string, error)
}

// PoolStats reports the warm pool's fill level.
type PoolStats interface {
	Len() int
}

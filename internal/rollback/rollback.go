// Package rollback restores a chat's saved workspace to the state implied by
// its message history up to a point, for regenerate and edit-and-resend.
package rollback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-arndt/werkbank/internal/store"
	"github.com/p-arndt/werkbank/internal/workspace"
	"github.com/p-arndt/werkbank/protocol"
)

type Store interface {
	ListWorkspaceFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error)
	ReplaceWorkspace(ctx context.Context, chatID string, files []store.WorkspaceFile) error
	DeleteBlob(ctx context.Context, key string) error
}

type Resetter interface {
	Reset(ctx context.Context, chatID string) error
}

type Service struct {
	store    Store
	sessions Resetter
	logger   *slog.Logger
}

func NewService(st Store, sessions Resetter, logger *slog.Logger) *Service {
	return &Service{store: st, sessions: sessions, logger: logger.With("component", "rollback")}
}

// RollbackToSequence replaces every saved file of chatID with the result of
// replaying messages up to upTo, then resets the chat's sandbox so the next
// acquisition rehydrates from the restored files. It returns the restored
// paths.
func (s *Service) RollbackToSequence(ctx context.Context, chatID string, upTo int, messages []protocol.Message) ([]string, error) {
	paths, contents := Replay(messages, upTo)

	previous, err := s.store.ListWorkspaceFiles(ctx, chatID)
	if err != nil {
		s.logger.Debug("listing files before rollback failed", "chat_id", chatID, "error", err)
	}

	files := make([]store.WorkspaceFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, store.WorkspaceFile{ChatID: chatID, Path: p, Content: contents[p]})
	}
	if err := s.store.ReplaceWorkspace(ctx, chatID, files); err != nil {
		return nil, fmt.Errorf("restoring workspace: %w", err)
	}

	// replayed files are always inline, so every old blob is unreferenced now
	for _, f := range previous {
		if workspace.IsBlobRef(f.Content) {
			_ = s.store.DeleteBlob(ctx, workspace.BlobKey(f.Content))
		}
	}

	if err := s.sessions.Reset(ctx, chatID); err != nil {
		return nil, fmt.Errorf("resetting sandbox: %w", err)
	}

	s.logger.Info("workspace rolled back", "chat_id", chatID, "up_to_sequence", upTo, "files", len(paths))
	return paths, nil
}

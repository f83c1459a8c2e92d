package workspace

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/p-arndt/werkbank/internal/runtime"
)

// MaxSyncBytes caps a file pulled back from a live sandbox.
const MaxSyncBytes = 200 << 20

type Acquirer interface {
	Acquire(ctx context.Context, chatID string) (runtime.Sandbox, error)
}

// Syncer recovers files that exist in the live sandbox but were never saved,
// for example output written by code the sandbox ran.
type Syncer struct {
	tracker  *Tracker
	acquirer Acquirer
	base     string
	logger   *slog.Logger
}

func NewSyncer(tracker *Tracker, acquirer Acquirer, base string, logger *slog.Logger) *Syncer {
	return &Syncer{tracker: tracker, acquirer: acquirer, base: base, logger: logger.With("component", "sync")}
}

// Sync reads path from the chat's sandbox and, when it holds data, saves and
// tracks it. found is false for paths outside the workspace or missing in
// the sandbox. Only acquisition and persistence failures are returned.
func (s *Syncer) Sync(ctx context.Context, chatID, path string) (data []byte, found bool, err error) {
	if ValidatePath(path) != nil || !InBase(s.base, path) {
		return nil, false, nil
	}

	sb, err := s.acquirer.Acquire(ctx, chatID)
	if err != nil {
		return nil, false, err
	}

	data, err = sb.ReadFile(ctx, path)
	if err != nil {
		s.logger.Debug("file not readable in sandbox", "chat_id", chatID, "path", path, "error", err)
		return nil, false, nil
	}
	if len(data) == 0 || len(data) > MaxSyncBytes {
		return nil, false, nil
	}

	if IsTextFile(path) && utf8.Valid(data) {
		err = s.tracker.SaveFile(ctx, chatID, path, string(data))
	} else {
		err = s.tracker.SaveBinaryFile(ctx, chatID, path, data)
	}
	if err != nil {
		return nil, false, err
	}
	if err := s.tracker.AddPath(ctx, chatID, path); err != nil {
		s.logger.Warn("tracking synced file failed", "chat_id", chatID, "path", path, "error", err)
	}

	s.logger.Info("file synced from sandbox", "chat_id", chatID, "path", path, "bytes", len(data))
	return data, true, nil
}

package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/p-arndt/werkbank/internal/store"
)

// Sentinel errors
var (
	ErrNotFound    = errors.New("workspace file not found")
	ErrInvalidPath = errors.New("invalid workspace path")
)

const (
	// BlobRefPrefix marks saved content that lives in the blob table.
	BlobRefPrefix = "storage://"

	// LargeTextThreshold is the size above which text is stored as a blob.
	LargeTextThreshold = 1 << 20
)

// IsBlobRef reports whether saved content is a blob reference.
func IsBlobRef(content string) bool {
	return strings.HasPrefix(content, BlobRefPrefix)
}

// BlobKey returns the blob key a reference points at.
func BlobKey(content string) string {
	return strings.TrimPrefix(content, BlobRefPrefix)
}

type Store interface {
	ListWorkspacePaths(ctx context.Context, chatID string) ([]string, error)
	AddWorkspacePath(ctx context.Context, chatID, path string) (bool, error)
	RemoveWorkspacePath(ctx context.Context, chatID, path string) (bool, error)

	SaveWorkspaceFile(ctx context.Context, chatID, path, content string) error
	GetWorkspaceFile(ctx context.Context, chatID, path string) (*store.WorkspaceFile, error)
	DeleteWorkspaceFile(ctx context.Context, chatID, path string) error
	ListWorkspaceFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error)

	PutBlob(ctx context.Context, key string, data []byte) error
	GetBlob(ctx context.Context, key string) ([]byte, error)
	DeleteBlob(ctx context.Context, key string) error
}

// Tracker records which paths a chat's sandbox holds and persists their
// content so a replacement sandbox can be rehydrated.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(st Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		logger: logger.With("component", "workspace"),
		now:    time.Now,
	}
}

// ListPaths returns the tracked paths in insertion order. Malformed stored
// data yields an empty list.
func (t *Tracker) ListPaths(ctx context.Context, chatID string) ([]string, error) {
	return t.store.ListWorkspacePaths(ctx, chatID)
}

// AddPath tracks path for chatID. Adding a tracked path writes nothing.
func (t *Tracker) AddPath(ctx context.Context, chatID, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	_, err := t.store.AddWorkspacePath(ctx, chatID, path)
	return err
}

// RemovePath stops tracking path. Removing an untracked path writes nothing.
func (t *Tracker) RemovePath(ctx context.Context, chatID, path string) error {
	_, err := t.store.RemoveWorkspacePath(ctx, chatID, path)
	return err
}

// SaveFile persists text content for path. Content above
// LargeTextThreshold goes to the blob table; if that fails the row is
// written directly as a last resort.
func (t *Tracker) SaveFile(ctx context.Context, chatID, path, content string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	prev := t.currentBlob(ctx, chatID, path)

	if len(content) > LargeTextThreshold {
		ref, err := t.putBlob(ctx, chatID, path, []byte(content))
		if err == nil {
			if err := t.store.SaveWorkspaceFile(ctx, chatID, path, ref); err != nil {
				return err
			}
			t.dropBlob(ctx, prev, ref)
			return nil
		}
		t.logger.Warn("blob fallback for large text failed, saving inline",
			"chat_id", chatID, "path", path, "size", units.HumanSize(float64(len(content))), "error", err)
	}

	if err := t.store.SaveWorkspaceFile(ctx, chatID, path, content); err != nil {
		return err
	}
	t.dropBlob(ctx, prev, "")
	return nil
}

// SaveBinaryFile persists data as a blob and records a reference to it.
func (t *Tracker) SaveBinaryFile(ctx context.Context, chatID, path string, data []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	prev := t.currentBlob(ctx, chatID, path)
	ref, err := t.putBlob(ctx, chatID, path, data)
	if err != nil {
		return err
	}
	if err := t.store.SaveWorkspaceFile(ctx, chatID, path, ref); err != nil {
		return err
	}
	t.dropBlob(ctx, prev, ref)
	return nil
}

// GetFile returns the saved content verbatim; blob references are not
// resolved. found is false when nothing is saved.
func (t *Tracker) GetFile(ctx context.Context, chatID, path string) (content string, found bool, err error) {
	f, err := t.store.GetWorkspaceFile(ctx, chatID, path)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return f.Content, true, nil
}

// ReadFile returns the saved bytes for path, following blob references.
func (t *Tracker) ReadFile(ctx context.Context, chatID, path string) ([]byte, bool, error) {
	f, err := t.store.GetWorkspaceFile(ctx, chatID, path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	data, err := t.ResolveContent(ctx, f)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// ResolveContent returns the bytes a saved file stands for.
func (t *Tracker) ResolveContent(ctx context.Context, f *store.WorkspaceFile) ([]byte, error) {
	if !IsBlobRef(f.Content) {
		return []byte(f.Content), nil
	}
	data, err := t.store.GetBlob(ctx, BlobKey(f.Content))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", f.Path, err)
	}
	return data, nil
}

// DeleteFile removes the saved content for path and any blob behind it.
// The path stays tracked; callers drop it with RemovePath.
func (t *Tracker) DeleteFile(ctx context.Context, chatID, path string) error {
	prev := t.currentBlob(ctx, chatID, path)
	if err := t.store.DeleteWorkspaceFile(ctx, chatID, path); err != nil {
		return err
	}
	t.dropBlob(ctx, prev, "")
	return nil
}

// ListSavedFiles returns every saved file of the chat in first-saved order.
func (t *Tracker) ListSavedFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error) {
	return t.store.ListWorkspaceFiles(ctx, chatID)
}

func (t *Tracker) putBlob(ctx context.Context, chatID, path string, data []byte) (string, error) {
	name := Basename(path)
	if name == "" {
		name = "file"
	}
	key := chatID + "/" + strconv.FormatInt(t.now().UnixNano(), 10) + "_" + name
	if err := t.store.PutBlob(ctx, key, data); err != nil {
		return "", err
	}
	return BlobRefPrefix + key, nil
}

// currentBlob returns the blob reference currently saved for path, or "".
func (t *Tracker) currentBlob(ctx context.Context, chatID, path string) string {
	content, found, err := t.GetFile(ctx, chatID, path)
	if err != nil || !found || !IsBlobRef(content) {
		return ""
	}
	return content
}

// dropBlob deletes a superseded blob. Failures only leak storage.
func (t *Tracker) dropBlob(ctx context.Context, prev, keep string) {
	if prev == "" || prev == keep {
		return
	}
	if err := t.store.DeleteBlob(ctx, BlobKey(prev)); err != nil {
		t.logger.Debug("deleting superseded blob failed", "key", BlobKey(prev), "error", err)
	}
}

package rollback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/p-arndt/werkbank/internal/store"
	"github.com/p-arndt/werkbank/internal/testutil"
	"github.com/p-arndt/werkbank/internal/workspace"
	"github.com/p-arndt/werkbank/protocol"
)

type MockResetter struct {
	mock.Mock
}

func (m *MockResetter) Reset(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func TestRollbackToSequence(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	tr := workspace.NewTracker(st, testutil.Logger())

	// state after message 4: a.py edited, junk.txt written later
	require.NoError(t, tr.SaveFile(ctx, "c1", "/w/a.py", "edited"))
	require.NoError(t, tr.SaveFile(ctx, "c1", "/w/junk.txt", "junk"))
	require.NoError(t, tr.SaveBinaryFile(ctx, "c1", "/w/chart.png", []byte{1, 2, 3}))
	require.NoError(t, st.UpsertSandboxRecord(ctx, &store.SandboxRecord{
		ChatID:         "c1",
		SandboxID:      "sb-1",
		Driver:         "fake",
		ExpiresAt:      time.Now().Add(time.Hour),
		WorkspacePaths: []string{"/w/a.py", "/w/junk.txt", "/w/chart.png"},
	}))
	blobRef, _, err := tr.GetFile(ctx, "c1", "/w/chart.png")
	require.NoError(t, err)

	resetter := &MockResetter{}
	resetter.On("Reset", mock.Anything, "c1").Return(nil)
	svc := NewService(st, resetter, testutil.Logger())

	msgs := []protocol.Message{
		assistant(2, toolPart(protocol.PartWriteFile, map[string]any{"path": "/w/a.py", "content": "original"})),
		assistant(4,
			toolPart(protocol.PartApplyEdits, map[string]any{
				"path":  "/w/a.py",
				"edits": []map[string]any{{"startLine": 1, "endLine": 1, "newContent": "edited"}},
			}),
			toolPart(protocol.PartWriteFile, map[string]any{"path": "/w/junk.txt", "content": "junk"}),
		),
	}

	paths, err := svc.RollbackToSequence(ctx, "c1", 3, msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"/w/a.py"}, paths)
	resetter.AssertExpectations(t)

	files, err := st.ListWorkspaceFiles(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/w/a.py", files[0].Path)
	assert.Equal(t, "original", files[0].Content)

	rec, err := st.GetSandboxRecord(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, rec.SandboxID)
	assert.Equal(t, []string{"/w/a.py"}, rec.WorkspacePaths)

	_, err = st.GetBlob(ctx, workspace.BlobKey(blobRef))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRollbackToEmpty(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	require.NoError(t, st.SaveWorkspaceFile(ctx, "c1", "/w/a", "a"))

	resetter := &MockResetter{}
	resetter.On("Reset", mock.Anything, "c1").Return(nil)
	svc := NewService(st, resetter, testutil.Logger())

	paths, err := svc.RollbackToSequence(ctx, "c1", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)

	files, err := st.ListWorkspaceFiles(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRollbackResetFailure(t *testing.T) {
	st := testutil.NewTestStore(t)
	resetter := &MockResetter{}
	resetter.On("Reset", mock.Anything, "c1").Return(errors.New("db closed"))
	svc := NewService(st, resetter, testutil.Logger())

	_, err := svc.RollbackToSequence(context.Background(), "c1", 1, nil)
	assert.Error(t, err)
}

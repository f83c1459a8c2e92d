package workspace

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/p-arndt/werkbank/internal/store"
	"github.com/p-arndt/werkbank/internal/testutil"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
	t.Helper()
	st := testutil.NewTestStore(t)
	return NewTracker(st, testutil.Logger()), st
}

func TestAddPathIdempotent(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.AddPath(ctx, "c1", "/w/a.py"))
	once, err := tr.ListPaths(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, tr.AddPath(ctx, "c1", "/w/a.py"))
	twice, err := tr.ListPaths(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"/w/a.py"}, twice)
}

func TestAddPathRejectsRelative(t *testing.T) {
	tr, _ := newTestTracker(t)
	err := tr.AddPath(context.Background(), "c1", "a.py")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestRemovePathAbsentOnlyTouchesPathPrimitive(t *testing.T) {
	ms := &MockStore{}
	tr := NewTracker(ms, testutil.Logger())
	ms.On("RemoveWorkspacePath", mock.Anything, "c1", "/w/missing").Return(false, nil)

	require.NoError(t, tr.RemovePath(context.Background(), "c1", "/w/missing"))

	ms.AssertExpectations(t)
	ms.AssertNotCalled(t, "SaveWorkspaceFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ms.AssertNotCalled(t, "AddWorkspacePath", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveAndGetFile(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	content, found, err := tr.GetFile(ctx, "c1", "/w/a.txt")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, content)

	require.NoError(t, tr.SaveFile(ctx, "c1", "/w/a.txt", "hello"))
	content, found, err = tr.GetFile(ctx, "c1", "/w/a.txt")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", content)
}

func TestSaveFileLargeTextGoesToBlob(t *testing.T) {
	tr, st := newTestTracker(t)
	ctx := context.Background()
	big := strings.Repeat("x", LargeTextThreshold+1)

	require.NoError(t, tr.SaveFile(ctx, "c1", "/w/big.log", big))

	raw, found, err := tr.GetFile(ctx, "c1", "/w/big.log")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, IsBlobRef(raw))
	assert.True(t, strings.HasPrefix(raw, BlobRefPrefix+"c1/"))
	assert.True(t, strings.HasSuffix(raw, "_big.log"))

	data, found, err := tr.ReadFile(ctx, "c1", "/w/big.log")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, big, string(data))

	// overwriting with small text drops the old blob
	require.NoError(t, tr.SaveFile(ctx, "c1", "/w/big.log", "small"))
	_, err = st.GetBlob(ctx, strings.TrimPrefix(raw, BlobRefPrefix))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveFileLargeTextFallsBackInline(t *testing.T) {
	ms := &MockStore{}
	tr := NewTracker(ms, testutil.Logger())
	big := strings.Repeat("y", LargeTextThreshold+10)

	ms.On("GetWorkspaceFile", mock.Anything, "c1", "/w/big.txt").Return(nil, store.ErrNotFound)
	ms.On("PutBlob", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("blob store down"))
	ms.On("SaveWorkspaceFile", mock.Anything, "c1", "/w/big.txt", big).Return(nil)

	require.NoError(t, tr.SaveFile(context.Background(), "c1", "/w/big.txt", big))
	ms.AssertExpectations(t)
}

func TestSaveBinaryFile(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	data := []byte{0x50, 0x4b, 0x03, 0x04, 0x00}

	require.NoError(t, tr.SaveBinaryFile(ctx, "c1", "/w/deck.pptx", data))

	raw, found, err := tr.GetFile(ctx, "c1", "/w/deck.pptx")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, IsBlobRef(raw))

	got, found, err := tr.ReadFile(ctx, "c1", "/w/deck.pptx")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, data, got)
}

func TestDeleteFileRemovesBlob(t *testing.T) {
	tr, st := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.SaveBinaryFile(ctx, "c1", "/w/a.bin", []byte{1, 2, 3}))
	raw, _, err := tr.GetFile(ctx, "c1", "/w/a.bin")
	require.NoError(t, err)
	require.NoError(t, tr.AddPath(ctx, "c1", "/w/a.bin"))

	require.NoError(t, tr.DeleteFile(ctx, "c1", "/w/a.bin"))

	_, found, err := tr.GetFile(ctx, "c1", "/w/a.bin")
	require.NoError(t, err)
	assert.False(t, found)
	_, err = st.GetBlob(ctx, strings.TrimPrefix(raw, BlobRefPrefix))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// tracking is independent of content
	paths, err := tr.ListPaths(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/w/a.bin"}, paths)
}

func TestResolveContentMissingBlob(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, err := tr.ResolveContent(context.Background(), &store.WorkspaceFile{Path: "/w/x", Content: BlobRefPrefix + "c1/none"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSavedFilesIsolatedByChat(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.SaveFile(ctx, "c1", "/w/a", "1"))
	require.NoError(t, tr.SaveFile(ctx, "c2", "/w/a", "2"))

	files, err := tr.ListSavedFiles(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "1", files[0].Content)
}

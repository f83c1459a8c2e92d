package workspace

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListWorkspacePaths(ctx context.Context, chatID string) ([]string, error) {
	args := m.Called(ctx, chatID)
	if paths := args.Get(0); paths != nil {
		return paths.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) AddWorkspacePath(ctx context.Context, chatID, path string) (bool, error) {
	args := m.Called(ctx, chatID, path)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) RemoveWorkspacePath(ctx context.Context, chatID, path string) (bool, error) {
	args := m.Called(ctx, chatID, path)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) SaveWorkspaceFile(ctx context.Context, chatID, path, content string) error {
	args := m.Called(ctx, chatID, path, content)
	return args.Error(0)
}

func (m *MockStore) GetWorkspaceFile(ctx context.Context, chatID, path string) (*store.WorkspaceFile, error) {
	args := m.Called(ctx, chatID, path)
	if f := args.Get(0); f != nil {
		return f.(*store.WorkspaceFile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) DeleteWorkspaceFile(ctx context.Context, chatID, path string) error {
	args := m.Called(ctx, chatID, path)
	return args.Error(0)
}

func (m *MockStore) ListWorkspaceFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error) {
	args := m.Called(ctx, chatID)
	if files := args.Get(0); files != nil {
		return files.([]*store.WorkspaceFile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) PutBlob(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *MockStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) DeleteBlob(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockAcquirer struct {
	mock.Mock
}

func (m *MockAcquirer) Acquire(ctx context.Context, chatID string) (runtime.Sandbox, error) {
	args := m.Called(ctx, chatID)
	if sb := args.Get(0); sb != nil {
		return sb.(runtime.Sandbox), args.Error(1)
	}
	return nil, args.Error(1)
}

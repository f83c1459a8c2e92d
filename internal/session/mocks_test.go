package session

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/store"
)

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Name() string {
	return "mock"
}

func (m *MockDriver) Create(ctx context.Context, ttl time.Duration) (runtime.Sandbox, error) {
	args := m.Called(ctx, ttl)
	if sb := args.Get(0); sb != nil {
		return sb.(runtime.Sandbox), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Connect(ctx context.Context, sandboxID string) (runtime.Sandbox, error) {
	args := m.Called(ctx, sandboxID)
	if sb := args.Get(0); sb != nil {
		return sb.(runtime.Sandbox), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockSandbox struct {
	mock.Mock
	id string
}

func (m *MockSandbox) ID() string {
	return m.id
}

func (m *MockSandbox) SetTimeout(ctx context.Context, ttl time.Duration) error {
	args := m.Called(ctx, ttl)
	return args.Error(0)
}

func (m *MockSandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	args := m.Called(ctx, path, data)
	return args.Error(0)
}

func (m *MockSandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSandbox) Kill(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) GetSandboxRecord(ctx context.Context, chatID string) (*store.SandboxRecord, error) {
	args := m.Called(ctx, chatID)
	if rec := args.Get(0); rec != nil {
		return rec.(*store.SandboxRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecordStore) UpsertSandboxRecord(ctx context.Context, rec *store.SandboxRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRecordStore) ExtendSandboxExpiry(ctx context.Context, chatID, sandboxID string, expiresAt time.Time) error {
	args := m.Called(ctx, chatID, sandboxID, expiresAt)
	return args.Error(0)
}

func (m *MockRecordStore) ClearSandbox(ctx context.Context, chatID, sandboxID string) error {
	args := m.Called(ctx, chatID, sandboxID)
	return args.Error(0)
}

type MockFileSource struct {
	mock.Mock
}

func (m *MockFileSource) ListSavedFiles(ctx context.Context, chatID string) ([]*store.WorkspaceFile, error) {
	args := m.Called(ctx, chatID)
	if files := args.Get(0); files != nil {
		return files.([]*store.WorkspaceFile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFileSource) ResolveContent(ctx context.Context, f *store.WorkspaceFile) ([]byte, error) {
	args := m.Called(ctx, f)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPool struct {
	mock.Mock
}

func (m *MockPool) Get(ctx context.Context) (runtime.Sandbox, bool) {
	args := m.Called(ctx)
	if sb := args.Get(0); sb != nil {
		return sb.(runtime.Sandbox), args.Bool(1)
	}
	return nil, args.Bool(1)
}

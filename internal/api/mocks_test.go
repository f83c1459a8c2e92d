package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/p-arndt/werkbank/internal/ingest"
	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/session"
	"github.com/p-arndt/werkbank/protocol"
)

type MockSessionService struct {
	mock.Mock
	driver runtime.Driver
}

func (m *MockSessionService) Acquire(ctx context.Context, chatID string) (runtime.Sandbox, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(runtime.Sandbox), args.Error(1)
}

func (m *MockSessionService) Invalidate(chatID string) {
	m.Called(chatID)
}

func (m *MockSessionService) Reset(ctx context.Context, chatID string) error {
	return m.Called(ctx, chatID).Error(0)
}

func (m *MockSessionService) Stats() session.Stats {
	return m.Called().Get(0).(session.Stats)
}

func (m *MockSessionService) Driver() runtime.Driver {
	return m.driver
}

type MockWorkspaceService struct {
	mock.Mock
}

func (m *MockWorkspaceService) ListPaths(ctx context.Context, chatID string) ([]string, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockWorkspaceService) AddPath(ctx context.Context, chatID, path string) error {
	return m.Called(ctx, chatID, path).Error(0)
}

func (m *MockWorkspaceService) RemovePath(ctx context.Context, chatID, path string) error {
	return m.Called(ctx, chatID, path).Error(0)
}

func (m *MockWorkspaceService) SaveFile(ctx context.Context, chatID, path, content string) error {
	return m.Called(ctx, chatID, path, content).Error(0)
}

func (m *MockWorkspaceService) SaveBinaryFile(ctx context.Context, chatID, path string, data []byte) error {
	return m.Called(ctx, chatID, path, data).Error(0)
}

func (m *MockWorkspaceService) ReadFile(ctx context.Context, chatID, path string) ([]byte, bool, error) {
	args := m.Called(ctx, chatID, path)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockWorkspaceService) DeleteFile(ctx context.Context, chatID, path string) error {
	return m.Called(ctx, chatID, path).Error(0)
}

func (m *MockWorkspaceService) BuildContext(ctx context.Context, chatID string) string {
	return m.Called(ctx, chatID).String(0)
}

func (m *MockWorkspaceService) SyncFromSandbox(ctx context.Context, chatID, path string) ([]byte, bool, error) {
	args := m.Called(ctx, chatID, path)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) IngestMessageAttachments(ctx context.Context, chatID string, msg protocol.Message) (*ingest.Result, error) {
	args := m.Called(ctx, chatID, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

type MockRollbacker struct {
	mock.Mock
}

func (m *MockRollbacker) RollbackToSequence(ctx context.Context, chatID string, upTo int, messages []protocol.Message) ([]string, error) {
	args := m.Called(ctx, chatID, upTo, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type fixedPool int

func (p fixedPool) Len() int { return int(p) }

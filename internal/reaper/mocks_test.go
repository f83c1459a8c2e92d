package reaper

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/store"
)

// MockReaperStore mocks the ReaperStore interface.
type MockReaperStore struct {
	mock.Mock
}

func (m *MockReaperStore) ListExpiredSandboxRecords(ctx context.Context, now time.Time) ([]*store.SandboxRecord, error) {
	args := m.Called(ctx, now)
	if recs := args.Get(0); recs != nil {
		return recs.([]*store.SandboxRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) ListSandboxRecords(ctx context.Context) ([]*store.SandboxRecord, error) {
	args := m.Called(ctx)
	if recs := args.Get(0); recs != nil {
		return recs.([]*store.SandboxRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) ClearSandbox(ctx context.Context, chatID, sandboxID string) error {
	args := m.Called(ctx, chatID, sandboxID)
	return args.Error(0)
}

// MockReaperRuntime mocks a driver without listing support.
type MockReaperRuntime struct {
	mock.Mock
}

func (m *MockReaperRuntime) Name() string {
	return "mock"
}

func (m *MockReaperRuntime) Connect(ctx context.Context, sandboxID string) (runtime.Sandbox, error) {
	args := m.Called(ctx, sandboxID)
	if sb := args.Get(0); sb != nil {
		return sb.(runtime.Sandbox), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSandbox struct {
	mock.Mock
	runtime.Sandbox
}

func (m *MockSandbox) Kill(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Sweep(now time.Time) int {
	args := m.Called(now)
	return args.Int(0)
}

package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
)

// ErrInjected is returned by FakeDriver operations configured to fail.
var ErrInjected = errors.New("injected failure")

// FakeDriver is an in-memory runtime.Driver with failure injection.
type FakeDriver struct {
	mu        sync.Mutex
	sandboxes map[string]*FakeSandbox
	next      int

	// CreateDelay slows Create down to widen race windows in tests.
	CreateDelay    time.Duration
	FailCreate     bool
	FailConnect    bool
	FailSetTimeout bool

	// OnCreate, if set, runs at the start of every Create with its 1-based
	// call number. Tests use it to hold a creation open.
	OnCreate func(n int64)

	// FailWrites makes WriteFile fail for these paths on every sandbox.
	FailWrites map[string]bool

	Creates  atomic.Int64
	Connects atomic.Int64
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		sandboxes:  make(map[string]*FakeSandbox),
		FailWrites: make(map[string]bool),
	}
}

var (
	_ runtime.Driver = (*FakeDriver)(nil)
	_ runtime.Lister = (*FakeDriver)(nil)
)

func (d *FakeDriver) Name() string { return "fake" }

func (d *FakeDriver) Ping(ctx context.Context) error { return nil }

func (d *FakeDriver) Close() error { return nil }

func (d *FakeDriver) Create(ctx context.Context, ttl time.Duration) (runtime.Sandbox, error) {
	n := d.Creates.Add(1)
	if d.OnCreate != nil {
		d.OnCreate(n)
	}
	if d.CreateDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.CreateDelay):
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCreate {
		return nil, fmt.Errorf("create: %w", ErrInjected)
	}
	d.next++
	sb := &FakeSandbox{
		id:        fmt.Sprintf("sb-%d", d.next),
		driver:    d,
		files:     make(map[string][]byte),
		expiresAt: time.Now().Add(ttl),
		alive:     true,
	}
	d.sandboxes[sb.id] = sb
	return sb, nil
}

func (d *FakeDriver) Connect(ctx context.Context, sandboxID string) (runtime.Sandbox, error) {
	d.Connects.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailConnect {
		return nil, fmt.Errorf("connect: %w", ErrInjected)
	}
	sb, ok := d.sandboxes[sandboxID]
	if !ok || !sb.alive {
		return nil, fmt.Errorf("%w: %s", runtime.ErrSandboxNotFound, sandboxID)
	}
	return sb, nil
}

func (d *FakeDriver) List(ctx context.Context) ([]runtime.SandboxInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []runtime.SandboxInfo
	for _, sb := range d.sandboxes {
		if sb.alive {
			out = append(out, runtime.SandboxInfo{ID: sb.id, ExpiresAt: sb.expiresAt})
		}
	}
	return out, nil
}

func (d *FakeDriver) Remove(ctx context.Context, sandboxID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sb, ok := d.sandboxes[sandboxID]; ok {
		sb.alive = false
	}
	return nil
}

// Sandbox returns a sandbox by id, or nil.
func (d *FakeDriver) Sandbox(id string) *FakeSandbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sandboxes[id]
}

// Alive counts sandboxes not yet killed.
func (d *FakeDriver) Alive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, sb := range d.sandboxes {
		if sb.alive {
			n++
		}
	}
	return n
}

// Expire marks a sandbox as gone, as if its TTL had lapsed remotely.
func (d *FakeDriver) Expire(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sb, ok := d.sandboxes[id]; ok {
		sb.alive = false
	}
}

// ForgetExpiry zeroes a sandbox's expiry, as a provider with a missing or
// unreadable expiry label would report it.
func (d *FakeDriver) ForgetExpiry(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sb, ok := d.sandboxes[id]; ok {
		sb.expiresAt = time.Time{}
	}
}

type FakeSandbox struct {
	id        string
	driver    *FakeDriver
	files     map[string][]byte
	expiresAt time.Time
	alive     bool
}

func (s *FakeSandbox) ID() string { return s.id }

func (s *FakeSandbox) SetTimeout(ctx context.Context, ttl time.Duration) error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if s.driver.FailSetTimeout {
		return fmt.Errorf("set timeout: %w", ErrInjected)
	}
	s.expiresAt = time.Now().Add(ttl)
	return nil
}

func (s *FakeSandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if !s.alive {
		return runtime.ErrSandboxNotFound
	}
	if s.driver.FailWrites[path] {
		return fmt.Errorf("write %s: %w", path, ErrInjected)
	}
	s.files[path] = append([]byte(nil), data...)
	return nil
}

func (s *FakeSandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if !s.alive {
		return nil, runtime.ErrSandboxNotFound
	}
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: no such file", path)
	}
	return data, nil
}

func (s *FakeSandbox) Kill(ctx context.Context) error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	s.alive = false
	return nil
}

// Files returns a copy of the sandbox filesystem.
func (s *FakeSandbox) Files() map[string]string {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	out := make(map[string]string, len(s.files))
	for k, v := range s.files {
		out[k] = string(v)
	}
	return out
}

func (s *FakeSandbox) Alive() bool {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	return s.alive
}

func (s *FakeSandbox) ExpiresAt() time.Time {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	return s.expiresAt
}

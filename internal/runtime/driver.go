package runtime

import (
	"context"
	"errors"
	"time"
)

// ErrSandboxNotFound is returned by Connect when the sandbox no longer exists
// or is not running.
var ErrSandboxNotFound = errors.New("sandbox not found")

// Sandbox is a handle to one live remote sandbox.
type Sandbox interface {
	ID() string
	// SetTimeout asks the provider to keep the sandbox alive for ttl from now.
	SetTimeout(ctx context.Context, ttl time.Duration) error
	WriteFile(ctx context.Context, path string, data []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Kill(ctx context.Context) error
}

// Driver creates sandboxes and reattaches to existing ones.
type Driver interface {
	Name() string
	Create(ctx context.Context, ttl time.Duration) (Sandbox, error)
	Connect(ctx context.Context, sandboxID string) (Sandbox, error)
	Ping(ctx context.Context) error
	Close() error
}

// SandboxInfo describes a sandbox as seen by the provider.
type SandboxInfo struct {
	ID string

	// ExpiresAt is zero when the provider could not tell.
	ExpiresAt time.Time
}

// Lister is implemented by drivers that can enumerate the sandboxes they own
// and must clean them up themselves (providers without server-side expiry).
type Lister interface {
	List(ctx context.Context) ([]SandboxInfo, error)
	Remove(ctx context.Context, sandboxID string) error
}

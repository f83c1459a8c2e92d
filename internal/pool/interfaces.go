package pool

import (
	"context"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
)

// Creator is the part of runtime.Driver the pool needs.
type Creator interface {
	Create(ctx context.Context, ttl time.Duration) (runtime.Sandbox, error)
}

package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
)

const (
	refillInterval = 5 * time.Second
	refillBackoff  = 2 * time.Second
)

type pooled struct {
	sandbox   runtime.Sandbox
	createdAt time.Time
}

// Pool keeps pre-created sandboxes ready so the recreate path can skip the
// driver's cold start. A nil *Pool is valid and always empty.
type Pool struct {
	driver Creator
	size   int
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	ready   chan pooled
	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New returns nil when size is not positive.
func New(driver Creator, size int, ttl time.Duration, logger *slog.Logger) *Pool {
	if size <= 0 {
		return nil
	}
	return &Pool{
		driver: driver,
		size:   size,
		ttl:    ttl,
		logger: logger.With("component", "pool"),
		now:    time.Now,
		ready:  make(chan pooled, size),
		stopCh: make(chan struct{}),
	}
}

// Start begins pre-warming sandboxes in the background.
func (p *Pool) Start(ctx context.Context) {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("starting sandbox pool", "size", p.size)
	p.wg.Add(1)
	go p.refillWorker(ctx)
}

// Stop halts refilling and kills every pooled sandbox.
func (p *Pool) Stop(ctx context.Context) {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("stopping sandbox pool")

	for {
		select {
		case item := <-p.ready:
			p.discard(ctx, item, "pool-stop")
		default:
			return
		}
	}
}

// Get hands out a pooled sandbox re-timed to the full TTL. It never blocks;
// false means the caller should create one itself.
func (p *Pool) Get(ctx context.Context) (runtime.Sandbox, bool) {
	if p == nil {
		return nil, false
	}
	for {
		var item pooled
		select {
		case item = <-p.ready:
		default:
			return nil, false
		}

		// past half its life a pooled sandbox is not worth re-timing
		if p.now().Sub(item.createdAt) > p.ttl/2 {
			p.discard(ctx, item, "pool-stale")
			continue
		}
		if err := item.sandbox.SetTimeout(ctx, p.ttl); err != nil {
			p.logger.Warn("re-timing pooled sandbox failed", "sandbox_id", item.sandbox.ID(), "error", err)
			p.discard(ctx, item, "pool-retime")
			return nil, false
		}
		p.logger.Info("using pooled sandbox", "sandbox_id", item.sandbox.ID())
		return item.sandbox, true
	}
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ready)
}

func (p *Pool) discard(ctx context.Context, item pooled, reason string) {
	if err := item.sandbox.Kill(ctx); err != nil {
		p.logger.Debug("killing pooled sandbox failed", "sandbox_id", item.sandbox.ID(), "reason", reason, "error", err)
	}
}

func (p *Pool) refillWorker(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()

	p.Refill(ctx, p.size)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Refill(ctx, p.size)
		}
	}
}

// Refill creates sandboxes until the pool holds target, capped at its size.
func (p *Pool) Refill(ctx context.Context, target int) {
	if p == nil {
		return
	}
	target = min(target, p.size)
	needed := target - len(p.ready)
	if needed <= 0 {
		return
	}

	p.logger.Debug("refilling pool", "current", len(p.ready), "target", target, "creating", needed)

	for i := 0; i < needed; i++ {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		sb, err := p.driver.Create(ctx, p.ttl)
		if err != nil {
			p.logger.Error("failed to create pooled sandbox", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-time.After(refillBackoff):
			}
			continue
		}

		item := pooled{sandbox: sb, createdAt: p.now()}
		select {
		case p.ready <- item:
			p.logger.Debug("created pooled sandbox", "sandbox_id", sb.ID())
		default:
			// filled while we were creating
			p.discard(ctx, item, "pool-excess")
		}
	}
}

package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
)

type Reaper struct {
	store    ReaperStore
	runtime  ReaperRuntime
	cache    CacheSweeper
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a reaper. cache may be nil.
func New(st ReaperStore, rt ReaperRuntime, cache CacheSweeper, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    st,
		runtime:  rt,
		cache:    cache,
		interval: interval,
		logger:   logger.With("component", "reaper"),
		now:      time.Now,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval)

	r.reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	r.sweepCache()
	r.reapExpired(ctx)
	r.reapOrphans(ctx)
}

func (r *Reaper) sweepCache() {
	if r.cache == nil {
		return
	}
	if n := r.cache.Sweep(r.now()); n > 0 {
		r.logger.Debug("reaper: swept cache entries", "count", n)
	}
}

// owned reports whether a record's sandbox belongs to this driver.
func (r *Reaper) owned(driver string) bool {
	return driver == "" || driver == r.runtime.Name()
}

// reapExpired kills sandboxes whose record has expired and clears the
// record's sandbox pointer. Paths and saved files stay, so the next
// acquisition rehydrates.
func (r *Reaper) reapExpired(ctx context.Context) {
	expired, err := r.store.ListExpiredSandboxRecords(ctx, r.now())
	if err != nil {
		r.logger.Error("reaper: list expired", "error", err)
		return
	}

	n := 0
	for _, rec := range expired {
		if !r.owned(rec.Driver) {
			continue
		}
		r.logger.Info("reaping expired sandbox", "chat_id", rec.ChatID, "sandbox_id", rec.SandboxID, "expired_at", rec.ExpiresAt)

		if err := r.kill(ctx, rec.SandboxID); err != nil {
			r.logger.Warn("reaper: kill sandbox", "chat_id", rec.ChatID, "sandbox_id", rec.SandboxID, "error", err)
		}
		// guarded by sandbox id so a concurrent recreate is not undone
		if err := r.store.ClearSandbox(ctx, rec.ChatID, rec.SandboxID); err != nil {
			r.logger.Error("reaper: clear record", "chat_id", rec.ChatID, "error", err)
			continue
		}
		n++
	}

	if n > 0 {
		r.logger.Info("reaper: reaped sandboxes", "count", n)
	}
}

func (r *Reaper) kill(ctx context.Context, sandboxID string) error {
	if l, ok := r.runtime.(runtime.Lister); ok {
		return l.Remove(ctx, sandboxID)
	}
	sb, err := r.runtime.Connect(ctx, sandboxID)
	if errors.Is(err, runtime.ErrSandboxNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return sb.Kill(ctx)
}

// referenced returns the sandbox ids this driver's records point at.
func (r *Reaper) referenced(ctx context.Context) (map[string]string, error) {
	recs, err := r.store.ListSandboxRecords(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(recs))
	for _, rec := range recs {
		if rec.SandboxID != "" && r.owned(rec.Driver) {
			ids[rec.SandboxID] = rec.ChatID
		}
	}
	return ids, nil
}

// reapOrphans removes expired sandboxes no record points at, such as the
// loser of a creation race between two processes. Sandboxes without a
// known expiry are treated as expired.
func (r *Reaper) reapOrphans(ctx context.Context) {
	lister, ok := r.runtime.(runtime.Lister)
	if !ok {
		return
	}

	live, err := lister.List(ctx)
	if err != nil {
		r.logger.Error("reaper: list sandboxes", "error", err)
		return
	}
	refs, err := r.referenced(ctx)
	if err != nil {
		r.logger.Error("reaper: list records", "error", err)
		return
	}

	now := r.now()
	for _, sb := range live {
		if _, ok := refs[sb.ID]; ok {
			continue
		}
		// an unknown expiry counts as expired
		if sb.ExpiresAt.After(now) {
			continue
		}
		r.logger.Info("reaping orphaned sandbox", "sandbox_id", sb.ID, "expired_at", sb.ExpiresAt)
		if err := lister.Remove(ctx, sb.ID); err != nil {
			r.logger.Warn("reaper: remove orphan", "sandbox_id", sb.ID, "error", err)
		}
	}
}

// reconcile runs once at start: records pointing at sandboxes the driver no
// longer has are cleared, then orphans are reaped. Records of other drivers
// are left alone.
func (r *Reaper) reconcile(ctx context.Context) {
	r.logger.Info("reconciliation starting")

	if lister, ok := r.runtime.(runtime.Lister); ok {
		r.clearVanished(ctx, lister)
	}
	r.reapExpired(ctx)
	r.reapOrphans(ctx)

	r.logger.Info("reconciliation complete")
}

func (r *Reaper) clearVanished(ctx context.Context, lister runtime.Lister) {
	live, err := lister.List(ctx)
	if err != nil {
		r.logger.Error("reconcile: list sandboxes", "error", err)
		return
	}
	refs, err := r.referenced(ctx)
	if err != nil {
		r.logger.Error("reconcile: list records", "error", err)
		return
	}

	alive := make(map[string]bool, len(live))
	for _, sb := range live {
		alive[sb.ID] = true
	}
	for id, chatID := range refs {
		if alive[id] {
			continue
		}
		r.logger.Warn("reconcile: sandbox gone, clearing record", "chat_id", chatID, "sandbox_id", id)
		if err := r.store.ClearSandbox(ctx, chatID, id); err != nil {
			r.logger.Error("reconcile: clear record", "chat_id", chatID, "error", err)
		}
	}
}

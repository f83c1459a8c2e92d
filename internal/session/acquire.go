package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/store"
)

// Acquire returns a live sandbox for chatID with at least the configured
// minimum TTL left, reconnecting or recreating as needed.
//
// Concurrent calls for the same chat share one reconnect/recreate flight, so
// a process never creates two sandboxes for one chat at once. Two processes
// sharing a database can still race; the losing sandbox is left to its TTL
// and, for drivers without server-side expiry, to the reaper.
func (m *Manager) Acquire(ctx context.Context, chatID string) (runtime.Sandbox, error) {
	if chatID == "" {
		return nil, ErrInvalidChatID
	}

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		if sb, _, ok := m.cache.Get(chatID, m.floor()); ok {
			m.warmHits.Add(1)
			return sb, nil
		}

		// The flight outlives any single caller, so it runs on a detached context
		// with its own deadline; each caller still honours its own ctx below.
		ch := m.flights.DoChan(chatID, func() (any, error) {
			return m.flight(context.WithoutCancel(ctx), chatID)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if errors.Is(res.Err, errResetDuringAcquire) {
				continue
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Val.(runtime.Sandbox), nil
		}
	}
	return nil, fmt.Errorf("%w: chat %s kept being reset", ErrUnavailable, chatID)
}

// flight is one shared reconnect/recreate run. A sandbox obtained while the
// chat was reset is killed and unrecorded instead of published.
func (m *Manager) flight(ctx context.Context, chatID string) (runtime.Sandbox, error) {
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	if sb, _, ok := m.cache.Get(chatID, m.floor()); ok {
		return sb, nil
	}
	gen := m.resetCount(chatID)

	sb, expiresAt, err := m.acquireSlow(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if m.publish(chatID, gen, sb, expiresAt) {
		return sb, nil
	}

	m.logger.Info("chat reset during acquisition, discarding sandbox", "chat_id", chatID, "sandbox_id", sb.ID())
	if err := sb.Kill(ctx); err != nil {
		m.logger.Debug("killing discarded sandbox failed", "chat_id", chatID, "sandbox_id", sb.ID(), "error", err)
	}
	// guarded so a newer flight's record is left alone
	if err := m.store.ClearSandbox(ctx, chatID, sb.ID()); err != nil {
		m.logger.Warn("clearing discarded sandbox failed", "chat_id", chatID, "sandbox_id", sb.ID(), "error", err)
	}
	return nil, errResetDuringAcquire
}

func (m *Manager) floor() time.Time {
	return m.now().Add(m.minRemaining)
}

func (m *Manager) acquireSlow(ctx context.Context, chatID string) (runtime.Sandbox, time.Time, error) {
	rec, err := m.store.GetSandboxRecord(ctx, chatID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, time.Time{}, fmt.Errorf("%w: reading sandbox record: %v", ErrUnavailable, err)
	}

	if rec != nil && m.reconnectable(rec) {
		sb, expiresAt, err := m.reconnect(ctx, rec)
		if err == nil {
			return sb, expiresAt, nil
		}
		m.logger.Info("reconnect failed, recreating", "chat_id", chatID, "sandbox_id", rec.SandboxID, "error", err)
	}

	return m.recreate(ctx, chatID)
}

func (m *Manager) reconnectable(rec *store.SandboxRecord) bool {
	if rec.SandboxID == "" || rec.ExpiresAt.IsZero() {
		return false
	}
	if rec.Driver != "" && rec.Driver != m.driver.Name() {
		return false
	}
	return !rec.ExpiresAt.Before(m.floor())
}

func (m *Manager) reconnect(ctx context.Context, rec *store.SandboxRecord) (runtime.Sandbox, time.Time, error) {
	sb, err := m.driver.Connect(ctx, rec.SandboxID)
	if err != nil {
		return nil, time.Time{}, err
	}

	expiresAt := rec.ExpiresAt
	if err := sb.SetTimeout(ctx, m.ttl); err != nil {
		m.logger.Debug("extending sandbox timeout failed", "chat_id", rec.ChatID, "sandbox_id", sb.ID(), "error", err)
	} else {
		expiresAt = m.now().Add(m.ttl)
	}

	if err := m.store.ExtendSandboxExpiry(ctx, rec.ChatID, rec.SandboxID, expiresAt); err != nil {
		m.logger.Warn("recording sandbox expiry failed", "chat_id", rec.ChatID, "sandbox_id", sb.ID(), "error", err)
	}

	m.reconnects.Add(1)
	m.logger.Debug("sandbox reconnected", "chat_id", rec.ChatID, "sandbox_id", sb.ID())
	return sb, expiresAt, nil
}

func (m *Manager) recreate(ctx context.Context, chatID string) (runtime.Sandbox, time.Time, error) {
	sb, err := m.newSandbox(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: creating sandbox: %v", ErrUnavailable, err)
	}
	expiresAt := m.now().Add(m.ttl)

	paths := m.rehydrate(ctx, chatID, sb)

	err = m.store.UpsertSandboxRecord(ctx, &store.SandboxRecord{
		ChatID:         chatID,
		SandboxID:      sb.ID(),
		Driver:         m.driver.Name(),
		ExpiresAt:      expiresAt,
		WorkspacePaths: paths,
	})
	if err != nil {
		// Nothing points at the new sandbox; don't leave it running.
		if kerr := sb.Kill(ctx); kerr != nil {
			m.logger.Warn("killing unrecorded sandbox failed", "chat_id", chatID, "sandbox_id", sb.ID(), "error", kerr)
		}
		return nil, time.Time{}, fmt.Errorf("%w: recording sandbox: %v", ErrUnavailable, err)
	}

	m.recreates.Add(1)
	m.logger.Info("sandbox created", "chat_id", chatID, "sandbox_id", sb.ID(), "rehydrated", len(paths))
	return sb, expiresAt, nil
}

// newSandbox prefers a pre-warmed sandbox and falls back to the driver.
func (m *Manager) newSandbox(ctx context.Context) (runtime.Sandbox, error) {
	if m.pool != nil {
		if sb, ok := m.pool.Get(ctx); ok {
			return sb, nil
		}
	}
	return m.driver.Create(ctx, m.ttl)
}

// rehydrate replays every saved file into sb and returns the paths that
// were written. Individual failures are logged and skipped.
func (m *Manager) rehydrate(ctx context.Context, chatID string, sb runtime.Sandbox) []string {
	files, err := m.files.ListSavedFiles(ctx, chatID)
	if err != nil {
		m.logger.Warn("listing saved files failed, starting empty", "chat_id", chatID, "error", err)
		return []string{}
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		data, err := m.files.ResolveContent(ctx, f)
		if err != nil {
			m.logger.Warn("rehydrate: resolving content failed", "chat_id", chatID, "path", f.Path, "error", err)
			continue
		}
		if err := sb.WriteFile(ctx, f.Path, data); err != nil {
			m.logger.Warn("rehydrate: write failed", "chat_id", chatID, "path", f.Path, "error", err)
			continue
		}
		paths = append(paths, f.Path)
	}
	return paths
}

package session

import (
	"sync"
	"time"

	"github.com/p-arndt/werkbank/internal/runtime"
)

type cacheEntry struct {
	sandbox   runtime.Sandbox
	expiresAt time.Time
}

// InstanceCache is the process-local map of chat id to live sandbox handle.
// It is owned by whoever constructs the Manager and is never persisted.
type InstanceCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewInstanceCache() *InstanceCache {
	return &InstanceCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached sandbox if its expiry is at or after notBefore.
// Entries that fail the check are evicted.
func (c *InstanceCache) Get(chatID string, notBefore time.Time) (runtime.Sandbox, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[chatID]
	c.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, false
	}
	if e.expiresAt.Before(notBefore) {
		c.mu.Lock()
		// only evict the entry we looked at
		if cur, ok := c.entries[chatID]; ok && cur.sandbox == e.sandbox {
			delete(c.entries, chatID)
		}
		c.mu.Unlock()
		return nil, time.Time{}, false
	}
	return e.sandbox, e.expiresAt, true
}

func (c *InstanceCache) Put(chatID string, sb runtime.Sandbox, expiresAt time.Time) {
	c.mu.Lock()
	c.entries[chatID] = cacheEntry{sandbox: sb, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Delete removes the entry and returns the handle it held, if any.
func (c *InstanceCache) Delete(chatID string) (runtime.Sandbox, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[chatID]
	if ok {
		delete(c.entries, chatID)
	}
	return e.sandbox, ok
}

// Sweep drops every entry expired at now and returns how many were dropped.
func (c *InstanceCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *InstanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

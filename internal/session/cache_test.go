package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetHonoursFloor(t *testing.T) {
	c := NewInstanceCache()
	now := time.Now()
	sb := &MockSandbox{id: "sb-1"}
	c.Put("c1", sb, now.Add(time.Minute))

	got, exp, ok := c.Get("c1", now)
	assert.True(t, ok)
	assert.Same(t, sb, got)
	assert.Equal(t, now.Add(time.Minute), exp)

	// boundary: expiry equal to the floor still qualifies
	_, _, ok = c.Get("c1", now.Add(time.Minute))
	assert.True(t, ok)

	_, _, ok = c.Get("c1", now.Add(2*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "stale entry should be evicted")
}

func TestCacheDelete(t *testing.T) {
	c := NewInstanceCache()
	sb := &MockSandbox{id: "sb-1"}
	c.Put("c1", sb, time.Now().Add(time.Hour))

	got, ok := c.Delete("c1")
	assert.True(t, ok)
	assert.Same(t, sb, got)

	_, ok = c.Delete("c1")
	assert.False(t, ok)
}

func TestCacheSweep(t *testing.T) {
	c := NewInstanceCache()
	now := time.Now()
	c.Put("old", &MockSandbox{id: "a"}, now.Add(-time.Second))
	c.Put("edge", &MockSandbox{id: "b"}, now)
	c.Put("fresh", &MockSandbox{id: "c"}, now.Add(time.Hour))

	assert.Equal(t, 2, c.Sweep(now))
	assert.Equal(t, 1, c.Len())
	_, _, ok := c.Get("fresh", now)
	assert.True(t, ok)
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.current
}

func (f *fakeClock) Advance(d time.Duration) {
	f.current = f.current.Add(d)
}

func TestCacheSetGet(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(5*time.Minute, clock.Now)

	c.Set("role:prj1:user1", "owner")

	value, expiresAt, ok := c.Get("role:prj1:user1")
	assert.True(t, ok)
	assert.Equal(t, "owner", value)
	assert.Equal(t, clock.current.Add(5*time.Minute), expiresAt)
}

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(5*time.Minute, clock.Now)

	c.Set("key", "value")

	clock.Advance(4 * time.Minute)
	_, _, ok := c.Get("key")
	assert.True(t, ok, "entry should survive within TTL")

	clock.Advance(2 * time.Minute)
	_, _, ok = c.Get("key")
	assert.False(t, ok, "entry should expire after TTL")
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on read")
}

func TestCacheInvalidate(t *testing.T) {
	c := New(time.Minute, nil)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Invalidate("a")
	_, _, ok := c.Get("a")
	assert.False(t, ok)
	_, _, ok = c.Get("b")
	assert.True(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestCachePurge(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(time.Minute, clock.Now)

	c.Set("old", 1)
	clock.Advance(30 * time.Second)
	c.Set("fresh", 2)
	clock.Advance(45 * time.Second)

	dropped := c.Purge()
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, c.Len())

	_, _, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestCacheSetRefreshesExpiry(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(time.Minute, clock.Now)

	c.Set("key", 1)
	clock.Advance(45 * time.Second)
	c.Set("key", 2)
	clock.Advance(30 * time.Second)

	value, _, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, 2, value)
}

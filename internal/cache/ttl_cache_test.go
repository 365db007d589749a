package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestTTLCache(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)}

	t.Run("hit before expiry", func(t *testing.T) {
		c := NewTTLCache[int, bool](5*time.Minute, clock.Now)
		c.Set(1, true)
		clock.Advance(4*time.Minute + 59*time.Second)

		v, ok := c.Get(1)
		assert.True(t, ok)
		assert.True(t, v)
	})

	t.Run("miss at expiry", func(t *testing.T) {
		c := NewTTLCache[int, bool](5*time.Minute, clock.Now)
		c.Set(1, true)
		clock.Advance(5 * time.Minute)

		_, ok := c.Get(1)
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("set refreshes ttl", func(t *testing.T) {
		c := NewTTLCache[string, string](time.Minute, clock.Now)
		c.Set("a", "x")
		clock.Advance(50 * time.Second)
		c.Set("a", "y")
		clock.Advance(50 * time.Second)

		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, "y", v)
	})

	t.Run("delete and purge", func(t *testing.T) {
		c := NewTTLCache[string, int](time.Minute, clock.Now)
		c.Set("a", 1)
		c.Set("b", 2)
		c.Delete("a")
		_, ok := c.Get("a")
		assert.False(t, ok)

		clock.Advance(2 * time.Minute)
		assert.Equal(t, 1, c.Purge())
		assert.Equal(t, 0, c.Len())
	})

	t.Run("nil clock uses wall time", func(t *testing.T) {
		c := NewTTLCache[string, int](time.Hour, nil)
		c.Set("a", 1)
		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})
}

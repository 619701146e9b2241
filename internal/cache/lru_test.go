package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c := New[string, int](10, 0)

	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	c := New[string, int](3, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Set("d", 4)

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("d")
	assert.True(t, ok)
}

func TestCacheGetCountsAsTouch(t *testing.T) {
	c := New[string, int](3, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCacheSetReplacesExisting(t *testing.T) {
	c := New[string, int](2, 0)

	c.Set("a", 1)
	c.Set("a", 10)

	assert.Equal(t, 1, c.Len())
	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New[string, int](10, 20*time.Millisecond)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(30 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok, "expired entry must be absent")
	assert.Equal(t, 0, c.Len(), "expired entry must be removed on access")
}

func TestCacheDelete(t *testing.T) {
	c := New[string, int](10, 0)

	c.Set("a", 1)
	c.Delete("a")
	c.Delete("a") // deleting twice is fine

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	c := New[string, int](10, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.sweep()

	assert.Equal(t, 0, c.Len())
}

func TestCacheNeverExceedsMaxEntries(t *testing.T) {
	c := New[int, int](5, 0)

	for i := 0; i < 100; i++ {
		c.Set(i, i)
		assert.LessOrEqual(t, c.Len(), 5)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int, int](50, time.Minute)

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				c.Set(g*1000+i, i)
				c.Get(g*1000 + i - 1)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	assert.LessOrEqual(t, c.Len(), 50)
}

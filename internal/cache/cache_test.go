package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New[string](4, 0)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestBoundedEviction(t *testing.T) {
	c := New[int](3, 0)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprint(i), i)
	}
	assert.Equal(t, 3, c.Len())

	// Overwriting an existing key never evicts.
	c.Set("9", 99)
	assert.Equal(t, 3, c.Len())
	v, ok := c.Get("9")
	require.True(t, ok)
	assert.Equal(t, 99, v)
}

func TestTTLExpiry(t *testing.T) {
	c := New[int](2, 10*time.Millisecond)
	c.Set("a", 1)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestKeyIsStableAndSeparated(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](16, 0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprint((g*200 + i) % 40)
				c.Set(k, i)
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}

func TestExpiredEvictionKeepsFreshReplacement(t *testing.T) {
	c := New[int](2, 10*time.Millisecond)
	c.Set("a", 1)
	c.mu.RLock()
	stale := c.store["a"]
	c.mu.RUnlock()
	time.Sleep(25 * time.Millisecond)

	// A Set that lands between Get's read and write lock.
	c.Set("a", 2)
	c.mu.Lock()
	c.dropLocked("a", stale)
	c.mu.Unlock()

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

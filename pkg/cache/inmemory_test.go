package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-ridecache/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := cache.NewInMemoryCache[[]string](zerolog.Nop(), cache.WithClock(clock))
	const key = "locations:Vadodara"

	t.Run("Absent key is not fresh", func(t *testing.T) {
		fresh, err := c.IsFresh(ctx, key)
		require.NoError(t, err)
		assert.False(t, fresh)

		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Fresh immediately after put and stale exactly at ttl", func(t *testing.T) {
		// Arrange
		_, err := c.Put(ctx, key, []string{"Alkapuri"}, 5*time.Minute)
		require.NoError(t, err)

		// Assert
		fresh, _ := c.IsFresh(ctx, key)
		assert.True(t, fresh, "entry should be fresh right after put")

		clock.Advance(5*time.Minute - time.Nanosecond)
		fresh, _ = c.IsFresh(ctx, key)
		assert.True(t, fresh, "entry should still be fresh just inside the window")

		clock.Advance(time.Nanosecond)
		fresh, _ = c.IsFresh(ctx, key)
		assert.False(t, fresh, "entry should be stale at exactly ttl")

		entry, ok, _ := c.Get(ctx, key)
		require.True(t, ok, "stale entries are still returned")
		assert.Equal(t, []string{"Alkapuri"}, entry.Payload)
	})
}

func TestInMemoryCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := cache.NewInMemoryCache[int](zerolog.Nop(), cache.WithClock(clock))

	t.Run("Invalidate keeps payload but reports stale", func(t *testing.T) {
		_, err := c.Put(ctx, "k", 7, time.Minute)
		require.NoError(t, err)

		require.NoError(t, c.Invalidate(ctx, "k"))

		fresh, _ := c.IsFresh(ctx, "k")
		assert.False(t, fresh)
		entry, ok, _ := c.Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, 7, entry.Payload)
		assert.True(t, entry.FetchedAt.IsZero())
	})

	t.Run("Invalidate on absent key is a no-op", func(t *testing.T) {
		require.NoError(t, c.Invalidate(ctx, "missing"))
		_, ok, _ := c.Get(ctx, "missing")
		assert.False(t, ok)
	})

	t.Run("Put after concurrent invalidation still lands", func(t *testing.T) {
		// A refetch started, something invalidated mid-flight, then the
		// refetch completes: its result must be written and fresh.
		require.NoError(t, c.Invalidate(ctx, "k"))
		entry, err := c.Put(ctx, "k", 8, time.Minute)
		require.NoError(t, err)

		fresh, _ := c.IsFresh(ctx, "k")
		assert.True(t, fresh)
		assert.Equal(t, 8, entry.Payload)
	})

	t.Run("No ttl entries stay fresh until invalidated", func(t *testing.T) {
		_, err := c.Put(ctx, "unread-notifications:u1", 3, 0)
		require.NoError(t, err)

		clock.Advance(48 * time.Hour)
		fresh, _ := c.IsFresh(ctx, "unread-notifications:u1")
		assert.True(t, fresh)

		require.NoError(t, c.Invalidate(ctx, "unread-notifications:u1"))
		fresh, _ = c.IsFresh(ctx, "unread-notifications:u1")
		assert.False(t, fresh)
	})
}

func TestInMemoryCache_VersionsAndClear(t *testing.T) {
	ctx := context.Background()
	c := cache.NewInMemoryCache[string](zerolog.Nop())

	e1, err := c.Put(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	e2, err := c.Put(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	assert.Greater(t, e2.Version, e1.Version, "every put bumps the version")

	require.NoError(t, c.Clear(ctx))
	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok, "clear drops entries")

	e3, err := c.Put(ctx, "k", "c", time.Minute)
	require.NoError(t, err)
	assert.Greater(t, e3.Version, e2.Version, "versions survive a clear")
}

func TestInMemoryCache_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	c := cache.NewInMemoryCache[int](zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = c.Put(ctx, fmt.Sprintf("key-%d", n%5), n, time.Minute)
			_ = c.Invalidate(ctx, fmt.Sprintf("key-%d", (n+1)%5))
			_, _, _ = c.Get(ctx, fmt.Sprintf("key-%d", n%5))
		}(i)
	}
	wg.Wait()

	assert.Len(t, c.Keys(), 5)
	stats := c.Stats()
	assert.Equal(t, int64(50), stats.Writes)
	assert.Equal(t, int64(50), stats.Hits+stats.StaleReads+stats.Misses)
}

//go:build integration

package cache_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-ridecache/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisTestLocation struct {
	ID   string
	Name string
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	cfg := &cache.RedisConfig{
		Addr:   addr,
		Prefix: "ridecache-test:" + time.Now().Format("150405.000") + ":",
	}

	s, err := cache.NewRedisStore[[]redisTestLocation](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Clear(context.Background())
		_ = s.Close()
	})

	const key = "locations:Vadodara"
	value := []redisTestLocation{{ID: "1", Name: "Vadodara Junction"}}

	t.Run("Put and Get", func(t *testing.T) {
		_, err := s.Put(ctx, key, value, time.Minute)
		require.NoError(t, err)

		entry, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, value, entry.Payload)
		assert.Equal(t, time.Minute, entry.TTL)

		fresh, err := s.IsFresh(ctx, key)
		require.NoError(t, err)
		assert.True(t, fresh)
	})

	t.Run("Get miss", func(t *testing.T) {
		_, ok, err := s.Get(ctx, "non-existent-key")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Invalidate keeps payload", func(t *testing.T) {
		require.NoError(t, s.Invalidate(ctx, key))

		fresh, err := s.IsFresh(ctx, key)
		require.NoError(t, err)
		assert.False(t, fresh)

		entry, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, value, entry.Payload)
		assert.True(t, entry.FetchedAt.IsZero())
	})

	t.Run("Concurrent puts keep payload and metadata paired", func(t *testing.T) {
		const pairedKey = "location-suggestions"
		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				payload := []redisTestLocation{{ID: fmt.Sprint(i)}}
				_, err := s.Put(ctx, pairedKey, payload, time.Duration(i)*time.Minute)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		entry, ok, err := s.Get(ctx, pairedKey)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, entry.Payload, 1)
		assert.Equal(t, entry.Payload[0].ID, fmt.Sprint(int(entry.TTL/time.Minute)))
	})

	t.Run("Clear removes entries", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))
		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

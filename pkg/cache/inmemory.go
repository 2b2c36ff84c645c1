package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Stats is a point-in-time copy of a cache's counters.
type Stats struct {
	Hits          int64
	Misses        int64
	StaleReads    int64
	Writes        int64
	Invalidations int64
}

type counters struct {
	hits, misses, stale, writes, invalidations atomic.Int64
}

// InMemoryCache is a process-wide, thread-safe freshness cache.
// It satisfies the Store interface. Every read-modify-write of an entry
// happens under the mutex, so concurrent writers resolve last-writer-wins.
type InMemoryCache[V any] struct {
	mu      sync.RWMutex
	data    map[string]Entry[V]
	version map[string]uint64
	clock   Clock
	logger  zerolog.Logger
	stats   counters
}

// InMemoryOption configures an InMemoryCache.
type InMemoryOption func(*inMemoryOptions)

type inMemoryOptions struct {
	clock Clock
}

// WithClock replaces the wall clock, typically with a fake in tests.
func WithClock(c Clock) InMemoryOption {
	return func(o *inMemoryOptions) {
		o.clock = c
	}
}

// NewInMemoryCache creates a new, empty in-memory freshness cache.
func NewInMemoryCache[V any](logger zerolog.Logger, opts ...InMemoryOption) *InMemoryCache[V] {
	o := inMemoryOptions{clock: SystemClock}
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemoryCache[V]{
		data:    make(map[string]Entry[V]),
		version: make(map[string]uint64),
		clock:   o.clock,
		logger:  logger.With().Str("component", "InMemoryCache").Logger(),
	}
}

// Get returns the current entry for key, fresh or stale.
func (c *InMemoryCache[V]) Get(_ context.Context, key string) (Entry[V], bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	switch {
	case !ok:
		c.stats.misses.Add(1)
	case entry.FreshAt(c.clock.Now()):
		c.stats.hits.Add(1)
	default:
		c.stats.stale.Add(1)
	}
	return entry, ok, nil
}

// Put stores payload for key with FetchedAt set to now. The write always
// lands, even if the key was invalidated after the fetch that produced it
// started.
func (c *InMemoryCache[V]) Put(_ context.Context, key string, payload V, ttl time.Duration) (Entry[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version[key]++
	entry := Entry[V]{
		Key:       key,
		Payload:   payload,
		FetchedAt: c.clock.Now(),
		TTL:       ttl,
		Version:   c.version[key],
	}
	c.data[key] = entry
	c.stats.writes.Add(1)

	c.logger.Debug().Str("key", key).Uint64("version", entry.Version).Dur("ttl", ttl).Msg("Stored entry.")
	return entry, nil
}

// Invalidate clears the fetch timestamp of key. Invalidating an absent key
// is a no-op.
func (c *InMemoryCache[V]) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil
	}
	entry.FetchedAt = time.Time{}
	c.data[key] = entry
	c.stats.invalidations.Add(1)

	c.logger.Debug().Str("key", key).Msg("Invalidated entry.")
	return nil
}

// IsFresh reports whether key holds an entry younger than its TTL.
func (c *InMemoryCache[V]) IsFresh(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return entry.FreshAt(c.clock.Now()), nil
}

// Clear drops every entry. Versions are kept so a derived view memoised
// before the clear can never be mistaken for one built after it.
func (c *InMemoryCache[V]) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.data)
	c.data = make(map[string]Entry[V])
	c.logger.Info().Int("entries", n).Msg("Cache cleared.")
	return nil
}

// Keys returns the keys currently held.
func (c *InMemoryCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *InMemoryCache[V]) Stats() Stats {
	return Stats{
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		StaleReads:    c.stats.stale.Load(),
		Writes:        c.stats.writes.Load(),
		Invalidations: c.stats.invalidations.Load(),
	}
}

// Close is a no-op for the in-memory cache but satisfies the Store interface.
func (c *InMemoryCache[V]) Close() error {
	return nil
}

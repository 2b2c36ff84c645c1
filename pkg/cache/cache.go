// Package cache provides the freshness-aware stores behind the reference-data
// datasets. A store maps a dataset key to its last fetched payload and the
// time it was fetched; it never fetches anything itself.
package cache

import (
	"context"
	"io"
	"time"
)

// Entry is a cached payload together with its freshness metadata.
type Entry[V any] struct {
	Key       string
	Payload   V
	FetchedAt time.Time // zero once the entry has been invalidated
	TTL       time.Duration
	// Version increases on every Put for the key. Derived views memoise on it.
	Version uint64
}

// FreshAt reports whether the entry is fresh at the given instant. An entry
// is fresh iff now-FetchedAt < TTL; at exactly TTL it is stale. A TTL <= 0
// means the entry never expires by time and stays fresh until invalidated.
func (e Entry[V]) FreshAt(now time.Time) bool {
	if e.FetchedAt.IsZero() {
		return false
	}
	if e.TTL <= 0 {
		return true
	}
	return now.Sub(e.FetchedAt) < e.TTL
}

// Store is the contract of a freshness cache. TTLs are supplied per key by
// the caller; implementations hold no dataset-specific knowledge.
type Store[V any] interface {
	// Get returns the current entry without triggering a fetch.
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	// Put stores a payload with FetchedAt = now, overwriting any prior entry.
	Put(ctx context.Context, key string, payload V, ttl time.Duration) (Entry[V], error)
	// Invalidate forgets when the key was fetched so the next freshness check
	// reports stale. The payload is kept so it can still be served.
	Invalidate(ctx context.Context, key string) error
	// IsFresh reports false for absent keys.
	IsFresh(ctx context.Context, key string) (bool, error)
	// Clear drops every entry.
	Clear(ctx context.Context) error
	io.Closer
}

// Invalidator is the narrow view of a Store used by synchronizers that only
// ever mark keys stale.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Clock abstracts time so freshness windows can be driven in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

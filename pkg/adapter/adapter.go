// Package adapter implements the read contract shared by every cached
// dataset: serve fresh data from the store, serve stale data while a
// background refetch runs, and block only when nothing has ever been loaded.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-ridecache/pkg/cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the full payload of a dataset from its source of truth.
type Loader[P any] func(ctx context.Context) (P, error)

// Builder derives the consumer-facing view from a payload. It must be pure.
type Builder[P any, D any] func(payload P) D

// Config describes one dataset.
type Config[P any, D any] struct {
	Key   string
	TTL   time.Duration // <= 0 means fresh until invalidated
	Load  Loader[P]
	Build Builder[P, D]
}

// Result is what a consumer renders. Loading is only ever true in snapshots
// taken while the very first fetch for the key is running.
type Result[D any] struct {
	Data      D
	Loading   bool
	Stale     bool
	Err       error
	FetchedAt time.Time
}

// HasData reports whether the result carries a loaded payload.
func (r Result[D]) HasData() bool {
	return !r.FetchedAt.IsZero() || r.Stale
}

const defaultBackgroundTimeout = 30 * time.Second

// Option configures an Adapter.
type Option func(*options)

type options struct {
	clock             cache.Clock
	coalesce          bool
	backgroundTimeout time.Duration
}

// WithClock sets the clock used for freshness checks. It should match the
// clock of the store.
func WithClock(c cache.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCoalescing collapses concurrent fetches of the key into one request.
// Without it duplicate in-flight fetches are allowed and the last response
// to be written wins.
func WithCoalescing() Option {
	return func(o *options) { o.coalesce = true }
}

// WithBackgroundTimeout bounds background and shared refetches, which run
// detached from the caller's context.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(o *options) { o.backgroundTimeout = d }
}

type memo[D any] struct {
	version uint64
	data    D
}

// Adapter serves one dataset key from a store, loading through a Loader.
type Adapter[P any, D any] struct {
	cfg    Config[P, D]
	store  cache.Store[P]
	logger zerolog.Logger
	opts   options

	group      singleflight.Group
	refreshing atomic.Bool
	bg         sync.WaitGroup

	mu      sync.Mutex
	loading int // first loads in progress
	lastErr error
	view    *memo[D]

	// epoch is bumped by every Refresh. A fetch that started in an older
	// epoch than the last one written is discarded.
	writeMu   sync.Mutex
	epoch     uint64
	committed uint64
}

// New creates an Adapter for cfg backed by store.
func New[P any, D any](cfg Config[P, D], store cache.Store[P], logger zerolog.Logger, opts ...Option) (*Adapter[P, D], error) {
	if cfg.Key == "" {
		return nil, errors.New("adapter key cannot be empty")
	}
	if cfg.Load == nil || cfg.Build == nil {
		return nil, errors.New("adapter loader and builder cannot be nil")
	}
	if store == nil {
		return nil, errors.New("adapter store cannot be nil")
	}
	o := options{clock: cache.SystemClock, backgroundTimeout: defaultBackgroundTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Adapter[P, D]{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "Adapter").Str("key", cfg.Key).Logger(),
		opts:   o,
	}, nil
}

// Key returns the dataset key served by the adapter.
func (a *Adapter[P, D]) Key() string { return a.cfg.Key }

// Read returns the dataset. With no cached entry it blocks until the first
// fetch resolves. A fresh entry is returned as is. A stale entry is returned
// immediately and a background refetch updates the store for later reads.
func (a *Adapter[P, D]) Read(ctx context.Context) Result[D] {
	entry, ok := a.get(ctx)
	if !ok {
		a.logger.Debug().Msg("Cache miss. Loading from source.")
		return a.firstLoad(ctx)
	}

	res := a.resultFor(entry)
	if entry.FreshAt(a.opts.clock.Now()) {
		return res
	}

	a.logger.Debug().Msg("Serving stale entry while refetching in the background.")
	res.Stale = true
	a.refetchInBackground(ctx)
	return res
}

// Refresh invalidates the key and fetches it again, regardless of
// freshness. The caller's next Read observes the refreshed value.
func (a *Adapter[P, D]) Refresh(ctx context.Context) Result[D] {
	if err := a.store.Invalidate(ctx, a.cfg.Key); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to invalidate before refresh.")
	}

	entry, err := a.fetchAndStore(ctx, true)
	if err == nil {
		return a.resultFor(entry)
	}

	if last, ok := a.get(ctx); ok {
		res := a.resultFor(last)
		res.Stale = true
		return res
	}
	return Result[D]{Err: err}
}

// Snapshot reports the current state without fetching anything.
func (a *Adapter[P, D]) Snapshot(ctx context.Context) Result[D] {
	entry, ok := a.get(ctx)
	if !ok {
		a.mu.Lock()
		defer a.mu.Unlock()
		return Result[D]{Loading: a.loading > 0, Err: a.lastErr}
	}
	res := a.resultFor(entry)
	res.Stale = !entry.FreshAt(a.opts.clock.Now())
	return res
}

// Wait blocks until background refetches started so far have finished.
func (a *Adapter[P, D]) Wait() {
	a.bg.Wait()
}

func (a *Adapter[P, D]) get(ctx context.Context) (cache.Entry[P], bool) {
	entry, ok, err := a.store.Get(ctx, a.cfg.Key)
	if err != nil {
		// A broken store degrades to a miss; the source is still reachable.
		a.logger.Warn().Err(err).Msg("Store read failed. Treating as a miss.")
		return cache.Entry[P]{}, false
	}
	return entry, ok
}

func (a *Adapter[P, D]) firstLoad(ctx context.Context) Result[D] {
	a.mu.Lock()
	a.loading++
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.loading--
		a.mu.Unlock()
	}()

	entry, err := a.fetchAndStore(ctx, false)
	if err != nil {
		return Result[D]{Err: err}
	}
	return a.resultFor(entry)
}

func (a *Adapter[P, D]) refetchInBackground(ctx context.Context) {
	if !a.refreshing.CompareAndSwap(false, true) {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer a.refreshing.Store(false)
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.backgroundTimeout)
		defer cancel()
		if _, err := a.fetchAndStore(bgCtx, false); err != nil {
			a.logger.Warn().Err(err).Msg("Background refetch failed. Keeping last-known data.")
		}
	}()
}

// fetchAndStore loads the payload and writes it. On failure the store is
// left untouched, so FetchedAt is not advanced and the next read retries.
// A refresh never joins a fetch that was already in flight: that fetch may
// predate the write the caller wants to observe.
func (a *Adapter[P, D]) fetchAndStore(ctx context.Context, refresh bool) (cache.Entry[P], error) {
	a.writeMu.Lock()
	if refresh {
		a.epoch++
	}
	epoch := a.epoch
	a.writeMu.Unlock()

	if !a.opts.coalesce {
		return a.doFetchAndStore(ctx, epoch)
	}

	if refresh {
		a.group.Forget(a.cfg.Key)
	}
	ch := a.group.DoChan(a.cfg.Key, func() (interface{}, error) {
		// Shared by every waiter, so it must outlive any single caller.
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.backgroundTimeout)
		defer cancel()
		return a.doFetchAndStore(sharedCtx, epoch)
	})
	select {
	case <-ctx.Done():
		return cache.Entry[P]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return cache.Entry[P]{}, res.Err
		}
		return res.Val.(cache.Entry[P]), nil
	}
}

func (a *Adapter[P, D]) doFetchAndStore(ctx context.Context, epoch uint64) (cache.Entry[P], error) {
	payload, err := a.cfg.Load(ctx)
	if err != nil {
		a.recordErr(err)
		a.logger.Error().Err(err).Msg("Error fetching from source.")
		return cache.Entry[P]{}, fmt.Errorf("error fetching %s: %w", a.cfg.Key, err)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if epoch < a.committed {
		a.logger.Debug().Uint64("epoch", epoch).Uint64("committed", a.committed).Msg("Discarding payload fetched before a refresh.")
		if current, ok := a.get(ctx); ok {
			return current, nil
		}
		return cache.Entry[P]{Key: a.cfg.Key, Payload: payload, FetchedAt: a.opts.clock.Now(), TTL: a.cfg.TTL}, nil
	}
	a.committed = epoch

	entry, err := a.store.Put(ctx, a.cfg.Key, payload, a.cfg.TTL)
	if err != nil {
		// The fetch itself succeeded; hand the data out even though later
		// reads will have to fetch again.
		a.logger.Error().Err(err).Msg("Failed to write fetched payload to the store.")
		entry = cache.Entry[P]{Key: a.cfg.Key, Payload: payload, FetchedAt: a.opts.clock.Now(), TTL: a.cfg.TTL}
	}

	a.mu.Lock()
	a.lastErr = nil
	a.mu.Unlock()
	a.logger.Debug().Uint64("version", entry.Version).Msg("Source hit. Stored payload.")
	return entry, nil
}

func (a *Adapter[P, D]) recordErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastErr = err
}

// resultFor builds the result for entry, reusing the derived view when the
// entry's version has not changed since it was last built.
func (a *Adapter[P, D]) resultFor(entry cache.Entry[P]) Result[D] {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.view == nil || entry.Version == 0 || a.view.version != entry.Version {
		data := a.cfg.Build(entry.Payload)
		if entry.Version == 0 {
			return Result[D]{Data: data, Err: a.lastErr, FetchedAt: entry.FetchedAt}
		}
		a.view = &memo[D]{version: entry.Version, data: data}
	}
	return Result[D]{Data: a.view.data, Err: a.lastErr, FetchedAt: entry.FetchedAt}
}

// Package invalidation propagates server-side changes to the cache by
// marking dataset keys stale, either on a timer or from a change feed. It
// never fetches: the next read of an invalidated key does that.
package invalidation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-ridecache/pkg/cache"
	"github.com/rs/zerolog"
)

// State is the polling state of a key.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
)

// ErrPollerClosed is returned when subscribing to a closed Poller.
var ErrPollerClosed = errors.New("poller is closed")

// PollerConfig holds the configuration for a Poller.
type PollerConfig struct {
	Interval time.Duration
}

type pollLoop struct {
	subscribers map[uuid.UUID]struct{}
	cancel      context.CancelFunc
	done        chan struct{}
}

// Poller invalidates subscribed keys at a fixed interval. A key is polled by
// exactly one ticker while it has at least one subscriber; the ticker stops
// when the last subscriber leaves.
type Poller struct {
	target   cache.Invalidator
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	loops  map[string]*pollLoop
	closed bool
}

// NewPoller creates a Poller that invalidates keys on target.
func NewPoller(cfg *PollerConfig, target cache.Invalidator, logger zerolog.Logger) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poll interval must be greater than 0")
	}
	if target == nil {
		return nil, errors.New("poller target cannot be nil")
	}
	return &Poller{
		target:   target,
		interval: cfg.Interval,
		logger:   logger.With().Str("component", "Poller").Logger(),
		loops:    make(map[string]*pollLoop),
	}, nil
}

// Subscription is one consumer's interest in a polled key.
type Subscription struct {
	ID  uuid.UUID
	Key string

	poller *Poller
	once   sync.Once
}

// Unsubscribe removes the subscription. When it was the last one for its
// key, the key's ticker is stopped before Unsubscribe returns, so no further
// invalidations happen. Calling it more than once is safe.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.poller.unsubscribe(s)
	})
}

// Subscribe registers interest in key, starting its ticker if the key was idle.
func (p *Poller) Subscribe(key string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPollerClosed
	}

	sub := &Subscription{ID: uuid.New(), Key: key, poller: p}
	loop, ok := p.loops[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		loop = &pollLoop{
			subscribers: make(map[uuid.UUID]struct{}),
			cancel:      cancel,
			done:        make(chan struct{}),
		}
		p.loops[key] = loop
		go p.run(ctx, key, loop.done)
		p.logger.Info().Str("key", key).Dur("interval", p.interval).Msg("Polling started.")
	}
	loop.subscribers[sub.ID] = struct{}{}

	p.logger.Debug().Str("key", key).Str("subscription_id", sub.ID.String()).Int("subscribers", len(loop.subscribers)).Msg("Subscribed.")
	return sub, nil
}

func (p *Poller) unsubscribe(s *Subscription) {
	p.mu.Lock()
	loop, ok := p.loops[s.Key]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(loop.subscribers, s.ID)
	if len(loop.subscribers) > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.loops, s.Key)
	p.mu.Unlock()

	loop.cancel()
	<-loop.done
	p.logger.Info().Str("key", s.Key).Msg("Polling stopped.")
}

func (p *Poller) run(ctx context.Context, key string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			invCtx, cancel := context.WithTimeout(ctx, p.interval)
			if err := p.target.Invalidate(invCtx, key); err != nil && ctx.Err() == nil {
				p.logger.Warn().Err(err).Str("key", key).Msg("Failed to invalidate polled key.")
			}
			cancel()
		}
	}
}

// State reports whether key is currently being polled.
func (p *Poller) State(key string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.loops[key]; ok {
		return StatePolling
	}
	return StateIdle
}

// ActiveTimers returns the number of running tickers.
func (p *Poller) ActiveTimers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loops)
}

// Close stops every ticker. Existing subscriptions become inert.
func (p *Poller) Close() error {
	p.mu.Lock()
	p.closed = true
	loops := p.loops
	p.loops = make(map[string]*pollLoop)
	p.mu.Unlock()

	for _, loop := range loops {
		loop.cancel()
		<-loop.done
	}
	p.logger.Info().Int("stopped", len(loops)).Msg("Poller closed.")
	return nil
}

package datasets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/go-ridecache/pkg/adapter"
	"github.com/illmade-knight/go-ridecache/pkg/cache"
	"github.com/illmade-knight/go-ridecache/pkg/invalidation"
	"github.com/illmade-knight/go-ridecache/pkg/types"
	"github.com/illmade-knight/go-ridecache/pkg/views"
	"github.com/rs/zerolog"
)

// Stores holds one typed store per dataset.
type Stores struct {
	Locations     cache.Store[[]types.LocationRecord]
	Suggestions   cache.Store[[]types.RideEndpoints]
	Notifications cache.Store[[]types.Notification]
}

// NewInMemoryStores creates process-local stores for every dataset.
func NewInMemoryStores(logger zerolog.Logger, opts ...cache.InMemoryOption) Stores {
	return Stores{
		Locations:     cache.NewInMemoryCache[[]types.LocationRecord](logger, opts...),
		Suggestions:   cache.NewInMemoryCache[[]types.RideEndpoints](logger, opts...),
		Notifications: cache.NewInMemoryCache[[]types.Notification](logger, opts...),
	}
}

// RegistryConfig holds the dataset settings. Zero values take the defaults.
type RegistryConfig struct {
	LocationsTTL               time.Duration
	SuggestionsTTL             time.Duration
	PollInterval               time.Duration
	CategoryOrder              []string
	AdapterOptions             []adapter.Option
	DisableNotificationPolling bool
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.LocationsTTL == 0 {
		c.LocationsTTL = LocationsTTL
	}
	if c.SuggestionsTTL == 0 {
		c.SuggestionsTTL = SuggestionsTTL
	}
	if c.PollInterval == 0 {
		c.PollInterval = NotificationPollInterval
	}
	if len(c.CategoryOrder) == 0 {
		c.CategoryOrder = DefaultCategoryOrder
	}
	return c
}

// Registry hands out one adapter per dataset key, all sharing the same
// stores, so independent consumers of a key share its entry.
type Registry struct {
	cfg       RegistryConfig
	api       JSONFetcher
	locations LocationSource
	stores    Stores
	router    *invalidation.Router
	poller    *invalidation.Poller
	logger    zerolog.Logger

	mu          sync.Mutex
	closed      bool
	catalogs    map[string]*LocationCatalog
	suggestions *LocationSuggestions
	unread      map[string]*UnreadNotifications
}

// ErrRegistryClosed is reported by Ready once the registry has been closed.
var ErrRegistryClosed = errors.New("dataset registry is closed")

// NewRegistry creates a Registry. locations may be nil, in which case the
// catalog is loaded from the API.
func NewRegistry(cfg RegistryConfig, api JSONFetcher, locations LocationSource, stores Stores, logger zerolog.Logger) (*Registry, error) {
	if api == nil {
		return nil, errors.New("registry api cannot be nil")
	}
	if stores.Locations == nil || stores.Suggestions == nil || stores.Notifications == nil {
		return nil, errors.New("registry requires a store for every dataset")
	}
	cfg = cfg.withDefaults()
	if locations == nil {
		locations = NewAPILocationSource(api)
	}

	router := invalidation.NewRouter()
	router.Route(LocationsKeyPrefix, stores.Locations)
	router.Route(SuggestionsKey, stores.Suggestions)
	router.Route(UnreadNotificationsKeyPrefix, stores.Notifications)

	r := &Registry{
		cfg:       cfg,
		api:       api,
		locations: locations,
		stores:    stores,
		router:    router,
		logger:    logger.With().Str("component", "Registry").Logger(),
		catalogs:  make(map[string]*LocationCatalog),
		unread:    make(map[string]*UnreadNotifications),
	}

	if !cfg.DisableNotificationPolling {
		poller, err := invalidation.NewPoller(&invalidation.PollerConfig{Interval: cfg.PollInterval}, stores.Notifications, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification poller: %w", err)
		}
		r.poller = poller
	}
	return r, nil
}

// Locations returns the catalog adapter of a city.
func (r *Registry) Locations(city string) (*LocationCatalog, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, errors.New("city cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.catalogs[city]; ok {
		return c, nil
	}

	order := append([]string(nil), r.cfg.CategoryOrder...)
	a, err := adapter.New(adapter.Config[[]types.LocationRecord, types.GroupedView]{
		Key: LocationsKey(city),
		TTL: r.cfg.LocationsTTL,
		Load: func(ctx context.Context) ([]types.LocationRecord, error) {
			return r.locations.Locations(ctx, city)
		},
		Build: func(records []types.LocationRecord) types.GroupedView {
			return views.BuildGrouped(records, order)
		},
	}, r.stores.Locations, r.logger, r.cfg.AdapterOptions...)
	if err != nil {
		return nil, err
	}
	c := &LocationCatalog{city: city, Adapter: a}
	r.catalogs[city] = c
	return c, nil
}

// Suggestions returns the suggestions adapter.
func (r *Registry) Suggestions() (*LocationSuggestions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suggestions != nil {
		return r.suggestions, nil
	}
	a, err := adapter.New(adapter.Config[[]types.RideEndpoints, []types.SuggestionRecord]{
		Key:   SuggestionsKey,
		TTL:   r.cfg.SuggestionsTTL,
		Load:  loadRideEndpoints(r.api),
		Build: views.BuildSuggestions,
	}, r.stores.Suggestions, r.logger, r.cfg.AdapterOptions...)
	if err != nil {
		return nil, err
	}
	r.suggestions = &LocationSuggestions{Adapter: a}
	return r.suggestions, nil
}

// UnreadNotifications returns the unread-notifications adapter of a user.
func (r *Registry) UnreadNotifications(userID string) (*UnreadNotifications, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.unread[userID]; ok {
		return n, nil
	}
	a, err := adapter.New(adapter.Config[[]types.Notification, types.UnreadSummary]{
		Key:   UnreadNotificationsKey(userID),
		Load:  loadUnreadNotifications(r.api, userID),
		Build: views.BuildUnreadSummary,
	}, r.stores.Notifications, r.logger, r.cfg.AdapterOptions...)
	if err != nil {
		return nil, err
	}
	n := &UnreadNotifications{userID: userID, api: r.api, poller: r.poller, Adapter: a}
	r.unread[userID] = n
	return n, nil
}

// Invalidate marks any dataset key stale. It satisfies cache.Invalidator so
// a change feed can drive the registry directly.
func (r *Registry) Invalidate(ctx context.Context, key string) error {
	return r.router.Invalidate(ctx, key)
}

// Poller returns the notification poller, or nil when polling is disabled.
func (r *Registry) Poller() *invalidation.Poller { return r.poller }

// Clear drops every cached entry of every dataset.
func (r *Registry) Clear(ctx context.Context) error {
	return errors.Join(
		r.stores.Locations.Clear(ctx),
		r.stores.Suggestions.Clear(ctx),
		r.stores.Notifications.Clear(ctx),
	)
}

// Ready reports whether the registry can still serve reads.
func (r *Registry) Ready() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	return nil
}

// Close stops polling and closes the stores.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var errs []error
	if r.poller != nil {
		errs = append(errs, r.poller.Close())
	}
	errs = append(errs,
		r.stores.Locations.Close(),
		r.stores.Suggestions.Close(),
		r.stores.Notifications.Close(),
	)
	return errors.Join(errs...)
}

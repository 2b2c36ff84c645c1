// Command ridecache serves the ride reference datasets from a freshness cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"github.com/illmade-knight/go-ridecache/pkg/adapter"
	"github.com/illmade-knight/go-ridecache/pkg/cache"
	"github.com/illmade-knight/go-ridecache/pkg/config"
	"github.com/illmade-knight/go-ridecache/pkg/datasets"
	"github.com/illmade-knight/go-ridecache/pkg/fetch"
	"github.com/illmade-knight/go-ridecache/pkg/invalidation"
	"github.com/illmade-knight/go-ridecache/pkg/microservice"
	"github.com/illmade-knight/go-ridecache/pkg/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

var configPath = flag.String("config", "", "path to a YAML config file")

func main() {
	flag.Parse()

	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	if err := run(context.Background(), *configPath); err != nil {
		log.Fatal().Err(err).Msg("ridecache failed")
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	logger := log.With().Str("service", cfg.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	api, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	stores, err := newStores(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var locations datasets.LocationSource
	if cfg.Locations.Source == "firestore" {
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		defer func() { _ = fsClient.Close() }()
		source, err := fetch.NewFirestoreLocationSource(&fetch.FirestoreConfig{
			ProjectID:      cfg.ProjectID,
			CollectionName: cfg.Locations.FirestoreCollection,
		}, fsClient, logger)
		if err != nil {
			return fmt.Errorf("failed to create firestore location source: %w", err)
		}
		locations = source
	}

	var adapterOpts []adapter.Option
	if cfg.Cache.Coalesce {
		adapterOpts = append(adapterOpts, adapter.WithCoalescing())
	}
	registry, err := datasets.NewRegistry(datasets.RegistryConfig{
		LocationsTTL:   cfg.Datasets.LocationsTTL.Std(),
		SuggestionsTTL: cfg.Datasets.SuggestionsTTL.Std(),
		PollInterval:   cfg.Datasets.PollInterval.Std(),
		CategoryOrder:  cfg.Datasets.CategoryOrder,
		AdapterOptions: adapterOpts,
	}, api, locations, stores, logger)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing dataset registry.")
		}
	}()

	if cfg.Invalidation.PubsubSubscription != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			return fmt.Errorf("failed to create pubsub client: %w", err)
		}
		defer func() { _ = psClient.Close() }()

		pusher, err := invalidation.NewPushInvalidator(ctx, invalidation.NewPushInvalidatorDefaults(cfg.Invalidation.PubsubSubscription), psClient, registry, logger)
		if err != nil {
			return fmt.Errorf("failed to create push invalidator: %w", err)
		}
		if err := pusher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start push invalidator: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = pusher.Stop(stopCtx)
		}()
	}

	service := microservice.NewRideCacheService(cfg.HTTPPort, registry, cfg.Datasets.SuggestionsLimit, logger)
	return serve(ctx, service, logger)
}

// newAPIClient builds the ride API client. The HTTP client is left to the
// fetch package so that api.timeout bounds every call.
func newAPIClient(cfg *config.Config, logger zerolog.Logger) (*fetch.Client, error) {
	api, err := fetch.NewClient(&fetch.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout.Std(),
	}, nil, fetch.StaticToken(cfg.API.Token), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}
	return api, nil
}

// serve runs service until ctx is done and then shuts it down.
func serve(ctx context.Context, service microservice.Service, logger zerolog.Logger) error {
	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	logger.Info().Str("port", service.GetHTTPPort()).Msg("ridecache running")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down service: %w", err)
	}
	return nil
}

func newStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (datasets.Stores, error) {
	if cfg.Cache.Backend != "redis" {
		return datasets.NewInMemoryStores(logger), nil
	}

	redisCfg := &cache.RedisConfig{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
		Prefix:   cfg.Cache.RedisPrefix,
	}
	locations, err := cache.NewRedisStore[[]types.LocationRecord](ctx, redisCfg, logger)
	if err != nil {
		return datasets.Stores{}, fmt.Errorf("failed to create locations store: %w", err)
	}
	suggestions, err := cache.NewRedisStore[[]types.RideEndpoints](ctx, redisCfg, logger)
	if err != nil {
		_ = locations.Close()
		return datasets.Stores{}, fmt.Errorf("failed to create suggestions store: %w", err)
	}
	notifications, err := cache.NewRedisStore[[]types.Notification](ctx, redisCfg, logger)
	if err != nil {
		_ = locations.Close()
		_ = suggestions.Close()
		return datasets.Stores{}, fmt.Errorf("failed to create notifications store: %w", err)
	}
	return datasets.Stores{
		Locations:     locations,
		Suggestions:   suggestions,
		Notifications: notifications,
	}, nil
}

// Package config loads the service configuration from a YAML file overlaid
// with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	LogLevel        string `yaml:"log_level" env:"LOG_LEVEL"`
	HTTPPort        string `yaml:"http_port" env:"HTTP_PORT"`
	ProjectID       string `yaml:"project_id" env:"PROJECT_ID"`
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	ServiceName     string `yaml:"service_name" env:"SERVICE_NAME"`

	API          APIConfig          `yaml:"api" envPrefix:"API_"`
	Cache        CacheConfig        `yaml:"cache" envPrefix:"CACHE_"`
	Datasets     DatasetsConfig     `yaml:"datasets" envPrefix:"DATASETS_"`
	Locations    LocationsConfig    `yaml:"locations" envPrefix:"LOCATIONS_"`
	Invalidation InvalidationConfig `yaml:"invalidation" envPrefix:"INVALIDATION_"`
}

// APIConfig holds the ride API client settings.
type APIConfig struct {
	BaseURL string   `yaml:"base_url" env:"BASE_URL"`
	Token   string   `yaml:"token" env:"TOKEN"`
	Timeout Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"` // "memory", "redis"
	Coalesce      bool   `yaml:"coalesce" env:"COALESCE"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

// DatasetsConfig holds the freshness settings of the datasets.
type DatasetsConfig struct {
	LocationsTTL     Duration `yaml:"locations_ttl" env:"LOCATIONS_TTL"`
	SuggestionsTTL   Duration `yaml:"suggestions_ttl" env:"SUGGESTIONS_TTL"`
	PollInterval     Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	CategoryOrder    []string `yaml:"category_order" env:"CATEGORY_ORDER" envSeparator:";"`
	SuggestionsLimit int      `yaml:"suggestions_limit" env:"SUGGESTIONS_LIMIT"`
}

// LocationsConfig selects where the location catalog is loaded from.
type LocationsConfig struct {
	Source              string `yaml:"source" env:"SOURCE"` // "api", "firestore"
	FirestoreCollection string `yaml:"firestore_collection" env:"FIRESTORE_COLLECTION"`
}

// InvalidationConfig enables the Pub/Sub change feed.
type InvalidationConfig struct {
	PubsubSubscription string `yaml:"pubsub_subscription" env:"PUBSUB_SUBSCRIPTION"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		HTTPPort:    ":8080",
		ServiceName: "ridecache",
		API: APIConfig{
			Timeout: Duration(15 * time.Second),
		},
		Cache: CacheConfig{
			Backend:     "memory",
			RedisPrefix: "ridecache:",
		},
		Datasets: DatasetsConfig{
			LocationsTTL:     Duration(5 * time.Minute),
			SuggestionsTTL:   Duration(2 * time.Minute),
			PollInterval:     Duration(15 * time.Second),
			SuggestionsLimit: 10,
		},
		Locations: LocationsConfig{
			Source:              "api",
			FirestoreCollection: "locations",
		},
	}
}

// Load reads the YAML file at path, if any, over the defaults and then
// applies environment variables prefixed with RIDECACHE_.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "RIDECACHE_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	switch c.Locations.Source {
	case "api":
	case "firestore":
		if c.ProjectID == "" {
			errs = append(errs, errors.New("project_id is required for the firestore location source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown locations source %q", c.Locations.Source))
	}
	if c.Invalidation.PubsubSubscription != "" && c.ProjectID == "" {
		errs = append(errs, errors.New("project_id is required for pubsub invalidation"))
	}
	if c.Datasets.PollInterval.Std() <= 0 {
		errs = append(errs, errors.New("datasets.poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

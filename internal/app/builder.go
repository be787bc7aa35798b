package app

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/reelsync/internal/app/storage"
	"github.com/stacklok/reelsync/internal/collector"
	"github.com/stacklok/reelsync/internal/config"
	moviestore "github.com/stacklok/reelsync/internal/storage"
	"github.com/stacklok/reelsync/internal/telemetry"
	"github.com/stacklok/reelsync/internal/upstream"
	"github.com/stacklok/reelsync/internal/upstream/boxoffice"
	"github.com/stacklok/reelsync/internal/upstream/omdb"
	"github.com/stacklok/reelsync/internal/upstream/tmdb"
	"github.com/stacklok/reelsync/internal/versions"
)

// CollectorAppOption is a function that configures the collector app builder
type CollectorAppOption func(*collectorAppConfig) error

// collectorAppConfig holds the builder state. Component overrides are
// primarily for testing.
type collectorAppConfig struct {
	config *config.Config

	storageFactory  storage.Factory
	telemetry       *telemetry.Telemetry
	tmdbClient      collector.TMDBClient
	omdbClient      collector.OMDBClient
	boxOfficeClient collector.BoxOfficeClient
	clock           clock.Clock
}

func baseConfig(opts ...CollectorAppOption) (*collectorAppConfig, error) {
	cfg := &collectorAppConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewCollectorApp builds telemetry, storage, the upstream clients and the
// collector from the configuration
func NewCollectorApp(ctx context.Context, opts ...CollectorAppOption) (*CollectorApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if b.telemetry == nil {
		b.telemetry, err = telemetry.New(ctx,
			telemetry.WithTelemetryConfig(b.config.Telemetry),
			telemetry.WithServiceVersion(versions.GetVersionInfo().Version),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			if b.storageFactory != nil {
				b.storageFactory.Cleanup()
			}
			_ = b.telemetry.Shutdown(context.Background())
		}
	}()

	if err := buildClients(b); err != nil {
		return nil, fmt.Errorf("failed to build upstream clients: %w", err)
	}

	if b.storageFactory == nil {
		b.storageFactory, err = storage.NewStorageFactory(ctx, b.config,
			storage.WithTracer(b.telemetry.Tracer(collector.TracerName)))
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	store, err := b.storageFactory.CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	c, err := buildCollector(b, store)
	if err != nil {
		return nil, fmt.Errorf("failed to build collector: %w", err)
	}

	cleanupNeeded = false
	return &CollectorApp{
		config: b.config,
		components: &AppComponents{
			Collector: c,
			Store:     store,
			Telemetry: b.telemetry,
		},
		cleanup: func() {
			store.Close()
			b.storageFactory.Cleanup()
		},
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) CollectorAppOption {
	return func(cfg *collectorAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) CollectorAppOption {
	return func(cfg *collectorAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithTelemetry uses already initialized telemetry. The app shuts it down on Stop.
func WithTelemetry(t *telemetry.Telemetry) CollectorAppOption {
	return func(cfg *collectorAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithTMDBClient allows injecting the primary source client (for testing)
func WithTMDBClient(c collector.TMDBClient) CollectorAppOption {
	return func(cfg *collectorAppConfig) error {
		cfg.tmdbClient = c
		return nil
	}
}

// WithOMDBClient allows injecting the secondary source client (for testing)
func WithOMDBClient(c collector.OMDBClient) CollectorAppOption {
	return func(cfg *collectorAppConfig) error {
		cfg.omdbClient = c
		return nil
	}
}

// WithBoxOfficeClient allows injecting the box-office client (for testing)
func WithBoxOfficeClient(c collector.BoxOfficeClient) CollectorAppOption {
	return func(cfg *collectorAppConfig) error {
		cfg.boxOfficeClient = c
		return nil
	}
}

// WithClock overrides the clock of the collector and the rate limiters
func WithClock(clk clock.Clock) CollectorAppOption {
	return func(cfg *collectorAppConfig) error {
		if clk == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		cfg.clock = clk
		return nil
	}
}

// buildClients creates a client for every enabled source that was not
// injected. Missing credentials fail here, before any network activity.
func buildClients(b *collectorAppConfig) error {
	slog.Info("Initializing upstream clients")

	metrics, err := b.telemetry.UpstreamMetrics()
	if err != nil {
		return fmt.Errorf("failed to create upstream metrics: %w", err)
	}
	sources := b.config.Sources

	if b.tmdbClient == nil {
		key, err := sources.TMDB.GetAPIKey(config.TMDBAPIKeyEnv)
		if err != nil {
			return fmt.Errorf("tmdb: %w", err)
		}
		opts, err := clientOptions(b, sources.TMDB, tmdb.DefaultRequestsPerSecond, tmdb.DefaultMaxConcurrent, metrics)
		if err != nil {
			return fmt.Errorf("tmdb: %w", err)
		}
		if b.tmdbClient, err = tmdb.New(key, opts...); err != nil {
			return err
		}
	}

	if b.omdbClient == nil && sources.OMDB.IsEnabled(true) {
		key, err := sources.OMDB.GetAPIKey(config.OMDBAPIKeyEnv)
		if err != nil {
			return fmt.Errorf("omdb: %w", err)
		}
		opts, err := clientOptions(b, sources.OMDB, omdb.DefaultRequestsPerSecond, omdb.DefaultMaxConcurrent, metrics)
		if err != nil {
			return fmt.Errorf("omdb: %w", err)
		}
		if b.omdbClient, err = omdb.New(key, opts...); err != nil {
			return err
		}
	}

	if b.boxOfficeClient == nil && sources.BoxOffice.IsEnabled(false) {
		opts, err := clientOptions(b, sources.BoxOffice,
			boxoffice.DefaultRequestsPerSecond, boxoffice.DefaultMaxConcurrent, metrics)
		if err != nil {
			return fmt.Errorf("boxOffice: %w", err)
		}
		if b.boxOfficeClient, err = boxoffice.New(opts...); err != nil {
			return err
		}
	}

	slog.Info("Upstream clients initialized",
		"omdb", b.omdbClient != nil, "box_office", b.boxOfficeClient != nil)
	return nil
}

// clientOptions translates a source section into client options. Unset
// values keep the client defaults.
func clientOptions(
	b *collectorAppConfig,
	sc *config.SourceConfig,
	defaultRPS float64,
	defaultConcurrent int,
	metrics *telemetry.UpstreamMetrics,
) ([]upstream.ClientOption, error) {
	opts := []upstream.ClientOption{upstream.WithUpstreamMetrics(metrics)}
	if b.clock != nil {
		opts = append(opts, upstream.WithClock(b.clock))
	}
	if sc == nil {
		return opts, nil
	}

	if sc.BaseURL != "" {
		opts = append(opts, upstream.WithBaseURL(sc.BaseURL))
	}
	if sc.RequestsPerSecond > 0 || sc.MaxConcurrent > 0 {
		opts = append(opts, upstream.WithRateLimit(
			cmp.Or(sc.RequestsPerSecond, defaultRPS),
			cmp.Or(sc.MaxConcurrent, defaultConcurrent),
		))
	}

	timeout, err := sc.GetTimeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		opts = append(opts, upstream.WithTimeout(timeout))
	}

	if sc.Retry != nil {
		policy, err := sc.GetRetryPolicy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, upstream.WithRetry(policy))
	}
	return opts, nil
}

func buildCollector(b *collectorAppConfig, store moviestore.Store) (*collector.Collector, error) {
	metrics, err := b.telemetry.CollectorMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create collector metrics: %w", err)
	}

	opts := []collector.Option{
		collector.WithMetrics(metrics),
		collector.WithTracer(b.telemetry.Tracer(collector.TracerName)),
	}
	if b.boxOfficeClient != nil {
		opts = append(opts, collector.WithBoxOffice(b.boxOfficeClient))
	}
	if b.clock != nil {
		opts = append(opts, collector.WithClock(b.clock))
	}

	return collector.New(store, b.tmdbClient, b.omdbClient, opts...)
}

// CollectionOptions derives the run options from the configuration. Callers
// override individual fields from command-line flags.
func CollectionOptions(cfg *config.Config, now time.Time) collector.Options {
	c := cfg.Collection
	start, end := c.Discovery.GetYears(now)

	return collector.Options{
		Discover:     c.Discovery.IsEnabled(),
		StartYear:    start,
		EndYear:      end,
		MaxPages:     c.Discovery.MaxPages,
		MinVoteCount: c.Discovery.GetMinVoteCount(),
		RefreshLimit: c.GetRefreshLimit(),
		BatchSize:    c.GetBatchSize(),
		FreezeSweep:  c.FreezeSweep,
	}
}

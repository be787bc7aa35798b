// Package collector runs refresh cycles: it discovers movies, selects the ones
// due for a refresh, fetches every due source and persists the results.
package collector

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/storage"
	"github.com/stacklok/reelsync/internal/telemetry"
	"github.com/stacklok/reelsync/internal/upstream/boxoffice"
	"github.com/stacklok/reelsync/internal/upstream/tmdb"
)

// TracerName is the name used for the collector tracer
const TracerName = "github.com/stacklok/reelsync/collector"

// TMDBClient is the primary source. It supplies identity, release dates and
// the IMDb cross-reference.
type TMDBClient interface {
	Discover(ctx context.Context, criteria tmdb.DiscoverCriteria) ([]movie.Discovered, error)
	FetchMany(ctx context.Context, ids []int64, opts ...tmdb.FetchOption) *tmdb.BatchResult
}

// OMDBClient is the secondary source, keyed by IMDb id
type OMDBClient interface {
	MovieByIMDbID(ctx context.Context, imdbID string) (*movie.OMDBDetails, error)
	MaxConcurrent() int
}

// BoxOfficeClient is the optional box-office source, keyed by title and year
type BoxOfficeClient interface {
	Lookup(ctx context.Context, q boxoffice.Query) (*movie.BoxOffice, error)
	MaxConcurrent() int
}

// Collector orchestrates refresh runs against one store
type Collector struct {
	store     storage.Store
	tmdb      TMDBClient
	omdb      OMDBClient
	boxOffice BoxOfficeClient
	clock     clock.Clock
	metrics   *telemetry.CollectorMetrics
	tracer    trace.Tracer
}

// Option configures a Collector
type Option func(*Collector)

// WithBoxOffice enables the box-office source
func WithBoxOffice(client BoxOfficeClient) Option {
	return func(c *Collector) {
		c.boxOffice = client
	}
}

// WithClock overrides the clock used for refresh decisions and timestamps
func WithClock(clk clock.Clock) Option {
	return func(c *Collector) {
		c.clock = clk
	}
}

// WithMetrics records run metrics. Nil disables them.
func WithMetrics(m *telemetry.CollectorMetrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// WithTracer sets the OpenTelemetry tracer. If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Collector) {
		c.tracer = tracer
	}
}

// New creates a collector. The OMDB client may be nil when that source is
// never enabled.
func New(store storage.Store, tmdbClient TMDBClient, omdbClient OMDBClient, opts ...Option) (*Collector, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if tmdbClient == nil {
		return nil, fmt.Errorf("tmdb client is required")
	}

	c := &Collector{
		store: store,
		tmdb:  tmdbClient,
		omdb:  omdbClient,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// availableSources lists the sources that have a client, in dispatch order
func (c *Collector) availableSources() []movie.Source {
	sources := []movie.Source{movie.SourceTMDB}
	if c.omdb != nil {
		sources = append(sources, movie.SourceOMDB)
	}
	if c.boxOffice != nil {
		sources = append(sources, movie.SourceBoxOffice)
	}
	return sources
}

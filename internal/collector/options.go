package collector

import (
	"fmt"
	"slices"
	"time"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/upstream"
)

const (
	// DefaultBatchSize is the number of records written per storage call
	DefaultBatchSize = 100

	// DefaultRefreshLimit bounds the candidates of one run
	DefaultRefreshLimit = 1000
)

// Options tune a single run
type Options struct {
	// Discover runs TMDB discovery over StartYear..EndYear before refreshing
	Discover     bool
	StartYear    int
	EndYear      int
	MaxPages     int
	MinVoteCount int

	// RefreshLimit bounds the number of candidates. Zero uses the default.
	RefreshLimit int

	// Sources enables sources for this run. Empty enables every source that
	// has a client.
	Sources []movie.Source

	// BatchSize is the number of records per storage write. Zero uses the
	// default.
	BatchSize int

	// FreezeSweep also evaluates every non-frozen movie old enough to freeze,
	// not only the ones refreshed in this run
	FreezeSweep bool
}

func (c *Collector) validate(opts Options) (Options, error) {
	if opts.BatchSize < 0 {
		return opts, fmt.Errorf("batch size must not be negative, got %d", opts.BatchSize)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RefreshLimit < 0 {
		return opts, fmt.Errorf("refresh limit must not be negative, got %d", opts.RefreshLimit)
	}
	if opts.RefreshLimit == 0 {
		opts.RefreshLimit = DefaultRefreshLimit
	}
	if opts.Discover && opts.StartYear > opts.EndYear {
		return opts, fmt.Errorf("invalid discovery year range %d-%d", opts.StartYear, opts.EndYear)
	}

	available := c.availableSources()
	if len(opts.Sources) == 0 {
		opts.Sources = available
	}
	for _, src := range opts.Sources {
		if !slices.Contains(movie.AllSources, src) {
			return opts, fmt.Errorf("unknown source %q", src)
		}
		if !slices.Contains(available, src) {
			return opts, upstream.ConfigurationError(src, "source enabled but no client configured")
		}
	}
	var enabled []movie.Source
	for _, src := range movie.AllSources {
		if slices.Contains(opts.Sources, src) {
			enabled = append(enabled, src)
		}
	}
	opts.Sources = enabled
	return opts, nil
}

// Stats summarizes a run
type Stats struct {
	RunID            string         `json:"run_id"`
	Discovered       int            `json:"discovered"`
	NewMovies        int            `json:"new_movies"`
	Candidates       int            `json:"candidates"`
	TMDBUpdated      int            `json:"tmdb_updated"`
	OMDBUpdated      int            `json:"omdb_updated"`
	BoxOfficeUpdated int            `json:"box_office_updated"`
	Changed          int            `json:"changed"`
	FullyRefreshed   int            `json:"fully_refreshed"`
	Frozen           int            `json:"frozen"`
	NotFound         int            `json:"not_found"`
	Skipped          int            `json:"skipped"`
	Failed           int            `json:"failed"`
	AbortedSources   []movie.Source `json:"aborted_sources,omitempty"`
	Duration         time.Duration  `json:"duration"`
}

// Updated returns the number of successful writes for src
func (s *Stats) Updated(src movie.Source) int {
	switch src {
	case movie.SourceTMDB:
		return s.TMDBUpdated
	case movie.SourceOMDB:
		return s.OMDBUpdated
	case movie.SourceBoxOffice:
		return s.BoxOfficeUpdated
	default:
		return 0
	}
}

func (s *Stats) addUpdated(src movie.Source, n int) {
	switch src {
	case movie.SourceTMDB:
		s.TMDBUpdated += n
	case movie.SourceOMDB:
		s.OMDBUpdated += n
	case movie.SourceBoxOffice:
		s.BoxOfficeUpdated += n
	}
}

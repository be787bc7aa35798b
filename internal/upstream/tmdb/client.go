// Package tmdb is the client for The Movie Database API: paginated discovery of
// movies by release year and per-movie details.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/upstream"
)

const (
	// DefaultBaseURL is the TMDB v3 API root
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// DefaultRequestsPerSecond stays under the public TMDB rate limit
	DefaultRequestsPerSecond = 4
	// DefaultMaxConcurrent bounds in-flight TMDB requests
	DefaultMaxConcurrent = 10
	// DefaultMinVoteCount filters discovery to movies with meaningful data
	DefaultMinVoteCount = 200
	// MaxPages is the deepest page TMDB serves for discover queries
	MaxPages = 500

	statusResourceNotFound = 34
	dateLayout             = "2006-01-02"
)

// FetchOption configures Client.FetchMany
type FetchOption = upstream.FetchOption[int64, *movie.TMDBDetails]

// BatchResult is the outcome of Client.FetchMany
type BatchResult = upstream.BatchResult[int64, *movie.TMDBDetails]

// Client talks to TMDB through a shared rate limiter
type Client struct {
	apiKey        string
	baseURL       string
	maxConcurrent int
	caller        *upstream.Caller
}

// New creates a TMDB client. An empty apiKey is a configuration error.
func New(apiKey string, opts ...upstream.ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, upstream.ConfigurationError(movie.SourceTMDB, "api key is required")
	}

	cfg := upstream.NewClientConfig(upstream.ClientConfig{
		BaseURL:           DefaultBaseURL,
		RequestsPerSecond: DefaultRequestsPerSecond,
		MaxConcurrent:     DefaultMaxConcurrent,
	}, opts...)

	caller, err := cfg.NewCaller(movie.SourceTMDB)
	if err != nil {
		return nil, err
	}

	return &Client{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		maxConcurrent: cfg.MaxConcurrent,
		caller:        caller,
	}, nil
}

// Criteria selects movies released in one year
type Criteria struct {
	Year         int
	MinVoteCount int
	// MaxPages caps pagination; zero means every page TMDB serves
	MaxPages int
}

// Search returns every discovered movie for one release year. A failure on
// the first page is returned; a failure on a later page ends pagination early
// and the movies collected so far are returned.
func (c *Client) Search(ctx context.Context, criteria Criteria) ([]movie.Discovered, error) {
	first, err := c.discoverPage(ctx, criteria, 1)
	if err != nil {
		return nil, err
	}

	totalPages := first.TotalPages
	if criteria.MaxPages > 0 && totalPages > criteria.MaxPages {
		totalPages = criteria.MaxPages
	}
	if totalPages > MaxPages {
		totalPages = MaxPages
	}

	movies := first.discovered()
	for page := 2; page <= totalPages; page++ {
		resp, err := c.discoverPage(ctx, criteria, page)
		if err != nil {
			if upstream.IsSourceFatal(err) || ctx.Err() != nil {
				return movies, err
			}
			slog.WarnContext(ctx, "Stopping discovery pagination early",
				"year", criteria.Year,
				"page", page,
				"total_pages", totalPages,
				"error", err,
			)
			break
		}
		movies = append(movies, resp.discovered()...)
	}

	slog.DebugContext(ctx, "Discovered movies for year",
		"year", criteria.Year,
		"count", len(movies),
		"pages", totalPages,
	)
	return movies, nil
}

// DiscoverCriteria selects movies over a range of release years
type DiscoverCriteria struct {
	StartYear    int
	EndYear      int
	MinVoteCount int
	MaxPages     int
}

// Discover searches every year in the range, newest first, and returns the
// union without duplicate ids. Years that fail transiently are skipped; a
// source-fatal error stops discovery and is returned with what was found.
func (c *Client) Discover(ctx context.Context, criteria DiscoverCriteria) ([]movie.Discovered, error) {
	if criteria.StartYear > criteria.EndYear {
		return nil, fmt.Errorf("invalid year range %d-%d", criteria.StartYear, criteria.EndYear)
	}

	seen := make(map[int64]struct{})
	var all []movie.Discovered
	for year := criteria.EndYear; year >= criteria.StartYear; year-- {
		found, err := c.Search(ctx, Criteria{
			Year:         year,
			MinVoteCount: criteria.MinVoteCount,
			MaxPages:     criteria.MaxPages,
		})
		for _, d := range found {
			if _, dup := seen[d.TMDBID]; dup {
				continue
			}
			seen[d.TMDBID] = struct{}{}
			all = append(all, d)
		}
		if err != nil {
			if upstream.IsSourceFatal(err) || ctx.Err() != nil {
				return all, err
			}
			slog.WarnContext(ctx, "Skipping discovery year", "year", year, "error", err)
		}
	}
	return all, nil
}

// MovieDetails fetches and normalizes the details of one movie
func (c *Client) MovieDetails(ctx context.Context, id int64) (*movie.TMDBDetails, error) {
	key := strconv.FormatInt(id, 10)
	body, err := c.caller.Get(ctx, key, c.url("/movie/"+key, nil))
	if err != nil {
		return nil, err
	}

	var raw detailsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, keyScoped(key, fmt.Errorf("failed to decode movie details: %w", err))
	}
	if raw.StatusCode == statusResourceNotFound {
		return nil, upstream.NotFound(movie.SourceTMDB, key, raw.StatusMessage)
	}
	if raw.ID == 0 {
		return nil, upstream.NotFound(movie.SourceTMDB, key, "empty response")
	}
	return raw.normalize(), nil
}

// FetchMany fetches details for every id with the client's concurrency
func (c *Client) FetchMany(ctx context.Context, ids []int64, opts ...FetchOption) *BatchResult {
	opts = append([]FetchOption{
		upstream.WithConcurrency[int64, *movie.TMDBDetails](c.maxConcurrent),
		upstream.WithLabel[int64, *movie.TMDBDetails]("tmdb details"),
	}, opts...)
	return upstream.FetchMany(ctx, ids, c.MovieDetails, opts...)
}

func (c *Client) discoverPage(ctx context.Context, criteria Criteria, page int) (*discoverResponse, error) {
	minVotes := criteria.MinVoteCount
	if minVotes <= 0 {
		minVotes = DefaultMinVoteCount
	}

	q := url.Values{}
	q.Set("primary_release_date.gte", fmt.Sprintf("%d-01-01", criteria.Year))
	q.Set("primary_release_date.lte", fmt.Sprintf("%d-12-31", criteria.Year))
	q.Set("vote_count.gte", strconv.Itoa(minVotes))
	q.Set("sort_by", "primary_release_date.desc")
	q.Set("include_adult", "false")
	q.Set("include_video", "false")
	q.Set("page", strconv.Itoa(page))

	key := fmt.Sprintf("discover:%d:%d", criteria.Year, page)
	body, err := c.caller.Get(ctx, key, c.url("/discover/movie", q))
	if err != nil {
		return nil, err
	}

	var resp discoverResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, keyScoped(key, fmt.Errorf("failed to decode discover page: %w", err))
	}
	return &resp, nil
}

func (c *Client) url(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	return c.baseURL + path + "?" + q.Encode()
}

func keyScoped(key string, err error) error {
	e := upstream.NewError(upstream.KindFatal, movie.SourceTMDB, key, err)
	e.KeyScoped = true
	return e
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

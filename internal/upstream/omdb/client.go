// Package omdb is the client for the OMDb API, keyed by IMDb id
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/upstream"
)

const (
	// DefaultBaseURL is the OMDb API endpoint
	DefaultBaseURL = "https://www.omdbapi.com/"
	// DefaultRequestsPerSecond keeps within the OMDb free tier
	DefaultRequestsPerSecond = 2
	// DefaultMaxConcurrent bounds in-flight OMDb requests
	DefaultMaxConcurrent = 5

	// searchPageSize is fixed by OMDb
	searchPageSize = 10
	// maxSearchPages is the deepest page OMDb serves
	maxSearchPages = 100
)

const (
	errInvalidKey   = "invalid api key"
	errRequestLimit = "request limit reached"
	errNotFound     = "not found"
	errTooMany      = "too many results"
)

// FetchOption configures Client.FetchMany
type FetchOption = upstream.FetchOption[string, *movie.OMDBDetails]

// BatchResult is the outcome of Client.FetchMany
type BatchResult = upstream.BatchResult[string, *movie.OMDBDetails]

// Client talks to OMDb through a shared rate limiter
type Client struct {
	apiKey        string
	baseURL       string
	maxConcurrent int
	caller        *upstream.Caller
}

// New creates an OMDb client. An empty apiKey is a configuration error.
func New(apiKey string, opts ...upstream.ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, upstream.ConfigurationError(movie.SourceOMDB, "api key is required")
	}

	cfg := upstream.NewClientConfig(upstream.ClientConfig{
		BaseURL:           DefaultBaseURL,
		RequestsPerSecond: DefaultRequestsPerSecond,
		MaxConcurrent:     DefaultMaxConcurrent,
	}, opts...)

	caller, err := cfg.NewCaller(movie.SourceOMDB)
	if err != nil {
		return nil, err
	}

	return &Client{
		apiKey:        apiKey,
		baseURL:       cfg.BaseURL,
		maxConcurrent: cfg.MaxConcurrent,
		caller:        caller,
	}, nil
}

// MovieByIMDbID fetches and normalizes one movie
func (c *Client) MovieByIMDbID(ctx context.Context, imdbID string) (*movie.OMDBDetails, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, upstream.NotFound(movie.SourceOMDB, imdbID, "empty imdb id")
	}

	q := url.Values{}
	q.Set("i", imdbID)
	q.Set("type", "movie")
	body, err := c.caller.Get(ctx, imdbID, c.url(q))
	if err != nil {
		return nil, err
	}

	var raw movieResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, keyScoped(imdbID, fmt.Errorf("failed to decode movie: %w", err))
	}
	if !raw.ok() {
		return nil, responseError(imdbID, raw.Error, true)
	}
	return raw.normalize(), nil
}

// Criteria selects movies by title and optional release year
type Criteria struct {
	Title string
	// Year is ignored when zero
	Year int
	// MaxPages caps pagination; zero means every page OMDb serves
	MaxPages int
}

// Search runs a title search. No match is an empty result, not an error.
func (c *Client) Search(ctx context.Context, criteria Criteria) ([]movie.OMDBSearchHit, error) {
	title := strings.TrimSpace(criteria.Title)
	if title == "" {
		return nil, fmt.Errorf("search title is required")
	}

	var hits []movie.OMDBSearchHit
	totalPages := 1
	for page := 1; page <= totalPages; page++ {
		resp, err := c.searchPage(ctx, title, criteria.Year, page)
		if err != nil {
			if page == 1 || upstream.IsSourceFatal(err) || ctx.Err() != nil {
				return hits, err
			}
			slog.WarnContext(ctx, "Stopping search pagination early", "title", title, "page", page, "error", err)
			break
		}
		if resp == nil {
			break
		}

		for _, h := range resp.Search {
			hits = append(hits, movie.OMDBSearchHit{IMDbID: h.IMDbID, Title: h.Title, Year: h.Year, Type: h.Type})
		}

		if page == 1 {
			total, _ := strconv.Atoi(resp.TotalResults)
			totalPages = (total + searchPageSize - 1) / searchPageSize
			if criteria.MaxPages > 0 && totalPages > criteria.MaxPages {
				totalPages = criteria.MaxPages
			}
			if totalPages > maxSearchPages {
				totalPages = maxSearchPages
			}
		}
	}
	return hits, nil
}

// MaxConcurrent returns the configured bound on in-flight requests
func (c *Client) MaxConcurrent() int {
	return c.maxConcurrent
}

// FetchMany fetches every IMDb id with the client's concurrency
func (c *Client) FetchMany(ctx context.Context, imdbIDs []string, opts ...FetchOption) *BatchResult {
	opts = append([]FetchOption{
		upstream.WithConcurrency[string, *movie.OMDBDetails](c.maxConcurrent),
		upstream.WithLabel[string, *movie.OMDBDetails]("omdb details"),
	}, opts...)
	return upstream.FetchMany(ctx, imdbIDs, c.MovieByIMDbID, opts...)
}

// searchPage returns nil without error when OMDb has no match
func (c *Client) searchPage(ctx context.Context, title string, year, page int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("s", title)
	q.Set("type", "movie")
	q.Set("page", strconv.Itoa(page))
	if year > 0 {
		q.Set("y", strconv.Itoa(year))
	}

	key := fmt.Sprintf("search:%s:%d", title, page)
	body, err := c.caller.Get(ctx, key, c.url(q))
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, keyScoped(key, fmt.Errorf("failed to decode search page: %w", err))
	}
	if !resp.ok() {
		err := responseError(key, resp.Error, false)
		if upstream.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp, nil
}

func (c *Client) url(q url.Values) string {
	q.Set("apikey", c.apiKey)
	return c.baseURL + "?" + q.Encode()
}

// responseError maps an OMDb Response:"False" message to the error taxonomy.
// For lookups any unrecognized message means the id is unknown.
func responseError(key, message string, lookup bool) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, errInvalidKey), strings.Contains(lower, errRequestLimit):
		return upstream.NewError(upstream.KindFatal, movie.SourceOMDB, key, errors.New(message))
	case strings.Contains(lower, errNotFound):
		return upstream.NotFound(movie.SourceOMDB, key, message)
	case strings.Contains(lower, errTooMany), !lookup:
		return keyScoped(key, errors.New(message))
	default:
		return upstream.NotFound(movie.SourceOMDB, key, message)
	}
}

func keyScoped(key string, err error) error {
	e := upstream.NewError(upstream.KindFatal, movie.SourceOMDB, key, err)
	e.KeyScoped = true
	return e
}

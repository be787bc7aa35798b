package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/retry"
	"github.com/stacklok/reelsync/internal/upstream"
)

const testAPIKey = "test-key"

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c, err := New(testAPIKey,
		upstream.WithBaseURL(baseURL),
		upstream.WithRateLimit(1000, 4),
		upstream.WithRetry(retry.Policy{RetryCount: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func discoverPage(year, page, totalPages, perPage int) map[string]any {
	results := make([]map[string]any, 0, perPage)
	for i := 0; i < perPage; i++ {
		results = append(results, map[string]any{
			"id":           year*1000 + page*10 + i,
			"title":        fmt.Sprintf("Movie %d-%d-%d", year, page, i),
			"release_date": fmt.Sprintf("%d-06-01", year),
			"vote_count":   500,
			"vote_average": 7.1,
			"popularity":   12.5,
			"genre_ids":    []int{18},
		})
	}
	return map[string]any{
		"page":          page,
		"total_pages":   totalPages,
		"total_results": totalPages * perPage,
		"results":       results,
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
	assert.True(t, upstream.IsConfiguration(err))

	_, err = New("  ")
	require.Error(t, err)

	_, err = New(testAPIKey, upstream.WithRateLimit(0, 1))
	require.Error(t, err)
	assert.True(t, upstream.IsConfiguration(err))

	c, err := New(testAPIKey)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultMaxConcurrent, c.maxConcurrent)
}

func TestClient_Search(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "/discover/movie", r.URL.Path)
		assert.Equal(t, testAPIKey, q.Get("api_key"))
		assert.Equal(t, "2023-01-01", q.Get("primary_release_date.gte"))
		assert.Equal(t, "2023-12-31", q.Get("primary_release_date.lte"))
		assert.Equal(t, "100", q.Get("vote_count.gte"))
		assert.Equal(t, "primary_release_date.desc", q.Get("sort_by"))
		assert.Equal(t, "false", q.Get("include_adult"))

		page, _ := strconv.Atoi(q.Get("page"))
		writeJSON(t, w, http.StatusOK, discoverPage(2023, page, 5, 3))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	t.Run("all pages", func(t *testing.T) {
		requests.Store(0)
		got, err := c.Search(context.Background(), Criteria{Year: 2023, MinVoteCount: 100})
		require.NoError(t, err)
		assert.Len(t, got, 15)
		assert.Equal(t, int32(5), requests.Load())
		require.NotNil(t, got[0].ReleaseDate)
		assert.Equal(t, 2023, got[0].ReleaseDate.Year())
	})

	t.Run("capped by max pages", func(t *testing.T) {
		requests.Store(0)
		got, err := c.Search(context.Background(), Criteria{Year: 2023, MinVoteCount: 100, MaxPages: 2})
		require.NoError(t, err)
		assert.Len(t, got, 6)
		assert.Equal(t, int32(2), requests.Load())
	})
}

func TestClient_Search_DefaultMinVotes(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, strconv.Itoa(DefaultMinVoteCount), r.URL.Query().Get("vote_count.gte"))
		writeJSON(t, w, http.StatusOK, discoverPage(2020, 1, 1, 1))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).Search(context.Background(), Criteria{Year: 2020})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestClient_Search_LaterPageFailureEndsEarly(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(t, w, http.StatusOK, discoverPage(2022, page, 4, 2))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).Search(context.Background(), Criteria{Year: 2022})
	require.NoError(t, err)
	assert.Len(t, got, 4, "pages 1 and 2 are kept")
}

func TestClient_Search_FirstPageFailure(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Search(context.Background(), Criteria{Year: 2022})
	require.Error(t, err)
	assert.True(t, upstream.IsSourceFatal(err))
	assert.NotContains(t, err.Error(), testAPIKey)
}

func TestClient_Discover(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		years []string
	)
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		year := strings.TrimSuffix(q.Get("primary_release_date.gte"), "-01-01")
		mu.Lock()
		years = append(years, year)
		mu.Unlock()
		switch year {
		case "2021":
			w.WriteHeader(http.StatusBadGateway)
		case "2022":
			// a movie already returned for 2023
			writeJSON(t, w, http.StatusOK, map[string]any{
				"page": 1, "total_pages": 1,
				"results": []map[string]any{
					{"id": 2023010, "title": "Dup", "release_date": "2022-12-31"},
					{"id": 77, "title": "Only 2022", "release_date": "2022-03-01"},
				},
			})
		default:
			writeJSON(t, w, http.StatusOK, discoverPage(2023, 1, 1, 2))
		}
	}))
	defer server.Close()

	c, err := New(testAPIKey,
		upstream.WithBaseURL(server.URL),
		upstream.WithRateLimit(1000, 1),
		upstream.WithRetry(retry.Policy{RetryCount: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)
	require.NoError(t, err)

	got, err := c.Discover(context.Background(), DiscoverCriteria{StartYear: 2021, EndYear: 2023})
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []string{"2023", "2022", "2021"}, years, "newest year first")
	mu.Unlock()

	ids := make([]int64, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.TMDBID)
	}
	assert.Equal(t, []int64{2023010, 2023011, 77}, ids)

	_, err = c.Discover(context.Background(), DiscoverCriteria{StartYear: 2024, EndYear: 2023})
	require.Error(t, err)
}

func TestClient_MovieDetails(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/movie/550":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"id":             550,
				"imdb_id":        "tt0137523",
				"title":          "Fight Club",
				"original_title": "Fight Club",
				"release_date":   "1999-10-15",
				"status":         "Released",
				"budget":         63000000,
				"revenue":        100853753,
				"runtime":        139,
				"vote_count":     26280,
				"vote_average":   8.4,
				"popularity":     61.4,
				"genres":         []map[string]any{{"id": 18, "name": "Drama"}, {"id": 53, "name": "Thriller"}},
				"production_companies": []map[string]any{
					{"id": 508, "name": "Regency Enterprises"},
					{"id": 711, "name": "Fox 2000 Pictures"},
				},
				"production_countries": []map[string]any{{"iso_3166_1": "US", "name": "United States of America"}},
				"spoken_languages":     []map[string]any{{"english_name": "English", "iso_639_1": "en", "name": "English"}},
				"overview":             "A ticking-time-bomb insomniac...",
			})
		case "/movie/1":
			writeJSON(t, w, http.StatusNotFound, map[string]any{
				"success": false, "status_code": 34, "status_message": "The resource you requested could not be found.",
			})
		case "/movie/2":
			writeJSON(t, w, http.StatusOK, map[string]any{"id": 2, "title": "No IMDb", "imdb_id": nil, "runtime": 0})
		case "/movie/3":
			_, _ = w.Write([]byte("{not json"))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	d, err := c.MovieDetails(context.Background(), 550)
	require.NoError(t, err)
	assert.Equal(t, int64(550), d.TMDBID)
	assert.Equal(t, "tt0137523", d.IMDbID)
	assert.Equal(t, "Drama,Thriller", d.Genres)
	assert.Equal(t, "Regency Enterprises,Fox 2000 Pictures", d.ProductionCompanies)
	assert.Equal(t, "United States of America", d.ProductionCountries)
	assert.Equal(t, "English", d.SpokenLanguages)
	require.NotNil(t, d.Runtime)
	assert.Equal(t, 139, *d.Runtime)
	require.NotNil(t, d.ReleaseDate)
	assert.Equal(t, time.Date(1999, 10, 15, 0, 0, 0, 0, time.UTC), *d.ReleaseDate)

	_, err = c.MovieDetails(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, upstream.IsNotFound(err))

	d, err = c.MovieDetails(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, d.IMDbID)
	assert.Nil(t, d.Runtime)
	assert.Nil(t, d.ReleaseDate)

	_, err = c.MovieDetails(context.Background(), 3)
	require.Error(t, err)
	assert.False(t, upstream.IsSourceFatal(err), "decode failures only affect the key")
}

func TestClient_FetchMany(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/movie/")
		if id == "404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n, _ := strconv.Atoi(id)
		writeJSON(t, w, http.StatusOK, map[string]any{"id": n, "title": "T" + id, "imdb_id": "tt" + id})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	batch := c.FetchMany(context.Background(), []int64{10, 404, 11, 12},
		upstream.WithProgress[int64, *movie.TMDBDetails](func(int, int) {}),
	)

	assert.Len(t, batch.Succeeded(), 3)
	assert.Equal(t, []int64{404}, batch.NotFound())
	assert.Empty(t, batch.Failures())
	assert.Equal(t, "tt11", batch.Results[2].Value.IMDbID)
}

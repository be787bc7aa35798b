package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/storage"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

var bothSources = []movie.Source{movie.SourceTMDB, movie.SourceOMDB}

func TestStore_UpsertMovies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	n, err := s.UpsertMovies(ctx, []movie.Discovered{
		{TMDBID: 1, Title: "One", ReleaseDate: daysAgo(10)},
		{TMDBID: 2, Title: "Two"},
		{TMDBID: 1, Title: "One again"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// existing rows keep their refresh state
	_, err = s.SaveTMDB(ctx, []movie.TMDBDetails{{TMDBID: 1, Title: "One", IMDbID: "tt1"}}, now)
	require.NoError(t, err)
	n, err = s.UpsertMovies(ctx, []movie.Discovered{{TMDBID: 1, Title: "Renamed"}, {TMDBID: 3, Title: "Three"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	movies, err := s.GetMovies(ctx, []int64{1, 99})
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Renamed", movies[0].Title)
	assert.Equal(t, "tt1", movies[0].IMDbID)
	assert.Equal(t, daysAgo(10), movies[0].ReleaseDate)
	require.NotNil(t, movies[0].LastTMDBUpdate)

	count, err := s.CountMovies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_SelectCandidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.Put(movie.Movie{TMDBID: 1, ReleaseDate: daysAgo(400), LastFullRefresh: daysAgo(1),
		LastTMDBUpdate: daysAgo(1), LastOMDBUpdate: daysAgo(1)}) // fresh
	s.Put(movie.Movie{TMDBID: 2, ReleaseDate: daysAgo(400), LastFullRefresh: daysAgo(100),
		LastTMDBUpdate: daysAgo(100), LastOMDBUpdate: daysAgo(1)}) // tmdb due
	s.Put(movie.Movie{TMDBID: 3, ReleaseDate: daysAgo(5)})     // never refreshed
	s.Put(movie.Movie{TMDBID: 4})                              // never refreshed, unknown release
	s.Put(movie.Movie{TMDBID: 5, ReleaseDate: daysAgo(50)})    // never refreshed
	s.Put(movie.Movie{TMDBID: 6, ReleaseDate: daysAgo(900), Frozen: true})
	s.Put(movie.Movie{TMDBID: 7, ReleaseDate: daysAgo(20), LastFullRefresh: daysAgo(6),
		LastTMDBUpdate: daysAgo(6), LastOMDBUpdate: daysAgo(6)}) // recent, both due

	got, err := s.SelectCandidates(ctx, storage.CandidateQuery{Now: now, Sources: bothSources})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 4, 7, 2}, ids(got))

	got, err = s.SelectCandidates(ctx, storage.CandidateQuery{Now: now, Sources: bothSources, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, ids(got))

	// enabling box office makes the fresh movie due as well
	got, err = s.SelectCandidates(ctx, storage.CandidateQuery{Now: now, Sources: movie.AllSources})
	require.NoError(t, err)
	assert.Contains(t, ids(got), int64(1))
}

func TestStore_SaveChangeDetection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_, err := s.UpsertMovies(ctx, []movie.Discovered{{TMDBID: 1, Title: "A"}, {TMDBID: 2, Title: "B"}})
	require.NoError(t, err)

	rec := movie.TMDBDetails{TMDBID: 1, Title: "A", VoteCount: 10, Popularity: 1.5}
	changed, err := s.SaveTMDB(ctx, []movie.TMDBDetails{rec}, now)
	require.NoError(t, err)
	assert.True(t, changed[1], "first fetch counts as changed")

	rec.Popularity = 99
	rec.VoteCount = 11
	changed, err = s.SaveTMDB(ctx, []movie.TMDBDetails{rec}, now)
	require.NoError(t, err)
	assert.False(t, changed[1], "audience counters are not content")

	rec.Revenue = 5_000_000
	changed, err = s.SaveTMDB(ctx, []movie.TMDBDetails{rec}, now)
	require.NoError(t, err)
	assert.True(t, changed[1])

	omdb := movie.OMDBDetails{TMDBID: 2, IMDbID: "tt2", Title: "B"}
	changed, err = s.SaveOMDB(ctx, []movie.OMDBDetails{omdb}, now)
	require.NoError(t, err)
	assert.True(t, changed[2])
	changed, err = s.SaveOMDB(ctx, []movie.OMDBDetails{omdb}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed[2])

	movies, err := s.GetMovies(ctx, []int64{2})
	require.NoError(t, err)
	require.NotNil(t, movies[0].LastOMDBUpdate)
	assert.Equal(t, now.Add(time.Hour), *movies[0].LastOMDBUpdate)

	stored, ok := s.OMDB(2)
	require.True(t, ok)
	assert.Equal(t, "tt2", stored.IMDbID)
}

func TestStore_SaveUnknownMovie(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	_, err := s.SaveOMDB(ctx, []movie.OMDBDetails{{TMDBID: 42, IMDbID: "tt42"}}, now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	budget := int64(100)
	_, err = s.SaveBoxOffice(ctx, []movie.BoxOffice{{TMDBID: 42, ProductionBudget: &budget}}, now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, ok := s.BoxOffice(42)
	assert.False(t, ok)
}

func TestStore_RecordCycles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.Put(movie.Movie{TMDBID: 1, ConsecutiveUnchangedCycles: 2})
	s.Put(movie.Movie{TMDBID: 2, ConsecutiveUnchangedCycles: 2})
	s.Put(movie.Movie{TMDBID: 3, ConsecutiveUnchangedCycles: 2})

	err := s.RecordCycles(ctx, []storage.CycleOutcome{
		{TMDBID: 1, Fetched: true, Changed: false, FullRefresh: true},
		{TMDBID: 2, Fetched: true, Changed: true},
		{TMDBID: 3, Fetched: false},
		{TMDBID: 99, Fetched: true},
	}, now)
	require.NoError(t, err)

	movies, err := s.GetMovies(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, movies[0].ConsecutiveUnchangedCycles)
	assert.Equal(t, &now, movies[0].LastFullRefresh)
	assert.Equal(t, 0, movies[1].ConsecutiveUnchangedCycles)
	assert.Nil(t, movies[1].LastFullRefresh)
	assert.Equal(t, 2, movies[2].ConsecutiveUnchangedCycles)
}

func TestStore_FreezeLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.Put(movie.Movie{TMDBID: 1, ReleaseDate: daysAgo(400), ConsecutiveUnchangedCycles: 3})
	s.Put(movie.Movie{TMDBID: 2, ReleaseDate: daysAgo(100)})
	s.Put(movie.Movie{TMDBID: 3})

	candidates, err := s.FreezeCandidates(ctx, *daysAgo(365))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(candidates))

	n, err := s.FreezeMovies(ctx, []int64{1, 1, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	candidates, err = s.FreezeCandidates(ctx, *daysAgo(365))
	require.NoError(t, err)
	assert.Empty(t, candidates)

	got, err := s.SelectCandidates(ctx, storage.CandidateQuery{Now: now, Sources: bothSources})
	require.NoError(t, err)
	assert.NotContains(t, ids(got), int64(1))

	n, err = s.UnfreezeMovies(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	movies, err := s.GetMovies(ctx, []int64{1})
	require.NoError(t, err)
	assert.False(t, movies[0].Frozen)
	assert.Zero(t, movies[0].ConsecutiveUnchangedCycles)
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	s.Put(movie.Movie{TMDBID: 1, ReleaseDate: daysAgo(3)})

	movies, err := s.GetMovies(ctx, []int64{1})
	require.NoError(t, err)
	*movies[0].ReleaseDate = now.AddDate(-10, 0, 0)
	movies[0].Title = "mutated"

	again, err := s.GetMovies(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, daysAgo(3), again[0].ReleaseDate)
	assert.Empty(t, again[0].Title)
}

func ids(movies []movie.Movie) []int64 {
	out := make([]int64, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.TMDBID)
	}
	return out
}

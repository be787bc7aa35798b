package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/reelsync/database"
	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/storage"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -n)
	return &t
}

func at(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

var bothSources = []movie.Source{movie.SourceTMDB, movie.SourceOMDB}

func TestNew_RequiresPool(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorContains(t, err, "pgx pool is required")
}

func TestCandidateQuery(t *testing.T) {
	t.Parallel()

	query, args, err := candidateQuery(storage.CandidateQuery{Now: now, Limit: 25, Sources: bothSources}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "FROM movies")
	assert.Contains(t, query, "frozen = $1")
	assert.Contains(t, query, "last_full_refresh IS NULL")
	assert.Contains(t, query, "last_tmdb_update IS NULL OR last_tmdb_update <= CASE")
	assert.Contains(t, query, "last_omdb_update IS NULL OR last_omdb_update <= CASE")
	assert.NotContains(t, query, "last_box_office_update IS NULL OR")
	assert.Contains(t, query, "ORDER BY (last_full_refresh IS NULL) DESC, release_date DESC NULLS LAST, tmdb_id ASC")
	assert.Contains(t, query, "LIMIT 25")
	// frozen flag plus seven cutoffs per source
	assert.Len(t, args, 1+7*2)

	query, _, err = candidateQuery(storage.CandidateQuery{Now: now, Sources: movie.AllSources}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "last_box_office_update IS NULL OR")
	assert.NotContains(t, query, "LIMIT")
}

func TestDuePredicate_Cutoffs(t *testing.T) {
	t.Parallel()

	pred, ok := duePredicate(movie.SourceTMDB, now)
	require.True(t, ok)
	_, args, err := pred.ToSql()
	require.NoError(t, err)
	require.Len(t, args, 7)

	assert.Equal(t, now.Add(-61*24*time.Hour), args[0])
	assert.Equal(t, now.Add(-5*24*time.Hour), args[1])
	assert.Equal(t, now.Add(-181*24*time.Hour), args[2])
	assert.Equal(t, now.Add(-15*24*time.Hour), args[3])
	assert.Equal(t, now.Add(-366*24*time.Hour), args[4])
	assert.Equal(t, now.Add(-30*24*time.Hour), args[5])
	assert.Equal(t, now.Add(-90*24*time.Hour), args[6])

	_, ok = duePredicate(movie.Source("imdb"), now)
	assert.False(t, ok)
}

// TestStore runs against a real Postgres. Subtests share one container and
// truncate between runs.
func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool := database.SetupTestDB(t)
	s, err := New(pool)
	require.NoError(t, err)

	ctx := context.Background()
	reset := func(t *testing.T) {
		t.Helper()
		_, err := pool.Exec(ctx, "TRUNCATE movies CASCADE")
		require.NoError(t, err)
	}

	seed := func(t *testing.T, m movie.Movie) {
		t.Helper()
		_, err := pool.Exec(ctx, `
INSERT INTO movies (tmdb_id, title, release_date, last_tmdb_update, last_omdb_update,
    last_box_office_update, last_full_refresh, frozen, consecutive_unchanged_cycles)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.TMDBID, m.Title, m.ReleaseDate, m.LastTMDBUpdate, m.LastOMDBUpdate,
			m.LastBoxOfficeUpdate, m.LastFullRefresh, m.Frozen, m.ConsecutiveUnchangedCycles)
		require.NoError(t, err)
	}

	t.Run("upsert movies", func(t *testing.T) {
		reset(t)

		n, err := s.UpsertMovies(ctx, []movie.Discovered{
			{TMDBID: 1, Title: "One", ReleaseDate: daysAgo(10)},
			{TMDBID: 2, Title: "Two"},
			{TMDBID: 1, Title: "One again"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.UpsertMovies(ctx, []movie.Discovered{{TMDBID: 1, Title: "Renamed"}, {TMDBID: 3, Title: "Three"}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		movies, err := s.GetMovies(ctx, []int64{1, 99})
		require.NoError(t, err)
		require.Len(t, movies, 1)
		assert.Equal(t, "Renamed", movies[0].Title)
		assert.Equal(t, daysAgo(10), movies[0].ReleaseDate)

		count, err := s.CountMovies(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("select candidates", func(t *testing.T) {
		reset(t)

		seed(t, movie.Movie{TMDBID: 1, ReleaseDate: daysAgo(400), LastFullRefresh: at(1),
			LastTMDBUpdate: at(1), LastOMDBUpdate: at(1)})
		seed(t, movie.Movie{TMDBID: 2, ReleaseDate: daysAgo(400), LastFullRefresh: at(100),
			LastTMDBUpdate: at(100), LastOMDBUpdate: at(1)})
		seed(t, movie.Movie{TMDBID: 3, ReleaseDate: daysAgo(5)})
		seed(t, movie.Movie{TMDBID: 4})
		seed(t, movie.Movie{TMDBID: 5, ReleaseDate: daysAgo(50)})
		seed(t, movie.Movie{TMDBID: 6, ReleaseDate: daysAgo(900), Frozen: true})
		seed(t, movie.Movie{TMDBID: 7, ReleaseDate: daysAgo(20), LastFullRefresh: at(6),
			LastTMDBUpdate: at(6), LastOMDBUpdate: at(6)})
		// established: tmdb interval is 15 days, 14 is not due
		seed(t, movie.Movie{TMDBID: 8, ReleaseDate: daysAgo(100), LastFullRefresh: at(14),
			LastTMDBUpdate: at(14), LastOMDBUpdate: at(14)})

		got, err := s.SelectCandidates(ctx, storage.CandidateQuery{Now: now, Sources: bothSources})
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 5, 4, 7, 2}, ids(got))

		got, err = s.SelectCandidates(ctx, storage.CandidateQuery{Now: now, Sources: bothSources, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 5}, ids(got))

		got, err = s.SelectCandidates(ctx, storage.CandidateQuery{Now: now, Sources: movie.AllSources})
		require.NoError(t, err)
		assert.Contains(t, ids(got), int64(1))
		assert.Contains(t, ids(got), int64(8))
	})

	t.Run("save and change detection", func(t *testing.T) {
		reset(t)

		_, err := s.UpsertMovies(ctx, []movie.Discovered{{TMDBID: 1, Title: "A"}, {TMDBID: 2, Title: "B"}})
		require.NoError(t, err)

		runtime := 120
		rec := movie.TMDBDetails{TMDBID: 1, IMDbID: "tt1", Title: "A", VoteCount: 10, Popularity: 1.5,
			Runtime: &runtime, ReleaseDate: daysAgo(30), Genres: "Drama"}
		changed, err := s.SaveTMDB(ctx, []movie.TMDBDetails{rec}, now)
		require.NoError(t, err)
		assert.True(t, changed[1])

		rec.Popularity = 99
		rec.VoteCount = 11
		changed, err = s.SaveTMDB(ctx, []movie.TMDBDetails{rec}, now)
		require.NoError(t, err)
		assert.False(t, changed[1])

		rec.Revenue = 5_000_000
		changed, err = s.SaveTMDB(ctx, []movie.TMDBDetails{rec}, now)
		require.NoError(t, err)
		assert.True(t, changed[1])

		movies, err := s.GetMovies(ctx, []int64{1})
		require.NoError(t, err)
		require.Len(t, movies, 1)
		assert.Equal(t, "tt1", movies[0].IMDbID)
		assert.Equal(t, daysAgo(30), movies[0].ReleaseDate)
		require.NotNil(t, movies[0].LastTMDBUpdate)
		assert.True(t, now.Equal(*movies[0].LastTMDBUpdate))

		rating := 7.5
		omdb := movie.OMDBDetails{TMDBID: 2, IMDbID: "tt2", Title: "B", IMDbRating: &rating}
		changed, err = s.SaveOMDB(ctx, []movie.OMDBDetails{omdb}, now)
		require.NoError(t, err)
		assert.True(t, changed[2])
		changed, err = s.SaveOMDB(ctx, []movie.OMDBDetails{omdb}, now.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, changed[2])

		budget := int64(1_000_000)
		changed, err = s.SaveBoxOffice(ctx, []movie.BoxOffice{{TMDBID: 2, SourceURL: "https://x/movie/b", ProductionBudget: &budget}}, now)
		require.NoError(t, err)
		assert.True(t, changed[2])

		movies, err = s.GetMovies(ctx, []int64{2})
		require.NoError(t, err)
		require.NotNil(t, movies[0].LastOMDBUpdate)
		assert.True(t, now.Add(time.Hour).Equal(*movies[0].LastOMDBUpdate))
		require.NotNil(t, movies[0].LastBoxOfficeUpdate)
	})

	t.Run("save for unknown movie", func(t *testing.T) {
		reset(t)

		_, err := s.SaveOMDB(ctx, []movie.OMDBDetails{{TMDBID: 42, IMDbID: "tt42", Title: "X"}}, now)
		require.ErrorIs(t, err, storage.ErrNotFound)

		// tmdb creates the row
		changed, err := s.SaveTMDB(ctx, []movie.TMDBDetails{{TMDBID: 42, Title: "X"}}, now)
		require.NoError(t, err)
		assert.True(t, changed[42])
	})

	t.Run("record cycles", func(t *testing.T) {
		reset(t)

		seed(t, movie.Movie{TMDBID: 1, ConsecutiveUnchangedCycles: 2})
		seed(t, movie.Movie{TMDBID: 2, ConsecutiveUnchangedCycles: 2})
		seed(t, movie.Movie{TMDBID: 3, ConsecutiveUnchangedCycles: 2})

		err := s.RecordCycles(ctx, []storage.CycleOutcome{
			{TMDBID: 1, Fetched: true, FullRefresh: true},
			{TMDBID: 2, Fetched: true, Changed: true},
			{TMDBID: 3},
		}, now)
		require.NoError(t, err)

		movies, err := s.GetMovies(ctx, []int64{1, 2, 3})
		require.NoError(t, err)
		require.Len(t, movies, 3)
		assert.Equal(t, 3, movies[0].ConsecutiveUnchangedCycles)
		require.NotNil(t, movies[0].LastFullRefresh)
		assert.True(t, now.Equal(*movies[0].LastFullRefresh))
		assert.Equal(t, 0, movies[1].ConsecutiveUnchangedCycles)
		assert.Nil(t, movies[1].LastFullRefresh)
		assert.Equal(t, 2, movies[2].ConsecutiveUnchangedCycles)
	})

	t.Run("freeze lifecycle", func(t *testing.T) {
		reset(t)

		seed(t, movie.Movie{TMDBID: 1, ReleaseDate: daysAgo(400), ConsecutiveUnchangedCycles: 3})
		seed(t, movie.Movie{TMDBID: 2, ReleaseDate: daysAgo(100)})
		seed(t, movie.Movie{TMDBID: 3})

		candidates, err := s.FreezeCandidates(ctx, *at(365))
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids(candidates))

		n, err := s.FreezeMovies(ctx, []int64{1, 1, 99})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		candidates, err = s.FreezeCandidates(ctx, *at(365))
		require.NoError(t, err)
		assert.Empty(t, candidates)

		n, err = s.UnfreezeMovies(ctx, []int64{1, 2})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		movies, err := s.GetMovies(ctx, []int64{1})
		require.NoError(t, err)
		assert.False(t, movies[0].Frozen)
		assert.Zero(t, movies[0].ConsecutiveUnchangedCycles)
	})
}

func ids(movies []movie.Movie) []int64 {
	out := make([]int64, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.TMDBID)
	}
	return out
}

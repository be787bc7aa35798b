// Package postgres implements storage.Store on PostgreSQL
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/reelsync/internal/db/pgtypes"
	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/otel"
	"github.com/stacklok/reelsync/internal/refresh"
	"github.com/stacklok/reelsync/internal/storage"
)

const (
	// TracerName is the name used for the storage tracer
	TracerName = "github.com/stacklok/reelsync/storage/postgres"

	foreignKeyViolation = "23503"

	// releaseAt is the release date as a UTC instant, comparable with the
	// cutoffs computed by the refresh package
	releaseAt = "(release_date::timestamp AT TIME ZONE 'UTC')"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var movieColumns = []string{
	"tmdb_id",
	"imdb_id",
	"title",
	"release_date",
	"last_tmdb_update",
	"last_omdb_update",
	"last_box_office_update",
	"last_full_refresh",
	"frozen",
	"consecutive_unchanged_cycles",
}

var lastUpdateColumn = map[movie.Source]string{
	movie.SourceTMDB:      "last_tmdb_update",
	movie.SourceOMDB:      "last_omdb_update",
	movie.SourceBoxOffice: "last_box_office_update",
}

// options holds configuration options for the store
type options struct {
	tracer trace.Tracer
}

// Option is a functional option for configuring the store
type Option func(*options) error

// WithTracer sets the OpenTelemetry tracer. If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// Store is a storage.Store backed by a pgx connection pool
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ storage.Store = (*Store)(nil)

// New creates a store on pool. The store owns the pool and closes it in Close.
func New(pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Store{pool: pool, tracer: o.tracer}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	slog.Info("Closing database connection pool")
	s.pool.Close()
}

// UpsertMovies implements storage.Store
func (s *Store) UpsertMovies(ctx context.Context, discovered []movie.Discovered) (int, error) {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, "postgres.UpsertMovies",
		trace.WithAttributes(otel.AttrBatchSize.Int(len(discovered))))
	defer span.End()

	if len(discovered) == 0 {
		return 0, nil
	}

	const query = `
INSERT INTO movies (tmdb_id, title, release_date)
VALUES ($1, $2, $3)
ON CONFLICT (tmdb_id) DO UPDATE SET
    title = COALESCE(NULLIF(EXCLUDED.title, ''), movies.title),
    release_date = COALESCE(EXCLUDED.release_date, movies.release_date),
    updated_at = NOW()
RETURNING (xmax = 0) AS inserted`

	inserted := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, d := range discovered {
			b.Queue(query, d.TMDBID, d.Title, pgtypes.Date(d.ReleaseDate))
		}
		br := tx.SendBatch(ctx, b)
		defer br.Close()
		for range discovered {
			var isNew bool
			if err := br.QueryRow().Scan(&isNew); err != nil {
				return err
			}
			if isNew {
				inserted++
			}
		}
		return br.Close()
	})
	if err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to upsert movies: %w", err)
	}

	span.SetAttributes(otel.AttrResultCount.Int(inserted))
	return inserted, nil
}

// SelectCandidates implements storage.Store
func (s *Store) SelectCandidates(ctx context.Context, q storage.CandidateQuery) ([]movie.Movie, error) {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, "postgres.SelectCandidates")
	defer span.End()

	query, args, err := candidateQuery(q).ToSql()
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to build candidate query: %w", err)
	}

	movies, err := s.queryMovies(ctx, query, args...)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to select candidates: %w", err)
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(movies)))
	return movies, nil
}

// candidateQuery selects non-frozen movies that were never fully refreshed or
// are due for any of the enabled sources
func candidateQuery(q storage.CandidateQuery) sq.SelectBuilder {
	due := sq.Or{sq.Expr("last_full_refresh IS NULL")}
	for _, src := range q.Sources {
		if pred, ok := duePredicate(src, q.Now); ok {
			due = append(due, pred)
		}
	}

	builder := psql.Select(movieColumns...).
		From("movies").
		Where(sq.Eq{"frozen": false}).
		Where(due).
		OrderBy("(last_full_refresh IS NULL) DESC", "release_date DESC NULLS LAST", "tmdb_id ASC")
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	return builder
}

// duePredicate renders refresh.NeedsRefresh for src as SQL. The age category
// is picked with a CASE over the release date and each branch compares the
// last update against now minus that category's interval.
func duePredicate(src movie.Source, now time.Time) (sq.Sqlizer, bool) {
	col, ok := lastUpdateColumn[src]
	if !ok {
		return nil, false
	}
	table := refresh.IntervalsFor(src)
	before := func(age refresh.AgeCategory) time.Time { return now.Add(-table.Interval(age)) }

	return sq.Expr(
		"("+col+" IS NULL OR "+col+" <= CASE"+
			" WHEN "+releaseAt+" > ? THEN ?::timestamptz"+
			" WHEN "+releaseAt+" > ? THEN ?::timestamptz"+
			" WHEN "+releaseAt+" > ? THEN ?::timestamptz"+
			" ELSE ?::timestamptz END)",
		refresh.NewerThan(refresh.RecentMaxDays, now), before(refresh.Recent),
		refresh.NewerThan(refresh.EstablishedMaxDays, now), before(refresh.Established),
		refresh.NewerThan(refresh.MatureMaxDays, now), before(refresh.Mature),
		before(refresh.Archived),
	), true
}

// GetMovies implements storage.Store
func (s *Store) GetMovies(ctx context.Context, ids []int64) ([]movie.Movie, error) {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, "postgres.GetMovies",
		trace.WithAttributes(otel.AttrMovieCount.Int(len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := psql.Select(movieColumns...).
		From("movies").
		Where(sq.Expr("tmdb_id = ANY(?)", ids)).
		OrderBy("tmdb_id").
		ToSql()
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to build movie query: %w", err)
	}

	movies, err := s.queryMovies(ctx, query, args...)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get movies: %w", err)
	}
	return movies, nil
}

// FreezeCandidates implements storage.Store
func (s *Store) FreezeCandidates(ctx context.Context, releasedBefore time.Time) ([]movie.Movie, error) {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, "postgres.FreezeCandidates")
	defer span.End()

	query, args, err := psql.Select(movieColumns...).
		From("movies").
		Where(sq.Eq{"frozen": false}).
		Where(sq.NotEq{"release_date": nil}).
		Where(sq.Expr(releaseAt+" <= ?", releasedBefore)).
		OrderBy("tmdb_id").
		ToSql()
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to build freeze candidate query: %w", err)
	}

	movies, err := s.queryMovies(ctx, query, args...)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to select freeze candidates: %w", err)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(movies)))
	return movies, nil
}

// SaveTMDB implements storage.Store. Unknown movies are created from the record.
func (s *Store) SaveTMDB(ctx context.Context, records []movie.TMDBDetails, fetchedAt time.Time) (map[int64]bool, error) {
	const movieUpsert = `
INSERT INTO movies (tmdb_id, imdb_id, title, release_date, last_tmdb_update)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tmdb_id) DO UPDATE SET
    imdb_id = COALESCE(EXCLUDED.imdb_id, movies.imdb_id),
    title = COALESCE(NULLIF(EXCLUDED.title, ''), movies.title),
    release_date = COALESCE(EXCLUDED.release_date, movies.release_date),
    last_tmdb_update = EXCLUDED.last_tmdb_update,
    updated_at = NOW()`

	const detailUpsert = `
INSERT INTO tmdb_movies (
    tmdb_id, imdb_id, title, original_title, release_date, status, budget, revenue,
    runtime, vote_count, vote_average, popularity, genres, production_companies,
    production_countries, spoken_languages, overview, content_hash, fetched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (tmdb_id) DO UPDATE SET
    imdb_id = EXCLUDED.imdb_id,
    title = EXCLUDED.title,
    original_title = EXCLUDED.original_title,
    release_date = EXCLUDED.release_date,
    status = EXCLUDED.status,
    budget = EXCLUDED.budget,
    revenue = EXCLUDED.revenue,
    runtime = EXCLUDED.runtime,
    vote_count = EXCLUDED.vote_count,
    vote_average = EXCLUDED.vote_average,
    popularity = EXCLUDED.popularity,
    genres = EXCLUDED.genres,
    production_companies = EXCLUDED.production_companies,
    production_countries = EXCLUDED.production_countries,
    spoken_languages = EXCLUDED.spoken_languages,
    overview = EXCLUDED.overview,
    content_hash = EXCLUDED.content_hash,
    fetched_at = EXCLUDED.fetched_at`

	rows := make([]hashedRow, 0, len(records))
	for _, r := range records {
		hash, err := r.ContentHash()
		if err != nil {
			return nil, err
		}
		rows = append(rows, hashedRow{id: r.TMDBID, hash: hash, queue: func(b *pgx.Batch) {
			b.Queue(movieUpsert, r.TMDBID, pgtypes.Text(r.IMDbID), r.Title, pgtypes.Date(r.ReleaseDate), fetchedAt)
			b.Queue(detailUpsert,
				r.TMDBID, pgtypes.Text(r.IMDbID), r.Title, pgtypes.Text(r.OriginalTitle),
				pgtypes.Date(r.ReleaseDate), pgtypes.Text(r.Status), r.Budget, r.Revenue,
				r.Runtime, r.VoteCount, r.VoteAverage, r.Popularity, pgtypes.Text(r.Genres),
				pgtypes.Text(r.ProductionCompanies), pgtypes.Text(r.ProductionCountries),
				pgtypes.Text(r.SpokenLanguages), pgtypes.Text(r.Overview), hash, fetchedAt)
		}})
	}
	return s.saveRecords(ctx, "tmdb_movies", rows)
}

// SaveOMDB implements storage.Store
func (s *Store) SaveOMDB(ctx context.Context, records []movie.OMDBDetails, fetchedAt time.Time) (map[int64]bool, error) {
	const detailUpsert = `
INSERT INTO omdb_movies (
    tmdb_id, imdb_id, title, year, rated, released, runtime, genre, director, writer,
    actors, language, country, awards, imdb_rating, imdb_votes, metascore, box_office,
    rotten_tomatoes_rating, metacritic_rating, content_hash, fetched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
ON CONFLICT (tmdb_id) DO UPDATE SET
    imdb_id = EXCLUDED.imdb_id,
    title = EXCLUDED.title,
    year = EXCLUDED.year,
    rated = EXCLUDED.rated,
    released = EXCLUDED.released,
    runtime = EXCLUDED.runtime,
    genre = EXCLUDED.genre,
    director = EXCLUDED.director,
    writer = EXCLUDED.writer,
    actors = EXCLUDED.actors,
    language = EXCLUDED.language,
    country = EXCLUDED.country,
    awards = EXCLUDED.awards,
    imdb_rating = EXCLUDED.imdb_rating,
    imdb_votes = EXCLUDED.imdb_votes,
    metascore = EXCLUDED.metascore,
    box_office = EXCLUDED.box_office,
    rotten_tomatoes_rating = EXCLUDED.rotten_tomatoes_rating,
    metacritic_rating = EXCLUDED.metacritic_rating,
    content_hash = EXCLUDED.content_hash,
    fetched_at = EXCLUDED.fetched_at`

	rows := make([]hashedRow, 0, len(records))
	for _, r := range records {
		hash, err := r.ContentHash()
		if err != nil {
			return nil, err
		}
		rows = append(rows, hashedRow{id: r.TMDBID, hash: hash, queue: func(b *pgx.Batch) {
			b.Queue(touchMovie("last_omdb_update"), r.TMDBID, fetchedAt)
			b.Queue(detailUpsert,
				r.TMDBID, r.IMDbID, r.Title, r.Year, pgtypes.Text(r.Rated), pgtypes.Text(r.Released),
				r.Runtime, pgtypes.Text(r.Genre), pgtypes.Text(r.Director), pgtypes.Text(r.Writer),
				pgtypes.Text(r.Actors), pgtypes.Text(r.Language), pgtypes.Text(r.Country),
				pgtypes.Text(r.Awards), r.IMDbRating, r.IMDbVotes, r.Metascore, r.BoxOffice,
				r.RottenTomatoesRating, r.MetacriticRating, hash, fetchedAt)
		}})
	}
	return s.saveRecords(ctx, "omdb_movies", rows)
}

// SaveBoxOffice implements storage.Store
func (s *Store) SaveBoxOffice(ctx context.Context, records []movie.BoxOffice, fetchedAt time.Time) (map[int64]bool, error) {
	const detailUpsert = `
INSERT INTO box_office (
    tmdb_id, source_url, production_budget, domestic_gross, international_gross,
    worldwide_gross, opening_weekend, content_hash, fetched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tmdb_id) DO UPDATE SET
    source_url = EXCLUDED.source_url,
    production_budget = EXCLUDED.production_budget,
    domestic_gross = EXCLUDED.domestic_gross,
    international_gross = EXCLUDED.international_gross,
    worldwide_gross = EXCLUDED.worldwide_gross,
    opening_weekend = EXCLUDED.opening_weekend,
    content_hash = EXCLUDED.content_hash,
    fetched_at = EXCLUDED.fetched_at`

	rows := make([]hashedRow, 0, len(records))
	for _, r := range records {
		hash, err := r.ContentHash()
		if err != nil {
			return nil, err
		}
		rows = append(rows, hashedRow{id: r.TMDBID, hash: hash, queue: func(b *pgx.Batch) {
			b.Queue(touchMovie("last_box_office_update"), r.TMDBID, fetchedAt)
			b.Queue(detailUpsert,
				r.TMDBID, r.SourceURL, r.ProductionBudget, r.DomesticGross, r.InternationalGross,
				r.WorldwideGross, r.OpeningWeekend, hash, fetchedAt)
		}})
	}
	return s.saveRecords(ctx, "box_office", rows)
}

func touchMovie(column string) string {
	return "UPDATE movies SET " + column + " = $2, updated_at = NOW() WHERE tmdb_id = $1"
}

// hashedRow is one record to persist with its content hash
type hashedRow struct {
	id    int64
	hash  string
	queue func(*pgx.Batch)
}

// saveRecords writes rows in one transaction and reports, per movie, whether
// the hash differs from the one stored in table before the write
func (s *Store) saveRecords(ctx context.Context, table string, rows []hashedRow) (map[int64]bool, error) {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, "postgres.Save."+table,
		trace.WithAttributes(otel.AttrBatchSize.Int(len(rows))))
	defer span.End()

	changed := make(map[int64]bool, len(rows))
	if len(rows) == 0 {
		return changed, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.id)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query, args, err := psql.Select("tmdb_id", "content_hash").
			From(table).
			Where(sq.Expr("tmdb_id = ANY(?)", ids)).
			ToSql()
		if err != nil {
			return err
		}
		dbRows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		previous := make(map[int64]string, len(rows))
		var (
			id   int64
			hash string
		)
		_, err = pgx.ForEachRow(dbRows, []any{&id, &hash}, func() error {
			previous[id] = hash
			return nil
		})
		if err != nil {
			return err
		}

		b := &pgx.Batch{}
		for _, r := range rows {
			r.queue(b)
			prev, seen := previous[r.id]
			changed[r.id] = !seen || prev != r.hash
			previous[r.id] = r.hash
		}

		br := tx.SendBatch(ctx, b)
		defer br.Close()
		for range b.Len() {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		otel.RecordError(span, err)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("failed to save %s: %w", table, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to save %s: %w", table, err)
	}
	return changed, nil
}

// RecordCycles implements storage.Store
func (s *Store) RecordCycles(ctx context.Context, outcomes []storage.CycleOutcome, now time.Time) error {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, "postgres.RecordCycles",
		trace.WithAttributes(otel.AttrBatchSize.Int(len(outcomes))))
	defer span.End()

	if len(outcomes) == 0 {
		return nil
	}

	const query = `
UPDATE movies SET
    consecutive_unchanged_cycles = CASE
        WHEN NOT $2::boolean THEN consecutive_unchanged_cycles
        WHEN $3::boolean THEN 0
        ELSE consecutive_unchanged_cycles + 1
    END,
    last_full_refresh = CASE WHEN $4::boolean THEN $5::timestamptz ELSE last_full_refresh END,
    updated_at = NOW()
WHERE tmdb_id = $1`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, o := range outcomes {
			b.Queue(query, o.TMDBID, o.Fetched, o.Changed, o.FullRefresh, now)
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to record refresh cycles: %w", err)
	}
	return nil
}

// FreezeMovies implements storage.Store
func (s *Store) FreezeMovies(ctx context.Context, ids []int64) (int, error) {
	return s.setFrozen(ctx, "postgres.FreezeMovies", ids,
		`UPDATE movies SET frozen = TRUE, updated_at = NOW() WHERE tmdb_id = ANY($1) AND NOT frozen`)
}

// UnfreezeMovies implements storage.Store
func (s *Store) UnfreezeMovies(ctx context.Context, ids []int64) (int, error) {
	return s.setFrozen(ctx, "postgres.UnfreezeMovies", ids,
		`UPDATE movies SET frozen = FALSE, consecutive_unchanged_cycles = 0, updated_at = NOW()
WHERE tmdb_id = ANY($1) AND frozen`)
}

func (s *Store) setFrozen(ctx context.Context, name string, ids []int64, query string) (int, error) {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, name,
		trace.WithAttributes(otel.AttrMovieCount.Int(len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, query, ids)
	if err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to update frozen flag: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountMovies implements storage.Store
func (s *Store) CountMovies(ctx context.Context) (int, error) {
	ctx, span := otel.StartDBSpan(ctx, s.tracer, "postgres.CountMovies")
	defer span.End()

	var n int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM movies").Scan(&n); err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return n, nil
}

func (s *Store) queryMovies(ctx context.Context, query string, args ...any) ([]movie.Movie, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMovie)
}

func scanMovie(row pgx.CollectableRow) (movie.Movie, error) {
	var (
		m                                          movie.Movie
		imdbID                                     pgtype.Text
		release                                    pgtype.Date
		lastTMDB, lastOMDB, lastBoxOffice, lastRun pgtype.Timestamptz
		cycles                                     int32
	)
	err := row.Scan(
		&m.TMDBID, &imdbID, &m.Title, &release,
		&lastTMDB, &lastOMDB, &lastBoxOffice, &lastRun,
		&m.Frozen, &cycles,
	)
	if err != nil {
		return movie.Movie{}, err
	}
	m.IMDbID = pgtypes.String(imdbID)
	m.ReleaseDate = pgtypes.DatePtr(release)
	m.LastTMDBUpdate = pgtypes.TimePtr(lastTMDB)
	m.LastOMDBUpdate = pgtypes.TimePtr(lastOMDB)
	m.LastBoxOfficeUpdate = pgtypes.TimePtr(lastBoxOffice)
	m.LastFullRefresh = pgtypes.TimePtr(lastRun)
	m.ConsecutiveUnchangedCycles = int(cycles)
	return m, nil
}

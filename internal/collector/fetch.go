package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/otel"
	"github.com/stacklok/reelsync/internal/refresh"
	"github.com/stacklok/reelsync/internal/upstream"
	"github.com/stacklok/reelsync/internal/upstream/boxoffice"
	"github.com/stacklok/reelsync/internal/upstream/tmdb"
)

// outcome is the result class of one (movie, source) fetch
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNotFound
	outcomeSkipped
	outcomeFailed
	outcomeTerminal
	outcomeAborted
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeNotFound:
		return "not_found"
	case outcomeSkipped:
		return "skipped"
	case outcomeTerminal:
		return "terminal"
	case outcomeAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// definitive outcomes count towards a full refresh. A terminal failure is
// one retrying cannot fix for this movie, so it is definitive too.
func (o outcome) definitive() bool {
	switch o {
	case outcomeSuccess, outcomeNotFound, outcomeSkipped, outcomeTerminal:
		return true
	default:
		return false
	}
}

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, errSkipped):
		return outcomeSkipped
	case errors.Is(err, upstream.ErrAborted):
		return outcomeAborted
	case upstream.IsNotFound(err):
		return outcomeNotFound
	case upstream.IsFatal(err) && !upstream.IsSourceFatal(err):
		return outcomeTerminal
	default:
		return outcomeFailed
	}
}

type sourceResult struct {
	outcome outcome
	err     error
	changed bool

	tmdb      *movie.TMDBDetails
	omdb      *movie.OMDBDetails
	boxOffice *movie.BoxOffice
}

// entity is one candidate and its per-source results
type entity struct {
	movie   movie.Movie
	plan    refresh.Plan
	results map[movie.Source]*sourceResult
}

func (e *entity) fetched() bool {
	for _, res := range e.results {
		if res.outcome == outcomeSuccess {
			return true
		}
	}
	return false
}

func (e *entity) changed() bool {
	for _, res := range e.results {
		if res.outcome == outcomeSuccess && res.changed {
			return true
		}
	}
	return false
}

// fullyRefreshed reports whether every planned source reached a definitive
// outcome
func (e *entity) fullyRefreshed() bool {
	for src, planned := range e.plan {
		if !planned {
			continue
		}
		res, ok := e.results[src]
		if !ok || !res.outcome.definitive() {
			return false
		}
	}
	return true
}

// primaryResult carries a movie's TMDB outcome to the dependent sources.
// done is closed once the fields are set.
type primaryResult struct {
	done    chan struct{}
	details *movie.TMDBDetails
}

// fetch runs every due source. TMDB, OMDB and box office run concurrently;
// OMDB and box-office lookups of a movie that is also being fetched from TMDB
// wait for that movie's TMDB outcome only.
func (r *run) fetch(ctx context.Context, entities []*entity) {
	byID := make(map[int64]*entity, len(entities))
	for _, e := range entities {
		byID[e.movie.TMDBID] = e
	}

	primary := make(map[int64]*primaryResult)
	var tmdbIDs []int64
	for _, e := range entities {
		if e.plan[movie.SourceTMDB] {
			tmdbIDs = append(tmdbIDs, e.movie.TMDBID)
			primary[e.movie.TMDBID] = &primaryResult{done: make(chan struct{})}
		}
	}

	var (
		tmdbBatch      *tmdb.BatchResult
		omdbBatch      *upstream.BatchResult[int64, *movie.OMDBDetails]
		boxOfficeBatch *upstream.BatchResult[int64, *movie.BoxOffice]
	)

	var g errgroup.Group
	g.Go(func() error {
		tmdbBatch = r.fetchTMDB(ctx, tmdbIDs, primary)
		return nil
	})
	if ids := r.dependentIDs(entities, movie.SourceOMDB, primary); len(ids) > 0 {
		g.Go(func() error {
			omdbBatch = r.fetchOMDB(ctx, ids, byID, primary)
			return nil
		})
	}
	if ids := r.dependentIDs(entities, movie.SourceBoxOffice, primary); len(ids) > 0 {
		g.Go(func() error {
			boxOfficeBatch = r.fetchBoxOffice(ctx, ids, byID, primary)
			return nil
		})
	}
	_ = g.Wait()

	collect(r, movie.SourceTMDB, tmdbBatch, byID, func(res *sourceResult, v *movie.TMDBDetails) { res.tmdb = v })
	collect(r, movie.SourceOMDB, omdbBatch, byID, func(res *sourceResult, v *movie.OMDBDetails) { res.omdb = v })
	collect(r, movie.SourceBoxOffice, boxOfficeBatch, byID, func(res *sourceResult, v *movie.BoxOffice) { res.boxOffice = v })
}

// dependentIDs returns the movies due for src, those whose key is already
// known and that do not wait on TMDB first
func (r *run) dependentIDs(entities []*entity, src movie.Source, primary map[int64]*primaryResult) []int64 {
	var ready, waiting []int64
	for _, e := range entities {
		if !e.plan[src] {
			continue
		}
		_, waits := primary[e.movie.TMDBID]
		known := e.movie.IMDbID != ""
		if src == movie.SourceBoxOffice {
			known = e.movie.Title != ""
		}
		if known && !waits {
			ready = append(ready, e.movie.TMDBID)
		} else {
			waiting = append(waiting, e.movie.TMDBID)
		}
	}
	return slices.Concat(ready, waiting)
}

func (r *run) fetchTMDB(ctx context.Context, ids []int64, primary map[int64]*primaryResult) *tmdb.BatchResult {
	ctx, span := otel.StartSpan(ctx, r.tracer, "collector.fetch.tmdb")
	defer span.End()
	span.SetAttributes(otel.AttrSource.String(string(movie.SourceTMDB)), otel.AttrMovieCount.Int(len(ids)))

	hook := upstream.WithResultHook(func(res upstream.Result[int64, *movie.TMDBDetails]) {
		p := primary[res.Key]
		if res.Err == nil {
			p.details = res.Value
		}
		close(p.done)
	})

	var batch *tmdb.BatchResult
	if aborted := r.abortedErr(movie.SourceTMDB); aborted != nil {
		batch = upstream.FetchMany(ctx, ids, func(context.Context, int64) (*movie.TMDBDetails, error) {
			return nil, aborted
		}, hook)
	} else {
		batch = r.tmdb.FetchMany(ctx, ids, hook)
	}
	r.checkFatal(ctx, movie.SourceTMDB, batch.Fatal())
	return batch
}

func (r *run) fetchOMDB(
	ctx context.Context,
	ids []int64,
	byID map[int64]*entity,
	primary map[int64]*primaryResult,
) *upstream.BatchResult[int64, *movie.OMDBDetails] {
	ctx, span := otel.StartSpan(ctx, r.tracer, "collector.fetch.omdb")
	defer span.End()
	span.SetAttributes(otel.AttrSource.String(string(movie.SourceOMDB)), otel.AttrMovieCount.Int(len(ids)))

	aborted := r.abortedErr(movie.SourceOMDB)
	fetch := func(ctx context.Context, id int64) (*movie.OMDBDetails, error) {
		if aborted != nil {
			return nil, aborted
		}
		imdbID := byID[id].movie.IMDbID
		fresh, err := awaitPrimary(ctx, primary, id)
		if err != nil {
			return nil, err
		}
		if fresh != nil && fresh.IMDbID != "" {
			imdbID = fresh.IMDbID
		}
		if imdbID == "" {
			slog.InfoContext(ctx, "Skipping OMDB lookup", "run_id", r.id, "tmdb_id", id, "reason", "no IMDb id")
			return nil, fmt.Errorf("%w: no IMDb id", errSkipped)
		}
		rec, err := r.omdb.MovieByIMDbID(ctx, imdbID)
		if err != nil {
			return nil, err
		}
		rec.TMDBID = id
		return rec, nil
	}

	batch := upstream.FetchMany(ctx, ids, fetch,
		upstream.WithConcurrency[int64, *movie.OMDBDetails](r.omdb.MaxConcurrent()),
		upstream.WithLabel[int64, *movie.OMDBDetails]("omdb details"),
	)
	r.checkFatal(ctx, movie.SourceOMDB, batch.Fatal())
	return batch
}

func (r *run) fetchBoxOffice(
	ctx context.Context,
	ids []int64,
	byID map[int64]*entity,
	primary map[int64]*primaryResult,
) *upstream.BatchResult[int64, *movie.BoxOffice] {
	ctx, span := otel.StartSpan(ctx, r.tracer, "collector.fetch.box_office")
	defer span.End()
	span.SetAttributes(otel.AttrSource.String(string(movie.SourceBoxOffice)), otel.AttrMovieCount.Int(len(ids)))

	aborted := r.abortedErr(movie.SourceBoxOffice)
	fetch := func(ctx context.Context, id int64) (*movie.BoxOffice, error) {
		if aborted != nil {
			return nil, aborted
		}
		m := byID[id].movie
		q := boxoffice.Query{TMDBID: id, Title: m.Title, Year: m.ReleaseYear()}
		fresh, err := awaitPrimary(ctx, primary, id)
		if err != nil {
			return nil, err
		}
		if fresh != nil {
			if fresh.Title != "" {
				q.Title = fresh.Title
			}
			if fresh.ReleaseDate != nil {
				q.Year = fresh.ReleaseDate.Year()
			}
		}
		if q.Title == "" {
			slog.InfoContext(ctx, "Skipping box office lookup", "run_id", r.id, "tmdb_id", id, "reason", "no title")
			return nil, fmt.Errorf("%w: no title", errSkipped)
		}
		return r.boxOffice.Lookup(ctx, q)
	}

	batch := upstream.FetchMany(ctx, ids, fetch,
		upstream.WithConcurrency[int64, *movie.BoxOffice](r.boxOffice.MaxConcurrent()),
		upstream.WithLabel[int64, *movie.BoxOffice]("box office"),
	)
	r.checkFatal(ctx, movie.SourceBoxOffice, batch.Fatal())
	return batch
}

// awaitPrimary waits for id's TMDB outcome when TMDB is fetched for it in
// this run. It returns nil details when TMDB was not planned or failed.
func awaitPrimary(ctx context.Context, primary map[int64]*primaryResult, id int64) (*movie.TMDBDetails, error) {
	p, ok := primary[id]
	if !ok {
		return nil, nil
	}
	select {
	case <-p.done:
		return p.details, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *run) checkFatal(ctx context.Context, src movie.Source, err error) {
	if err != nil && upstream.IsSourceFatal(err) {
		r.abort(ctx, src, err)
	}
}

// collect stores a source's batch results on the entities
func collect[R any](
	r *run,
	src movie.Source,
	batch *upstream.BatchResult[int64, R],
	byID map[int64]*entity,
	set func(*sourceResult, R),
) {
	if batch == nil {
		return
	}
	for _, res := range batch.Results {
		e, ok := byID[res.Key]
		if !ok {
			continue
		}
		sr := &sourceResult{outcome: classify(res.Err), err: res.Err}
		if res.Err == nil {
			set(sr, res.Value)
		} else if sr.outcome == outcomeFailed || sr.outcome == outcomeTerminal {
			r.log.Warn("Fetch failed", "source", string(src), "tmdb_id", res.Key, "error", res.Err)
		}
		e.results[src] = sr
	}
}

package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/otel"
	"github.com/stacklok/reelsync/internal/refresh"
	"github.com/stacklok/reelsync/internal/storage"
	"github.com/stacklok/reelsync/internal/upstream"
	"github.com/stacklok/reelsync/internal/upstream/tmdb"
)

// Phase names a step of a run
type Phase string

// Run phases in execution order
const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseSelecting   Phase = "selecting_candidates"
	PhasePlanning    Phase = "planning"
	PhaseFetching    Phase = "fetching"
	PhasePersisting  Phase = "persisting"
	PhaseFreezing    Phase = "freezing"
	PhaseDone        Phase = "done"
)

// run holds the state of one Run call
type run struct {
	*Collector
	opts  Options
	id    string
	log   *slog.Logger
	stats *Stats

	mu      sync.Mutex
	aborted map[movie.Source]error
}

// Run executes one refresh cycle. Per-movie and per-source failures are
// counted in the returned stats; an error is returned only for invalid
// options or when candidates cannot be selected.
func (c *Collector) Run(ctx context.Context, opts Options) (*Stats, error) {
	opts, err := c.validate(opts)
	if err != nil {
		return nil, err
	}

	r := &run{
		Collector: c,
		opts:      opts,
		id:        uuid.NewString(),
		aborted:   make(map[movie.Source]error),
	}
	r.log = slog.With("run_id", r.id)
	r.stats = &Stats{RunID: r.id}

	start := c.clock.Now()
	ctx, span := otel.StartSpan(ctx, c.tracer, "collector.Run",
		trace.WithAttributes(otel.AttrRunID.String(r.id)))
	defer span.End()

	r.log.InfoContext(ctx, "Starting collection run", "sources", opts.Sources, "discover", opts.Discover,
		"refresh_limit", opts.RefreshLimit, "batch_size", opts.BatchSize)

	err = r.execute(ctx)

	r.stats.Duration = c.clock.Since(start)
	c.metrics.RecordRunDuration(ctx, r.stats.Duration, err == nil)
	if err != nil {
		otel.RecordError(span, err)
		r.log.ErrorContext(ctx, "Collection run failed", "error", err)
		return r.stats, err
	}

	r.enter(ctx, PhaseDone)
	r.log.InfoContext(ctx, "Collection run completed",
		"discovered", r.stats.Discovered,
		"candidates", r.stats.Candidates,
		"tmdb_updated", r.stats.TMDBUpdated,
		"omdb_updated", r.stats.OMDBUpdated,
		"box_office_updated", r.stats.BoxOfficeUpdated,
		"frozen", r.stats.Frozen,
		"not_found", r.stats.NotFound,
		"skipped", r.stats.Skipped,
		"failed", r.stats.Failed,
		"aborted_sources", r.stats.AbortedSources,
		"duration", r.stats.Duration.Round(time.Millisecond).String())
	return r.stats, nil
}

func (r *run) execute(ctx context.Context) error {
	if r.opts.Discover {
		r.phase(ctx, PhaseDiscovering, r.discover)
	}

	now := r.clock.Now()
	var candidates []movie.Movie
	err := r.phaseErr(ctx, PhaseSelecting, func(ctx context.Context) error {
		var err error
		candidates, err = r.store.SelectCandidates(ctx, storage.CandidateQuery{
			Now:     now,
			Limit:   r.opts.RefreshLimit,
			Sources: r.opts.Sources,
		})
		if err != nil {
			return fmt.Errorf("failed to select candidates: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.stats.Candidates = len(candidates)

	var entities []*entity
	r.phase(ctx, PhasePlanning, func(context.Context) {
		entities = r.plan(candidates, now)
	})

	r.phase(ctx, PhaseFetching, func(ctx context.Context) {
		r.fetch(ctx, entities)
	})

	r.phase(ctx, PhasePersisting, func(ctx context.Context) {
		r.persist(ctx, entities)
		r.recordCycles(ctx, entities)
	})

	r.phase(ctx, PhaseFreezing, func(ctx context.Context) {
		r.freeze(ctx, entities)
	})

	return nil
}

// enter logs a phase transition
func (r *run) enter(ctx context.Context, p Phase) {
	r.log.DebugContext(ctx, "Collector phase", "phase", string(p))
}

func (r *run) phase(ctx context.Context, p Phase, fn func(context.Context)) {
	_ = r.phaseErr(ctx, p, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func (r *run) phaseErr(ctx context.Context, p Phase, fn func(context.Context) error) error {
	r.enter(ctx, p)
	ctx, span := otel.StartSpan(ctx, r.tracer, "collector."+string(p),
		trace.WithAttributes(otel.AttrRunID.String(r.id), otel.AttrPhase.String(string(p))))
	defer span.End()

	err := fn(ctx)
	otel.RecordError(span, err)
	return err
}

// discover upserts identity rows for every movie TMDB lists in the year range
func (r *run) discover(ctx context.Context) {
	found, err := r.tmdb.Discover(ctx, tmdb.DiscoverCriteria{
		StartYear:    r.opts.StartYear,
		EndYear:      r.opts.EndYear,
		MinVoteCount: r.opts.MinVoteCount,
		MaxPages:     r.opts.MaxPages,
	})
	if err != nil {
		r.log.WarnContext(ctx, "Discovery ended early", "found", len(found), "error", err)
		if upstream.IsSourceFatal(err) {
			r.abort(ctx, movie.SourceTMDB, err)
		}
	}
	r.stats.Discovered = len(found)

	for _, chunk := range chunks(found, r.opts.BatchSize) {
		n, err := r.store.UpsertMovies(ctx, chunk)
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to store discovered movies", "count", len(chunk), "error", err)
			continue
		}
		r.stats.NewMovies += n
	}

	r.log.InfoContext(ctx, "Discovery completed",
		"years", fmt.Sprintf("%d-%d", r.opts.StartYear, r.opts.EndYear),
		"discovered", r.stats.Discovered, "new", r.stats.NewMovies)
}

// plan computes the per-source work of every candidate
func (r *run) plan(candidates []movie.Movie, now time.Time) []*entity {
	entities := make([]*entity, 0, len(candidates))
	perSource := make(map[movie.Source]int)
	for _, m := range candidates {
		e := &entity{movie: m, plan: refresh.CalculatePlan(&m, now, r.opts.Sources), results: make(map[movie.Source]*sourceResult)}
		for _, src := range e.plan.Sources() {
			perSource[src]++
		}
		entities = append(entities, e)
	}
	for _, src := range r.opts.Sources {
		r.log.Info("Planned refreshes", "source", string(src), "count", perSource[src])
	}
	return entities
}

// abort stops every further call to src for the rest of the run
func (r *run) abort(ctx context.Context, src movie.Source, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, done := r.aborted[src]; done {
		return
	}
	r.aborted[src] = err
	r.stats.AbortedSources = append(r.stats.AbortedSources, src)
	r.log.ErrorContext(ctx, "Source aborted for this run", "source", string(src), "error", err)
}

// abortedErr returns the error every remaining call to src fails with, or nil
func (r *run) abortedErr(src movie.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cause, ok := r.aborted[src]; ok {
		return fmt.Errorf("%w: %w", upstream.ErrAborted, cause)
	}
	return nil
}

// freeze flips every refreshed movie that became stable, and with
// FreezeSweep every eligible movie in the store
func (r *run) freeze(ctx context.Context, entities []*entity) {
	now := r.clock.Now()

	var touched []int64
	for _, e := range entities {
		if e.fetched() {
			touched = append(touched, e.movie.TMDBID)
		}
	}

	var pool []movie.Movie
	for _, chunk := range chunks(touched, r.opts.BatchSize) {
		movies, err := r.store.GetMovies(ctx, chunk)
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to reload refreshed movies", "count", len(chunk), "error", err)
			continue
		}
		pool = append(pool, movies...)
	}

	if r.opts.FreezeSweep {
		movies, err := r.store.FreezeCandidates(ctx, refresh.FreezeReleasedBefore(now))
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to load freeze candidates", "error", err)
		} else {
			pool = append(pool, movies...)
		}
	}

	seen := make(map[int64]struct{}, len(pool))
	var ids []int64
	for i := range pool {
		m := &pool[i]
		if _, dup := seen[m.TMDBID]; dup {
			continue
		}
		seen[m.TMDBID] = struct{}{}
		if !m.Frozen && refresh.ShouldFreezeMovie(m, now) {
			ids = append(ids, m.TMDBID)
		}
	}
	if len(ids) == 0 {
		return
	}

	n, err := r.store.FreezeMovies(ctx, ids)
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to freeze movies", "count", len(ids), "error", err)
		return
	}
	r.stats.Frozen = n
	r.metrics.RecordFrozen(ctx, n)
	r.log.InfoContext(ctx, "Froze stable movies", "count", n)
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

var errSkipped = errors.New("missing cross-reference")

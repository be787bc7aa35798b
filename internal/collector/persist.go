package collector

import (
	"context"
	"time"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/storage"
)

// persist writes successful fetches in batches, one source after the other.
// A failed batch turns its movies' results into failures.
func (r *run) persist(ctx context.Context, entities []*entity) {
	saveSource(ctx, r, movie.SourceTMDB, entities,
		func(res *sourceResult) *movie.TMDBDetails { return res.tmdb },
		r.store.SaveTMDB)
	saveSource(ctx, r, movie.SourceOMDB, entities,
		func(res *sourceResult) *movie.OMDBDetails { return res.omdb },
		r.store.SaveOMDB)
	saveSource(ctx, r, movie.SourceBoxOffice, entities,
		func(res *sourceResult) *movie.BoxOffice { return res.boxOffice },
		r.store.SaveBoxOffice)

	r.tally(ctx, entities)
}

func saveSource[T any](
	ctx context.Context,
	r *run,
	src movie.Source,
	entities []*entity,
	record func(*sourceResult) *T,
	save func(context.Context, []T, time.Time) (map[int64]bool, error),
) {
	var (
		ids     []int64
		owners  []*sourceResult
		records []T
	)
	for _, e := range entities {
		res, ok := e.results[src]
		if !ok || res.outcome != outcomeSuccess {
			continue
		}
		ids = append(ids, e.movie.TMDBID)
		owners = append(owners, res)
		records = append(records, *record(res))
	}

	for start := 0; start < len(records); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(records))
		changed, err := save(ctx, records[start:end], r.clock.Now())
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to persist batch", "source", string(src), "count", end-start, "error", err)
			for _, res := range owners[start:end] {
				res.outcome = outcomeFailed
				res.err = err
			}
			continue
		}
		for i, res := range owners[start:end] {
			res.changed = changed[ids[start+i]]
		}
		r.log.DebugContext(ctx, "Persisted batch", "source", string(src), "count", end-start)
	}
}

// tally fills the outcome counters and metrics
func (r *run) tally(ctx context.Context, entities []*entity) {
	counts := make(map[movie.Source]map[outcome]int)
	for _, e := range entities {
		for src, res := range e.results {
			if counts[src] == nil {
				counts[src] = make(map[outcome]int)
			}
			counts[src][res.outcome]++

			switch res.outcome {
			case outcomeSuccess:
				r.stats.addUpdated(src, 1)
			case outcomeNotFound:
				r.stats.NotFound++
			case outcomeSkipped:
				r.stats.Skipped++
			default:
				r.stats.Failed++
			}
		}
		if e.changed() {
			r.stats.Changed++
		}
	}

	for src, byOutcome := range counts {
		for o, n := range byOutcome {
			r.metrics.RecordFetchOutcomes(ctx, string(src), o.String(), n)
		}
	}
}

// recordCycles stores unchanged-cycle counters and full refresh stamps
func (r *run) recordCycles(ctx context.Context, entities []*entity) {
	var outcomes []storage.CycleOutcome
	for _, e := range entities {
		o := storage.CycleOutcome{
			TMDBID:      e.movie.TMDBID,
			Fetched:     e.fetched(),
			Changed:     e.changed(),
			FullRefresh: e.fullyRefreshed(),
		}
		if o.FullRefresh {
			r.stats.FullyRefreshed++
		}
		if o.Fetched || o.FullRefresh {
			outcomes = append(outcomes, o)
		}
	}

	now := r.clock.Now()
	for start := 0; start < len(outcomes); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(outcomes))
		if err := r.store.RecordCycles(ctx, outcomes[start:end], now); err != nil {
			r.log.ErrorContext(ctx, "Failed to record refresh cycles", "count", end-start, "error", err)
		}
	}
}

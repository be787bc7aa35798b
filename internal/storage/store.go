// Package storage defines the persistence contract for tracked movies and
// their per-source detail records.
package storage

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/reelsync/internal/movie"
)

// ErrNotFound is returned when a referenced movie does not exist
var ErrNotFound = errors.New("movie not found")

// CandidateQuery selects movies for a refresh run
type CandidateQuery struct {
	// Now is the instant refresh intervals are measured against
	Now time.Time

	// Limit bounds the number of rows returned. Zero means no limit.
	Limit int

	// Sources lists the enabled sources. A movie is due when any of them is.
	Sources []movie.Source
}

// CycleOutcome summarizes one movie's refresh in a run
type CycleOutcome struct {
	TMDBID int64

	// Fetched is true when at least one source succeeded for the movie
	Fetched bool

	// Changed is true when any successfully fetched record differed from the
	// stored one
	Changed bool

	// FullRefresh is true when every planned source reached a definitive outcome
	FullRefresh bool
}

// Store is the storage adapter used by the collector
type Store interface {
	// UpsertMovies inserts bare identity rows from discovery. Existing rows keep
	// their refresh state; title and release date are updated. Returns the
	// number of rows that did not exist before.
	UpsertMovies(ctx context.Context, discovered []movie.Discovered) (int, error)

	// SelectCandidates returns movies that are not frozen and either never fully
	// refreshed or due for any enabled source. Never-refreshed rows come first,
	// then newest release first with unknown release dates last.
	SelectCandidates(ctx context.Context, q CandidateQuery) ([]movie.Movie, error)

	// GetMovies loads movies by id. Unknown ids are ignored.
	GetMovies(ctx context.Context, ids []int64) ([]movie.Movie, error)

	// SaveTMDB upserts TMDB records, advances last_tmdb_update and returns which
	// movies changed content.
	SaveTMDB(ctx context.Context, records []movie.TMDBDetails, fetchedAt time.Time) (map[int64]bool, error)

	// SaveOMDB upserts OMDB records, advances last_omdb_update and returns which
	// movies changed content.
	SaveOMDB(ctx context.Context, records []movie.OMDBDetails, fetchedAt time.Time) (map[int64]bool, error)

	// SaveBoxOffice upserts box-office records, advances last_box_office_update
	// and returns which movies changed content.
	SaveBoxOffice(ctx context.Context, records []movie.BoxOffice, fetchedAt time.Time) (map[int64]bool, error)

	// RecordCycles applies unchanged-cycle counters and full refresh timestamps
	RecordCycles(ctx context.Context, outcomes []CycleOutcome, now time.Time) error

	// FreezeMovies marks movies frozen and returns how many flipped
	FreezeMovies(ctx context.Context, ids []int64) (int, error)

	// UnfreezeMovies clears the frozen flag and resets the unchanged counter
	UnfreezeMovies(ctx context.Context, ids []int64) (int, error)

	// FreezeCandidates returns non-frozen movies released on or before
	// releasedBefore
	FreezeCandidates(ctx context.Context, releasedBefore time.Time) ([]movie.Movie, error)

	// CountMovies returns the number of tracked movies
	CountMovies(ctx context.Context) (int, error)

	// Close releases held resources
	Close()
}

// ApplyCycle updates m in place for one outcome
func ApplyCycle(m *movie.Movie, o CycleOutcome, now time.Time) {
	if o.Fetched {
		if o.Changed {
			m.ConsecutiveUnchangedCycles = 0
		} else {
			m.ConsecutiveUnchangedCycles++
		}
	}
	if o.FullRefresh {
		t := now
		m.LastFullRefresh = &t
	}
}

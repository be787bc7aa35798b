// Package memory provides an in-process storage.Store used by tests and dry
// runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/refresh"
	"github.com/stacklok/reelsync/internal/storage"
)

type hashed[T any] struct {
	record T
	hash   string
}

// Store keeps movies and detail records in mutex-guarded maps
type Store struct {
	mu        sync.RWMutex
	movies    map[int64]*movie.Movie
	tmdb      map[int64]hashed[movie.TMDBDetails]
	omdb      map[int64]hashed[movie.OMDBDetails]
	boxOffice map[int64]hashed[movie.BoxOffice]
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		movies:    make(map[int64]*movie.Movie),
		tmdb:      make(map[int64]hashed[movie.TMDBDetails]),
		omdb:      make(map[int64]hashed[movie.OMDBDetails]),
		boxOffice: make(map[int64]hashed[movie.BoxOffice]),
	}
}

// Put stores a copy of m, replacing any existing row
func (s *Store) Put(m movie.Movie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movies[m.TMDBID] = &m
}

// TMDB returns the stored TMDB record for id
func (s *Store) TMDB(id int64) (movie.TMDBDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.tmdb[id]
	return h.record, ok
}

// OMDB returns the stored OMDB record for id
func (s *Store) OMDB(id int64) (movie.OMDBDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.omdb[id]
	return h.record, ok
}

// BoxOffice returns the stored box-office record for id
func (s *Store) BoxOffice(id int64) (movie.BoxOffice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.boxOffice[id]
	return h.record, ok
}

// UpsertMovies implements storage.Store
func (s *Store) UpsertMovies(_ context.Context, discovered []movie.Discovered) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, d := range discovered {
		m, ok := s.movies[d.TMDBID]
		if !ok {
			m = &movie.Movie{TMDBID: d.TMDBID}
			s.movies[d.TMDBID] = m
			inserted++
		}
		if d.Title != "" {
			m.Title = d.Title
		}
		if d.ReleaseDate != nil {
			m.ReleaseDate = copyTime(d.ReleaseDate)
		}
	}
	return inserted, nil
}

// SelectCandidates implements storage.Store
func (s *Store) SelectCandidates(_ context.Context, q storage.CandidateQuery) ([]movie.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []movie.Movie
	for _, m := range s.movies {
		if refresh.IsDue(m, q.Now, q.Sources) {
			out = append(out, cloneMovie(m))
		}
	}
	slices.SortFunc(out, candidateOrder)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// candidateOrder puts never-refreshed movies first, then newest release first
// with unknown release dates last
func candidateOrder(a, b movie.Movie) int {
	aNever, bNever := a.LastFullRefresh == nil, b.LastFullRefresh == nil
	if aNever != bNever {
		if aNever {
			return -1
		}
		return 1
	}
	switch {
	case a.ReleaseDate == nil && b.ReleaseDate != nil:
		return 1
	case a.ReleaseDate != nil && b.ReleaseDate == nil:
		return -1
	case a.ReleaseDate != nil && b.ReleaseDate != nil && !a.ReleaseDate.Equal(*b.ReleaseDate):
		return b.ReleaseDate.Compare(*a.ReleaseDate)
	}
	return cmp.Compare(a.TMDBID, b.TMDBID)
}

// GetMovies implements storage.Store
func (s *Store) GetMovies(_ context.Context, ids []int64) ([]movie.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]movie.Movie, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.movies[id]; ok {
			out = append(out, cloneMovie(m))
		}
	}
	return out, nil
}

// SaveTMDB implements storage.Store. Unknown movies are created from the record.
func (s *Store) SaveTMDB(_ context.Context, records []movie.TMDBDetails, fetchedAt time.Time) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make(map[int64]bool, len(records))
	for _, rec := range records {
		hash, err := rec.ContentHash()
		if err != nil {
			return nil, err
		}
		m, ok := s.movies[rec.TMDBID]
		if !ok {
			m = &movie.Movie{TMDBID: rec.TMDBID}
			s.movies[rec.TMDBID] = m
		}
		if rec.IMDbID != "" {
			m.IMDbID = rec.IMDbID
		}
		if rec.Title != "" {
			m.Title = rec.Title
		}
		if rec.ReleaseDate != nil {
			m.ReleaseDate = copyTime(rec.ReleaseDate)
		}
		m.SetLastUpdate(movie.SourceTMDB, fetchedAt)

		prev, seen := s.tmdb[rec.TMDBID]
		changed[rec.TMDBID] = !seen || prev.hash != hash
		s.tmdb[rec.TMDBID] = hashed[movie.TMDBDetails]{record: rec, hash: hash}
	}
	return changed, nil
}

// SaveOMDB implements storage.Store
func (s *Store) SaveOMDB(_ context.Context, records []movie.OMDBDetails, fetchedAt time.Time) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := requireMoviesOf(s.movies, records, func(r movie.OMDBDetails) int64 { return r.TMDBID }); err != nil {
		return nil, err
	}
	changed := make(map[int64]bool, len(records))
	for _, rec := range records {
		hash, err := rec.ContentHash()
		if err != nil {
			return nil, err
		}
		s.movies[rec.TMDBID].SetLastUpdate(movie.SourceOMDB, fetchedAt)
		prev, seen := s.omdb[rec.TMDBID]
		changed[rec.TMDBID] = !seen || prev.hash != hash
		s.omdb[rec.TMDBID] = hashed[movie.OMDBDetails]{record: rec, hash: hash}
	}
	return changed, nil
}

// SaveBoxOffice implements storage.Store
func (s *Store) SaveBoxOffice(_ context.Context, records []movie.BoxOffice, fetchedAt time.Time) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := requireMoviesOf(s.movies, records, func(r movie.BoxOffice) int64 { return r.TMDBID }); err != nil {
		return nil, err
	}
	changed := make(map[int64]bool, len(records))
	for _, rec := range records {
		hash, err := rec.ContentHash()
		if err != nil {
			return nil, err
		}
		s.movies[rec.TMDBID].SetLastUpdate(movie.SourceBoxOffice, fetchedAt)
		prev, seen := s.boxOffice[rec.TMDBID]
		changed[rec.TMDBID] = !seen || prev.hash != hash
		s.boxOffice[rec.TMDBID] = hashed[movie.BoxOffice]{record: rec, hash: hash}
	}
	return changed, nil
}

// requireMoviesOf fails the whole call when any record references an unknown
// movie, matching the foreign key behaviour of the database store
func requireMoviesOf[T any](movies map[int64]*movie.Movie, records []T, id func(T) int64) error {
	for _, rec := range records {
		if _, ok := movies[id(rec)]; !ok {
			return fmt.Errorf("%w: %d", storage.ErrNotFound, id(rec))
		}
	}
	return nil
}

// RecordCycles implements storage.Store
func (s *Store) RecordCycles(_ context.Context, outcomes []storage.CycleOutcome, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range outcomes {
		if m, ok := s.movies[o.TMDBID]; ok {
			storage.ApplyCycle(m, o, now)
		}
	}
	return nil
}

// FreezeMovies implements storage.Store
func (s *Store) FreezeMovies(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if m, ok := s.movies[id]; ok && !m.Frozen {
			m.Frozen = true
			n++
		}
	}
	return n, nil
}

// UnfreezeMovies implements storage.Store
func (s *Store) UnfreezeMovies(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if m, ok := s.movies[id]; ok && m.Frozen {
			m.Frozen = false
			m.ConsecutiveUnchangedCycles = 0
			n++
		}
	}
	return n, nil
}

// FreezeCandidates implements storage.Store
func (s *Store) FreezeCandidates(_ context.Context, releasedBefore time.Time) ([]movie.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []movie.Movie
	for _, m := range s.movies {
		if m.Frozen || m.ReleaseDate == nil || m.ReleaseDate.After(releasedBefore) {
			continue
		}
		out = append(out, cloneMovie(m))
	}
	slices.SortFunc(out, func(a, b movie.Movie) int { return cmp.Compare(a.TMDBID, b.TMDBID) })
	return out, nil
}

// CountMovies implements storage.Store
func (s *Store) CountMovies(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.movies), nil
}

// Close implements storage.Store
func (*Store) Close() {}

func cloneMovie(m *movie.Movie) movie.Movie {
	c := *m
	c.ReleaseDate = copyTime(m.ReleaseDate)
	c.LastTMDBUpdate = copyTime(m.LastTMDBUpdate)
	c.LastOMDBUpdate = copyTime(m.LastOMDBUpdate)
	c.LastBoxOfficeUpdate = copyTime(m.LastBoxOfficeUpdate)
	c.LastFullRefresh = copyTime(m.LastFullRefresh)
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

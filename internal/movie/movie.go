// Package movie contains the domain types shared by the collector, the upstream
// clients and the storage layer.
package movie

import (
	"fmt"
	"time"
)

// Source identifies an upstream metadata provider
type Source string

const (
	// SourceTMDB is the primary source, keyed by TMDB id
	SourceTMDB Source = "tmdb"

	// SourceOMDB is the secondary source, keyed by IMDb id
	SourceOMDB Source = "omdb"

	// SourceBoxOffice is the optional box-office scraper, keyed by title and year
	SourceBoxOffice Source = "box_office"
)

// AllSources lists every known source in dispatch order
var AllSources = []Source{SourceTMDB, SourceOMDB, SourceBoxOffice}

// ParseSource converts a string into a Source
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceTMDB, SourceOMDB, SourceBoxOffice:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// Movie is one tracked entity. TMDBID is the stable primary key; IMDbID is the
// cross-reference needed by OMDB and is empty until TMDB supplies it.
type Movie struct {
	TMDBID      int64
	IMDbID      string
	Title       string
	ReleaseDate *time.Time

	LastTMDBUpdate      *time.Time
	LastOMDBUpdate      *time.Time
	LastBoxOfficeUpdate *time.Time
	LastFullRefresh     *time.Time

	Frozen                     bool
	ConsecutiveUnchangedCycles int
}

// LastUpdate returns the last successful update time for the given source
func (m *Movie) LastUpdate(src Source) *time.Time {
	switch src {
	case SourceTMDB:
		return m.LastTMDBUpdate
	case SourceOMDB:
		return m.LastOMDBUpdate
	case SourceBoxOffice:
		return m.LastBoxOfficeUpdate
	default:
		return nil
	}
}

// SetLastUpdate sets the last successful update time for the given source
func (m *Movie) SetLastUpdate(src Source, t time.Time) {
	switch src {
	case SourceTMDB:
		m.LastTMDBUpdate = &t
	case SourceOMDB:
		m.LastOMDBUpdate = &t
	case SourceBoxOffice:
		m.LastBoxOfficeUpdate = &t
	}
}

// ReleaseYear returns the release year, or 0 when the release date is unknown
func (m *Movie) ReleaseYear() int {
	if m.ReleaseDate == nil {
		return 0
	}
	return m.ReleaseDate.Year()
}

// Discovered is the lightweight row returned by TMDB discovery
type Discovered struct {
	TMDBID      int64      `json:"tmdb_id"`
	Title       string     `json:"title"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	VoteCount   int        `json:"vote_count"`
	VoteAverage float64    `json:"vote_average"`
	Popularity  float64    `json:"popularity"`
	GenreIDs    []int      `json:"genre_ids,omitempty"`
}

// TMDBDetails is the normalized TMDB movie detail record
type TMDBDetails struct {
	TMDBID              int64      `json:"tmdb_id"`
	IMDbID              string     `json:"imdb_id,omitempty"`
	Title               string     `json:"title"`
	OriginalTitle       string     `json:"original_title,omitempty"`
	ReleaseDate         *time.Time `json:"release_date,omitempty"`
	Status              string     `json:"status,omitempty"`
	Budget              int64      `json:"budget"`
	Revenue             int64      `json:"revenue"`
	Runtime             *int       `json:"runtime,omitempty"`
	VoteCount           int        `json:"vote_count"`
	VoteAverage         float64    `json:"vote_average"`
	Popularity          float64    `json:"popularity"`
	Genres              string     `json:"genres,omitempty"`
	ProductionCompanies string     `json:"production_companies,omitempty"`
	ProductionCountries string     `json:"production_countries,omitempty"`
	SpokenLanguages     string     `json:"spoken_languages,omitempty"`
	Overview            string     `json:"overview,omitempty"`
}

// ContentHash hashes the record for change detection. Popularity and the
// vote counters move with audience activity, not with the movie's data, and
// are left out; otherwise an old movie would never stabilize.
func (d *TMDBDetails) ContentHash() (string, error) {
	c := *d
	c.VoteCount = 0
	c.VoteAverage = 0
	c.Popularity = 0
	return Hash(&c)
}

// OMDBDetails is the normalized OMDB record. TMDBID is filled in by the caller
// and is not part of the content.
type OMDBDetails struct {
	TMDBID               int64    `json:"-"`
	IMDbID               string   `json:"imdb_id"`
	Title                string   `json:"title"`
	Year                 *int     `json:"year,omitempty"`
	Rated                string   `json:"rated,omitempty"`
	Released             string   `json:"released,omitempty"`
	Runtime              *int     `json:"runtime,omitempty"`
	Genre                string   `json:"genre,omitempty"`
	Director             string   `json:"director,omitempty"`
	Writer               string   `json:"writer,omitempty"`
	Actors               string   `json:"actors,omitempty"`
	Language             string   `json:"language,omitempty"`
	Country              string   `json:"country,omitempty"`
	Awards               string   `json:"awards,omitempty"`
	IMDbRating           *float64 `json:"imdb_rating,omitempty"`
	IMDbVotes            *int64   `json:"imdb_votes,omitempty"`
	Metascore            *int     `json:"metascore,omitempty"`
	BoxOffice            *int64   `json:"box_office,omitempty"`
	RottenTomatoesRating *int     `json:"rotten_tomatoes_rating,omitempty"`
	MetacriticRating     *int     `json:"metacritic_rating,omitempty"`
}

// ContentHash hashes the record for change detection. The IMDb rating and
// vote count are left out for the same reason as TMDB's vote counters.
func (d *OMDBDetails) ContentHash() (string, error) {
	c := *d
	c.IMDbRating = nil
	c.IMDbVotes = nil
	return Hash(&c)
}

// OMDBSearchHit is one row of an OMDB title search
type OMDBSearchHit struct {
	IMDbID string `json:"imdb_id"`
	Title  string `json:"title"`
	Year   string `json:"year"`
	Type   string `json:"type"`
}

// BoxOffice holds financial figures scraped from a box-office page. All amounts
// are whole US dollars.
type BoxOffice struct {
	TMDBID             int64  `json:"-"`
	SourceURL          string `json:"source_url"`
	ProductionBudget   *int64 `json:"production_budget,omitempty"`
	DomesticGross      *int64 `json:"domestic_gross,omitempty"`
	InternationalGross *int64 `json:"international_gross,omitempty"`
	WorldwideGross     *int64 `json:"worldwide_gross,omitempty"`
	OpeningWeekend     *int64 `json:"opening_weekend,omitempty"`
}

// ContentHash hashes the record for change detection
func (b *BoxOffice) ContentHash() (string, error) {
	return Hash(b)
}

// Package refresh decides when a movie's data should be fetched again. The
// functions are pure: every decision is derived from the movie's timestamps
// and the supplied current time.
package refresh

import (
	"fmt"
	"time"

	"github.com/stacklok/reelsync/internal/movie"
)

// AgeCategory buckets a movie by days since release
type AgeCategory int

const (
	// Recent movies were released at most 60 days ago
	Recent AgeCategory = iota
	// Established movies were released 61 to 180 days ago
	Established
	// Mature movies were released 181 to 365 days ago
	Mature
	// Archived movies were released more than 365 days ago, or on an unknown date
	Archived
)

// Age boundaries in whole days, inclusive upper bounds
const (
	RecentMaxDays      = 60
	EstablishedMaxDays = 180
	MatureMaxDays      = 365
)

// Freeze criteria
const (
	FreezeMinAgeDays   = 365
	FreezeStableCycles = 3
)

// AgeCategories lists every category from youngest to oldest
var AgeCategories = []AgeCategory{Recent, Established, Mature, Archived}

func (a AgeCategory) String() string {
	switch a {
	case Recent:
		return "recent"
	case Established:
		return "established"
	case Mature:
		return "mature"
	case Archived:
		return "archived"
	default:
		return fmt.Sprintf("age(%d)", int(a))
	}
}

// DaysSince returns the whole days elapsed from t to now, rounded down
func DaysSince(t, now time.Time) int {
	d := now.Sub(t)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// Age categorizes a release date. An unknown date is Archived.
func Age(releaseDate *time.Time, now time.Time) AgeCategory {
	if releaseDate == nil {
		return Archived
	}
	days := DaysSince(*releaseDate, now)
	switch {
	case days <= RecentMaxDays:
		return Recent
	case days <= EstablishedMaxDays:
		return Established
	case days <= MatureMaxDays:
		return Mature
	default:
		return Archived
	}
}

// NewerThan returns the instant a release date must be strictly after to be
// at most maxDays old at now
func NewerThan(maxDays int, now time.Time) time.Time {
	return now.Add(-time.Duration(maxDays+1) * 24 * time.Hour)
}

// FreezeReleasedBefore returns the latest release date old enough to freeze
func FreezeReleasedBefore(now time.Time) time.Time {
	return now.Add(-time.Duration(FreezeMinAgeDays) * 24 * time.Hour)
}

// IntervalTable holds the refresh interval in days for each age category
type IntervalTable struct {
	Recent      int
	Established int
	Mature      int
	Archived    int
}

// Days returns the interval in days for age
func (t IntervalTable) Days(age AgeCategory) int {
	switch age {
	case Recent:
		return t.Recent
	case Established:
		return t.Established
	case Mature:
		return t.Mature
	default:
		return t.Archived
	}
}

// Interval returns the interval for age as a duration
func (t IntervalTable) Interval(age AgeCategory) time.Duration {
	return time.Duration(t.Days(age)) * 24 * time.Hour
}

var (
	// TMDBIntervals applies to the primary source
	TMDBIntervals = IntervalTable{Recent: 5, Established: 15, Mature: 30, Archived: 90}
	// OMDBIntervals applies to the secondary source
	OMDBIntervals = IntervalTable{Recent: 5, Established: 30, Mature: 90, Archived: 180}
	// BoxOfficeIntervals applies to the box-office scraper
	BoxOfficeIntervals = IntervalTable{Recent: 5, Established: 30, Mature: 90, Archived: 180}
)

// IntervalsFor returns the interval table of a source
func IntervalsFor(src movie.Source) IntervalTable {
	switch src {
	case movie.SourceTMDB:
		return TMDBIntervals
	case movie.SourceOMDB:
		return OMDBIntervals
	default:
		return BoxOfficeIntervals
	}
}

// NeedsRefresh reports whether data last updated at lastUpdate is stale
func NeedsRefresh(releaseDate, lastUpdate *time.Time, now time.Time, table IntervalTable) bool {
	if lastUpdate == nil {
		return true
	}
	return now.Sub(*lastUpdate) >= table.Interval(Age(releaseDate, now))
}

// ShouldFreeze reports whether a movie is old and stable enough to stop
// refreshing. A movie with an unknown release date is never frozen.
func ShouldFreeze(releaseDate, lastPrimary, lastSecondary *time.Time, unchangedCycles int, now time.Time) bool {
	if releaseDate == nil {
		return false
	}
	if DaysSince(*releaseDate, now) < FreezeMinAgeDays {
		return false
	}
	if lastPrimary == nil && lastSecondary == nil {
		return false
	}
	return unchangedCycles >= FreezeStableCycles
}

// ShouldFreezeMovie applies ShouldFreeze to m's TMDB and OMDB timestamps
func ShouldFreezeMovie(m *movie.Movie, now time.Time) bool {
	return ShouldFreeze(m.ReleaseDate, m.LastTMDBUpdate, m.LastOMDBUpdate, m.ConsecutiveUnchangedCycles, now)
}

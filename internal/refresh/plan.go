package refresh

import (
	"time"

	"github.com/stacklok/reelsync/internal/movie"
)

// Plan maps each enabled source to whether it must be fetched this run
type Plan map[movie.Source]bool

// Needs reports whether src is due
func (p Plan) Needs(src movie.Source) bool {
	return p[src]
}

// Sources returns the due sources in dispatch order
func (p Plan) Sources() []movie.Source {
	var out []movie.Source
	for _, src := range movie.AllSources {
		if p[src] {
			out = append(out, src)
		}
	}
	return out
}

// Empty reports whether nothing is due
func (p Plan) Empty() bool {
	return len(p.Sources()) == 0
}

// CalculatePlan applies NeedsRefresh to every enabled source. Frozen movies
// get an empty plan.
func CalculatePlan(m *movie.Movie, now time.Time, sources []movie.Source) Plan {
	plan := make(Plan, len(sources))
	if m.Frozen {
		return plan
	}
	for _, src := range sources {
		plan[src] = NeedsRefresh(m.ReleaseDate, m.LastUpdate(src), now, IntervalsFor(src))
	}
	return plan
}

// IsDue is the candidate predicate: not frozen, and either never fully
// refreshed or due for at least one enabled source.
func IsDue(m *movie.Movie, now time.Time, sources []movie.Source) bool {
	if m.Frozen {
		return false
	}
	if m.LastFullRefresh == nil {
		return true
	}
	return !CalculatePlan(m, now, sources).Empty()
}

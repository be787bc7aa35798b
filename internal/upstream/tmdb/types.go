package tmdb

import (
	"strings"

	"github.com/stacklok/reelsync/internal/movie"
)

type discoverResponse struct {
	Page         int              `json:"page"`
	TotalPages   int              `json:"total_pages"`
	TotalResults int              `json:"total_results"`
	Results      []discoverResult `json:"results"`
}

type discoverResult struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	VoteCount   int     `json:"vote_count"`
	VoteAverage float64 `json:"vote_average"`
	Popularity  float64 `json:"popularity"`
	GenreIDs    []int   `json:"genre_ids"`
}

func (r *discoverResponse) discovered() []movie.Discovered {
	out := make([]movie.Discovered, 0, len(r.Results))
	for _, res := range r.Results {
		if res.ID == 0 {
			continue
		}
		out = append(out, movie.Discovered{
			TMDBID:      res.ID,
			Title:       res.Title,
			ReleaseDate: parseDate(res.ReleaseDate),
			VoteCount:   res.VoteCount,
			VoteAverage: res.VoteAverage,
			Popularity:  res.Popularity,
			GenreIDs:    res.GenreIDs,
		})
	}
	return out
}

type named struct {
	Name        string `json:"name"`
	EnglishName string `json:"english_name"`
}

type detailsResponse struct {
	ID                  int64   `json:"id"`
	IMDbID              *string `json:"imdb_id"`
	Title               string  `json:"title"`
	OriginalTitle       string  `json:"original_title"`
	ReleaseDate         string  `json:"release_date"`
	Status              string  `json:"status"`
	Budget              int64   `json:"budget"`
	Revenue             int64   `json:"revenue"`
	Runtime             *int    `json:"runtime"`
	VoteCount           int     `json:"vote_count"`
	VoteAverage         float64 `json:"vote_average"`
	Popularity          float64 `json:"popularity"`
	Genres              []named `json:"genres"`
	ProductionCompanies []named `json:"production_companies"`
	ProductionCountries []named `json:"production_countries"`
	SpokenLanguages     []named `json:"spoken_languages"`
	Overview            string  `json:"overview"`

	// error envelope
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (r *detailsResponse) normalize() *movie.TMDBDetails {
	d := &movie.TMDBDetails{
		TMDBID:              r.ID,
		Title:               r.Title,
		OriginalTitle:       r.OriginalTitle,
		ReleaseDate:         parseDate(r.ReleaseDate),
		Status:              r.Status,
		Budget:              r.Budget,
		Revenue:             r.Revenue,
		VoteCount:           r.VoteCount,
		VoteAverage:         r.VoteAverage,
		Popularity:          r.Popularity,
		Genres:              joinNames(r.Genres, false),
		ProductionCompanies: joinNames(r.ProductionCompanies, false),
		ProductionCountries: joinNames(r.ProductionCountries, false),
		SpokenLanguages:     joinNames(r.SpokenLanguages, true),
		Overview:            r.Overview,
	}
	if r.IMDbID != nil {
		d.IMDbID = strings.TrimSpace(*r.IMDbID)
	}
	if r.Runtime != nil && *r.Runtime > 0 {
		runtime := *r.Runtime
		d.Runtime = &runtime
	}
	return d
}

func joinNames(items []named, english bool) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name
		if english {
			name = it.EnglishName
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}

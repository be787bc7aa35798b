package omdb

import (
	"strconv"
	"strings"

	"github.com/stacklok/reelsync/internal/movie"
)

const notAvailable = "N/A"

type rating struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

type movieResponse struct {
	Title      string   `json:"Title"`
	Year       string   `json:"Year"`
	Rated      string   `json:"Rated"`
	Released   string   `json:"Released"`
	Runtime    string   `json:"Runtime"`
	Genre      string   `json:"Genre"`
	Director   string   `json:"Director"`
	Writer     string   `json:"Writer"`
	Actors     string   `json:"Actors"`
	Language   string   `json:"Language"`
	Country    string   `json:"Country"`
	Awards     string   `json:"Awards"`
	Ratings    []rating `json:"Ratings"`
	Metascore  string   `json:"Metascore"`
	IMDbRating string   `json:"imdbRating"`
	IMDbVotes  string   `json:"imdbVotes"`
	IMDbID     string   `json:"imdbID"`
	Type       string   `json:"Type"`
	BoxOffice  string   `json:"BoxOffice"`
	Response   string   `json:"Response"`
	Error      string   `json:"Error"`
}

func (r *movieResponse) ok() bool {
	return strings.EqualFold(r.Response, "true")
}

func (r *movieResponse) normalize() *movie.OMDBDetails {
	d := &movie.OMDBDetails{
		IMDbID:     r.IMDbID,
		Title:      text(r.Title),
		Year:       parseInt(r.Year),
		Rated:      text(r.Rated),
		Released:   text(r.Released),
		Runtime:    parseRuntime(r.Runtime),
		Genre:      text(r.Genre),
		Director:   text(r.Director),
		Writer:     text(r.Writer),
		Actors:     text(r.Actors),
		Language:   text(r.Language),
		Country:    text(r.Country),
		Awards:     text(r.Awards),
		IMDbRating: parseFloat(r.IMDbRating),
		IMDbVotes:  parseAmount(r.IMDbVotes),
		Metascore:  parseInt(r.Metascore),
		BoxOffice:  parseAmount(r.BoxOffice),
	}

	for _, rt := range r.Ratings {
		switch rt.Source {
		case "Rotten Tomatoes":
			if v, ok := strings.CutSuffix(rt.Value, "%"); ok {
				d.RottenTomatoesRating = parseInt(v)
			}
		case "Metacritic":
			if v, _, ok := strings.Cut(rt.Value, "/"); ok {
				d.MetacriticRating = parseInt(v)
			}
		}
	}
	return d
}

type searchHit struct {
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	IMDbID string `json:"imdbID"`
	Type   string `json:"Type"`
}

type searchResponse struct {
	Search       []searchHit `json:"Search"`
	TotalResults string      `json:"totalResults"`
	Response     string      `json:"Response"`
	Error        string      `json:"Error"`
}

func (r *searchResponse) ok() bool {
	return strings.EqualFold(r.Response, "true")
}

func text(s string) string {
	s = strings.TrimSpace(s)
	if s == notAvailable {
		return ""
	}
	return s
}

func parseInt(s string) *int {
	s = text(s)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseFloat(s string) *float64 {
	s = text(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseAmount handles "$1,234,567" and "1,234"
func parseAmount(s string) *int64 {
	s = text(s)
	if s == "" {
		return nil
	}
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseRuntime handles "142 min"
func parseRuntime(s string) *int {
	fields := strings.Fields(text(s))
	if len(fields) == 0 {
		return nil
	}
	return parseInt(fields[0])
}

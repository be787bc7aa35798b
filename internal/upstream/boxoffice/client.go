// Package boxoffice scrapes financial figures from The Numbers movie pages
package boxoffice

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/stacklok/reelsync/internal/httpclient"
	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/upstream"
)

const (
	// DefaultBaseURL is The Numbers site root
	DefaultBaseURL = "https://www.the-numbers.com"
	// DefaultRequestsPerSecond keeps the scraper polite
	DefaultRequestsPerSecond = 1
	// DefaultMaxConcurrent bounds in-flight page loads
	DefaultMaxConcurrent = 2
)

var (
	nonSlug    = regexp.MustCompile(`[^\w\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
	amount     = regexp.MustCompile(`\$?\s*([\d,]+)`)
)

// Query identifies a movie by title and optional release year
type Query struct {
	TMDBID int64
	Title  string
	// Year is ignored when zero
	Year int
}

func (q Query) String() string {
	if q.Year > 0 {
		return fmt.Sprintf("%s (%d)", q.Title, q.Year)
	}
	return q.Title
}

// FetchOption configures Client.FetchMany
type FetchOption = upstream.FetchOption[Query, *movie.BoxOffice]

// BatchResult is the outcome of Client.FetchMany
type BatchResult = upstream.BatchResult[Query, *movie.BoxOffice]

// Client scrapes box-office pages through a shared rate limiter
type Client struct {
	baseURL       string
	maxConcurrent int
	caller        *upstream.Caller
}

// New creates a box-office scraper. No credential is needed.
func New(opts ...upstream.ClientOption) (*Client, error) {
	cfg := upstream.NewClientConfig(upstream.ClientConfig{
		BaseURL:           DefaultBaseURL,
		RequestsPerSecond: DefaultRequestsPerSecond,
		MaxConcurrent:     DefaultMaxConcurrent,
		HTTPOptions:       []httpclient.Option{httpclient.WithAccept(httpclient.AcceptHTML)},
	}, opts...)

	caller, err := cfg.NewCaller(movie.SourceBoxOffice)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		maxConcurrent: cfg.MaxConcurrent,
		caller:        caller,
	}, nil
}

// Lookup tries the candidate pages for q in order and returns the first one
// carrying financial data. A page that is missing or has no figures moves on
// to the next candidate; when none match the result is NotFound.
func (c *Client) Lookup(ctx context.Context, q Query) (*movie.BoxOffice, error) {
	key := q.String()
	slug := Slugify(q.Title)
	if slug == "" {
		return nil, upstream.NotFound(movie.SourceBoxOffice, key, "title has no usable characters")
	}

	for _, pageURL := range c.candidates(slug, q.Year) {
		body, err := c.caller.Get(ctx, key, pageURL)
		if err != nil {
			if upstream.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		bo, err := parsePage(body)
		if err != nil {
			return nil, upstream.NewError(upstream.KindTransient, movie.SourceBoxOffice, key, err)
		}
		if bo == nil {
			slog.DebugContext(ctx, "Page has no financial data", "url", pageURL, "query", key)
			continue
		}
		bo.TMDBID = q.TMDBID
		bo.SourceURL = pageURL
		return bo, nil
	}
	return nil, upstream.NotFound(movie.SourceBoxOffice, key, "no page with financial data")
}

// MaxConcurrent returns the configured bound on in-flight requests
func (c *Client) MaxConcurrent() int {
	return c.maxConcurrent
}

// FetchMany looks up every query with the scraper's concurrency
func (c *Client) FetchMany(ctx context.Context, queries []Query, opts ...FetchOption) *BatchResult {
	opts = append([]FetchOption{
		upstream.WithConcurrency[Query, *movie.BoxOffice](c.maxConcurrent),
		upstream.WithLabel[Query, *movie.BoxOffice]("box office"),
	}, opts...)
	return upstream.FetchMany(ctx, queries, c.Lookup, opts...)
}

func (c *Client) candidates(slug string, year int) []string {
	var urls []string
	if year > 0 {
		urls = append(urls, fmt.Sprintf("%s/movie/%s-(%d)", c.baseURL, slug, year))
	}
	return append(urls, fmt.Sprintf("%s/movie/%s", c.baseURL, slug))
}

// Slugify turns a title into the path segment The Numbers uses: accents are
// stripped, punctuation is dropped and whitespace becomes hyphens.
func Slugify(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	ascii, _, err := transform.String(t, title)
	if err != nil {
		ascii = title
	}
	ascii = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, ascii)
	ascii = nonSlug.ReplaceAllString(ascii, "")
	return whitespace.ReplaceAllString(strings.TrimSpace(ascii), "-")
}

// parsePage returns nil when the page has no recognizable figures
func parsePage(body []byte) (*movie.BoxOffice, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	bo := &movie.BoxOffice{}
	found := false
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		text := strings.Join(strings.Fields(table.Text()), " ")
		if !strings.Contains(text, "Production Budget") && !strings.Contains(text, "Domestic Box Office") {
			return
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() != 2 {
				return
			}
			label := strings.TrimSuffix(strings.Join(strings.Fields(cells.Eq(0).Text()), " "), ":")
			if field := fieldFor(bo, label); field != nil && *field == nil {
				if v := parseAmount(cells.Eq(1).Text()); v != nil {
					*field = v
					found = true
				}
			}
		})
	})

	if !found {
		return nil, nil
	}
	return bo, nil
}

func fieldFor(bo *movie.BoxOffice, label string) **int64 {
	switch {
	case strings.HasPrefix(label, "Production Budget"):
		return &bo.ProductionBudget
	case strings.HasPrefix(label, "Domestic Box Office"):
		return &bo.DomesticGross
	case strings.HasPrefix(label, "International Box Office"):
		return &bo.InternationalGross
	case strings.HasPrefix(label, "Worldwide Box Office"):
		return &bo.WorldwideGross
	case strings.HasPrefix(label, "Opening Weekend") && !strings.Contains(label, "Theaters"):
		return &bo.OpeningWeekend
	default:
		return nil
	}
}

// parseAmount reads the first dollar figure in s
func parseAmount(s string) *int64 {
	m := amount.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

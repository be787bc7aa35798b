package movie

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestParseSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Source
		wantErr bool
	}{
		{input: "tmdb", want: SourceTMDB},
		{input: "omdb", want: SourceOMDB},
		{input: "box_office", want: SourceBoxOffice},
		{input: "imdb", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSource(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMovie_LastUpdate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &Movie{TMDBID: 1}

	for _, src := range AllSources {
		assert.Nil(t, m.LastUpdate(src))
	}

	m.SetLastUpdate(SourceOMDB, now)
	require.NotNil(t, m.LastOMDBUpdate)
	assert.Equal(t, now, *m.LastUpdate(SourceOMDB))
	assert.Nil(t, m.LastUpdate(SourceTMDB))
	assert.Nil(t, m.LastUpdate(Source("other")))
}

func TestMovie_ReleaseYear(t *testing.T) {
	t.Parallel()

	release := time.Date(1999, 10, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1999, (&Movie{ReleaseDate: &release}).ReleaseYear())
	assert.Equal(t, 0, (&Movie{}).ReleaseYear())
}

func TestTMDBDetails_ContentHash(t *testing.T) {
	t.Parallel()

	base := TMDBDetails{
		TMDBID: 550, IMDbID: "tt0137523", Title: "Fight Club", Budget: 63000000,
		VoteCount: 30211, VoteAverage: 8.4, Popularity: 61.4,
	}
	h1, err := base.ContentHash()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*TMDBDetails)
		changed bool
	}{
		{name: "popularity", mutate: func(d *TMDBDetails) { d.Popularity = 12.9 }},
		{name: "vote count", mutate: func(d *TMDBDetails) { d.VoteCount = 30298 }},
		{name: "vote average", mutate: func(d *TMDBDetails) { d.VoteAverage = 8.5 }},
		{name: "revenue", mutate: func(d *TMDBDetails) { d.Revenue = 100853753 }, changed: true},
		{name: "title", mutate: func(d *TMDBDetails) { d.Title = "Fight Club (1999)" }, changed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			other := base
			tt.mutate(&other)
			h2, err := other.ContentHash()
			require.NoError(t, err)
			if tt.changed {
				assert.NotEqual(t, h1, h2)
			} else {
				assert.Equal(t, h1, h2)
			}
		})
	}

	assert.Equal(t, 61.4, base.Popularity, "hashing must not mutate the record")
	assert.Equal(t, 30211, base.VoteCount, "hashing must not mutate the record")
}

func TestOMDBDetails_ContentHash_IgnoresAudienceCounters(t *testing.T) {
	t.Parallel()

	a := OMDBDetails{IMDbID: "tt0137523", Title: "Fight Club", IMDbRating: ptr.To(8.8), IMDbVotes: ptr.To[int64](2400000)}
	b := a
	b.IMDbRating = ptr.To(8.7)
	b.IMDbVotes = ptr.To[int64](2412345)

	ha, err := a.ContentHash()
	require.NoError(t, err)
	hb, err := b.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.InDelta(t, 8.8, *a.IMDbRating, 0.001, "hashing must not mutate the record")

	b.Awards = "Nominated for 1 Oscar."
	hc, err := b.ContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestOMDBDetails_ContentHash_IgnoresTMDBID(t *testing.T) {
	t.Parallel()

	a := OMDBDetails{TMDBID: 1, IMDbID: "tt0137523", Title: "Fight Club"}
	b := OMDBDetails{TMDBID: 2, IMDbID: "tt0137523", Title: "Fight Club"}

	ha, err := a.ContentHash()
	require.NoError(t, err)
	hb, err := b.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

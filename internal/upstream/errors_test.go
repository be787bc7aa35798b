package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/reelsync/internal/httpclient"
	"github.com/stacklok/reelsync/internal/movie"
)

func httpErr(code int, retryAfter time.Duration) error {
	e := httpclient.NewHTTPError(code, "http://upstream.test", http.StatusText(code))
	e.RetryAfter = retryAfter
	return fmt.Errorf("wrapped: %w", e)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		wantKind       Kind
		wantKeyScoped  bool
		wantRetryable  bool
		wantRetryAfter time.Duration
	}{
		{name: "network error", err: errors.New("connection reset by peer"), wantKind: KindTransient, wantRetryable: true},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: KindTransient, wantRetryable: true},
		{name: "500", err: httpErr(500, 0), wantKind: KindTransient, wantRetryable: true},
		{name: "503 with retry-after", err: httpErr(503, 2*time.Second), wantKind: KindTransient, wantRetryable: true, wantRetryAfter: 2 * time.Second},
		{name: "408", err: httpErr(408, 0), wantKind: KindTransient, wantRetryable: true},
		{name: "429 with retry-after", err: httpErr(429, 30*time.Second), wantKind: KindTransient, wantRetryable: true, wantRetryAfter: 30 * time.Second},
		{name: "404", err: httpErr(404, 0), wantKind: KindNotFound},
		{name: "410", err: httpErr(410, 0), wantKind: KindNotFound},
		{name: "401", err: httpErr(401, 0), wantKind: KindFatal},
		{name: "403", err: httpErr(403, 0), wantKind: KindFatal},
		{name: "400", err: httpErr(400, 0), wantKind: KindFatal, wantKeyScoped: true},
		{name: "422", err: httpErr(422, 0), wantKind: KindFatal, wantKeyScoped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(movie.SourceTMDB, "550", tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantKeyScoped, got.KeyScoped)
			assert.Equal(t, tt.wantRetryable, IsRetryable(got))
			assert.Equal(t, tt.wantRetryAfter, got.RetryAfter())
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, movie.SourceTMDB, got.Source)
		})
	}
}

func TestClassify_NilAndAlreadyClassified(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Classify(movie.SourceOMDB, "tt1", nil))

	nf := NotFound(movie.SourceOMDB, "tt1", "Movie not found!")
	wrapped := fmt.Errorf("decode: %w", nf)
	assert.Same(t, nf, Classify(movie.SourceTMDB, "other", wrapped))
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	fatal := NewError(KindFatal, movie.SourceOMDB, "tt1", errors.New("Invalid API key!"))
	keyFatal := &Error{Kind: KindFatal, Source: movie.SourceOMDB, Key: "tt2", KeyScoped: true, Err: errors.New("bad request")}
	notFound := NotFound(movie.SourceOMDB, "tt3", "Movie not found!")
	cfg := ConfigurationError(movie.SourceTMDB, "api key is required")
	aborted := fmt.Errorf("%w: %w", ErrAborted, fatal)

	assert.True(t, IsFatal(fatal))
	assert.True(t, IsFatal(keyFatal))
	assert.False(t, IsFatal(notFound))
	assert.True(t, IsSourceFatal(fatal))
	assert.False(t, IsSourceFatal(keyFatal))
	assert.False(t, IsSourceFatal(notFound))
	assert.False(t, IsSourceFatal(errors.New("plain")))

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(fatal))

	assert.True(t, IsConfiguration(cfg))
	assert.Contains(t, cfg.Error(), "api key is required")

	assert.False(t, IsRetryable(fatal))
	assert.False(t, IsRetryable(notFound))
	assert.False(t, IsRetryable(aborted))
	assert.True(t, IsRetryable(errors.New("unclassified")))

	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "not_found", Outcome(notFound))
	assert.Equal(t, "fatal", Outcome(fatal))
	assert.Equal(t, "aborted", Outcome(aborted))
	assert.Equal(t, "failed", Outcome(keyFatal))
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	e := NewError(KindTransient, movie.SourceTMDB, "550", errors.New("timeout"))
	assert.Equal(t, "tmdb: transient error for 550: timeout", e.Error())

	e = NewError(KindConfiguration, movie.SourceOMDB, "", errors.New("missing key"))
	assert.Equal(t, "omdb: configuration error: missing key", e.Error())

	assert.Equal(t, "kind(9)", Kind(9).String())
}

package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/reelsync/internal/httpclient"
	"github.com/stacklok/reelsync/internal/movie"
)

// Kind is the closed set of upstream failure classes
type Kind int

const (
	// KindTransient covers timeouts, network errors, 5xx and rate limiting.
	// Retried, then reported per key.
	KindTransient Kind = iota

	// KindNotFound is a definitive "no such entity". Not retried, not fatal.
	KindNotFound

	// KindFatal is an unrecoverable failure. Unless KeyScoped, it ends all
	// remaining work for the source in this run.
	KindFatal

	// KindConfiguration is raised at construction, before any network activity
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	case KindConfiguration:
		return "configuration"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrAborted marks keys that were never fetched because their source hit a
// fatal error earlier in the batch
var ErrAborted = errors.New("aborted after fatal upstream error")

// Error is a classified upstream failure
type Error struct {
	Kind   Kind
	Source movie.Source
	Key    string

	// StatusCode is the HTTP status when the failure came from a response
	StatusCode int

	// KeyScoped limits a fatal error to the key that produced it
	KeyScoped bool

	Err error

	retryAfter time.Duration
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s error: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error for %s: %v", e.Source, e.Kind, e.Key, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// RetryAfter returns the upstream-suggested delay, zero if none was given
func (e *Error) RetryAfter() time.Duration {
	return e.retryAfter
}

// NewError builds a classified error
func NewError(kind Kind, source movie.Source, key string, err error) *Error {
	return &Error{Kind: kind, Source: source, Key: key, Err: err}
}

// NotFound builds a NotFound error
func NotFound(source movie.Source, key string, reason string) *Error {
	return NewError(KindNotFound, source, key, errors.New(reason))
}

// ConfigurationError builds a Configuration error for a source
func ConfigurationError(source movie.Source, format string, args ...any) *Error {
	return NewError(KindConfiguration, source, "", fmt.Errorf(format, args...))
}

// Classify maps a transport error to the taxonomy. Errors that are already
// classified are returned as-is.
func Classify(source movie.Source, key string, err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		// timeouts, refused connections, resets, cancelled attempts
		return NewError(KindTransient, source, key, err)
	}

	e := NewError(KindTransient, source, key, err)
	e.StatusCode = httpErr.StatusCode

	switch code := httpErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		e.retryAfter = httpErr.RetryAfter
	case code == http.StatusRequestTimeout, code >= 500:
		e.retryAfter = httpErr.RetryAfter
	case code == http.StatusNotFound, code == http.StatusGone:
		e.Kind = KindNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		e.Kind = KindFatal
	default:
		e.Kind = KindFatal
		e.KeyScoped = true
	}
	return e
}

// KindOf returns the kind of a classified error
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err should be retried
func IsRetryable(err error) bool {
	if errors.Is(err, ErrAborted) {
		return false
	}
	kind, ok := KindOf(err)
	if !ok {
		return true
	}
	return kind == KindTransient
}

// IsNotFound reports whether err is a definitive not-found
func IsNotFound(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNotFound
}

// IsFatal reports whether err is terminal, for its key or its whole source
func IsFatal(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindFatal
}

// IsSourceFatal reports whether err must stop all further calls to its source
func IsSourceFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindFatal && !e.KeyScoped
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindConfiguration
}

// Outcome is a low-cardinality label for metrics and logs
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case IsNotFound(err):
		return "not_found"
	case IsSourceFatal(err):
		return "fatal"
	default:
		return "failed"
	}
}

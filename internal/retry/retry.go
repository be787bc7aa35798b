// Package retry wraps single upstream calls in exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultRetryCount is the number of retries after the first attempt
	DefaultRetryCount = 3

	// DefaultBaseDelay is the wait before the first retry
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay caps every computed wait
	DefaultMaxDelay = 30 * time.Second

	// DefaultMaxRetryAfter caps an upstream-suggested wait
	DefaultMaxRetryAfter = 2 * time.Minute
)

// Policy describes how a failing call is retried. The wait before attempt n
// (n >= 2) is min(BaseDelay * 2^(n-2), MaxDelay). A Retry-After hint may
// widen a wait up to MaxRetryAfter; zero uses DefaultMaxRetryAfter.
type Policy struct {
	RetryCount    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxRetryAfter time.Duration
}

// DefaultPolicy returns the policy used when none is configured
func DefaultPolicy() Policy {
	return Policy{
		RetryCount:    DefaultRetryCount,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		MaxRetryAfter: DefaultMaxRetryAfter,
	}
}

// Validate checks the policy is usable
func (p Policy) Validate() error {
	if p.RetryCount < 0 {
		return fmt.Errorf("retry count must be >= 0, got %d", p.RetryCount)
	}
	if p.RetryCount > 0 && p.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be > 0 when retries are enabled, got %s", p.BaseDelay)
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %s is lower than base delay %s", p.MaxDelay, p.BaseDelay)
	}
	if p.MaxRetryAfter < 0 {
		return fmt.Errorf("max retry-after must be >= 0, got %s", p.MaxRetryAfter)
	}
	return nil
}

// Attempts returns the total number of attempts the policy allows
func (p Policy) Attempts() int {
	return p.RetryCount + 1
}

// RetryAfterHinter is implemented by errors that carry an upstream-suggested
// delay, such as an HTTP 429 with a Retry-After header.
type RetryAfterHinter interface {
	RetryAfter() time.Duration
}

// NotifyFunc is called before each wait with the failed attempt number
type NotifyFunc func(err error, attempt int, wait time.Duration)

// Option configures a single Do call
type Option func(*options)

type options struct {
	notify NotifyFunc
}

// WithNotify sets the callback invoked before every retry wait
func WithNotify(fn NotifyFunc) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// Do runs op until it succeeds, returns an error rejected by retryable, or the
// policy's attempts are exhausted, in which case the last error is returned.
// op is responsible for acquiring and releasing any rate limiter permit itself,
// so no permit is held while Do waits.
func Do[T any](
	ctx context.Context,
	policy Policy,
	retryable func(error) bool,
	op func(context.Context) (T, error),
	opts ...Option,
) (T, error) {
	o := &options{notify: logRetry}
	for _, opt := range opts {
		opt(o)
	}

	if policy.RetryCount <= 0 {
		return op(ctx)
	}

	b := newHintedBackOff(policy)
	attempt := 0

	operation := func() (T, error) {
		attempt++
		b.hint = 0
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if retryable != nil && !retryable(err) {
			return res, backoff.Permanent(err)
		}
		var hinter RetryAfterHinter
		if errors.As(err, &hinter) {
			b.hint = hinter.RetryAfter()
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(policy.Attempts())), // #nosec G115 -- RetryCount validated non-negative
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			o.notify(err, attempt, wait)
		}),
	)
	if err != nil {
		// the attempt limit is checked before the permanent marker is unwrapped
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return res, err
	}
	return res, nil
}

func logRetry(err error, attempt int, wait time.Duration) {
	slog.Debug("Retrying upstream call",
		"attempt", attempt,
		"wait", wait,
		"error", err,
	)
}

// hintedBackOff is an exponential backoff whose next interval is widened to an
// upstream-suggested delay when one was reported by the last attempt. The
// hint is clamped to maxHint.
type hintedBackOff struct {
	exp     *backoff.ExponentialBackOff
	hint    time.Duration
	maxHint time.Duration
}

func newHintedBackOff(p Policy) *hintedBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = DefaultMaxDelay
	}
	maxHint := p.MaxRetryAfter
	if maxHint <= 0 {
		maxHint = DefaultMaxRetryAfter
	}
	return &hintedBackOff{exp: exp, maxHint: maxHint}
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.exp.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	hint := h.hint
	if hint > h.maxHint {
		slog.Warn("Clamping upstream Retry-After", "suggested", hint, "max", h.maxHint)
		hint = h.maxHint
	}
	return max(hint, next)
}

func (h *hintedBackOff) Reset() {
	h.hint = 0
	h.exp.Reset()
}

// Package upstream holds the pieces shared by every upstream client: the error
// taxonomy, a rate-limited and retried HTTP caller, and the concurrent batch
// fetcher.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/reelsync/internal/httpclient"
	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/ratelimit"
	"github.com/stacklok/reelsync/internal/retry"
	"github.com/stacklok/reelsync/internal/telemetry"
)

// Caller issues GET requests against one upstream. Every attempt holds a
// limiter permit only while the request is in flight.
type Caller struct {
	source  movie.Source
	client  httpclient.Client
	limiter *ratelimit.Limiter
	policy  retry.Policy
	metrics *telemetry.UpstreamMetrics
	clock   clock.PassiveClock
}

// CallerOption configures a Caller
type CallerOption func(*Caller)

// WithHTTPClient overrides the HTTP transport
func WithHTTPClient(client httpclient.Client) CallerOption {
	return func(c *Caller) {
		c.client = client
	}
}

// WithRetryPolicy overrides the retry policy
func WithRetryPolicy(p retry.Policy) CallerOption {
	return func(c *Caller) {
		c.policy = p
	}
}

// WithMetrics records per-attempt request metrics
func WithMetrics(m *telemetry.UpstreamMetrics) CallerOption {
	return func(c *Caller) {
		c.metrics = m
	}
}

// WithCallerClock overrides the clock used to time attempts
func WithCallerClock(clk clock.PassiveClock) CallerOption {
	return func(c *Caller) {
		c.clock = clk
	}
}

// NewCaller creates a caller for source using limiter for every attempt
func NewCaller(source movie.Source, limiter *ratelimit.Limiter, opts ...CallerOption) (*Caller, error) {
	if limiter == nil {
		return nil, ConfigurationError(source, "rate limiter is required")
	}

	c := &Caller{
		source:  source,
		client:  httpclient.NewDefaultClient(httpclient.DefaultTimeout),
		limiter: limiter,
		policy:  retry.DefaultPolicy(),
		clock:   clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.policy.Validate(); err != nil {
		return nil, ConfigurationError(source, "invalid retry policy: %v", err)
	}
	return c, nil
}

// Source returns the upstream this caller talks to
func (c *Caller) Source() movie.Source {
	return c.source
}

// Get fetches url on behalf of key. Errors are always *Error.
func (c *Caller) Get(ctx context.Context, key, url string) ([]byte, error) {
	body, err := retry.Do(ctx, c.policy, IsRetryable, func(ctx context.Context) ([]byte, error) {
		return c.attempt(ctx, key, url)
	}, retry.WithNotify(func(err error, attempt int, wait time.Duration) {
		slog.DebugContext(ctx, "Retrying upstream request",
			"source", c.source,
			"key", key,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}))
	if err != nil {
		return nil, Classify(c.source, key, err)
	}
	return body, nil
}

func (c *Caller) attempt(ctx context.Context, key, url string) ([]byte, error) {
	permit, err := c.limiter.Acquire(ctx)
	if err != nil {
		return nil, NewError(KindTransient, c.source, key, fmt.Errorf("failed to acquire rate limiter: %w", err))
	}
	defer permit.Release()

	start := c.clock.Now()
	body, err := c.client.Get(ctx, url)
	classified := Classify(c.source, key, err)
	if classified != nil {
		c.metrics.RecordRequest(ctx, string(c.source), classified.Kind.String(), c.clock.Since(start))
		return nil, classified
	}
	c.metrics.RecordRequest(ctx, string(c.source), "success", c.clock.Since(start))
	return body, nil
}

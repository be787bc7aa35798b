package upstream

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/reelsync/internal/httpclient"
	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/ratelimit"
	"github.com/stacklok/reelsync/internal/retry"
	"github.com/stacklok/reelsync/internal/telemetry"
)

// ClientConfig is the construction-time configuration shared by all upstream clients
type ClientConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	MaxConcurrent     int
	Timeout           time.Duration
	Retry             retry.Policy
	Metrics           *telemetry.UpstreamMetrics
	Clock             clock.Clock
	HTTPOptions       []httpclient.Option

	// HTTPClient replaces the transport built from Timeout and HTTPOptions
	HTTPClient httpclient.Client
}

// ClientOption configures a ClientConfig
type ClientOption func(*ClientConfig)

// WithBaseURL overrides the upstream base URL
func WithBaseURL(u string) ClientOption {
	return func(c *ClientConfig) {
		c.BaseURL = u
	}
}

// WithRateLimit sets the requests-per-second ceiling and concurrency cap
func WithRateLimit(requestsPerSecond float64, maxConcurrent int) ClientOption {
	return func(c *ClientConfig) {
		c.RequestsPerSecond = requestsPerSecond
		c.MaxConcurrent = maxConcurrent
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = d
	}
}

// WithRetry sets the retry policy
func WithRetry(p retry.Policy) ClientOption {
	return func(c *ClientConfig) {
		c.Retry = p
	}
}

// WithUpstreamMetrics records request metrics
func WithUpstreamMetrics(m *telemetry.UpstreamMetrics) ClientOption {
	return func(c *ClientConfig) {
		c.Metrics = m
	}
}

// WithClock overrides the clock used by the rate limiter
func WithClock(clk clock.Clock) ClientOption {
	return func(c *ClientConfig) {
		c.Clock = clk
	}
}

// WithHTTPOptions passes options to the HTTP transport
func WithHTTPOptions(opts ...httpclient.Option) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPOptions = append(c.HTTPOptions, opts...)
	}
}

// WithTransportClient replaces the HTTP transport entirely
func WithTransportClient(client httpclient.Client) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// NewClientConfig applies opts over the given defaults
func NewClientConfig(defaults ClientConfig, opts ...ClientOption) *ClientConfig {
	cfg := defaults
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = httpclient.DefaultTimeout
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// NewCaller builds the rate limiter, transport and caller for source
func (c *ClientConfig) NewCaller(source movie.Source) (*Caller, error) {
	if c.BaseURL == "" {
		return nil, ConfigurationError(source, "base URL is required")
	}

	var limiterOpts []ratelimit.Option
	if c.Clock != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithClock(c.Clock))
	}
	limiter, err := ratelimit.New(c.RequestsPerSecond, c.MaxConcurrent, limiterOpts...)
	if err != nil {
		return nil, ConfigurationError(source, "%v", err)
	}

	client := c.HTTPClient
	if client == nil {
		client = httpclient.NewDefaultClient(c.Timeout, c.HTTPOptions...)
	}

	callerOpts := []CallerOption{
		WithHTTPClient(client),
		WithRetryPolicy(c.Retry),
		WithMetrics(c.Metrics),
	}
	if c.Clock != nil {
		callerOpts = append(callerOpts, WithCallerClock(c.Clock))
	}
	return NewCaller(source, limiter, callerOpts...)
}

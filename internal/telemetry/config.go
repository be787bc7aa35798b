// Package telemetry exports collector traces and run metrics over OTLP/HTTP.
// A nil or disabled Config installs no-op providers, so instrumented code
// never checks whether telemetry is on.
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	// DefaultServiceName is reported as service.name when none is configured
	DefaultServiceName = "reelsync"

	// DefaultEndpoint is a collector agent on the same host
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling keeps one in twenty runs. A run emits one span per
	// source batch, so this is plenty for a nightly job.
	DefaultSampling = 0.05
)

// Config is the telemetry block of the collector config file
type Config struct {
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP/HTTP collector as host:port. The exporters add the
	// /v1/traces and /v1/metrics paths.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends plain HTTP; for a local agent only
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export for collection runs
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the fraction of runs traced, in (0, 1]. Unset means
	// DefaultSampling.
	Sampling *float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls export of upstream request and run counters
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GetServiceName returns the configured service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured version, or "unknown"
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns the configured endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) GetInsecure() bool {
	return c.Insecure
}

// GetSampling assumes Validate has passed
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == nil {
		return DefaultSampling
	}
	return *c.Sampling
}

// Validate checks an enabled config. Every problem found is reported, each
// prefixed with the key it belongs to.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Endpoint != "" {
		if err := validateEndpoint(c.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("endpoint: %w", err))
		}
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// validateEndpoint rejects URLs; the OTLP/HTTP exporters want a bare host:port
func validateEndpoint(endpoint string) error {
	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("%q must be host:port without a scheme, use insecure for plain HTTP", endpoint)
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return fmt.Errorf("%q is not host:port: %w", endpoint, err)
	}
	if host == "" || port == "" {
		return fmt.Errorf("%q needs both a host and a port", endpoint)
	}
	return nil
}

func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled || c.Sampling == nil {
		return nil
	}
	if s := *c.Sampling; s <= 0 || s > 1 {
		return fmt.Errorf("sampling %g is outside (0, 1]", s)
	}
	return nil
}

// Validate exists so every section validates the same way; metrics have no
// settings to check yet.
func (c *MetricsConfig) Validate() error {
	return nil
}

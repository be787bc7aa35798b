// Package config provides configuration loading and management for the collector.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/reelsync/internal/retry"
	"github.com/stacklok/reelsync/internal/telemetry"
)

const (
	// StorageTypeDatabase persists movies in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeMemory keeps movies in process memory, for dry runs
	StorageTypeMemory = "memory"
)

const (
	// EnvPrefix namespaces the environment variables read through viper
	EnvPrefix = "REELSYNC"

	// DatabasePasswordEnv is read when no password file is configured
	DatabasePasswordEnv = "REELSYNC_DATABASE_PASSWORD"

	// TMDBAPIKeyEnv is read when no TMDB key is configured
	TMDBAPIKeyEnv = "TMDB_API_KEY"

	// OMDBAPIKeyEnv is read when no OMDB key is configured
	OMDBAPIKeyEnv = "OMDB_API_KEY"
)

const (
	defaultBatchSize    = 100
	defaultRefreshLimit = 1000
	defaultMinVoteCount = 200
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Storage    StorageConfig     `yaml:"storage"`
	Database   *DatabaseConfig   `yaml:"database,omitempty"`
	Sources    SourcesConfig     `yaml:"sources"`
	Collection CollectionConfig  `yaml:"collection"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	// Type is either "database" or "memory". Defaults to "database".
	Type string `yaml:"type,omitempty"`
}

// GetType returns the storage type, using "database" if not specified
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeDatabase
	}
	return s.Type
}

// SourcesConfig holds the per-upstream settings
type SourcesConfig struct {
	TMDB      *SourceConfig `yaml:"tmdb,omitempty"`
	OMDB      *SourceConfig `yaml:"omdb,omitempty"`
	BoxOffice *SourceConfig `yaml:"boxOffice,omitempty"`
}

// SourceConfig configures one upstream client. Zero values fall back to the
// client's own defaults.
type SourceConfig struct {
	// Enabled toggles the source. TMDB and OMDB default to enabled, the
	// box-office scraper to disabled.
	Enabled *bool `yaml:"enabled,omitempty"`

	// APIKey is the inline credential. Prefer APIKeyFile or the environment.
	APIKey string `yaml:"apiKey,omitempty"`

	// APIKeyFile is the path to a file containing the credential
	APIKeyFile string `yaml:"apiKeyFile,omitempty"`

	BaseURL           string  `yaml:"baseURL,omitempty"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	MaxConcurrent     int     `yaml:"maxConcurrent,omitempty"`

	// Timeout is the per-request timeout (e.g., "10s")
	Timeout string `yaml:"timeout,omitempty"`

	Retry *RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig defines the retry policy of one upstream
type RetryConfig struct {
	// Count is the number of retries after the first attempt
	Count *int `yaml:"count,omitempty"`

	// BaseDelay is the first backoff wait (e.g., "1s")
	BaseDelay string `yaml:"baseDelay,omitempty"`

	// MaxDelay caps the backoff wait (e.g., "30s")
	MaxDelay string `yaml:"maxDelay,omitempty"`

	// MaxRetryAfter caps a Retry-After wait suggested by the upstream (e.g., "2m")
	MaxRetryAfter string `yaml:"maxRetryAfter,omitempty"`
}

// IsEnabled reports whether the source is enabled, using def when unset.
// A nil SourceConfig uses def as well.
func (s *SourceConfig) IsEnabled(def bool) bool {
	if s == nil || s.Enabled == nil {
		return def
	}
	return *s.Enabled
}

// GetAPIKey returns the credential using the following priority:
// 1. Read from APIKeyFile if specified
// 2. Read from the envVar environment variable
// 3. The inline APIKey
func (s *SourceConfig) GetAPIKey(envVar string) (string, error) {
	if s != nil && s.APIKeyFile != "" {
		data, err := os.ReadFile(filepath.Clean(s.APIKeyFile))
		if err != nil {
			return "", fmt.Errorf("failed to read api key from file %s: %w", s.APIKeyFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envKey := os.Getenv(envVar); envKey != "" {
		return envKey, nil
	}

	if s != nil && s.APIKey != "" {
		return s.APIKey, nil
	}

	return "", fmt.Errorf("no api key configured: set apiKey, apiKeyFile or %s environment variable", envVar)
}

// GetTimeout returns the request timeout, or zero when unset
func (s *SourceConfig) GetTimeout() (time.Duration, error) {
	if s == nil || s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	return d, nil
}

// GetRetryPolicy returns the retry policy, filling unset fields from the default
func (s *SourceConfig) GetRetryPolicy() (retry.Policy, error) {
	policy := retry.DefaultPolicy()
	if s == nil || s.Retry == nil {
		return policy, nil
	}

	if s.Retry.Count != nil {
		policy.RetryCount = *s.Retry.Count
	}
	if s.Retry.BaseDelay != "" {
		d, err := time.ParseDuration(s.Retry.BaseDelay)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("invalid retry.baseDelay: %w", err)
		}
		policy.BaseDelay = d
	}
	if s.Retry.MaxDelay != "" {
		d, err := time.ParseDuration(s.Retry.MaxDelay)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("invalid retry.maxDelay: %w", err)
		}
		policy.MaxDelay = d
	}
	if s.Retry.MaxRetryAfter != "" {
		d, err := time.ParseDuration(s.Retry.MaxRetryAfter)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("invalid retry.maxRetryAfter: %w", err)
		}
		policy.MaxRetryAfter = d
	}

	if err := policy.Validate(); err != nil {
		return retry.Policy{}, err
	}
	return policy, nil
}

// CollectionConfig tunes one collection run
type CollectionConfig struct {
	// BatchSize is the number of records per storage write. Defaults to 100.
	BatchSize int `yaml:"batchSize,omitempty"`

	// RefreshLimit bounds the number of refresh candidates. Defaults to 1000.
	RefreshLimit int `yaml:"refreshLimit,omitempty"`

	// FreezeSweep also evaluates every non-frozen movie old enough to freeze
	FreezeSweep bool `yaml:"freezeSweep,omitempty"`

	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DiscoveryConfig selects the movies discovered on TMDB
type DiscoveryConfig struct {
	// Enabled toggles the discovery phase. Defaults to enabled.
	Enabled *bool `yaml:"enabled,omitempty"`

	// StartYear is the oldest release year. Defaults to EndYear.
	StartYear int `yaml:"startYear,omitempty"`

	// EndYear is the newest release year. Defaults to the current year.
	EndYear int `yaml:"endYear,omitempty"`

	// MaxPages caps pagination per year; zero means no cap
	MaxPages int `yaml:"maxPages,omitempty"`

	// MinVoteCount filters out movies with few votes. Defaults to 200.
	MinVoteCount int `yaml:"minVoteCount,omitempty"`
}

// GetBatchSize returns the batch size, using the default if not specified
func (c *CollectionConfig) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.BatchSize
}

// GetRefreshLimit returns the candidate limit, using the default if not specified
func (c *CollectionConfig) GetRefreshLimit() int {
	if c.RefreshLimit <= 0 {
		return defaultRefreshLimit
	}
	return c.RefreshLimit
}

// IsEnabled reports whether discovery runs
func (d *DiscoveryConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// GetYears returns the discovery year range relative to now
func (d *DiscoveryConfig) GetYears(now time.Time) (start, end int) {
	end = d.EndYear
	if end == 0 {
		end = now.Year()
	}
	start = d.StartYear
	if start == 0 {
		start = end
	}
	return start, end
}

// GetMinVoteCount returns the vote filter, using the default if not specified
func (d *DiscoveryConfig) GetMinVoteCount() int {
	if d.MinVoteCount <= 0 {
		return defaultMinVoteCount
	}
	return d.MinVoteCount
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxConns is the maximum size of the connection pool
	MaxConns int32 `yaml:"maxConns,omitempty"`

	// MinConns is the number of connections kept open when idle
	MinConns int32 `yaml:"minConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from REELSYNC_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", DatabasePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch c.Storage.GetType() {
	case StorageTypeDatabase:
		if err := c.Database.validate(); err != nil {
			return err
		}
	case StorageTypeMemory:
	default:
		return fmt.Errorf("storage.type must be %s or %s, got %s",
			StorageTypeDatabase, StorageTypeMemory, c.Storage.Type)
	}

	sources := []struct {
		name string
		cfg  *SourceConfig
	}{
		{"tmdb", c.Sources.TMDB},
		{"omdb", c.Sources.OMDB},
		{"boxOffice", c.Sources.BoxOffice},
	}
	for _, s := range sources {
		if err := s.cfg.validate(); err != nil {
			return fmt.Errorf("sources.%s: %w", s.name, err)
		}
	}

	if err := c.Collection.validate(); err != nil {
		return fmt.Errorf("collection: %w", err)
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	if d == nil {
		return fmt.Errorf("database configuration is required when storage.type is %s", StorageTypeDatabase)
	}
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port <= 0 {
		return fmt.Errorf("database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err)
		}
	}
	return nil
}

func (s *SourceConfig) validate() error {
	if s == nil {
		return nil
	}
	if s.RequestsPerSecond < 0 {
		return fmt.Errorf("requestsPerSecond must be positive, got %v", s.RequestsPerSecond)
	}
	if s.MaxConcurrent < 0 {
		return fmt.Errorf("maxConcurrent must be positive, got %d", s.MaxConcurrent)
	}
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("baseURL must be an absolute URL, got %q", s.BaseURL)
		}
	}
	if _, err := s.GetTimeout(); err != nil {
		return err
	}
	if _, err := s.GetRetryPolicy(); err != nil {
		return err
	}
	return nil
}

func (c *CollectionConfig) validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("batchSize must not be negative")
	}
	if c.RefreshLimit < 0 {
		return fmt.Errorf("refreshLimit must not be negative")
	}
	d := c.Discovery
	if d.MaxPages < 0 {
		return fmt.Errorf("discovery.maxPages must not be negative")
	}
	if d.StartYear != 0 && d.EndYear != 0 && d.StartYear > d.EndYear {
		return fmt.Errorf("discovery.startYear %d is after endYear %d", d.StartYear, d.EndYear)
	}
	return nil
}

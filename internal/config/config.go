package config

import (
	"fmt"
	"net/url"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for the rescueradar process. Per-source
// scraper settings live in the organization configs, not here.
type Config struct {
	Environment  string             `mapstructure:"environment"  yaml:"environment"`
	Database     DatabaseConfig     `mapstructure:"database"     yaml:"database"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"    yaml:"reconcile"`
	Fetch        FetchConfig        `mapstructure:"fetch"        yaml:"fetch"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"    yaml:"telemetry"`
	Metrics      MetricsConfig      `mapstructure:"metrics"      yaml:"metrics"`
	Enrichment   EnrichmentConfig   `mapstructure:"enrichment"   yaml:"enrichment"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
}

// DatabaseConfig locates the Postgres store. URL wins when set; otherwise
// the discrete fields are composed into a DSN.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"      yaml:"url"`
	Host     string `mapstructure:"host"     yaml:"host"`
	Port     int    `mapstructure:"port"     yaml:"port"`
	Name     string `mapstructure:"name"     yaml:"name"`
	User     string `mapstructure:"user"     yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`

	MaxConns          int           `mapstructure:"max_conns"           yaml:"max_conns"`
	MinConns          int           `mapstructure:"min_conns"           yaml:"min_conns"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" yaml:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"     yaml:"connect_timeout"`
}

// DSN returns the connection string, composing one from the discrete fields
// when no URL is configured.
func (c DatabaseConfig) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.Host == "" || c.Name == "" || c.User == "" {
		return "", fmt.Errorf("database not configured: set DATABASE_URL or DB_HOST/DB_NAME/DB_USER")
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, port),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String(), nil
}

// OrchestratorConfig bounds the batch driver.
type OrchestratorConfig struct {
	// MaxParallel is the global bound on in-flight scrapers.
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`

	// ScrapeTimeout is the per-scraper deadline.
	ScrapeTimeout time.Duration `mapstructure:"scrape_timeout" yaml:"scrape_timeout"`

	// ConfigDir holds the per-organization YAML files.
	ConfigDir string `mapstructure:"config_dir" yaml:"config_dir"`
}

// ReconcileConfig tunes the stale-detection partial-failure guard.
type ReconcileConfig struct {
	// HistoryWindow is how many recent successful scrapes feed the rolling
	// average.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`

	// ThresholdFraction: observed counts below this fraction of the average
	// trip the guard.
	ThresholdFraction float64 `mapstructure:"threshold_fraction" yaml:"threshold_fraction"`

	// AbsoluteFloor: the guard only trips when the observed count is also
	// below this absolute value, so small sources aren't flagged by noise.
	AbsoluteFloor int `mapstructure:"absolute_floor" yaml:"absolute_floor"`
}

// FetchConfig tunes the shared HTTP client used by all adapters.
type FetchConfig struct {
	UserAgents     []string      `mapstructure:"user_agents"      yaml:"user_agents"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	MaxBodySize    int64         `mapstructure:"max_body_size"    yaml:"max_body_size"`
	MaxRedirects   int           `mapstructure:"max_redirects"    yaml:"max_redirects"`
	MaxRetries     int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"      yaml:"retry_delay"`

	// Jitter is the half-width of the uniform jitter added to each
	// per-organization rate-limit delay.
	Jitter time.Duration `mapstructure:"jitter" yaml:"jitter"`

	// DetailPoolSize bounds adapter-internal detail-page workers.
	DetailPoolSize int `mapstructure:"detail_pool_size" yaml:"detail_pool_size"`

	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

// BreakerConfig tunes the per-host circuit breaker.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int `mapstructure:"max_failures" yaml:"max_failures"`

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Interval resets the failure counters in the closed state.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// TelemetryConfig configures the error-tracking sink. Inactive without a DSN
// or outside production.
type TelemetryConfig struct {
	DSN        string  `mapstructure:"dsn"         yaml:"dsn"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Release    string  `mapstructure:"release"     yaml:"release"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr"    yaml:"addr"`
}

// EnrichmentConfig configures the LLM description cleaner.
type EnrichmentConfig struct {
	Model                string  `mapstructure:"model"                  yaml:"model"`
	APIKey               string  `mapstructure:"api_key"                yaml:"api_key"`
	BatchSize            int     `mapstructure:"batch_size"             yaml:"batch_size"`
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold" yaml:"failure_rate_threshold"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Port:              5432,
			MaxConns:          24,
			MinConns:          2,
			HealthCheckPeriod: 30 * time.Second,
			ConnectTimeout:    10 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel:   4,
			ScrapeTimeout: 20 * time.Minute,
			ConfigDir:     "configs/organizations",
		},
		Reconcile: ReconcileConfig{
			HistoryWindow:     3,
			ThresholdFraction: 0.5,
			AbsoluteFloor:     10,
		},
		Fetch: FetchConfig{
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			RequestTimeout: 30 * time.Second,
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			MaxRedirects:   10,
			MaxRetries:     3,
			RetryDelay:     2 * time.Second,
			Jitter:         300 * time.Millisecond,
			DetailPoolSize: 5,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     60 * time.Second,
				Interval:    2 * time.Minute,
			},
		},
		Telemetry: TelemetryConfig{
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9193",
		},
		Enrichment: EnrichmentConfig{
			Model:                "claude-3-5-haiku-latest",
			BatchSize:            25,
			FailureRateThreshold: 0.25,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// IsProduction reports whether the process runs with production semantics
// (telemetry active, JSON logs).
func (c *Config) IsProduction() bool { return c.Environment == "production" }

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	// Local development keeps secrets in .env; existing env vars win.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("RESCUERADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Contract env vars keep their conventional unprefixed names.
	bindContractEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("rescueradar")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".rescueradar"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// A missing file is fine unless one was explicitly requested.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// bindContractEnv wires the externally-documented variable names alongside
// the RESCUERADAR_-prefixed forms.
func bindContractEnv(v *viper.Viper) {
	_ = v.BindEnv("environment", "RESCUERADAR_ENVIRONMENT", "ENVIRONMENT")
	_ = v.BindEnv("database.url", "RESCUERADAR_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.host", "RESCUERADAR_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", "RESCUERADAR_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.name", "RESCUERADAR_DATABASE_NAME", "DB_NAME")
	_ = v.BindEnv("database.user", "RESCUERADAR_DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", "RESCUERADAR_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("telemetry.dsn", "RESCUERADAR_TELEMETRY_DSN", "SENTRY_DSN")
	_ = v.BindEnv("enrichment.api_key", "RESCUERADAR_ENRICHMENT_API_KEY", "ANTHROPIC_API_KEY")
}

// setDefaults registers default values in viper so env-only keys unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("environment", cfg.Environment)

	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.min_conns", cfg.Database.MinConns)
	v.SetDefault("database.health_check_period", cfg.Database.HealthCheckPeriod)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)

	v.SetDefault("orchestrator.max_parallel", cfg.Orchestrator.MaxParallel)
	v.SetDefault("orchestrator.scrape_timeout", cfg.Orchestrator.ScrapeTimeout)
	v.SetDefault("orchestrator.config_dir", cfg.Orchestrator.ConfigDir)

	v.SetDefault("reconcile.history_window", cfg.Reconcile.HistoryWindow)
	v.SetDefault("reconcile.threshold_fraction", cfg.Reconcile.ThresholdFraction)
	v.SetDefault("reconcile.absolute_floor", cfg.Reconcile.AbsoluteFloor)

	v.SetDefault("fetch.user_agents", cfg.Fetch.UserAgents)
	v.SetDefault("fetch.request_timeout", cfg.Fetch.RequestTimeout)
	v.SetDefault("fetch.max_body_size", cfg.Fetch.MaxBodySize)
	v.SetDefault("fetch.max_redirects", cfg.Fetch.MaxRedirects)
	v.SetDefault("fetch.max_retries", cfg.Fetch.MaxRetries)
	v.SetDefault("fetch.retry_delay", cfg.Fetch.RetryDelay)
	v.SetDefault("fetch.jitter", cfg.Fetch.Jitter)
	v.SetDefault("fetch.detail_pool_size", cfg.Fetch.DetailPoolSize)
	v.SetDefault("fetch.breaker.max_failures", cfg.Fetch.Breaker.MaxFailures)
	v.SetDefault("fetch.breaker.timeout", cfg.Fetch.Breaker.Timeout)
	v.SetDefault("fetch.breaker.interval", cfg.Fetch.Breaker.Interval)

	v.SetDefault("telemetry.dsn", cfg.Telemetry.DSN)
	v.SetDefault("telemetry.sample_rate", cfg.Telemetry.SampleRate)
	v.SetDefault("telemetry.release", cfg.Telemetry.Release)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("enrichment.model", cfg.Enrichment.Model)
	v.SetDefault("enrichment.api_key", cfg.Enrichment.APIKey)
	v.SetDefault("enrichment.batch_size", cfg.Enrichment.BatchSize)
	v.SetDefault("enrichment.failure_rate_threshold", cfg.Enrichment.FailureRateThreshold)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}

package config

import "fmt"

var validEnvironments = map[string]bool{
	"production": true, "development": true, "testing": true,
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if !validEnvironments[cfg.Environment] {
		return fmt.Errorf("environment must be production/development/testing, got %q", cfg.Environment)
	}

	if cfg.Orchestrator.MaxParallel < 1 {
		return fmt.Errorf("orchestrator.max_parallel must be >= 1, got %d", cfg.Orchestrator.MaxParallel)
	}
	if cfg.Orchestrator.MaxParallel > 64 {
		return fmt.Errorf("orchestrator.max_parallel must be <= 64, got %d", cfg.Orchestrator.MaxParallel)
	}
	if cfg.Orchestrator.ScrapeTimeout <= 0 {
		return fmt.Errorf("orchestrator.scrape_timeout must be > 0")
	}
	if cfg.Orchestrator.ConfigDir == "" {
		return fmt.Errorf("orchestrator.config_dir must be set")
	}

	if cfg.Reconcile.HistoryWindow < 1 {
		return fmt.Errorf("reconcile.history_window must be >= 1, got %d", cfg.Reconcile.HistoryWindow)
	}
	if cfg.Reconcile.ThresholdFraction <= 0 || cfg.Reconcile.ThresholdFraction > 1 {
		return fmt.Errorf("reconcile.threshold_fraction must be in (0,1], got %g", cfg.Reconcile.ThresholdFraction)
	}
	if cfg.Reconcile.AbsoluteFloor < 0 {
		return fmt.Errorf("reconcile.absolute_floor must be >= 0, got %d", cfg.Reconcile.AbsoluteFloor)
	}

	if cfg.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("fetch.request_timeout must be > 0")
	}
	if cfg.Fetch.MaxBodySize <= 0 {
		return fmt.Errorf("fetch.max_body_size must be > 0")
	}
	if cfg.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0")
	}
	if cfg.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.DetailPoolSize < 1 {
		return fmt.Errorf("fetch.detail_pool_size must be >= 1, got %d", cfg.Fetch.DetailPoolSize)
	}
	if len(cfg.Fetch.UserAgents) == 0 {
		return fmt.Errorf("fetch.user_agents must not be empty")
	}

	if cfg.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be >= 1, got %d", cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns < 0 || cfg.Database.MinConns > cfg.Database.MaxConns {
		return fmt.Errorf("database.min_conns must be in [0, max_conns], got %d", cfg.Database.MinConns)
	}

	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be in [0,1], got %g", cfg.Telemetry.SampleRate)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}

	if cfg.Enrichment.BatchSize < 1 {
		return fmt.Errorf("enrichment.batch_size must be >= 1, got %d", cfg.Enrichment.BatchSize)
	}
	if cfg.Enrichment.FailureRateThreshold < 0 || cfg.Enrichment.FailureRateThreshold > 1 {
		return fmt.Errorf("enrichment.failure_rate_threshold must be in [0,1], got %g", cfg.Enrichment.FailureRateThreshold)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

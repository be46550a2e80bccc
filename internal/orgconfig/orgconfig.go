// Package orgconfig loads and validates the per-organization YAML files that
// declare what to scrape and how politely to do it.
package orgconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rescueradar/rescueradar/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is one organization's declarative scrape configuration.
type Config struct {
	ConfigID string   `yaml:"config_id" validate:"required,slug"`
	Name     string   `yaml:"name"      validate:"required"`
	Active   bool     `yaml:"active"`
	Metadata Metadata `yaml:"metadata"  validate:"required"`
	Scraper  Scraper  `yaml:"scraper"`
}

// Metadata holds descriptive fields stored on the organization row.
type Metadata struct {
	WebsiteURL  string `yaml:"website_url" validate:"required,url"`
	Country     string `yaml:"country"`
	Description string `yaml:"description"`
}

// Scraper tunes one adapter run.
type Scraper struct {
	// Adapter is the registry key; empty defaults to ConfigID.
	Adapter string `yaml:"adapter"`

	// RateLimitDelay is the pause between outbound requests, in seconds.
	RateLimitDelay float64 `yaml:"rate_limit_delay" validate:"gte=0"`

	BatchSize  int `yaml:"batch_size"  validate:"gte=0"`
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`

	// Timeout bounds one outbound request, in seconds.
	Timeout int `yaml:"timeout" validate:"gte=0"`

	SkipExistingAnimals bool `yaml:"skip_existing_animals"`
	VerifyImages        bool `yaml:"verify_images"`

	CheckAdoptionStatus    bool `yaml:"check_adoption_status"`
	AdoptionCheckThreshold int  `yaml:"adoption_check_threshold" validate:"gte=0"`

	AdoptionCheckConfig AdoptionCheck `yaml:"adoption_check_config"`
}

// AdoptionCheck bounds the follow-up adoption detector.
type AdoptionCheck struct {
	MaxChecksPerRun    int `yaml:"max_checks_per_run"   validate:"gte=0"`
	CheckIntervalHours int `yaml:"check_interval_hours" validate:"gte=0"`
}

// AdapterKey returns the registry key for this organization.
func (c *Config) AdapterKey() string {
	if c.Scraper.Adapter != "" {
		return c.Scraper.Adapter
	}
	return c.ConfigID
}

// Delay returns the rate-limit delay as a duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.Scraper.RateLimitDelay * float64(time.Second))
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.Timeout) * time.Second
}

func (c *Config) applyDefaults() {
	if c.Scraper.RateLimitDelay == 0 {
		c.Scraper.RateLimitDelay = 2.0
	}
	if c.Scraper.BatchSize == 0 {
		c.Scraper.BatchSize = 50
	}
	if c.Scraper.MaxRetries == 0 {
		c.Scraper.MaxRetries = 3
	}
	if c.Scraper.Timeout == 0 {
		c.Scraper.Timeout = 60
	}
	if c.Scraper.AdoptionCheckThreshold == 0 {
		c.Scraper.AdoptionCheckThreshold = 3
	}
	if c.Scraper.AdoptionCheckConfig.MaxChecksPerRun == 0 {
		c.Scraper.AdoptionCheckConfig.MaxChecksPerRun = 50
	}
	if c.Scraper.AdoptionCheckConfig.CheckIntervalHours == 0 {
		c.Scraper.AdoptionCheckConfig.CheckIntervalHours = 24
	}
}

func init() {
	// slug: lowercase letters, digits, hyphens; must start alphanumeric.
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return false
		}
		for i, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			case r == '-' && i > 0:
			default:
				return false
			}
		}
		return true
	})
}

// Load reads and validates a single organization config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.SetupError{Stage: "orgconfig", Err: err}
	}
	return Parse(data, path)
}

// Parse decodes and validates one organization config document.
func Parse(data []byte, source string) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &types.SetupError{
			Stage: "orgconfig",
			Err:   fmt.Errorf("parse %s: %w", source, err),
		}
	}
	cfg.applyDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, &types.SetupError{
			Stage: "orgconfig",
			Err:   fmt.Errorf("invalid config %s: %w", source, err),
		}
	}
	return &cfg, nil
}

// LoadDir loads every .yaml/.yml file in dir, sorted by config_id. A single
// malformed file fails the whole load: a half-configured batch run would
// silently skip sources.
func LoadDir(dir string) ([]*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &types.SetupError{Stage: "orgconfig", Err: err}
	}

	var configs []*Config
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[cfg.ConfigID]; dup {
			return nil, &types.SetupError{
				Stage: "orgconfig",
				Err:   fmt.Errorf("duplicate config_id %q in %s and %s", cfg.ConfigID, prev, path),
			}
		}
		seen[cfg.ConfigID] = path
		configs = append(configs, cfg)
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// Enabled filters to active organizations.
func Enabled(configs []*Config) []*Config {
	var out []*Config
	for _, c := range configs {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

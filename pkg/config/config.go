package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// Environment variables that override file settings.
const (
	EnvDatabasePath = "MANGASYNC_DB_PATH"
	EnvCatalogPath  = "MANGASYNC_CATALOG_PATH"
	EnvLogLevel     = "LOG_LEVEL"
)

// Config is the application configuration.
type Config struct {
	// Database configures the SQLite store.
	Database DatabaseConfig `yaml:"database"`

	// Catalog configures the file-backed manga source.
	Catalog CatalogConfig `yaml:"catalog"`

	// Install configures the simulated extension installer.
	Install InstallConfig `yaml:"install"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the database file.
	Path string `yaml:"path" validate:"required"`

	// MaxOpenConns limits open connections; zero uses the store default.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`
}

// CatalogConfig configures the catalogue source.
type CatalogConfig struct {
	// Path is the catalogue YAML file.
	Path string `yaml:"path" validate:"required"`

	// Debounce is how long to wait for file events to settle.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// Watch enables reloading chapter listings when the file changes.
	Watch bool `yaml:"watch"`
}

// InstallConfig configures the simulated installer.
type InstallConfig struct {
	// StepDelay is the pause between install steps.
	StepDelay time.Duration `yaml:"step_delay" validate:"gte=0"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "mangasync.db",
			BusyTimeout: 5 * time.Second,
		},
		Catalog: CatalogConfig{
			Path:     "catalog.yaml",
			Debounce: 100 * time.Millisecond,
			Watch:    true,
		},
		Install: InstallConfig{
			StepDelay: 200 * time.Millisecond,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// profile is the part of the file read before the full decode to pick the
// telemetry baseline.
type profile struct {
	Telemetry struct {
		Environment string `yaml:"environment"`
	} `yaml:"telemetry"`
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
// A file with telemetry.environment set to "production" starts from the
// production telemetry profile instead of the default one.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var p profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if p.Telemetry.Environment == "production" {
			cfg.Telemetry = *telemetry.ProductionConfig()
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvCatalogPath); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Telemetry.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks struct constraints and the telemetry settings.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}

// StoreConfig returns the SQLite store settings.
func (d DatabaseConfig) StoreConfig() stores.Config {
	return stores.Config{
		Path:         d.Path,
		MaxOpenConns: d.MaxOpenConns,
		BusyTimeout:  d.BusyTimeout,
	}
}

// Package config loads the service configuration.
//
// Values are layered, each layer overriding the previous one:
//
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH, or config.yaml in the working directory)
//  3. environment variables prefixed with CATALOG_, where a double underscore
//     separates nested keys (CATALOG_BASEROW__RATE_PER_SECOND -> baserow.rate_per_second)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/playlist"
)

const (
	// ConfigPathEnvVar names the environment variable holding the config file path.
	ConfigPathEnvVar = "CONFIG_PATH"

	envPrefix = "CATALOG_"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Config holds the complete application configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Log      LogConfig      `koanf:"log"`
	DB       DBConfig       `koanf:"db"`
	Baserow  BaserowConfig  `koanf:"baserow"`
	Tables   TablesConfig   `koanf:"tables"`
	Schema   SchemaConfig   `koanf:"schema"`
	Playlist PlaylistConfig `koanf:"playlist"`
	Import   ImportConfig   `koanf:"import"`
	Rewrite  RewriteConfig  `koanf:"rewrite"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig configures logging. An empty File logs to stdout.
type LogConfig struct {
	Level      string `koanf:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format     string `koanf:"format" validate:"oneof=json text"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"gte=0"`
}

// DBConfig configures the run history database.
type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// BaserowConfig configures access to the remote row store.
type BaserowConfig struct {
	URL           string        `koanf:"url" validate:"required,url"`
	Token         string        `koanf:"token" validate:"required"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gt=0"`
	Burst         int           `koanf:"burst" validate:"min=1"`
	RetryAttempts uint          `koanf:"retry_attempts" validate:"min=1,max=10"`
	RetryDelay    time.Duration `koanf:"retry_delay" validate:"gt=0"`
	Breaker       BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the circuit breaker around the row store.
type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"min=1"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
}

// TablesConfig binds each logical table to its remote table id.
// Zero leaves a table unbound.
type TablesConfig struct {
	Contents   int `koanf:"contents" validate:"gte=0"`
	Episodes   int `koanf:"episodes" validate:"gte=0"`
	Banners    int `koanf:"banners" validate:"gte=0"`
	Categories int `koanf:"categories" validate:"gte=0"`
}

// Map returns the bound tables keyed by kind.
func (t TablesConfig) Map() map[catalog.TableKind]int {
	return map[catalog.TableKind]int{
		catalog.TableContents:   t.Contents,
		catalog.TableEpisodes:   t.Episodes,
		catalog.TableBanners:    t.Banners,
		catalog.TableCategories: t.Categories,
	}
}

// SchemaConfig locates the field mapping file.
type SchemaConfig struct {
	Path string `koanf:"path"`
}

// PlaylistConfig configures playlist parsing. An empty HTTPSProxy leaves
// plain-http URLs untouched.
type PlaylistConfig struct {
	HTTPSProxy string `koanf:"https_proxy" validate:"omitempty,url"`
}

// ImportConfig tunes bulk imports.
type ImportConfig struct {
	BatchSize int           `koanf:"batch_size" validate:"min=1,max=50"`
	Delay     time.Duration `koanf:"delay" validate:"gte=0"`
}

// RewriteConfig tunes bulk URL rewrites.
type RewriteConfig struct {
	PageSize int `koanf:"page_size" validate:"min=1,max=200"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:      "INFO",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		DB: DBConfig{
			Path: "catalog-sync.db",
		},
		Baserow: BaserowConfig{
			URL:           "https://api.baserow.io",
			Timeout:       30 * time.Second,
			RatePerSecond: 10,
			Burst:         5,
			RetryAttempts: 3,
			RetryDelay:    250 * time.Millisecond,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
			},
		},
		Schema: SchemaConfig{
			Path: "schema.yaml",
		},
		Playlist: PlaylistConfig{
			HTTPSProxy: playlist.DefaultHTTPSProxy,
		},
		Import: ImportConfig{
			BatchSize: 5,
			Delay:     500 * time.Millisecond,
		},
		Rewrite: RewriteConfig{
			PageSize: 200,
		},
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it. An empty path searches CONFIG_PATH and
// DefaultConfigPaths; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s: failed %q (%v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// envKey maps CATALOG_BASEROW__RATE_PER_SECOND to baserow.rate_per_second.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Package config loads process configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Default values.
const (
	DefaultAddr                 = ":8080"
	DefaultWebDir               = "web"
	DefaultSQLitePath           = "bmitracker.db"
	DefaultSessionTTL           = 24 * time.Hour
	DefaultSessionPurgeInterval = time.Hour
)

// Config holds every runtime setting. Values from the environment override
// the YAML file, which overrides defaults.
type Config struct {
	Addr   string `yaml:"addr" env:"ADDR"`
	WebDir string `yaml:"web_dir" env:"WEB_DIR"`

	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
	Auth    AuthConfig    `yaml:"auth"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is one of: postgres | sqlite | memory.
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

// SessionConfig controls login session lifetime.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" env:"SESSION_TTL"`
	PurgeInterval time.Duration `yaml:"purge_interval" env:"SESSION_PURGE_INTERVAL"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// Format is one of: json | text.
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// AuthConfig holds forward-auth and OIDC settings.
type AuthConfig struct {
	// TrustForwardAuth accepts the Remote-User header from a fronting proxy.
	TrustForwardAuth bool       `yaml:"trust_forward_auth" env:"TRUST_FORWARD_AUTH"`
	OIDC             OIDCConfig `yaml:"oidc"`
}

// OIDCConfig configures single sign-on. SSO is enabled when Issuer is set.
type OIDCConfig struct {
	Issuer       string `yaml:"issuer" env:"OIDC_ISSUER"`
	ClientID     string `yaml:"client_id" env:"OIDC_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"OIDC_CLIENT_SECRET"`
	RedirectURL  string `yaml:"redirect_url" env:"OIDC_REDIRECT_URL"`
}

// Enabled reports whether SSO is configured.
func (o OIDCConfig) Enabled() bool {
	return o.Issuer != ""
}

// Load builds the configuration. When CONFIG_FILE is set the YAML file it
// names is read first; environment variables are applied on top.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Addr:   DefaultAddr,
		WebDir: DefaultWebDir,
		Storage: StorageConfig{
			Driver:     DriverPostgres,
			SQLitePath: DefaultSQLitePath,
		},
		Session: SessionConfig{
			TTL:           DefaultSessionTTL,
			PurgeInterval: DefaultSessionPurgeInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage driver %q unknown: want postgres|sqlite|memory", c.Storage.Driver))
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.Session.PurgeInterval <= 0 {
		errs = append(errs, errors.New("session purge interval must be positive"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q unknown: want debug|info|warn|error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format %q unknown: want json|text", c.Log.Format))
	}

	if o := c.Auth.OIDC; o.Enabled() && (o.ClientID == "" || o.RedirectURL == "") {
		errs = append(errs, errors.New("OIDC_CLIENT_ID and OIDC_REDIRECT_URL are required when OIDC_ISSUER is set"))
	}

	return errors.Join(errs...)
}

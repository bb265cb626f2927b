// ABOUTME: Configuration loading and parsing for metrosha-gateway
// ABOUTME: YAML or TOML files with environment variable expansion, duration parsing and validation

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environments
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MinProdSecretLength is the shortest JWT secret accepted in prod.
const MinProdSecretLength = 32

// Config represents the complete metrosha-gateway configuration
type Config struct {
	Environment string           `yaml:"environment" toml:"environment"`
	Server      ServerConfig     `yaml:"server" toml:"server"`
	Database    DatabaseConfig   `yaml:"database" toml:"database"`
	Auth        AuthConfig       `yaml:"auth" toml:"auth"`
	Completion  CompletionConfig `yaml:"completion" toml:"completion"`
	Logging     LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig selects the document store
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// AuthConfig holds token and password hashing configuration
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret" toml:"jwt_secret"`
	Algorithm  string `yaml:"algorithm" toml:"algorithm"`
	BcryptCost int    `yaml:"bcrypt_cost" toml:"bcrypt_cost"` // 0 means bcrypt.DefaultCost

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// CompletionConfig holds the completion service client configuration
type CompletionConfig struct {
	Credentials        string `yaml:"credentials" toml:"credentials"`
	Scope              string `yaml:"scope" toml:"scope"`
	AuthURL            string `yaml:"auth_url" toml:"auth_url"`
	BaseURL            string `yaml:"base_url" toml:"base_url"`
	Model              string `yaml:"model" toml:"model"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`

	// Timeout bounds one completion call; zero means unbounded
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// DefaultPath returns the path to the gateway config file.
// Priority: METROSHA_CONFIG env var > XDG_CONFIG_HOME/metrosha/gateway.yaml > ~/.config/metrosha/gateway.yaml
func DefaultPath() string {
	if p := os.Getenv("METROSHA_CONFIG"); p != "" {
		return p
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "metrosha", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates raw configuration content.
func Parse(data []byte, isTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvDev
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8000"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Auth.Algorithm == "" {
		cfg.Auth.Algorithm = "HS256"
	}
	if cfg.Auth.TokenTTLRaw == "" {
		cfg.Auth.TokenTTLRaw = "24h"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDev, EnvProd:
	default:
		return fmt.Errorf("environment must be %q or %q, got %q", EnvDev, EnvProd, c.Environment)
	}

	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("auth.algorithm must be one of HS256, HS384, HS512, got %q", c.Auth.Algorithm)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.BcryptCost < 0 {
		return fmt.Errorf("auth.bcrypt_cost must not be negative")
	}

	if c.Completion.Credentials == "" {
		return fmt.Errorf("completion.credentials is required")
	}
	if c.Completion.Timeout < 0 {
		return fmt.Errorf("completion.timeout must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if c.Environment == EnvProd {
		if len(c.Auth.JWTSecret) < MinProdSecretLength {
			return fmt.Errorf("auth.jwt_secret must be at least %d bytes in prod", MinProdSecretLength)
		}
		if c.Completion.InsecureSkipVerify {
			return fmt.Errorf("completion.insecure_skip_verify is not allowed in prod")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Completion.TimeoutRaw != "" {
		cfg.Completion.Timeout, err = time.ParseDuration(cfg.Completion.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing completion timeout %q: %w", cfg.Completion.TimeoutRaw, err)
		}
	}

	return nil
}

// ABOUTME: Configuration loading and parsing for pursuit-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pursuit-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// ExternalURL is the public base URL of the gateway, used to build
	// the upstream OAuth callback and client-facing redirect URLs.
	ExternalURL string `yaml:"external_url"`
}

// DatabaseConfig holds database configuration.
// Driver selects the backend: "sqlite" (Path) or "postgres" (DSN).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// UpstreamConfig holds the upstream identity provider settings.
// Defaults target Google's OAuth2 endpoints.
type UpstreamConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	HostedDomain string `yaml:"hosted_domain"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"userinfo_url"`
}

// AuthConfig holds grant-issuer and approval-cookie secrets
type AuthConfig struct {
	TokenSecret  string `yaml:"token_secret"`
	CookieSecret string `yaml:"cookie_secret"`

	TokenTTL time.Duration `yaml:"-"`
	CodeTTL  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
	CodeTTLRaw  string `yaml:"code_ttl"`
}

// ToolsConfig holds tool-registry configuration
type ToolsConfig struct {
	SchemaCacheTTL time.Duration `yaml:"-"`

	SchemaCacheTTLRaw string `yaml:"schema_cache_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default endpoint values applied when the upstream section leaves them blank.
const (
	DefaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL    = "https://accounts.google.com/o/oauth2/token"
	DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

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

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Upstream.AuthURL == "" {
		c.Upstream.AuthURL = DefaultAuthURL
	}
	if c.Upstream.TokenURL == "" {
		c.Upstream.TokenURL = DefaultTokenURL
	}
	if c.Upstream.UserInfoURL == "" {
		c.Upstream.UserInfoURL = DefaultUserInfoURL
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.CodeTTL == 0 {
		c.Auth.CodeTTL = 10 * time.Minute
	}
	if c.Tools.SchemaCacheTTL == 0 {
		c.Tools.SchemaCacheTTL = 5 * time.Minute
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.ExternalURL == "" {
		return fmt.Errorf("server.external_url is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"postgres\", got %q", c.Database.Driver)
	}

	if c.Upstream.ClientID == "" {
		return fmt.Errorf("upstream.client_id is required")
	}
	if c.Upstream.ClientSecret == "" {
		return fmt.Errorf("upstream.client_secret is required")
	}

	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	if c.Auth.CookieSecret == "" {
		return fmt.Errorf("auth.cookie_secret is required")
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

	if cfg.Auth.CodeTTLRaw != "" {
		cfg.Auth.CodeTTL, err = time.ParseDuration(cfg.Auth.CodeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing code_ttl %q: %w", cfg.Auth.CodeTTLRaw, err)
		}
	}

	if cfg.Tools.SchemaCacheTTLRaw != "" {
		cfg.Tools.SchemaCacheTTL, err = time.ParseDuration(cfg.Tools.SchemaCacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing schema_cache_ttl %q: %w", cfg.Tools.SchemaCacheTTLRaw, err)
		}
	}

	return nil
}

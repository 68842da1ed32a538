// ABOUTME: Configuration loading and parsing for the conversation engine
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Routing  RoutingConfig  `yaml:"routing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SessionConfig holds transport and reconnect tuning.
type SessionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	SendQueueSize int    `yaml:"send_queue_size"`

	ReconnectBase time.Duration `yaml:"-"`
	ReconnectCap  time.Duration `yaml:"-"`
	AuthTimeout   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReconnectBaseRaw string `yaml:"reconnect_base"`
	ReconnectCapRaw  string `yaml:"reconnect_cap"`
	AuthTimeoutRaw   string `yaml:"auth_timeout"`
}

// AuthConfig holds credential configuration for the session handshake.
type AuthConfig struct {
	Secret  string `yaml:"secret"`
	Subject string `yaml:"subject"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// DatabaseConfig holds conversation history storage configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RoutingConfig holds routing defaults and the optional rules file.
type RoutingConfig struct {
	RulesPath    string `yaml:"rules_path"`
	DefaultMode  string `yaml:"default_mode"`
	ContextAware *bool  `yaml:"context_aware"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the file leaves fields unset.
const (
	DefaultSendQueueSize = 256
	DefaultReconnectBase = time.Second
	DefaultReconnectCap  = 30 * time.Second
	DefaultAuthTimeout   = 10 * time.Second
	DefaultTokenTTL      = 2 * time.Minute
)

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

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

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Session.SendQueueSize == 0 {
		c.Session.SendQueueSize = DefaultSendQueueSize
	}
	if c.Session.ReconnectBase == 0 {
		c.Session.ReconnectBase = DefaultReconnectBase
	}
	if c.Session.ReconnectCap == 0 {
		c.Session.ReconnectCap = DefaultReconnectCap
	}
	if c.Session.AuthTimeout == 0 {
		c.Session.AuthTimeout = DefaultAuthTimeout
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Routing.DefaultMode == "" {
		c.Routing.DefaultMode = "auto"
	}
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Session.Endpoint == "" {
		return fmt.Errorf("session.endpoint is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Routing.DefaultMode {
	case "single", "multi", "auto":
	default:
		return fmt.Errorf("routing.default_mode must be single, multi, or auto (got %q)", c.Routing.DefaultMode)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Session.ReconnectBaseRaw, &cfg.Session.ReconnectBase, "reconnect_base"},
		{cfg.Session.ReconnectCapRaw, &cfg.Session.ReconnectCap, "reconnect_cap"},
		{cfg.Session.AuthTimeoutRaw, &cfg.Session.AuthTimeout, "auth_timeout"},
		{cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL, "token_ttl"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// ABOUTME: Configuration loading and parsing for maps-gateway
// ABOUTME: Supports YAML or TOML files, environment variable expansion, overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Transport modes
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
)

// ConfigEnvVar names the environment variable holding a config file path.
const ConfigEnvVar = "MAPS_GATEWAY_CONFIG"

// Config represents the complete maps-gateway configuration
type Config struct {
	Mode      string          `yaml:"mode" toml:"mode"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Maps      MapsConfig      `yaml:"maps" toml:"maps"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
}

// ServerConfig holds the HTTP binding configuration
type ServerConfig struct {
	Host              string        `yaml:"host" toml:"host"`
	Port              int           `yaml:"port" toml:"port"`
	SessionQueueSize  int           `yaml:"session_queue_size" toml:"session_queue_size"`
	KeepaliveInterval time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	KeepaliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`
	ShutdownTimeoutRaw   string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// MapsConfig holds the Yandex Maps upstream configuration
type MapsConfig struct {
	APIKey       string        `yaml:"api_key" toml:"api_key"`
	StaticAPIKey string        `yaml:"static_api_key" toml:"static_api_key"`
	GeocoderURL  string        `yaml:"geocoder_url" toml:"geocoder_url"`
	StaticURL    string        `yaml:"static_url" toml:"static_url"`
	CacheSize    int64         `yaml:"cache_size" toml:"cache_size"`
	RateLimit    float64       `yaml:"rate_limit" toml:"rate_limit"` // requests per second, 0 = unlimited
	Timeout      time.Duration `yaml:"-" toml:"-"`
	CacheTTL     time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw  string `yaml:"timeout" toml:"timeout"`
	CacheTTLRaw string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// Default returns a configuration usable without any file.
func Default() *Config {
	return &Config{
		Mode: ModeHTTP,
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 3000,
			SessionQueueSize:     64,
			KeepaliveInterval:    30 * time.Second,
			ShutdownTimeout:      5 * time.Second,
			KeepaliveIntervalRaw: "30s",
			ShutdownTimeoutRaw:   "5s",
		},
		Maps: MapsConfig{
			GeocoderURL: "https://geocode-maps.yandex.ru/1.x/",
			StaticURL:   "https://static-maps.yandex.ru/v1",
			CacheSize:   1000,
			RateLimit:   10,
			Timeout:     10 * time.Second,
			CacheTTL:    10 * time.Minute,
			TimeoutRaw:  "10s",
			CacheTTLRaw: "10m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tailscale: TailscaleConfig{
			Hostname: "maps-gateway",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// An empty path yields the defaults. Files ending in .toml are parsed as TOML,
// everything else as YAML. Environment variables in the format ${VAR_NAME} are
// expanded, then environment overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables in the raw content
		expandedData := expandEnvVars(string(data))

		if err := decode(path, expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path, content string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(content, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(content), cfg)
}

// ResolvePath picks the config file to load: the explicit flag value, then
// MAPS_GATEWAY_CONFIG, then $XDG_CONFIG_HOME/maps-gateway/config.yaml if it
// exists. An empty result means run on defaults.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	candidate := filepath.Join(dir, "maps-gateway", "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the well-known environment variables onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("MCP_TRANSPORT"); v != "" {
		cfg.Mode = strings.ToLower(v)
	}
	if v := getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("YANDEX_MAPS_API_KEY"); v != "" {
		cfg.Maps.APIKey = v
	}
	if v := getenv("YANDEX_STATIC_MAPS_API_KEY"); v != "" {
		cfg.Maps.StaticAPIKey = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("MAPS_GATEWAY_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := getenv("TS_AUTHKEY"); v != "" && cfg.Tailscale.AuthKey == "" {
		cfg.Tailscale.AuthKey = v
	}
	return nil
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStdio, ModeHTTP:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeStdio, ModeHTTP, c.Mode)
	}

	// A TCP port is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Server.SessionQueueSize < 1 {
		return errors.New("server.session_queue_size must be positive")
	}
	if c.Server.KeepaliveInterval <= 0 {
		return errors.New("server.keepalive_interval must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}

	if c.Maps.GeocoderURL == "" {
		return errors.New("maps.geocoder_url is required")
	}
	if c.Maps.StaticURL == "" {
		return errors.New("maps.static_url is required")
	}
	if c.Maps.Timeout <= 0 {
		return errors.New("maps.timeout must be positive")
	}
	if c.Maps.CacheSize < 0 || c.Maps.CacheTTL < 0 {
		return errors.New("maps.cache_size and maps.cache_ttl must not be negative")
	}
	if c.Maps.RateLimit < 0 {
		return errors.New("maps.rate_limit must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// Addr returns the host:port the HTTP binding listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// StaticKey returns the Static API key, falling back to the geocoder key.
func (m MapsConfig) StaticKey() string {
	if m.StaticAPIKey != "" {
		return m.StaticAPIKey
	}
	return m.APIKey
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.keepalive_interval", cfg.Server.KeepaliveIntervalRaw, &cfg.Server.KeepaliveInterval},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"maps.timeout", cfg.Maps.TimeoutRaw, &cfg.Maps.Timeout},
		{"maps.cache_ttl", cfg.Maps.CacheTTLRaw, &cfg.Maps.CacheTTL},
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

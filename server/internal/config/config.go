package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/challengeboard/challengeboard/pkg/store"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 3000
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 10
)

// Config holds the server-side configuration parsed from the `server:` and
// `store:` sections of config.yaml. The `worker:` key in the same file is
// ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  store.Config `yaml:"store"`
}

// ServerConfig holds all read-API settings.
type ServerConfig struct {
	// HTTPPort is the port the leaderboard API listens on (default 3000).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// ShutdownTimeoutSeconds bounds how long in-flight requests may take
	// to drain on shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// Load reads and parses the config file at path. An empty path yields the
// defaults. Environment overrides (PORT, DATABASE_URL) apply after the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	cfg.Store = cfg.Store.WithDefaults()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:               DefaultHTTPPort,
			LogLevel:               DefaultLogLevel,
			ShutdownTimeoutSeconds: DefaultShutdownTimeout,
		},
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number", v)
		}
		cfg.Server.HTTPPort = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
		if cfg.Store.Backend == "" && store.IsPostgresDSN(v) {
			cfg.Store.Backend = store.BackendPostgres
		}
	}
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", cfg.Server.LogLevel)
	}
	if cfg.Server.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must not be negative")
	}
	if err := cfg.Store.Validate(); err != nil {
		return err
	}
	return nil
}

// Package config provides configuration management for the application.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (with ${VAR} and ${VAR:-default} placeholders expanded from the
// environment), then environment variables. A .env file in the working
// directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBodySizeLimit is the default maximum request body size (10MB).
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Journal backends for the stub runner.
const (
	JournalMemory = "memory"
	JournalRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Stubs     StubsConfig     `yaml:"stubs"`
	Verifier  VerifierConfig  `yaml:"verifier"`
	Contracts ContractsConfig `yaml:"contracts"`
	Fraud     FraudConfig     `yaml:"fraud"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// ServerConfig holds the producer HTTP server configuration
type ServerConfig struct {
	Port          string `yaml:"port"`
	MasterKey     string `yaml:"master_key"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// StubsConfig holds the stub runner configuration
type StubsConfig struct {
	Port              string `yaml:"port"`
	Journal           string `yaml:"journal"`
	JournalMaxEntries int    `yaml:"journal_max_entries"`
	RedisURL          string `yaml:"redis_url"`
	RedisKey          string `yaml:"redis_key"`
}

// VerifierConfig holds the contract verifier configuration
type VerifierConfig struct {
	BaseURL string `yaml:"base_url"`
	Seed    uint64 `yaml:"seed"`
}

// ContractsConfig says where contracts come from
type ContractsConfig struct {
	// Dir is scanned recursively for *.yml and *.yaml contracts. Empty disables it.
	Dir string `yaml:"dir"`
	// Builtin adds the contracts compiled into the binary.
	Builtin bool `yaml:"builtin"`
}

// FraudConfig holds the producer's fraud rules
type FraudConfig struct {
	Names []string `yaml:"names"`
}

// StorageConfig holds verification history storage configuration
type StorageConfig struct {
	// Path is the SQLite database file path
	Path string `yaml:"path"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	// PushgatewayURL receives the verification counters after each verify run.
	// Empty disables pushing.
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Format  string `yaml:"format"`
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// HTTPConfig holds outbound HTTP client timeouts, in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: DefaultBodySizeLimit,
		},
		Stubs: StubsConfig{
			Port:              "8090",
			Journal:           JournalMemory,
			JournalMaxEntries: 1000,
			RedisKey:          "contractkit:journal",
		},
		Verifier: VerifierConfig{
			BaseURL: "http://localhost:8080",
		},
		Contracts: ContractsConfig{
			Dir:     "contracts",
			Builtin: true,
		},
		Fraud: FraudConfig{
			Names: []string{"fraud"},
		},
		Storage: StorageConfig{
			Path: "data/contractkit.db",
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		HTTP: HTTPConfig{
			Timeout:               600,
			ResponseHeaderTimeout: 600,
		},
	}
}

// Load reads configuration from path, the environment and a .env file.
// An empty path looks for config.yaml and config/config.yaml and skips the
// file layer if neither exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return data, nil
	}
	for _, candidate := range []string{"config.yaml", "config/config.yaml"} {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", candidate, err)
		}
	}
	return nil, nil
}

// Validate checks option combinations that cannot work.
func (c *Config) Validate() error {
	switch c.Stubs.Journal {
	case JournalMemory:
	case JournalRedis:
		if c.Stubs.RedisURL == "" {
			return fmt.Errorf("stubs.redis_url is required when stubs.journal is %q", JournalRedis)
		}
	default:
		return fmt.Errorf("unknown stubs.journal %q (valid: memory, redis)", c.Stubs.Journal)
	}
	if c.Server.BodySizeLimit <= 0 {
		return fmt.Errorf("server.body_size_limit must be positive")
	}
	if c.Stubs.JournalMaxEntries <= 0 {
		return fmt.Errorf("stubs.journal_max_entries must be positive")
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders. A variable
// that is unset or empty with no default is left as written.
func expandString(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]

		if val := os.Getenv(name); val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// applyEnvOverrides applies environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	setBool := func(key string, dst *bool) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	setString("PORT", &cfg.Server.Port)
	setString("MASTER_KEY", &cfg.Server.MasterKey)
	setString("STUB_PORT", &cfg.Stubs.Port)
	setString("JOURNAL_BACKEND", &cfg.Stubs.Journal)
	setString("REDIS_URL", &cfg.Stubs.RedisURL)
	setString("REDIS_KEY", &cfg.Stubs.RedisKey)
	setString("VERIFIER_BASE_URL", &cfg.Verifier.BaseURL)
	setString("CONTRACTS_DIR", &cfg.Contracts.Dir)
	setString("HISTORY_PATH", &cfg.Storage.Path)
	setString("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)
	setString("PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("LOG_LEVEL", &cfg.Log.Level)

	if v := os.Getenv("FRAUD_NAMES"); v != "" {
		var names []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		cfg.Fraud.Names = names
	}

	if v := os.Getenv("BODY_SIZE_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid BODY_SIZE_LIMIT: %w", err)
		}
		cfg.Server.BodySizeLimit = n
	}

	for _, err := range []error{
		setInt("JOURNAL_MAX_ENTRIES", &cfg.Stubs.JournalMaxEntries),
		setInt("HTTP_TIMEOUT", &cfg.HTTP.Timeout),
		setInt("HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout),
		setBool("METRICS_ENABLED", &cfg.Metrics.Enabled),
		setBool("LOG_NO_COLOR", &cfg.Log.NoColor),
		setBool("CONTRACTS_BUILTIN", &cfg.Contracts.Builtin),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Version string `yaml:"version"`
	Remote  Remote `yaml:"remote"`
	Scan    Scan   `yaml:"scan,omitempty"`
	Cache   Cache  `yaml:"cache,omitempty"`
	Serve   Serve  `yaml:"serve,omitempty"`
}

// Remote points at the scanning backend.
type Remote struct {
	Endpoint string        `yaml:"endpoint"`
	TokenEnv string        `yaml:"token_env,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	RetryMax time.Duration `yaml:"retry_max,omitempty"`
}

// Scan tunes run behavior.
type Scan struct {
	Concurrency int           `yaml:"concurrency,omitempty"`
	ResetWindow time.Duration `yaml:"reset_window,omitempty"`
}

// Cache tunes the metrics and regional caches.
type Cache struct {
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// Serve configures daemon mode.
type Serve struct {
	ListenAddr      string        `yaml:"listen_addr,omitempty"`
	CatalogInterval time.Duration `yaml:"catalog_interval,omitempty"`
	OTELEndpoint    string        `yaml:"otel_endpoint,omitempty"`
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a config with every tunable at its default, for use
// without a config file.
func Default() *Config {
	cfg := &Config{Version: "1"}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}
	if c.Scan.Concurrency == 0 {
		c.Scan.Concurrency = 8
	}
	if c.Scan.ResetWindow == 0 {
		c.Scan.ResetWindow = 3 * time.Second
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 30 * time.Second
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = ":8080"
	}
	if c.Serve.CatalogInterval == 0 {
		c.Serve.CatalogInterval = 5 * time.Minute
	}
}

// Token resolves the remote auth token from the configured environment
// variable. Empty when unset.
func (c *Config) Token() string {
	if c.Remote.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Remote.TokenEnv)
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Remote.Endpoint == "" {
		return fmt.Errorf("remote endpoint is required")
	}
	if c.Scan.Concurrency < 0 {
		return fmt.Errorf("scan concurrency must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}

// Package config resolves server settings from defaults, an optional
// JSON config file discovered near the working directory, and
// environment variables. Later sources win.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Candidate config file names, checked in order in each directory from
// the working directory upward.
var configFileNames = []string{
	".stackoverflow-mcp.json",
	"stackoverflow-mcp.config.json",
	filepath.Join("config", "stackoverflow-mcp.json"),
	filepath.Join(".config", "stackoverflow-mcp.json"),
}

// Config holds every tunable of the server.
type Config struct {
	APIKey               string  `json:"api_key"`
	BaseURL              string  `json:"base_url"`
	AccessMode           string  `json:"access_mode"`
	MaxConcurrentReqs    int     `json:"max_concurrent_requests"`
	RetryDelaySeconds    float64 `json:"retry_delay"`
	MaxContentLength     int     `json:"max_content_length"`
	CacheTTLSeconds      int     `json:"cache_ttl"`
	CacheMaxSize         int     `json:"cache_max_size"`
	LogLevel             string  `json:"log_level"`
	MetricsListenAddress string  `json:"metrics_addr"`

	// SourceFile records where file-based settings came from, for
	// startup logging. Empty when no config file was found.
	SourceFile string `json:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BaseURL:           "https://api.stackexchange.com/2.3",
		AccessMode:        "auto",
		MaxConcurrentReqs: 3,
		RetryDelaySeconds: 1.0,
		MaxContentLength:  50000,
		CacheTTLSeconds:   300,
		CacheMaxSize:      100,
		LogLevel:          "info",
	}
}

// Load resolves the effective configuration: defaults, then the first
// config file discovered walking up from the working directory, then
// environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := discoverConfigFile(); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
		cfg.SourceFile = path
	}

	cfg.mergeEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// discoverConfigFile walks from the working directory to the
// filesystem root looking for the first candidate file.
func discoverConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		for _, name := range configFileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	// Decode over the existing values so absent keys keep defaults.
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	if v := os.Getenv("STACKOVERFLOW_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("STACKOVERFLOW_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("STACKOVERFLOW_ACCESS_MODE"); v != "" {
		c.AccessMode = v
	}
	if v := os.Getenv("MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrentReqs = n
		}
	}
	if v := os.Getenv("RETRY_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RetryDelaySeconds = f
		}
	}
	if v := os.Getenv("MAX_CONTENT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxContentLength = n
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheMaxSize = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsListenAddress = v
	}
}

func (c *Config) validate() error {
	switch c.AccessMode {
	case "auto", "authenticated", "unauthenticated":
	default:
		return fmt.Errorf("invalid access_mode %q: must be auto, authenticated or unauthenticated", c.AccessMode)
	}
	if c.MaxConcurrentReqs < 1 {
		return fmt.Errorf("max_concurrent_requests must be at least 1, got %d", c.MaxConcurrentReqs)
	}
	if c.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %v", c.RetryDelaySeconds)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %d", c.CacheTTLSeconds)
	}
	if c.CacheMaxSize < 1 {
		return fmt.Errorf("cache_max_size must be at least 1, got %d", c.CacheMaxSize)
	}
	return nil
}

// RetryDelay returns the retry delay as a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds * float64(time.Second))
}

// CacheTTL returns the cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Package config handles dealbridge configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized in addition to the config file.
// Secrets supplied through the environment always win over the file.
const (
	EnvCookie    = "DEALBRIDGE_COOKIE"     // full cookie header string
	EnvToken     = "DEALBRIDGE_TOKEN"      // stable token by itself
	EnvSession   = "DEALBRIDGE_SESSION"    // rotating session token by itself
	EnvUserID    = "DEALBRIDGE_USER_ID"    // default user id for message tools
	EnvLogLevel  = "DEALBRIDGE_LOG_LEVEL"  // overrides log_level
	EnvPlatform  = "DEALBRIDGE_PLATFORM"   // overrides platform.base_url
	EnvSearchApp = "DEALBRIDGE_SEARCH_APP" // overrides search.app_id
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/dealbridge/config.yaml, /etc/dealbridge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dealbridge", "config.yaml"))
	}

	paths = append(paths, "/etc/dealbridge/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns an empty path (not an error) when nothing is found: dealbridge can
// run entirely from environment variables.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// Config holds all dealbridge configuration.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Search   SearchConfig   `yaml:"search"`
	Wait     WaitConfig     `yaml:"wait"`
	LogLevel string         `yaml:"log_level"`
}

// PlatformConfig defines the target platform connection settings.
type PlatformConfig struct {
	// BaseURL is the platform origin (scheme + host, no trailing slash).
	BaseURL string `yaml:"base_url"`
	// Cookie is a raw cookie header string holding both session cookies.
	// Prefer the environment or the keychain for real deployments.
	Cookie string `yaml:"cookie"`
	// UserID is the default user id for get_new_messages.
	UserID string `yaml:"user_id"`
}

// SearchConfig defines the hosted deal search index settings.
type SearchConfig struct {
	// AppID is the search application id (forms the query hostname).
	AppID string `yaml:"app_id"`
	// Index is the deal index name.
	Index string `yaml:"index"`
	// KeyPage is the platform path scraped for the secured search key.
	KeyPage string `yaml:"key_page"`
}

// WaitConfig defines reply-wait defaults. Individual tool calls may
// override the timeout per invocation.
type WaitConfig struct {
	// TimeoutSec is the default reply-wait deadline in seconds.
	TimeoutSec int `yaml:"timeout_sec"`
	// PollIntervalSec is the fixed sleep between history polls in seconds.
	PollIntervalSec int `yaml:"poll_interval_sec"`
}

// Timeout returns the default reply-wait deadline as a duration.
func (w WaitConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSec) * time.Second
}

// PollInterval returns the sleep between history polls as a duration.
func (w WaitConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSec) * time.Second
}

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment variables over file-sourced values.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPlatform); v != "" {
		c.Platform.BaseURL = v
	}
	if v := os.Getenv(EnvCookie); v != "" {
		c.Platform.Cookie = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		c.Platform.UserID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvSearchApp); v != "" {
		c.Search.AppID = v
	}
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL: "https://www.dealloft.com",
		},
		Search: SearchConfig{
			Index:   "deals_production",
			KeyPage: "/browse",
		},
		Wait: WaitConfig{
			TimeoutSec:      120,
			PollIntervalSec: 3,
		},
	}
}

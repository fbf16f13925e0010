package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sentiment providers
const (
	ProviderRemote    = "remote"
	ProviderAnthropic = "anthropic"
)

const appName = "threadsense"

// Config holds all application configuration
type Config struct {
	Version   int             `toml:"version" mapstructure:"version"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Scraping  ScrapingConfig  `toml:"scraping" mapstructure:"scraping"`
	Facebook  FacebookConfig  `toml:"facebook" mapstructure:"facebook"`
	Sentiment SentimentConfig `toml:"sentiment" mapstructure:"sentiment"`
	Insights  InsightsConfig  `toml:"insights" mapstructure:"insights"`
	Archive   ArchiveConfig   `toml:"archive" mapstructure:"archive"`
	Debug     DebugConfig     `toml:"debug" mapstructure:"debug"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host string `toml:"host" mapstructure:"host"`
	Port int    `toml:"port" mapstructure:"port"`
}

type ScrapingConfig struct {
	Headless                 bool     `toml:"headless" mapstructure:"headless"`
	UserAgent                string   `toml:"user_agent" mapstructure:"user_agent"`
	MaxComments              int      `toml:"max_comments" mapstructure:"max_comments"`
	StallTolerance           int      `toml:"stall_tolerance" mapstructure:"stall_tolerance"`
	MaxIterations            int      `toml:"max_iterations" mapstructure:"max_iterations"`
	SettleDelayMs            int      `toml:"settle_delay_ms" mapstructure:"settle_delay_ms"`
	RequestTimeoutSeconds    int      `toml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	NavigationTimeoutSeconds int      `toml:"navigation_timeout_seconds" mapstructure:"navigation_timeout_seconds"`
	NavigationRetries        int      `toml:"navigation_retries" mapstructure:"navigation_retries"`
	MaxSessions              int      `toml:"max_sessions" mapstructure:"max_sessions"`
	LoadMoreLabels           []string `toml:"load_more_labels" mapstructure:"load_more_labels"`
}

// SettleDelay is how long to wait for the page after each trigger
func (s ScrapingConfig) SettleDelay() time.Duration {
	return time.Duration(s.SettleDelayMs) * time.Millisecond
}

// RequestTimeout bounds a whole scrape request
func (s ScrapingConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// NavigationTimeout bounds loading the post page
func (s ScrapingConfig) NavigationTimeout() time.Duration {
	return time.Duration(s.NavigationTimeoutSeconds) * time.Second
}

type FacebookConfig struct {
	BaseURL      string `toml:"base_url" mapstructure:"base_url"`
	Email        string `toml:"email" mapstructure:"email"`
	Password     string `toml:"password" mapstructure:"password"`
	CookiesPath  string `toml:"cookies_path" mapstructure:"cookies_path"`
	RequireLogin bool   `toml:"require_login" mapstructure:"require_login"`
}

type SentimentConfig struct {
	Provider       string `toml:"provider" mapstructure:"provider"`
	Endpoint       string `toml:"endpoint" mapstructure:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Concurrency    int    `toml:"concurrency" mapstructure:"concurrency"`
	APIKey         string `toml:"api_key" mapstructure:"api_key"`
	Model          string `toml:"model" mapstructure:"model"`
}

// Timeout bounds a single classification call
func (s SentimentConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type InsightsConfig struct {
	Enabled   bool   `toml:"enabled" mapstructure:"enabled"`
	APIKey    string `toml:"api_key" mapstructure:"api_key"`
	Model     string `toml:"model" mapstructure:"model"`
	Language  string `toml:"language" mapstructure:"language"`
	MaxTokens int    `toml:"max_tokens" mapstructure:"max_tokens"`
}

type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled" mapstructure:"enabled"`
	Path          string `toml:"path" mapstructure:"path"`
	RetentionDays int    `toml:"retention_days" mapstructure:"retention_days"`
	PruneSchedule string `toml:"prune_schedule" mapstructure:"prune_schedule"`
}

// DBPath returns the archive location, defaulting to the config dir
func (a ArchiveConfig) DBPath() (string, error) {
	if a.Path != "" {
		return a.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "archive.db"), nil
}

// Retention is how long archived scrapes are kept
func (a ArchiveConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

type DebugConfig struct {
	DumpSteps bool `toml:"dump_steps" mapstructure:"dump_steps"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

// DefaultLoadMoreLabels are matched case-insensitively against control text
var DefaultLoadMoreLabels = []string{
	"view more comments",
	"previous comments",
	"view more replies",
	"load more comments",
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Scraping: ScrapingConfig{
			Headless:                 true,
			MaxComments:              50,
			StallTolerance:           3,
			MaxIterations:            50,
			SettleDelayMs:            2000,
			RequestTimeoutSeconds:    60,
			NavigationTimeoutSeconds: 60,
			NavigationRetries:        1,
			MaxSessions:              2,
			LoadMoreLabels:           append([]string(nil), DefaultLoadMoreLabels...),
		},
		Facebook: FacebookConfig{
			BaseURL:      "https://www.facebook.com",
			RequireLogin: true,
		},
		Sentiment: SentimentConfig{
			Provider:       ProviderRemote,
			Endpoint:       "http://localhost:8000",
			TimeoutSeconds: 30,
			Concurrency:    4,
			Model:          "claude-sonnet-4-20250514",
		},
		Insights: InsightsConfig{
			Enabled:   false,
			Model:     "claude-sonnet-4-20250514",
			Language:  "Marathi",
			MaxTokens: 2048,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks values that would make the scraper misbehave
func (c *Config) Validate() error {
	s := c.Scraping
	switch {
	case s.MaxComments <= 0:
		return fmt.Errorf("scraping.max_comments must be positive, got %d", s.MaxComments)
	case s.StallTolerance <= 0:
		return fmt.Errorf("scraping.stall_tolerance must be positive, got %d", s.StallTolerance)
	case s.MaxIterations <= 0:
		return fmt.Errorf("scraping.max_iterations must be positive, got %d", s.MaxIterations)
	case s.SettleDelayMs < 0:
		return fmt.Errorf("scraping.settle_delay_ms must not be negative, got %d", s.SettleDelayMs)
	case s.RequestTimeoutSeconds <= 0 || s.NavigationTimeoutSeconds <= 0:
		return errors.New("scraping timeouts must be positive")
	case s.MaxSessions <= 0:
		return fmt.Errorf("scraping.max_sessions must be positive, got %d", s.MaxSessions)
	}

	switch c.Sentiment.Provider {
	case ProviderRemote, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown sentiment provider: %s", c.Sentiment.Provider)
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file.
// THREADSENSE_CONFIG overrides the platform default.
func ConfigPath() (string, error) {
	if p := os.Getenv("THREADSENSE_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the directory used for debug dumps and the archive
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// Load reads .env, the config file and the environment, in that order
// of increasing precedence over the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile builds a Config from defaults, the toml file at path (if it
// exists) and environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	var defaults bytes.Buffer
	if err := toml.NewEncoder(&defaults).Encode(Default()); err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := v.ReadConfig(&defaults); err != nil {
		return nil, fmt.Errorf("failed to read defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	v.SetEnvPrefix("THREADSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("facebook.email", "THREADSENSE_FACEBOOK_EMAIL", "FB_EMAIL")
	v.BindEnv("facebook.password", "THREADSENSE_FACEBOOK_PASSWORD", "FB_PASSWORD")
	v.BindEnv("sentiment.api_key", "THREADSENSE_SENTIMENT_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("insights.api_key", "THREADSENSE_INSIGHTS_API_KEY", "ANTHROPIC_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes config to the given path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

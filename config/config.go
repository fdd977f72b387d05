package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the crawl-and-notify pipeline.
type Config struct {
	// BaseURL is the marketplace catalog endpoint searches are built against.
	BaseURL string

	// DatabaseURL is the Postgres DSN. When empty the process falls back to
	// the in-memory store, which is only useful for demos and tests.
	DatabaseURL string

	// ListenAddr serves the trigger/status API.
	ListenAddr string
	// MetricsAddr serves Prometheus metrics; empty disables the listener.
	MetricsAddr string

	// MaxSessions caps concurrent scraping sessions system-wide.
	MaxSessions int

	// TokenInterval is the per-session pacing budget: one page fetch token
	// per interval.
	TokenInterval time.Duration

	// NavTimeout bounds a single page fetch, headers through body. A page
	// arriving without the item grid counts as end-of-results, so there is
	// no separate content wait.
	NavTimeout time.Duration
	// InterPageDelay is the fixed pause between pages of one profile.
	InterPageDelay time.Duration

	// PreNavDelayMin/Max bound the randomized delay applied before every
	// page load.
	PreNavDelayMin time.Duration
	PreNavDelayMax time.Duration
	// BlockCooldownMin/Max bound the longer delay applied after a detected
	// block page, before the profile's crawl is abandoned.
	BlockCooldownMin time.Duration
	BlockCooldownMax time.Duration

	// SendDelay is the pause between successful webhook deliveries.
	SendDelay time.Duration
	// RateLimitFallback is the cooldown used when a 429 response carries no
	// Retry-After header.
	RateLimitFallback time.Duration

	// ScrapeInterval is the period of the recurring run trigger.
	ScrapeInterval time.Duration

	Verbose bool
}

// DefaultConfig returns the defaults the original deployment ran with.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://www.vinted.pt/catalog",
		ListenAddr:        ":3001",
		MetricsAddr:       "",
		MaxSessions:       5,
		TokenInterval:     2 * time.Second,
		NavTimeout:        30 * time.Second,
		InterPageDelay:    2 * time.Second,
		PreNavDelayMin:    time.Second,
		PreNavDelayMax:    2 * time.Second,
		BlockCooldownMin:  3 * time.Second,
		BlockCooldownMax:  5 * time.Second,
		SendDelay:         100 * time.Millisecond,
		RateLimitFallback: 10 * time.Second,
		ScrapeInterval:    15 * time.Minute,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive")
	}
	if c.TokenInterval <= 0 {
		return fmt.Errorf("token interval must be positive")
	}
	if c.NavTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
if c.InterPageDelay < 0 {
		return fmt.Errorf("inter-page delay cannot be negative")
	}
	if c.PreNavDelayMin < 0 || c.PreNavDelayMax < c.PreNavDelayMin {
		return fmt.Errorf("pre-navigation delay bounds are incoherent")
	}
	if c.BlockCooldownMin < 0 || c.BlockCooldownMax < c.BlockCooldownMin {
		return fmt.Errorf("block cooldown bounds are incoherent")
	}
	if c.SendDelay < 0 {
		return fmt.Errorf("send delay cannot be negative")
	}
	if c.RateLimitFallback <= 0 {
		return fmt.Errorf("rate limit fallback must be positive")
	}
	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("scrape interval must be positive")
	}
	return nil
}

// EnvString reads a string environment variable.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration reads a duration environment variable (e.g. "15m", "2s").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}

// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`

	// ShareOrigin is the public editor URL share links and embeds point at.
	ShareOrigin   string        `yaml:"share_origin"`
	SaveTimeout   time.Duration `yaml:"save_timeout"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	FetchMaxBytes int64         `yaml:"fetch_max_bytes"`
	MaxSessions   int           `yaml:"max_sessions"`

	// FetchAllowPrivate lets ?map= URLs point at loopback and private
	// addresses. Only for deployments on a trusted network.
	FetchAllowPrivate bool `yaml:"fetch_allow_private"`

	// SessionIdle is how long an unused session lives before it is closed.
	SessionIdle  time.Duration `yaml:"session_idle"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	DefaultView  View          `yaml:"default_view"`
}

// View is the map position new sessions start at when nothing was loaded.
type View struct {
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
	Zoom int     `yaml:"zoom"`
}

func Default() Config {
	return Config{
		HTTPAddr:      ":8081",
		LogLevel:      "info",
		ShareOrigin:   "http://localhost:8081/",
		SaveTimeout:   5 * time.Second,
		FetchTimeout:  10 * time.Second,
		FetchMaxBytes: 8 << 20,
		MaxSessions:   1000,
		SessionIdle:   2 * time.Hour,
		ReapInterval:  time.Minute,
		DefaultView:   View{Lat: 52.4862, Lng: -1.8904, Zoom: 13},
	}
}

// Load reads CONFIG_FILE when set, then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.ShareOrigin = envOr("SHARE_ORIGIN", cfg.ShareOrigin)

	var err error
	if cfg.SaveTimeout, err = envDuration("SAVE_TIMEOUT", cfg.SaveTimeout); err != nil {
		return cfg, err
	}
	if cfg.FetchTimeout, err = envDuration("FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return cfg, err
	}
	if cfg.SessionIdle, err = envDuration("SESSION_IDLE", cfg.SessionIdle); err != nil {
		return cfg, err
	}
	if cfg.ReapInterval, err = envDuration("REAP_INTERVAL", cfg.ReapInterval); err != nil {
		return cfg, err
	}
	if v := os.Getenv("FETCH_ALLOW_PRIVATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("config: FETCH_ALLOW_PRIVATE: %w", err)
		}
		cfg.FetchAllowPrivate = b
	}
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("config: MAX_SESSIONS must be a positive integer, got %q", v)
		}
		cfg.MaxSessions = n
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SESSION_IDLE", "")
	t.Setenv("REAP_INTERVAL", "")
	t.Setenv("FETCH_ALLOW_PRIVATE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8081" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.FetchAllowPrivate {
		t.Fatalf("private fetch destinations must be off by default")
	}
	if cfg.SessionIdle != 2*time.Hour || cfg.ReapInterval != time.Minute {
		t.Fatalf("unexpected session lifetime defaults %v %v", cfg.SessionIdle, cfg.ReapInterval)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streetsketch.yaml")
	yml := `
http_addr: ":9000"
log_level: debug
save_timeout: 2s
fetch_allow_private: true
default_view:
  lat: 51.5
  lng: -0.12
  zoom: 12
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("MAX_SESSIONS", "5")
	t.Setenv("FETCH_ALLOW_PRIVATE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("expected file value for addr, got %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected env override for log level, got %q", cfg.LogLevel)
	}
	if cfg.SaveTimeout != 2*time.Second {
		t.Fatalf("expected 2s save timeout, got %v", cfg.SaveTimeout)
	}
	if cfg.DefaultView.Zoom != 12 || cfg.DefaultView.Lat != 51.5 {
		t.Fatalf("unexpected default view %+v", cfg.DefaultView)
	}
	if cfg.MaxSessions != 5 {
		t.Fatalf("expected 5 sessions, got %d", cfg.MaxSessions)
	}
	if !cfg.FetchAllowPrivate {
		t.Fatalf("expected fetch_allow_private from file")
	}
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SAVE_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad duration")
	}

	t.Setenv("SAVE_TIMEOUT", "")
	t.Setenv("MAX_SESSIONS", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad session limit")
	}

	t.Setenv("MAX_SESSIONS", "")
	t.Setenv("FETCH_ALLOW_PRIVATE", "maybe")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad FETCH_ALLOW_PRIVATE")
	}
}

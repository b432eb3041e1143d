package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lrhodin/chatcache/pkg/chatcache"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Cache.Path != "./data/chatcache.db" {
		t.Errorf("path: got %q", cfg.Cache.Path)
	}
	if cfg.Cache.Engine != chatcache.EngineAuto {
		t.Errorf("engine: got %q", cfg.Cache.Engine)
	}
	if cfg.Cache.MaxMessages != 5000 || cfg.Cache.RetentionDays != 30 {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Watch.SweepInterval != time.Hour {
		t.Errorf("sweep interval: got %s", cfg.Watch.SweepInterval)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("debounce: got %s", cfg.Watch.Debounce)
	}
	if len(cfg.Logging.Writers) != 1 {
		t.Errorf("expected 1 default log writer, got %d", len(cfg.Logging.Writers))
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `cache:
    engine: gorm
    max_messages: 10
watch:
    sweep_interval: 5m
    metrics_listen: 127.0.0.1:9101
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Cache.Engine != chatcache.EngineGorm || cfg.Cache.MaxMessages != 10 {
		t.Errorf("cache overrides not applied: %+v", cfg.Cache)
	}
	if cfg.Cache.Path != "./data/chatcache.db" {
		t.Errorf("expected default path to survive, got %q", cfg.Cache.Path)
	}
	if cfg.Watch.SweepInterval != 5*time.Minute || cfg.Watch.MetricsListen != "127.0.0.1:9101" {
		t.Errorf("watch overrides not applied: %+v", cfg.Watch)
	}
	if cfg.Path != path {
		t.Errorf("expected Path %q, got %q", path, cfg.Path)
	}
}

func TestLoadConfigRejectsUnknownEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("cache:\n    engine: redis\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestNewLoggerFallsBackWithoutWriters(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	cfg.Logging.Writers = nil
	if _, err := cfg.newLogger(); err != nil {
		t.Errorf("expected console fallback, got %v", err)
	}
}

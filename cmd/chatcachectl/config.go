package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/lrhodin/chatcache/pkg/chatcache"
)

//go:embed example-config.yaml
var ExampleConfig string

type WatchConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Debounce      time.Duration `yaml:"debounce"`
	MetricsListen string        `yaml:"metrics_listen"`
}

type Config struct {
	Cache   chatcache.Config  `yaml:"cache"`
	Watch   WatchConfig       `yaml:"watch"`
	Logging zeroconfig.Config `yaml:"logging"`
	Path    string            `yaml:"-"`
}

// loadConfig reads the YAML config at path on top of the example config.
// A missing file yields the example defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	cfg.Path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to open config at %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config at %s: %w", path, err)
	}
	if err = cfg.Cache.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	if cfg.Watch.SweepInterval < 0 {
		return nil, fmt.Errorf("invalid config at %s: negative sweep_interval", path)
	} else if cfg.Watch.Debounce < 0 {
		return nil, fmt.Errorf("invalid config at %s: negative debounce", path)
	}
	return &cfg, nil
}

// newLogger compiles the logging section, falling back to a console writer
// on stderr when no writers are configured.
func (cfg *Config) newLogger() (zerolog.Logger, error) {
	if len(cfg.Logging.Writers) == 0 {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger(), nil
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to configure logging: %w", err)
	}
	return *log, nil
}

package chatcache

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte("path: /tmp/x.db\n"), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if cfg.Path != "/tmp/x.db" {
		t.Errorf("path: got %q", cfg.Path)
	}
	if cfg.Engine != EngineAuto {
		t.Errorf("engine: expected %q, got %q", EngineAuto, cfg.Engine)
	}
	if cfg.MaxMessages != DefaultMaxMessages || cfg.LoadLimit != DefaultLoadLimit || cfg.RetentionDays != DefaultRetentionDays {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigEngine(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"engine: gorm", EngineGorm, false},
		{"engine: DBUtil", EngineDBUtil, false},
		{"engine: ' auto '", EngineAuto, false},
		{"engine: mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var cfg Config
			err := yaml.Unmarshal([]byte(tt.input), &cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if cfg.Engine != tt.want {
				t.Errorf("expected %q, got %q", tt.want, cfg.Engine)
			}
		})
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/9triver/fornax/internal/config"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	if cfg.DurationSeconds != 30 {
		t.Errorf("expected default duration 30, got %d", cfg.DurationSeconds)
	}
	if cfg.Workers < 1 {
		t.Errorf("expected at least one worker by default, got %d", cfg.Workers)
	}
	if cfg.MatrixSize != 800 {
		t.Errorf("expected default matrix size 800, got %d", cfg.MatrixSize)
	}
	if cfg.GPUMatrixSize != 4096 {
		t.Errorf("expected default gpu matrix size 4096, got %d", cfg.GPUMatrixSize)
	}
	if cfg.MonitorIntervalSeconds != 2.0 {
		t.Errorf("expected default monitor interval 2.0, got %g", cfg.MonitorIntervalSeconds)
	}
	if cfg.SpawnStaggerMillis != 100 {
		t.Errorf("expected default spawn stagger 100ms, got %d", cfg.SpawnStaggerMillis)
	}
	if cfg.GracePeriodSeconds != 2 {
		t.Errorf("expected default grace period 2s, got %d", cfg.GracePeriodSeconds)
	}
	if cfg.GPU {
		t.Error("gpu workers must be opt-in")
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &config.Config{
		DurationSeconds: 5,
		Workers:         2,
		MatrixSize:      64,
	}
	config.ApplyDefaults(cfg)

	if cfg.DurationSeconds != 5 || cfg.Workers != 2 || cfg.MatrixSize != 64 {
		t.Errorf("explicit values must survive defaulting, got %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	// 写入一个部分填写的配置文件，未填写的字段应获得默认值
	content := `duration_seconds: 10
workers: 3
gpu: true
monitor_interval_seconds: 0.5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DurationSeconds != 10 {
		t.Errorf("expected duration 10, got %d", cfg.DurationSeconds)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers)
	}
	if !cfg.GPU {
		t.Error("expected gpu enabled")
	}
	if cfg.MonitorIntervalSeconds != 0.5 {
		t.Errorf("expected monitor interval 0.5, got %g", cfg.MonitorIntervalSeconds)
	}
	if cfg.MatrixSize != 800 {
		t.Errorf("unset matrix size should default to 800, got %d", cfg.MatrixSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("workers: [not a number"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *config.Config) {}, false},
		{"zero duration is valid", func(c *config.Config) { c.DurationSeconds = 0 }, false},
		{"negative duration", func(c *config.Config) { c.DurationSeconds = -1 }, true},
		{"negative workers", func(c *config.Config) { c.Workers = -2 }, true},
		{"zero matrix size", func(c *config.Config) { c.MatrixSize = 0 }, true},
		{"zero gpu matrix size", func(c *config.Config) { c.GPUMatrixSize = 0 }, true},
		{"negative monitor interval", func(c *config.Config) { c.MonitorIntervalSeconds = -0.5 }, true},
		{"negative stagger", func(c *config.Config) { c.SpawnStaggerMillis = -10 }, true},
		{"negative grace period", func(c *config.Config) { c.GracePeriodSeconds = -1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			tc.mutate(cfg)
			// Validate 不修改配置，仅报告第一个非法项
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &config.Config{
		DurationSeconds:        30,
		MonitorIntervalSeconds: 0.5,
		SpawnStaggerMillis:     100,
		GracePeriodSeconds:     2,
	}

	if cfg.Duration() != 30*time.Second {
		t.Errorf("Duration: got %v", cfg.Duration())
	}
	if cfg.MonitorInterval() != 500*time.Millisecond {
		t.Errorf("MonitorInterval: got %v", cfg.MonitorInterval())
	}
	if cfg.SpawnStagger() != 100*time.Millisecond {
		t.Errorf("SpawnStagger: got %v", cfg.SpawnStagger())
	}
	if cfg.GracePeriod() != 2*time.Second {
		t.Errorf("GracePeriod: got %v", cfg.GracePeriod())
	}
}

func TestDefaultWorkers(t *testing.T) {
	if n := config.DefaultWorkers(); n < 1 {
		t.Errorf("DefaultWorkers must be at least 1, got %d", n)
	}
}

// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %v, want %v", cfg.Audio.SampleRate, DefaultSampleRate)
	}
	if len(cfg.Model.Labels) != 3 {
		t.Errorf("expected 3 default labels, got %v", cfg.Model.Labels)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeTempConfig(t, `
audio:
  sample_rate: 16000
  segment_seconds: 0.25
  window_seconds: 5
model:
  labels: [a, b]
  device: accelerated
inference:
  policy: drop
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.ChunkLen(); got != 4000 {
		t.Errorf("ChunkLen = %d, want 4000", got)
	}
	if got := cfg.MaxChunks(); got != 20 {
		t.Errorf("MaxChunks = %d, want 20", got)
	}
	if got := cfg.ModelLen(); got != 160000 {
		t.Errorf("ModelLen = %d, want 160000", got)
	}
	if strings.Join(cfg.Model.Labels, ",") != "a,b" {
		t.Errorf("Labels = %v", cfg.Model.Labels)
	}
	if cfg.Inference.Policy != "drop" {
		t.Errorf("Policy = %q", cfg.Inference.Policy)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LID_MODEL_PATH", "/models/lid.yaml")
	t.Setenv("LID_UDP_TARGET", "10.0.0.1:7000")
	t.Setenv("LID_MODEL_THREADS", "3")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model.Path != "/models/lid.yaml" {
		t.Errorf("Model.Path = %q", cfg.Model.Path)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.1:7000" {
		t.Errorf("UDP override not applied: %+v", cfg.Transport)
	}
	if cfg.Threads(8) != 3 {
		t.Errorf("Threads = %d, want 3", cfg.Threads(8))
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LID_LOG_LEVEL", "") // restored by t.Setenv cleanup
	os.Unsetenv("LID_LOG_LEVEL")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LID_LOG_LEVEL=debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from .env", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 4000 }, "sample_rate"},
		{"zero segment", func(c *Config) { c.Audio.SegmentSeconds = 0 }, "segment_seconds"},
		{"window shorter than segment", func(c *Config) { c.Audio.WindowSeconds = 0.1 }, "window_seconds"},
		{"no labels", func(c *Config) { c.Model.Labels = nil }, "labels"},
		{"duplicate labels", func(c *Config) { c.Model.Labels = []string{"a", "a"} }, "duplicate"},
		{"bad device", func(c *Config) { c.Model.Device = "tpu" }, "model.device"},
		{"bad policy", func(c *Config) { c.Inference.Policy = "queue" }, "policy"},
		{"gate above one", func(c *Config) { c.Inference.GateThreshold = 2 }, "gate_threshold"},
		{"bit depth", func(c *Config) { c.Recording.BitDepth = 8 }, "bit_depth"},
		{"udp without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.substr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.substr)
			}
		})
	}
}

func TestDerivedSizes(t *testing.T) {
	cfg := Default()
	if cfg.ChunkLen() != 4000 {
		t.Errorf("ChunkLen = %d, want 4000", cfg.ChunkLen())
	}
	if cfg.MaxChunks() != 20 {
		t.Errorf("MaxChunks = %d, want 20", cfg.MaxChunks())
	}
	if cfg.ModelLen() != 80000 {
		t.Errorf("ModelLen = %d, want 80000", cfg.ModelLen())
	}
	if cfg.Threads(4) != 4 {
		t.Errorf("Threads fallback = %d, want 4", cfg.Threads(4))
	}
}

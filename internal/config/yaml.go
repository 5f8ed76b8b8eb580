// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Capture and playback settings.
	Model     ModelConfig     `yaml:"model"`     // Classifier settings.
	Inference InferenceConfig `yaml:"inference"` // Dispatch settings.
	Recording RecordingConfig `yaml:"recording"` // Window export and file playback settings.
	Transport TransportConfig `yaml:"transport"` // Result sinks.
	Metrics   MetricsConfig   `yaml:"metrics"`   // Prometheus endpoint.

	// Runtime options that only come from the command line.
	Command   string   `yaml:"-"` // One-off command ("list", "classify").
	Args      []string `yaml:"-"` // Positional arguments of the command.
	InputFile string   `yaml:"-"` // WAV file used instead of the microphone.
	Headless  bool     `yaml:"-"` // Log results instead of running the TUI.
	Verbose   bool     `yaml:"-"` // Force debug logging.
}

// AudioConfig holds settings related to audio input/output.
type AudioConfig struct {
	InputDevice    int     `yaml:"input_device"`    // PortAudio device index for capture (-1 for default).
	OutputDevice   int     `yaml:"output_device"`   // PortAudio device index for playback (-1 for default).
	SampleRate     float64 `yaml:"sample_rate"`     // Sample rate in Hz.
	SegmentSeconds float64 `yaml:"segment_seconds"` // Duration of one captured chunk.
	WindowSeconds  float64 `yaml:"window_seconds"`  // Duration of the rolling window.
	LowLatency     bool    `yaml:"low_latency"`     // Request low latency settings from PortAudio.
}

// ModelConfig holds classifier settings.
type ModelConfig struct {
	Path         string   `yaml:"path"`          // Model file.
	Labels       []string `yaml:"labels"`        // Class labels in model output order.
	InputSeconds float64  `yaml:"input_seconds"` // Model input duration.
	Device       string   `yaml:"device"`        // "cpu" or "accelerated".
	Threads      int      `yaml:"threads"`       // Parallelism hint (0 = number of CPUs).
	FFTWindow    string   `yaml:"fft_window"`    // Window function used by feature extraction.
}

// InferenceConfig holds dispatcher settings.
type InferenceConfig struct {
	Policy        string  `yaml:"policy"`         // "coalesce" or "drop" when an inference is already running.
	GateThreshold float64 `yaml:"gate_threshold"` // Skip inference while the window peak is below this (0-1).
}

// RecordingConfig holds settings related to WAV output.
type RecordingConfig struct {
	OutputDir string `yaml:"output_dir"` // Directory for saved windows and file playback.
	BitDepth  int    `yaml:"bit_depth"`  // Bit depth for written WAV files (16, 24, 32).
}

// TransportConfig holds settings related to publishing results.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Broadcast results to WebSocket clients.
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address for the /ws endpoint.
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send result packets over UDP.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets.
}

// MetricsConfig holds settings for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:    DefaultInputDevice,
			OutputDevice:   DefaultOutputDevice,
			SampleRate:     DefaultSampleRate,
			SegmentSeconds: DefaultSegmentSeconds,
			WindowSeconds:  DefaultWindowSeconds,
			LowLatency:     DefaultLowLatency,
		},
		Model: ModelConfig{
			Path:         DefaultModelPath,
			Labels:       append([]string(nil), DefaultLabels...),
			InputSeconds: DefaultModelSeconds,
			Device:       DefaultModelDevice,
			FFTWindow:    DefaultFFTWindow,
		},
		Inference: InferenceConfig{
			Policy:        DefaultPolicy,
			GateThreshold: DefaultGateThreshold,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultOutputDir,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTargetAddress,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A ".env" file in the working directory is loaded into the environment
// first, then LID_* environment variables override file values and the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if path == "" {
		candidates := []string{"config.yaml", "lid.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges and the relationships between durations.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.SegmentSeconds <= 0 {
		return fmt.Errorf("audio.segment_seconds must be positive, got %v", c.Audio.SegmentSeconds)
	}
	if c.Audio.WindowSeconds < c.Audio.SegmentSeconds {
		return fmt.Errorf("audio.window_seconds (%v) must be at least segment_seconds (%v)",
			c.Audio.WindowSeconds, c.Audio.SegmentSeconds)
	}
	if c.ChunkLen() < 1 {
		return fmt.Errorf("audio.segment_seconds %v is shorter than one sample", c.Audio.SegmentSeconds)
	}
	if c.Audio.InputDevice < MinDeviceID || c.Audio.OutputDevice < MinDeviceID {
		return fmt.Errorf("device ids must be >= %d", MinDeviceID)
	}

	if c.Model.InputSeconds <= 0 {
		return fmt.Errorf("model.input_seconds must be positive, got %v", c.Model.InputSeconds)
	}
	if len(c.Model.Labels) == 0 {
		return fmt.Errorf("model.labels must not be empty")
	}
	seen := make(map[string]bool, len(c.Model.Labels))
	for _, l := range c.Model.Labels {
		if l == "" {
			return fmt.Errorf("model.labels contains an empty label")
		}
		if seen[l] {
			return fmt.Errorf("model.labels contains duplicate label %q", l)
		}
		seen[l] = true
	}
	switch strings.ToLower(c.Model.Device) {
	case "cpu", "accelerated", "gpu", "nnapi":
	default:
		return fmt.Errorf("model.device %q is not one of cpu, accelerated", c.Model.Device)
	}
	if c.Model.Threads < 0 {
		return fmt.Errorf("model.threads must not be negative")
	}

	switch strings.ToLower(c.Inference.Policy) {
	case "coalesce", "drop":
	default:
		return fmt.Errorf("inference.policy %q is not one of coalesce, drop", c.Inference.Policy)
	}
	if c.Inference.GateThreshold < 0 || c.Inference.GateThreshold > 1 {
		return fmt.Errorf("inference.gate_threshold must be within [0, 1], got %v", c.Inference.GateThreshold)
	}

	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
	}

	if c.Transport.UDPEnabled && !strings.Contains(c.Transport.UDPTargetAddress, ":") {
		return fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("LID_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("LID_MODEL_PATH"); ok {
		c.Model.Path = val
	}
	if val, ok := os.LookupEnv("LID_MODEL_DEVICE"); ok {
		c.Model.Device = val
	}
	if val, ok := os.LookupEnv("LID_MODEL_THREADS"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Model.Threads = n
		}
	}

	// LID_WS_ADDRESS and LID_UDP_TARGET enable their transport when set.
	if val, ok := os.LookupEnv("LID_WS_ADDRESS"); ok {
		c.Transport.WebSocketEnabled = true
		c.Transport.WebSocketAddress = val
	}
	if val, ok := os.LookupEnv("LID_UDP_TARGET"); ok {
		c.Transport.UDPEnabled = true
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("LID_METRICS_ADDRESS"); ok {
		c.Metrics.Enabled = true
		c.Metrics.Address = val
	}
}

package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lid/internal/analysis"
)

// Model is the on-disk form of a Spectral classifier: a linear model over
// standardized log band energies.
type Model struct {
	Labels       []string `yaml:"labels"`
	SampleRate   int      `yaml:"sample_rate"`
	InputSeconds float64  `yaml:"input_seconds"`
	FFTSize      int      `yaml:"fft_size"`
	FFTWindow    string   `yaml:"fft_window"`

	// Bands lists the feature bands explicitly. When empty, MelBands bands
	// are spread between LowHz and HighHz.
	Bands    []analysis.Band `yaml:"bands"`
	MelBands int             `yaml:"mel_bands"`
	LowHz    float64         `yaml:"low_hz"`
	HighHz   float64         `yaml:"high_hz"`

	// Features are standardized as (f - Mean) / Scale when these are set.
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`

	Weights [][]float64 `yaml:"weights"` // classes x features
	Bias    []float64   `yaml:"bias"`
}

const (
	defaultFFTSize = 512
	defaultLowHz   = 50
)

// LoadModel reads and parses a model file without validating it.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model file: %w", ErrModelInit, err)
	}
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse model file %s: %w", ErrModelInit, path, err)
	}
	return &m, nil
}

// bands returns the explicit band list or the mel layout it describes.
func (m *Model) bands() []analysis.Band {
	if len(m.Bands) > 0 {
		return m.Bands
	}
	low, high := m.LowHz, m.HighHz
	if low <= 0 {
		low = defaultLowHz
	}
	if high <= 0 {
		high = float64(m.SampleRate) / 2
	}
	return analysis.MelBands(m.MelBands, low, high)
}

func (m *Model) validate(numFeatures int) error {
	classes := len(m.Labels)
	if classes == 0 {
		return fmt.Errorf("model has no labels")
	}
	if len(m.Weights) != classes {
		return fmt.Errorf("model has %d weight rows for %d labels", len(m.Weights), classes)
	}
	for i, row := range m.Weights {
		if len(row) != numFeatures {
			return fmt.Errorf("weight row %d has %d values, want %d", i, len(row), numFeatures)
		}
	}
	if len(m.Bias) != classes {
		return fmt.Errorf("model has %d biases for %d labels", len(m.Bias), classes)
	}
	if len(m.Mean) != 0 && len(m.Mean) != numFeatures {
		return fmt.Errorf("model has %d means for %d features", len(m.Mean), numFeatures)
	}
	if len(m.Scale) != 0 && len(m.Scale) != numFeatures {
		return fmt.Errorf("model has %d scales for %d features", len(m.Scale), numFeatures)
	}
	for i, s := range m.Scale {
		if s == 0 {
			return fmt.Errorf("scale %d is zero", i)
		}
	}
	return nil
}

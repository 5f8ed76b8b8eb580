package analysis

import (
	"fmt"
	"math"
)

// Band is a frequency range whose energy becomes one feature.
type Band struct {
	Name   string  `yaml:"name"`
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// MelBands splits [lowHz, highHz) into n contiguous bands of equal width on
// the mel scale, the usual layout for speech features.
func MelBands(n int, lowHz, highHz float64) []Band {
	if n < 1 || highHz <= lowHz {
		return nil
	}
	lo, hi := hzToMel(lowHz), hzToMel(highHz)
	step := (hi - lo) / float64(n)

	bands := make([]Band, n)
	for i := range bands {
		bands[i] = Band{
			Name:   fmt.Sprintf("mel%02d", i),
			LowHz:  melToHz(lo + float64(i)*step),
			HighHz: melToHz(lo + float64(i+1)*step),
		}
	}
	// Avoid losing the top bin to rounding.
	bands[n-1].HighHz = highHz
	return bands
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

func validateBands(bands []Band, nyquist float64) error {
	if len(bands) == 0 {
		return fmt.Errorf("at least one frequency band is required")
	}
	for i, b := range bands {
		if b.LowHz < 0 || b.HighHz <= b.LowHz {
			return fmt.Errorf("band %d (%s): invalid range %.1f-%.1f Hz", i, b.Name, b.LowHz, b.HighHz)
		}
		if b.LowHz >= nyquist {
			return fmt.Errorf("band %d (%s): starts above Nyquist (%.1f Hz)", i, b.Name, nyquist)
		}
	}
	return nil
}

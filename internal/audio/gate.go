// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Peak returns the largest absolute sample value in samples.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Gate is a peak noise gate. A window whose peak does not reach the
// threshold is treated as silence.
type Gate struct {
	threshold atomic.Uint32 // math.Float32bits of the threshold.
}

// NewGate returns a gate with the given threshold, see SetThreshold.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=closed for anything below full scale.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current noise gate threshold.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Open reports whether samples are loud enough to pass the gate.
// A nil gate is always open.
func (g *Gate) Open(samples []float32) bool {
	if g == nil {
		return true
	}
	t := math.Float32frombits(g.threshold.Load())
	if t <= 0 {
		return true
	}
	return Peak(samples) >= t
}

// SPDX-License-Identifier: MIT

// Package analysis turns a window of audio into the spectral features the
// classifier scores: per-frame FFT magnitudes are summed into frequency
// bands and the log band energies are averaged over all frames.
package analysis

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"

	applog "lid/internal/log"
)

var logger = applog.New("analysis")

// energyFloor keeps log() finite on silent bands.
const energyFloor = 1e-10

// Config describes the feature extractor.
type Config struct {
	FFTSize    int        // Points per frame, a power of two.
	SampleRate float64    // Hz.
	Window     WindowFunc // Applied to every frame.
	Bands      []Band     // One feature per band.
}

// Extractor computes band energy features. It holds only immutable state;
// per-call FFT workspaces come from a pool, so it is safe for concurrent use.
type Extractor struct {
	fftSize    int
	hop        int
	sampleRate float64
	window     []float64
	bands      []Band
	binBand    []int // Band index for every FFT bin, -1 when outside all bands.
	binCount   []int // Bins per band.
	pool       sync.Pool
}

// Pre-allocated buffers for one frame's FFT.
type fftWorkspace struct {
	fft       *fourier.FFT
	input     []float64
	fftOutput []complex128
	energy    []float64
}

// NewExtractor validates cfg and precomputes the window and bin-to-band map.
func NewExtractor(cfg Config) (*Extractor, error) {
	if !isPowerOfTwo(cfg.FFTSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", cfg.FFTSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if err := validateBands(cfg.Bands, cfg.SampleRate/2); err != nil {
		return nil, err
	}

	e := &Extractor{
		fftSize:    cfg.FFTSize,
		hop:        cfg.FFTSize / 2,
		sampleRate: cfg.SampleRate,
		window:     make([]float64, cfg.FFTSize),
		bands:      append([]Band(nil), cfg.Bands...),
		binBand:    make([]int, cfg.FFTSize/2+1),
		binCount:   make([]int, len(cfg.Bands)),
	}
	applyWindow(e.window, cfg.Window)

	for i := range e.binBand {
		e.binBand[i] = -1
		freq := e.FrequencyForBin(i)
		for b, band := range e.bands {
			if freq >= band.LowHz && freq < band.HighHz {
				e.binBand[i] = b
				e.binCount[b]++
				break
			}
		}
	}
	for b, n := range e.binCount {
		if n == 0 {
			return nil, fmt.Errorf("band %d (%s) is narrower than one FFT bin (%.1f Hz)",
				b, e.bands[b].Name, e.sampleRate/float64(e.fftSize))
		}
	}

	e.pool.New = func() any {
		return &fftWorkspace{
			fft:       fourier.NewFFT(e.fftSize),
			input:     make([]float64, e.fftSize),
			fftOutput: make([]complex128, e.fftSize/2+1),
			energy:    make([]float64, len(e.bands)),
		}
	}

	logger.Debugf("extractor ready (FFT %d, %.0f Hz, window %v, %d bands)",
		e.fftSize, e.sampleRate, cfg.Window, len(e.bands))
	return e, nil
}

// NumFeatures returns the length of every feature vector.
func (e *Extractor) NumFeatures() int { return len(e.bands) }

// FFTSize returns the configured FFT size (number of points).
func (e *Extractor) FFTSize() int { return e.fftSize }

// SampleRate returns the configured sample rate (Hz).
func (e *Extractor) SampleRate() float64 { return e.sampleRate }

// Bands returns a copy of the configured bands.
func (e *Extractor) Bands() []Band { return append([]Band(nil), e.bands...) }

// FrequencyForBin returns the center frequency (Hz) for a given FFT bin index.
func (e *Extractor) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex > e.fftSize/2 {
		return 0.0
	}
	return float64(binIndex) * (e.sampleRate / float64(e.fftSize))
}

// NumFrames returns how many half-overlapping frames cover n samples.
// Input shorter than one frame is treated as one zero-padded frame.
func (e *Extractor) NumFrames(n int) int {
	if n <= e.fftSize {
		return 1
	}
	return 1 + (n-e.fftSize+e.hop-1)/e.hop
}

// Extract returns the mean log band energy over all frames of samples.
func (e *Extractor) Extract(samples []float32) []float64 {
	sums := make([]float64, len(e.bands))
	e.accumulate(sums, samples, 0, e.NumFrames(len(samples)))
	return e.mean(sums, e.NumFrames(len(samples)))
}

// ExtractParallel is Extract with the frames split across up to workers
// goroutines. The result matches Extract up to float rounding.
func (e *Extractor) ExtractParallel(ctx context.Context, samples []float32, workers int) ([]float64, error) {
	frames := e.NumFrames(len(samples))
	if workers < 1 {
		workers = 1
	}
	if workers > frames {
		workers = frames
	}

	partial := make([][]float64, workers)
	g, ctx := errgroup.WithContext(ctx)
	per := (frames + workers - 1) / workers
	for w := 0; w < workers; w++ {
		first, last := w*per, min((w+1)*per, frames)
		partial[w] = make([]float64, len(e.bands))
		sums := partial[w]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.accumulate(sums, samples, first, last)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := make([]float64, len(e.bands))
	for _, sums := range partial {
		for b, v := range sums {
			total[b] += v
		}
	}
	return e.mean(total, frames), nil
}

// accumulate adds the log band energies of frames [first, last) to sums.
func (e *Extractor) accumulate(sums []float64, samples []float32, first, last int) {
	ws := e.pool.Get().(*fftWorkspace)
	defer e.pool.Put(ws)

	for f := first; f < last; f++ {
		start := f * e.hop
		for i := range ws.input {
			if j := start + i; j < len(samples) {
				ws.input[i] = float64(samples[j]) * e.window[i]
			} else {
				ws.input[i] = 0 // Zero-padding.
			}
		}

		ws.fft.Coefficients(ws.fftOutput, ws.input)

		clear(ws.energy)
		for i, c := range ws.fftOutput {
			if b := e.binBand[i]; b >= 0 {
				ws.energy[b] += real(c)*real(c) + imag(c)*imag(c)
			}
		}
		for b, energy := range ws.energy {
			sums[b] += math.Log(energy/float64(e.binCount[b]) + energyFloor)
		}
	}
}

func (e *Extractor) mean(sums []float64, frames int) []float64 {
	for b := range sums {
		sums[b] /= float64(frames)
	}
	return sums
}

func isPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextPowerOfTwo returns the next power of 2 >= size; 1 for size <= 0.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

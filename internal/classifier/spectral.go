package classifier

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"lid/internal/analysis"
	applog "lid/internal/log"
)

var logger = applog.New("classifier")

// Spectral is a linear classifier over log band energies, with softmax
// scores. It holds only immutable state after construction.
type Spectral struct {
	labels    []string
	inputLen  int
	extractor *analysis.Extractor
	weights   *mat.Dense
	bias      []float64
	mean      []float64
	scale     []float64
	device    Device
	threads   int
	closed    atomic.Bool
}

var _ Classifier = (*Spectral)(nil)

// Load reads a model file and builds a Spectral classifier from it.
func Load(path string, opts Options) (*Spectral, error) {
	m, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSpectral(m, opts)
	if err != nil {
		return nil, err
	}
	logger.Infof("loaded %s: %d classes, %d features, %d input samples, device %v",
		path, s.NumClasses(), s.extractor.NumFeatures(), s.inputLen, s.device)
	return s, nil
}

// NewSpectral validates m against opts and builds the classifier.
// Every error wraps ErrModelInit.
func NewSpectral(m *Model, opts Options) (*Spectral, error) {
	s, err := newSpectral(m, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInit, err)
	}
	return s, nil
}

func newSpectral(m *Model, opts Options) (*Spectral, error) {
	if m.SampleRate <= 0 {
		return nil, fmt.Errorf("model sample_rate must be positive, got %d", m.SampleRate)
	}
	if opts.SampleRate != 0 && opts.SampleRate != m.SampleRate {
		return nil, fmt.Errorf("model expects %d Hz audio, pipeline runs at %d Hz", m.SampleRate, opts.SampleRate)
	}
	if len(opts.Labels) != 0 && !slices.Equal(opts.Labels, m.Labels) {
		return nil, fmt.Errorf("model labels %v do not match configured labels %v", m.Labels, opts.Labels)
	}

	seconds := m.InputSeconds
	if opts.InputSeconds > 0 {
		seconds = opts.InputSeconds
	}
	inputLen := int(float64(m.SampleRate) * seconds)
	if inputLen <= 0 {
		return nil, fmt.Errorf("model input length must be positive, got %v seconds", seconds)
	}

	windowFunc, err := analysis.ParseWindowFunc(m.FFTWindow)
	if err != nil {
		return nil, err
	}
	fftSize := m.FFTSize
	if fftSize == 0 {
		fftSize = defaultFFTSize
	}
	extractor, err := analysis.NewExtractor(analysis.Config{
		FFTSize:    fftSize,
		SampleRate: float64(m.SampleRate),
		Window:     windowFunc,
		Bands:      m.bands(),
	})
	if err != nil {
		return nil, err
	}
	if err := m.validate(extractor.NumFeatures()); err != nil {
		return nil, err
	}

	classes, features := len(m.Labels), extractor.NumFeatures()
	weights := mat.NewDense(classes, features, nil)
	for i, row := range m.Weights {
		weights.SetRow(i, row)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	return &Spectral{
		labels:    slices.Clone(m.Labels),
		inputLen:  inputLen,
		extractor: extractor,
		weights:   weights,
		bias:      slices.Clone(m.Bias),
		mean:      slices.Clone(m.Mean),
		scale:     slices.Clone(m.Scale),
		device:    opts.Device,
		threads:   threads,
	}, nil
}

// Classify returns one softmax score per label for exactly InputLength samples.
func (s *Spectral) Classify(ctx context.Context, input []float32) ([]float32, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if len(input) != s.inputLen {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrInputLength, len(input), s.inputLen)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var features []float64
	if s.device == Accelerated {
		var err error
		features, err = s.extractor.ExtractParallel(ctx, input, s.threads)
		if err != nil {
			return nil, err
		}
	} else {
		features = s.extractor.Extract(input)
	}

	if len(s.mean) > 0 {
		floats.Sub(features, s.mean)
	}
	if len(s.scale) > 0 {
		floats.Div(features, s.scale)
	}

	var logits mat.VecDense
	logits.MulVec(s.weights, mat.NewVecDense(len(features), features))
	raw := logits.RawVector().Data
	floats.Add(raw, s.bias)

	return softmax(raw), nil
}

// softmax normalizes logits in place and returns them as float32.
func softmax(logits []float64) []float32 {
	floats.AddConst(-floats.Max(logits), logits)
	for i, v := range logits {
		logits[i] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(logits), logits)

	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = float32(v)
	}
	return out
}

func (s *Spectral) NumClasses() int { return len(s.labels) }

func (s *Spectral) InputLength() int { return s.inputLen }

// Labels returns the class labels in score order.
func (s *Spectral) Labels() []string { return slices.Clone(s.labels) }

// Close releases the classifier. Later Classify calls return ErrClosed.
func (s *Spectral) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		logger.Debugf("classifier closed")
	}
	return nil
}

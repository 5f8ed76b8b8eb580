package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCM format tag for the WAV encoder.
const wavFormatPCM = 1

// ReadWAV decodes a whole WAV file into mono float32 samples in [-1, 1].
// Multi-channel files are reduced to their first channel.
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(d.BitDepth)

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = pcmToFloat(buf.Data[i*channels], bitDepth)
	}
	return samples, int(d.SampleRate), nil
}

// ExportWAV writes samples as a mono PCM WAV file, creating parent directories.
func ExportWAV(path string, samples []float32, sampleRate, bitDepth int) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	floatToPCM(buf.Data, samples, bitDepth)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return enc.Close()
}

// WAVInputOptions controls how a WAVInput replays its file.
type WAVInputOptions struct {
	Loop     bool // Start over at end of file instead of reporting io.EOF.
	Realtime bool // Pace reads so each one takes as long as the audio it returns.
}

// WAVInput is an Input backed by a decoded WAV file.
type WAVInput struct {
	opts       WAVInputOptions
	samples    []float32
	sampleRate int

	mu      sync.Mutex
	pos     int
	next    time.Time
	started bool
	closed  bool
}

// OpenWAVInput decodes path for use as a capture source. A sample rate that
// differs from sampleRate is logged; the audio is not resampled.
func OpenWAVInput(path string, sampleRate int, opts WAVInputOptions) (*WAVInput, error) {
	samples, rate, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	if rate != sampleRate {
		logger.Warnf("%s is %d Hz, pipeline runs at %d Hz", filepath.Base(path), rate, sampleRate)
	}
	logger.Infof("opened file input %s (%d samples, loop=%t, realtime=%t)",
		filepath.Base(path), len(samples), opts.Loop, opts.Realtime)

	return &WAVInput{opts: opts, samples: samples, sampleRate: sampleRate}, nil
}

func (w *WAVInput) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if !w.started {
		w.started = true
		w.next = time.Now()
	}
	return nil
}

// Read copies the next len(buf) samples. At end of file it returns the
// remaining samples, then (0, io.EOF) on every later call unless looping.
func (w *WAVInput) Read(buf []float32) (int, error) {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return 0, ErrNotStarted
	}

	n := 0
	for n < len(buf) {
		if w.pos >= len(w.samples) {
			if !w.opts.Loop || len(w.samples) == 0 {
				break
			}
			w.pos = 0
		}
		c := copy(buf[n:], w.samples[w.pos:])
		w.pos += c
		n += c
	}

	var wait time.Duration
	if w.opts.Realtime && n > 0 {
		w.next = w.next.Add(time.Duration(n) * time.Second / time.Duration(w.sampleRate))
		wait = time.Until(w.next)
	}
	w.mu.Unlock()

	if n == 0 {
		return 0, io.EOF
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	return n, nil
}

func (w *WAVInput) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = false
	return nil
}

// Rewind moves the read position back to the start of the file.
func (w *WAVInput) Rewind() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = 0
}

func (w *WAVInput) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.started = false
	return nil
}

// WAVOutput is an Output that renders each Start/Stop cycle into a new
// playback-<timestamp>.wav file under dir.
type WAVOutput struct {
	dir        string
	sampleRate int
	bitDepth   int

	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	last   string
	closed bool
}

// NewWAVOutput returns a stopped WAVOutput. Files are created on Start.
func NewWAVOutput(dir string, sampleRate, bitDepth int) *WAVOutput {
	return &WAVOutput{dir: dir, sampleRate: sampleRate, bitDepth: bitDepth}
}

func (w *WAVOutput) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.enc != nil {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(w.dir, "playback-"+time.Now().Format("20060102-150405.000")+".wav")
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	w.file = file
	w.last = path
	w.enc = wav.NewEncoder(file, w.sampleRate, w.bitDepth, 1, wavFormatPCM)
	w.buf = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.sampleRate},
		SourceBitDepth: w.bitDepth,
	}
	return nil
}

func (w *WAVOutput) Write(samples []float32) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return 0, ErrNotStarted
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	floatToPCM(w.buf.Data, samples, w.bitDepth)
	if err := w.enc.Write(w.buf); err != nil {
		return 0, err
	}
	return len(samples), nil
}

// Stop finalizes the current file.
func (w *WAVOutput) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finish()
}

func (w *WAVOutput) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.finish()
}

// LastFile returns the path of the most recently started playback file.
func (w *WAVOutput) LastFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *WAVOutput) finish() error {
	if w.enc == nil {
		return nil
	}
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	w.enc, w.file = nil, nil
	return errors.Join(encErr, fileErr)
}

func pcmToFloat(v, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return float32(v-128) / 128
	case 16:
		return float32(v) / 32768
	case 24:
		return float32(v) / 8388608
	case 32:
		return float32(float64(v) / 2147483648)
	default:
		return float32(v) / 32768
	}
}

func floatToPCM(dst []int, src []float32, bitDepth int) {
	full := float64(int64(1)<<(bitDepth-1) - 1)
	for i, s := range src {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = int(v * full)
	}
}

var (
	_ Input  = (*WAVInput)(nil)
	_ Output = (*WAVOutput)(nil)
)

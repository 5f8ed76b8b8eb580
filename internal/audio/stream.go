// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// StreamConfig describes a mono float32 PortAudio stream.
type StreamConfig struct {
	DeviceID        int     // PortAudio device index, -1 for the system default.
	SampleRate      float64 // Hz.
	FramesPerBuffer int     // Samples moved per blocking Read/Write.
	LowLatency      bool    // Use the device's low latency defaults.
}

// PortAudioInput is a blocking microphone stream. Each Read returns exactly
// FramesPerBuffer samples once the device has them.
//
// A mutex confines the stream to one operation at a time, so Stop issued
// from a control goroutine waits for an in-flight Read to return instead of
// tearing the stream down underneath it.
type PortAudioInput struct {
	cfg     StreamConfig
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []float32
	started bool
	closed  bool
}

// OpenInput opens a blocking input stream on the configured device.
// Initialize must have been called.
func OpenInput(cfg StreamConfig) (*PortAudioInput, error) {
	dev, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := dev.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = dev.DefaultLowInputLatency
	}

	buf := make([]float32, cfg.FramesPerBuffer)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  latency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	stream, err := paLibOpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", dev.Name, err)
	}
	logger.Infof("opened input %q (%.0f Hz, %d frames, latency %s)",
		dev.Name, cfg.SampleRate, cfg.FramesPerBuffer, latency.Round(time.Millisecond))

	return &PortAudioInput{cfg: cfg, stream: stream, buf: buf}, nil
}

func (p *PortAudioInput) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Read copies one buffer of captured samples into buf.
// An input overflow is logged and the data that was read is still returned.
func (p *PortAudioInput) Read(buf []float32) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return 0, ErrNotStarted
	}

	err := p.stream.Read()
	if err == portaudio.InputOverflowed {
		logger.Warnf("input overflowed, samples were dropped by the device")
	} else if err != nil {
		return -1, err
	}
	return copy(buf, p.buf), nil
}

func (p *PortAudioInput) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	return p.stream.Stop()
}

func (p *PortAudioInput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.started {
		p.started = false
		_ = p.stream.Stop()
	}
	return p.stream.Close()
}

// PortAudioOutput is a blocking speaker stream. Write blocks until every
// sample has been queued, splitting buf into FramesPerBuffer pieces.
type PortAudioOutput struct {
	cfg     StreamConfig
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []float32
	started bool
	closed  bool
}

// OpenOutput opens a blocking output stream on the configured device.
func OpenOutput(cfg StreamConfig) (*PortAudioOutput, error) {
	dev, err := OutputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := dev.DefaultHighOutputLatency
	if cfg.LowLatency {
		latency = dev.DefaultLowOutputLatency
	}

	buf := make([]float32, cfg.FramesPerBuffer)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  latency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	stream, err := paLibOpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream on %q: %w", dev.Name, err)
	}
	logger.Infof("opened output %q (%.0f Hz, %d frames)", dev.Name, cfg.SampleRate, cfg.FramesPerBuffer)

	return &PortAudioOutput{cfg: cfg, stream: stream, buf: buf}, nil
}

func (p *PortAudioOutput) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Write plays buf. The final partial buffer is padded with silence.
// portaudio.OutputUnderflowed is not treated as a failure.
func (p *PortAudioOutput) Write(buf []float32) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return 0, ErrNotStarted
	}

	written := 0
	for written < len(buf) {
		n := copy(p.buf, buf[written:])
		clear(p.buf[n:])
		if err := p.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (p *PortAudioOutput) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	return p.stream.Stop()
}

func (p *PortAudioOutput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.started {
		p.started = false
		_ = p.stream.Stop()
	}
	return p.stream.Close()
}

// Compile-time checks for interface implementations.
var _ Input = (*PortAudioInput)(nil)
var _ Output = (*PortAudioOutput)(nil)

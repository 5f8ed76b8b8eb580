// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	applog "lid/internal/log"
	"lid/internal/metrics"
)

// ChunkFunc receives every captured chunk in capture order. actualLen is the
// number of samples the device really returned; the chunk itself is always
// full length with the tail zero-padded.
type ChunkFunc func(chunk Chunk, actualLen int)

// Capture runs the dedicated capture loop over an Input.
//
// Start and Stop are idempotent. Stop is cooperative: the loop finishes its
// current blocking read and then exits. Starting again after a Stop spins up
// a fresh loop once the previous one has exited. Close is terminal.
type Capture struct {
	in       Input
	chunkLen int
	onChunk  ChunkFunc
	onEnd    func()
	metrics  *metrics.Metrics
	log      *applog.Logger

	mu     sync.Mutex // Serializes Start, Stop and Close.
	state  atomic.Int32
	closed bool
	done   chan struct{} // Closed when the current loop exits; nil before the first Start.
}

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithMetrics records chunk, read error and short read counts.
func WithMetrics(m *metrics.Metrics) CaptureOption {
	return func(c *Capture) { c.metrics = m }
}

// WithEndOfStream registers fn to run on the loop goroutine when the input
// reports io.EOF and capture stops by itself.
func WithEndOfStream(fn func()) CaptureOption {
	return func(c *Capture) { c.onEnd = fn }
}

// NewCapture creates a stopped Capture that reads chunkLen samples per iteration.
func NewCapture(in Input, chunkLen int, onChunk ChunkFunc, opts ...CaptureOption) (*Capture, error) {
	if in == nil {
		return nil, fmt.Errorf("capture requires an input")
	}
	if chunkLen <= 0 {
		return nil, fmt.Errorf("chunk length must be positive, got %d", chunkLen)
	}
	if onChunk == nil {
		return nil, fmt.Errorf("capture requires a chunk callback")
	}

	c := &Capture{
		in:       in,
		chunkLen: chunkLen,
		onChunk:  onChunk,
		log:      applog.New("capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current capture state.
func (c *Capture) State() CaptureState {
	return CaptureState(c.state.Load())
}

// Recording reports whether the capture loop should keep reading.
func (c *Capture) Recording() bool {
	return c.State() == Recording
}

// ChunkLen returns the number of samples in every delivered chunk.
func (c *Capture) ChunkLen() int {
	return c.chunkLen
}

// Start transitions Stopped to Recording. It is a no-op while recording.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.Recording() {
		return nil
	}

	// The previous loop may still be inside its final read.
	if c.done != nil {
		<-c.done
	}

	if err := c.in.Start(); err != nil {
		return fmt.Errorf("failed to start input: %w", err)
	}

	done := make(chan struct{})
	c.done = done
	c.state.Store(int32(Recording))
	go c.loop(done)

	c.log.Infof("recording started (%d samples per chunk)", c.chunkLen)
	return nil
}

// Stop transitions Recording to Stopped. It is a no-op while stopped.
// It does not wait for the loop; use Wait for that.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(Recording), int32(Stopped)) {
		return nil
	}
	c.log.Infof("recording stopped")
	if err := c.in.Stop(); err != nil {
		return fmt.Errorf("failed to stop input: %w", err)
	}
	return nil
}

// Wait blocks until the current capture loop, if any, has exited.
// It must not be called from the chunk callback.
func (c *Capture) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops capture, waits for the loop and releases the input.
// Further Start calls return ErrClosed.
func (c *Capture) Close() error {
	stopErr := c.Stop()
	c.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.in.Close(); err != nil {
		return errors.Join(stopErr, fmt.Errorf("failed to close input: %w", err))
	}
	return stopErr
}

// loop owns the scratch buffer and is the only caller of in.Read.
func (c *Capture) loop(done chan struct{}) {
	defer close(done)

	buf := make([]float32, c.chunkLen)
	for c.Recording() {
		n, err := c.in.Read(buf)

		if errors.Is(err, io.EOF) && n <= 0 {
			c.endOfStream()
			return
		}
		if !c.Recording() {
			// The read completed after Stop; it belongs to a finished session.
			return
		}
		if n < 0 || (err != nil && !errors.Is(err, io.EOF)) {
			c.metrics.ReadError()
			c.log.Errorf("read failed (n=%d): %v", n, err)
			continue
		}
		if n > c.chunkLen {
			n = c.chunkLen
		}

		chunk := make(Chunk, c.chunkLen)
		copy(chunk, buf[:n])
		if n < c.chunkLen {
			c.metrics.ShortRead()
			c.log.Warnf("short read %d/%d, zero-padding", n, c.chunkLen)
		}

		c.metrics.ChunkCaptured()
		c.onChunk(chunk, n)
	}
}

func (c *Capture) endOfStream() {
	if !c.state.CompareAndSwap(int32(Recording), int32(Stopped)) {
		return
	}
	c.log.Infof("input reached end of stream, recording stopped")
	if err := c.in.Stop(); err != nil {
		c.log.Warnf("failed to stop input at end of stream: %v", err)
	}
	if c.onEnd != nil {
		c.onEnd()
	}
}

// SPDX-License-Identifier: MIT
/*
Package audio owns the device side of the pipeline:
- Capture, the dedicated loop that turns blocking device reads into
  fixed-size chunks
- PortAudio input/output streams opened in blocking mode
- WAV file inputs and outputs that stand in for the microphone and speaker
- A peak gate used to skip inference on silence

Thread Safety:
- Capture state transitions are serialized by a mutex; the loop polls an
  atomic state flag and is never interrupted mid-read
- Devices are confined to one goroutine at a time: the capture loop for an
  Input, the playback goroutine for an Output
*/
package audio

import "errors"

var (
	// ErrClosed is returned when a closed Capture or device is used again.
	ErrClosed = errors.New("audio: closed")

	// ErrNotStarted is returned by reads and writes on a stopped device.
	ErrNotStarted = errors.New("audio: device not started")

	// ErrShortWrite reports an output write that accepted fewer samples than given.
	ErrShortWrite = errors.New("audio: short write")
)

// Chunk is one segment of mono float32 audio, always exactly chunkLen samples.
// A Chunk handed to a consumer is never written to again by the producer.
type Chunk []float32

// Input is a blocking audio source such as a microphone stream.
//
// Read fills buf and returns the number of samples read. A short read is
// allowed. (0, io.EOF) marks the end of a finite source; any other error is
// transient and the caller may read again.
type Input interface {
	Start() error
	Read(buf []float32) (int, error)
	Stop() error
	Close() error
}

// Output is a blocking audio sink such as a speaker stream.
// Write blocks until buf has been accepted by the device.
type Output interface {
	Start() error
	Write(buf []float32) (int, error)
	Stop() error
	Close() error
}

// CaptureState is the raw state of the capture device.
type CaptureState int32

const (
	Stopped CaptureState = iota
	Recording
)

func (s CaptureState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

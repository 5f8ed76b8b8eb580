// SPDX-License-Identifier: MIT
/*
Package classifier scores a fixed-length window of audio against a fixed set
of language labels.

A Classifier is stateless from the caller's point of view: one input vector of
InputLength samples in, NumClasses scores out. Implementations in this package
are safe for concurrent Classify calls.
*/
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelInit wraps every failure to load a model or build a classifier.
	ErrModelInit = errors.New("classifier: model initialization failed")

	// ErrInputLength is returned when the input vector is not InputLength samples.
	ErrInputLength = errors.New("classifier: wrong input length")

	// ErrClosed is returned by Classify after Close.
	ErrClosed = errors.New("classifier: closed")
)

// Classifier maps a window of audio to one score per class.
type Classifier interface {
	Classify(ctx context.Context, input []float32) ([]float32, error)
	NumClasses() int
	InputLength() int
	Close() error
}

// Device selects where inference runs.
type Device int

const (
	CPU         Device = iota // Frames are processed serially on the calling goroutine.
	Accelerated               // Frames are processed in parallel across Options.Threads goroutines.
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case Accelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("Device(%d)", int(d))
	}
}

// ParseDevice maps a configuration name to a Device. The mobile delegate
// names gpu and nnapi are accepted as Accelerated.
func ParseDevice(name string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cpu":
		return CPU, nil
	case "accelerated", "gpu", "nnapi":
		return Accelerated, nil
	default:
		return CPU, fmt.Errorf("unknown model device %q", name)
	}
}

// Options are construction-time settings shared by all implementations.
type Options struct {
	Device  Device
	Threads int // Parallelism hint; <= 0 means runtime.NumCPU().

	// Optional checks against the pipeline configuration. Zero values skip them.
	Labels       []string
	SampleRate   int
	InputSeconds float64 // Overrides the model's own input duration.
}

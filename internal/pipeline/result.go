// SPDX-License-Identifier: MIT
/*
Package pipeline wires capture, the sliding window, inference and playback
into one controllable detector.

Execution contexts:
- the capture loop, one per recording session, delivers chunks to the Dispatcher
- at most one inference goroutine at a time, started by the Dispatcher
- one playback goroutine per Player.Play
- the result sink's owner (the TUI program), reached only through Sink.Display
*/
package pipeline

import (
	"errors"
	"time"

	"lid/internal/classifier"
)

// ErrPlaybackDevice wraps output failures during playback.
var ErrPlaybackDevice = errors.New("pipeline: playback device error")

// Result is the outcome of one inference over the window.
type Result struct {
	Seq      uint64            // Increases by one per inference.
	Session  string            // Recording session the window came from.
	At       time.Time         // When the inference finished.
	Duration time.Duration     // Time spent in the classifier.
	Ranked   classifier.Ranked // Empty when Err is set.
	Err      error             // Failed inference or unavailable model.
}

// Sink receives results. Display may be called from any goroutine; sinks
// hand results off to whatever context owns their state.
type Sink interface {
	Display(Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Result)

func (f SinkFunc) Display(r Result) { f(r) }

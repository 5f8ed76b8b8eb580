package pipeline

import (
	"lid/internal/audio"
)

// PlaybackState is the state of the playback device.
type PlaybackState int32

const (
	Idle PlaybackState = iota
	Playing
)

func (s PlaybackState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Controls lists which control surface operations are currently accepted.
type Controls struct {
	Detect bool
	Stop   bool
	Play   bool
	Reset  bool
	Save   bool
}

// Status is a snapshot of the pipeline.
type Status struct {
	Capture          audio.CaptureState
	Playback         PlaybackState
	Suspended        bool // Capture paused by playback, resumes when it ends.
	InferenceEnabled bool
	WindowChunks     int
	WindowCap        int
	Session          string
	ModelReady       bool
	Controls         Controls
}

func controlsFor(capture audio.CaptureState, playback PlaybackState, windowChunks int) Controls {
	if playback == Playing {
		return Controls{Reset: true}
	}
	return Controls{
		Detect: capture == audio.Stopped,
		Stop:   capture == audio.Recording,
		Play:   true,
		Reset:  true,
		Save:   windowChunks > 0,
	}
}

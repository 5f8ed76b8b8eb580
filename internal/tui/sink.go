package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"lid/internal/pipeline"
)

// Sender is satisfied by *tea.Program. Send is safe from any goroutine.
type Sender interface {
	Send(tea.Msg)
}

// Sink hands results to the program that owns the display.
type Sink struct {
	to Sender
}

// NewSink returns a pipeline.Sink forwarding to s.
func NewSink(s Sender) *Sink {
	return &Sink{to: s}
}

func (s *Sink) Display(res pipeline.Result) {
	s.to.Send(resultMsg(res))
}

// Send lets the Sink sit behind a transport.Fanout. Values other than
// results are ignored.
func (s *Sink) Send(data any) error {
	if res, ok := data.(pipeline.Result); ok {
		s.Display(res)
	}
	return nil
}

// Close is a no-op; the program is shut down by its owner.
func (s *Sink) Close() error {
	return nil
}

// StatusListener returns a Controller.Subscribe callback forwarding to s.
func StatusListener(s Sender) func(pipeline.Status) {
	return func(st pipeline.Status) { s.Send(statusMsg(st)) }
}

// PlaybackListener returns a Controller.OnPlaybackDone callback forwarding to s.
func PlaybackListener(s Sender) func(error) {
	return func(err error) { s.Send(playbackDoneMsg{err: err}) }
}

var _ pipeline.Sink = (*Sink)(nil)

package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"lid/internal/audio"
	applog "lid/internal/log"
	"lid/internal/metrics"
	"lid/internal/window"
)

// captureControl is the part of audio.Capture the player needs.
type captureControl interface {
	Recording() bool
	Start() error
	Stop() error
	Wait()
}

// inferenceControl is the part of Dispatcher the player needs.
type inferenceControl interface {
	Enabled() bool
	SetEnabled(bool)
	Wait()
}

// Player plays the window back through an output device. While capture is
// running it is suspended for the duration of playback, so the input and
// output devices are never active at the same time.
type Player struct {
	out       audio.Output
	window    *window.Buffer
	capture   captureControl
	inference inferenceControl
	metrics   *metrics.Metrics
	log       *applog.Logger

	playing   atomic.Bool
	suspended atomic.Bool
	wg        sync.WaitGroup

	mu      sync.Mutex
	onState []func(PlaybackState)
	onDone  []func(error)
}

// NewPlayer returns an idle Player.
func NewPlayer(out audio.Output, w *window.Buffer, capture captureControl, inference inferenceControl, m *metrics.Metrics) *Player {
	return &Player{
		out:       out,
		window:    w,
		capture:   capture,
		inference: inference,
		metrics:   m,
		log:       applog.New("playback"),
	}
}

// OnStateChange registers fn for every Idle/Playing transition.
func (p *Player) OnStateChange(fn func(PlaybackState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = append(p.onState, fn)
}

// OnPlaybackDone registers fn to receive the outcome of every playback.
func (p *Player) OnPlaybackDone(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDone = append(p.onDone, fn)
}

// Playing reports whether a playback is in progress.
func (p *Player) Playing() bool {
	return p.playing.Load()
}

// Suspended reports whether capture was paused by the current playback.
func (p *Player) Suspended() bool {
	return p.suspended.Load()
}

// State returns the current playback state.
func (p *Player) State() PlaybackState {
	if p.Playing() {
		return Playing
	}
	return Idle
}

// Play starts playback on a new goroutine and returns true, or returns
// false if a playback is already running.
func (p *Player) Play() bool {
	if !p.playing.CompareAndSwap(false, true) {
		p.log.Debugf("playback already in progress")
		return false
	}
	p.wg.Add(1)
	go p.run()
	return true
}

// Wait blocks until the current playback, if any, has finished.
func (p *Player) Wait() {
	p.wg.Wait()
}

func (p *Player) run() {
	defer p.wg.Done()
	p.notifyState(Playing)

	err := p.playWindow()
	p.metrics.PlaybackDone(err)
	if err != nil {
		p.log.Errorf("playback failed: %v", err)
	}

	p.playing.Store(false)
	p.notifyState(Idle)
	p.notifyDone(err)
}

func (p *Player) playWindow() (err error) {
	if p.capture.Recording() {
		wasEnabled := p.inference.Enabled()
		p.inference.SetEnabled(false)
		p.suspended.Store(true)
		if err := p.capture.Stop(); err != nil {
			p.log.Warnf("failed to stop capture for playback: %v", err)
		}
		p.capture.Wait()
		p.inference.Wait()
		p.log.Infof("capture suspended for playback")

		defer func() {
			if serr := p.capture.Start(); serr != nil {
				err = errors.Join(err, fmt.Errorf("failed to resume capture: %w", serr))
			} else {
				p.log.Infof("capture resumed")
			}
			p.inference.SetEnabled(wasEnabled)
			p.suspended.Store(false)
		}()
	}

	chunks := p.window.Chunks()
	p.log.Infof("playing back %d chunks", len(chunks))

	if err := p.out.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackDevice, err)
	}
	defer func() {
		if serr := p.out.Stop(); serr != nil {
			p.log.Warnf("failed to stop output: %v", serr)
		}
	}()

	for i, chunk := range chunks {
		n, err := p.out.Write(chunk)
		if err != nil {
			return fmt.Errorf("%w: chunk %d: %w", ErrPlaybackDevice, i, err)
		}
		if n < len(chunk) {
			return fmt.Errorf("%w: chunk %d: %w (%d of %d samples)",
				ErrPlaybackDevice, i, audio.ErrShortWrite, n, len(chunk))
		}
	}
	return nil
}

func (p *Player) notifyState(s PlaybackState) {
	p.mu.Lock()
	fns := append([]func(PlaybackState)(nil), p.onState...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (p *Player) notifyDone(err error) {
	p.mu.Lock()
	fns := append([]func(error)(nil), p.onDone...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

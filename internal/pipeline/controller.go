// SPDX-License-Identifier: MIT
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lid/internal/audio"
	"lid/internal/classifier"
	applog "lid/internal/log"
	"lid/internal/metrics"
	"lid/internal/window"
)

// Deps are the collaborators and sizes a Controller is built from.
type Deps struct {
	Input  audio.Input
	Output audio.Output

	// Classifier may be nil when the model failed to load; ModelErr then
	// says why and is reported to the sink when detection is requested.
	Classifier classifier.Classifier
	ModelErr   error
	Labels     []string

	Sink    Sink
	Policy  Policy
	Gate    *audio.Gate
	Metrics *metrics.Metrics

	ChunkLen   int
	MaxChunks  int
	ModelLen   int
	SampleRate int
	BitDepth   int
	OutputDir  string // Where Save writes when given no path.
}

// Controller is the control surface of the detector. Every operation is safe
// in any state; an operation that does not apply is ignored.
//
//	Stopped    --StartCapture--> Recording (inference on, new session)
//	Recording  --StopCapture-->  Stopped   (inference off)
//	Recording  --Playback-->     suspended --done--> Recording
//	Stopped    --Playback-->     Playing   --done--> Stopped
//	any        --Reset-->        window cleared, states unchanged
//
// StartCapture and StopCapture are ignored while playing.
type Controller struct {
	deps       Deps
	log        *applog.Logger
	window     *window.Buffer
	dispatcher *Dispatcher
	capture    *audio.Capture
	player     *Player

	mu      sync.Mutex // Serializes control operations.
	closed  bool
	session atomic.Value // string

	lmu       sync.Mutex
	listeners []func(Status)
}

// NewController builds the pipeline. Nothing is started.
func NewController(deps Deps) (*Controller, error) {
	if deps.Input == nil || deps.Output == nil {
		return nil, fmt.Errorf("controller requires input and output devices")
	}
	if deps.Classifier == nil && deps.ModelErr == nil {
		deps.ModelErr = fmt.Errorf("%w: no classifier configured", classifier.ErrModelInit)
	}

	c := &Controller{
		deps:   deps,
		log:    applog.New("controller"),
		window: window.New(deps.MaxChunks),
	}
	c.session.Store("")

	var err error
	c.dispatcher, err = NewDispatcher(DispatcherConfig{
		Window:     c.window,
		Classifier: deps.Classifier,
		Labels:     deps.Labels,
		ModelLen:   deps.ModelLen,
		Sink:       deps.Sink,
		Policy:     deps.Policy,
		Gate:       deps.Gate,
		Metrics:    deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	c.capture, err = audio.NewCapture(deps.Input, deps.ChunkLen, c.dispatcher.OnChunk,
		audio.WithMetrics(deps.Metrics),
		audio.WithEndOfStream(c.onEndOfStream),
	)
	if err != nil {
		return nil, err
	}

	c.player = NewPlayer(deps.Output, c.window, c.capture, c.dispatcher, deps.Metrics)
	c.player.OnStateChange(func(PlaybackState) { c.publish() })

	c.log.Infof("pipeline ready: chunk %d samples, window %d chunks, model input %d samples, policy %v",
		deps.ChunkLen, deps.MaxChunks, deps.ModelLen, deps.Policy)
	return c, nil
}

// StartCapture begins a recording session with inference enabled.
func (c *Controller) StartCapture() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return audio.ErrClosed
	}
	if c.player.Playing() {
		c.mu.Unlock()
		c.log.Debugf("start ignored during playback")
		return nil
	}
	if c.capture.Recording() {
		c.mu.Unlock()
		return nil
	}

	id := uuid.NewString()
	c.dispatcher.SetSession(id)
	// Enabled before the first chunk can arrive.
	c.dispatcher.SetEnabled(true)
	if err := c.capture.Start(); err != nil {
		c.dispatcher.SetEnabled(false)
		c.mu.Unlock()
		return err
	}
	c.session.Store(id)
	modelErr := c.deps.ModelErr
	c.mu.Unlock()

	c.log.Infof("detection started (session %s)", id)
	if c.deps.Classifier == nil {
		c.deps.Sink.Display(Result{Session: id, At: time.Now(), Err: modelErr})
	}
	c.publish()
	return nil
}

// StopCapture ends the recording session and disables inference.
func (c *Controller) StopCapture() error {
	c.mu.Lock()
	if c.closed || c.player.Playing() || !c.capture.Recording() {
		c.mu.Unlock()
		return nil
	}
	c.dispatcher.SetEnabled(false)
	err := c.capture.Stop()
	c.mu.Unlock()

	c.log.Infof("detection stopped")
	c.publish()
	return err
}

// Playback plays the window back, suspending capture if it is running.
// It returns false when a playback is already in progress.
func (c *Controller) Playback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	return c.player.Play()
}

// OnPlaybackDone registers fn to receive the outcome of every playback.
func (c *Controller) OnPlaybackDone(fn func(error)) {
	c.player.OnPlaybackDone(fn)
}

// Reset clears the window. Capture and inference state are unchanged.
func (c *Controller) Reset() {
	c.window.Clear()
	c.deps.Metrics.SetWindowChunks(0)
	c.log.Infof("window cleared")
	c.publish()
}

// Save writes the buffered window to a mono WAV file and returns its path.
// An empty path picks window-<timestamp>.wav under the output directory.
func (c *Controller) Save(path string) (string, error) {
	samples := c.window.Flatten(c.window.Samples())
	if len(samples) == 0 {
		return "", fmt.Errorf("window is empty")
	}
	if path == "" {
		path = filepath.Join(c.deps.OutputDir, "window-"+time.Now().Format("20060102-150405")+".wav")
	}
	if err := audio.ExportWAV(path, samples, c.deps.SampleRate, c.deps.BitDepth); err != nil {
		return "", fmt.Errorf("failed to save window: %w", err)
	}
	c.log.Infof("saved %d samples to %s", len(samples), path)
	return path, nil
}

// Status returns a snapshot of the pipeline. It never blocks on a control
// operation, so listeners may call it.
func (c *Controller) Status() Status {
	capture := c.capture.State()
	playback := c.player.State()
	chunks := c.window.Len()
	return Status{
		Capture:          capture,
		Playback:         playback,
		Suspended:        c.player.Suspended(),
		InferenceEnabled: c.dispatcher.Enabled(),
		WindowChunks:     chunks,
		WindowCap:        c.window.Cap(),
		Session:          c.session.Load().(string),
		ModelReady:       c.deps.Classifier != nil,
		Controls:         controlsFor(capture, playback, chunks),
	}
}

// Subscribe registers fn to receive the Status after every transition.
func (c *Controller) Subscribe(fn func(Status)) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Close stops everything and releases the devices and the classifier.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.dispatcher.SetEnabled(false)
	c.mu.Unlock()

	c.player.Wait()
	var errs []error
	if err := c.capture.Close(); err != nil {
		errs = append(errs, err)
	}
	c.dispatcher.Close()
	if err := c.deps.Output.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close output: %w", err))
	}
	if c.deps.Classifier != nil {
		if err := c.deps.Classifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close classifier: %w", err))
		}
	}
	c.log.Infof("pipeline closed")
	return errors.Join(errs...)
}

// onEndOfStream runs on the capture goroutine when a finite input runs out.
func (c *Controller) onEndOfStream() {
	go func() {
		// Let the last window finish before switching inference off.
		c.dispatcher.Wait()

		c.mu.Lock()
		if !c.capture.Recording() && !c.player.Playing() {
			c.dispatcher.SetEnabled(false)
		}
		c.mu.Unlock()

		c.log.Infof("input exhausted, detection stopped")
		c.publish()
	}()
}

func (c *Controller) publish() {
	st := c.Status()
	c.lmu.Lock()
	fns := append([]func(Status)(nil), c.listeners...)
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

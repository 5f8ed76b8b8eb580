// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"lid/internal/audio"
	"lid/internal/classifier"
	applog "lid/internal/log"
	"lid/internal/metrics"
	"lid/internal/window"
)

// Policy decides what happens to an inference request that arrives while
// another inference is still running.
type Policy int

const (
	// Coalesce remembers that a newer window exists and runs once more on the
	// latest window when the current inference finishes.
	Coalesce Policy = iota
	// Drop discards the request.
	Drop
)

func (p Policy) String() string {
	switch p {
	case Coalesce:
		return "coalesce"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "coalesce":
		return Coalesce, nil
	case "drop":
		return Drop, nil
	default:
		return Coalesce, fmt.Errorf("unknown inference policy %q", name)
	}
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Window     *window.Buffer
	Classifier classifier.Classifier
	Labels     []string
	ModelLen   int // Samples per inference.
	Sink       Sink
	Policy     Policy
	Gate       *audio.Gate // Optional; nil is always open.
	Metrics    *metrics.Metrics
}

// Dispatcher buffers every delivered chunk and, while enabled, runs the
// classifier over the window off the capture goroutine.
//
// At most one inference is in flight, so results reach the sink in Seq order.
type Dispatcher struct {
	cfg DispatcherConfig
	log *applog.Logger

	enabled atomic.Bool
	pending atomic.Bool
	seq     atomic.Uint64
	session atomic.Value // string
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher returns a disabled Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Window == nil {
		return nil, fmt.Errorf("dispatcher requires a window")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("dispatcher requires a result sink")
	}
	if cfg.Classifier != nil {
		if cfg.Classifier.NumClasses() != len(cfg.Labels) {
			return nil, fmt.Errorf("classifier has %d classes for %d labels",
				cfg.Classifier.NumClasses(), len(cfg.Labels))
		}
		if cfg.ModelLen != cfg.Classifier.InputLength() {
			return nil, fmt.Errorf("model input is %d samples, window flattens to %d",
				cfg.Classifier.InputLength(), cfg.ModelLen)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		log:    applog.New("dispatcher"),
		sem:    semaphore.NewWeighted(1),
		ctx:    ctx,
		cancel: cancel,
	}
	d.session.Store("")
	return d, nil
}

// OnChunk is the capture callback. The chunk is always appended to the
// window; inference is scheduled only while enabled.
func (d *Dispatcher) OnChunk(chunk audio.Chunk, actualLen int) {
	d.cfg.Window.Append(chunk)
	d.cfg.Metrics.SetWindowChunks(d.cfg.Window.Len())

	if !d.enabled.Load() {
		return
	}
	d.schedule()
}

// SetEnabled turns inference on or off. Chunks keep being buffered either way.
func (d *Dispatcher) SetEnabled(enabled bool) {
	if d.cfg.Classifier == nil {
		enabled = false
	}
	if d.enabled.Swap(enabled) != enabled {
		d.log.Debugf("inference enabled=%t", enabled)
	}
	if !enabled {
		d.pending.Store(false)
	}
}

// Enabled reports whether delivered chunks trigger inference.
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// SetSession stamps later results with id.
func (d *Dispatcher) SetSession(id string) {
	d.session.Store(id)
}

// Wait blocks until no inference is in flight and no coalesced request is
// pending.
func (d *Dispatcher) Wait() {
	for {
		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		// The runner may have lost the semaphore to us after a request was
		// coalesced; serve it here.
		if d.cfg.Policy == Coalesce && d.enabled.Load() && d.pending.Swap(false) {
			d.run()
			continue
		}
		d.sem.Release(1)
		return
	}
}

// Close disables inference, cancels a running classification and waits for it.
func (d *Dispatcher) Close() {
	d.SetEnabled(false)
	d.cancel()
	d.Wait()
}

func (d *Dispatcher) schedule() {
	if !d.sem.TryAcquire(1) {
		switch d.cfg.Policy {
		case Drop:
			d.cfg.Metrics.InferenceDropped()
			d.log.Debugf("inference busy, request dropped")
		default:
			d.pending.Store(true)
			d.cfg.Metrics.InferenceCoalesced()
		}
		return
	}
	go d.run()
}

// run owns the semaphore until no coalesced request is left.
func (d *Dispatcher) run() {
	for {
		d.infer()

		if d.cfg.Policy == Coalesce && d.enabled.Load() && d.pending.Swap(false) {
			continue
		}
		d.sem.Release(1)

		// A request may have been coalesced between the Swap and the Release.
		if d.cfg.Policy == Coalesce && d.enabled.Load() && d.pending.Load() && d.sem.TryAcquire(1) {
			d.pending.Store(false)
			continue
		}
		return
	}
}

func (d *Dispatcher) infer() {
	samples := d.cfg.Window.Flatten(d.cfg.ModelLen)
	if !d.cfg.Gate.Open(samples) {
		d.log.Debugf("window below gate threshold %.3f, skipping inference", d.cfg.Gate.Threshold())
		return
	}

	start := time.Now()
	scores, err := d.cfg.Classifier.Classify(d.ctx, samples)
	elapsed := time.Since(start)
	d.cfg.Metrics.InferenceDone(elapsed, err)

	if !d.enabled.Load() {
		d.log.Debugf("inference disabled while running, result discarded")
		return
	}

	res := Result{
		Seq:      d.seq.Add(1),
		Session:  d.session.Load().(string),
		At:       time.Now(),
		Duration: elapsed,
	}
	if err == nil {
		res.Ranked, err = classifier.Rank(d.cfg.Labels, scores)
	}
	if err != nil {
		res.Err = fmt.Errorf("inference failed: %w", err)
		d.log.Errorf("inference %d failed: %v", res.Seq, err)
	} else {
		d.log.Debugf("inference %d done in %s", res.Seq, elapsed.Round(time.Millisecond))
	}

	d.cfg.Sink.Display(res)
}

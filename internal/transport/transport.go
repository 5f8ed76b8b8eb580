// Package transport publishes inference results outside the process.
package transport

import (
	"errors"
	"sync"

	applog "lid/internal/log"
	"lid/internal/pipeline"
)

var logger = applog.New("transport")

// Transport defines a generic interface for sending results or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Fanout is a pipeline.Sink that hands every result to a set of transports.
// Send errors are logged and never reach the dispatcher.
type Fanout struct {
	mu         sync.RWMutex
	transports []Transport
}

// NewFanout returns a Fanout over ts.
func NewFanout(ts ...Transport) *Fanout {
	return &Fanout{transports: ts}
}

// Add registers another transport.
func (f *Fanout) Add(t Transport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transports = append(f.transports, t)
}

// Len returns the number of registered transports.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.transports)
}

func (f *Fanout) Display(res pipeline.Result) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, t := range f.transports {
		if err := t.Send(res); err != nil {
			logger.Warnf("%T: failed to send result %d: %v", t, res.Seq, err)
		}
	}
}

// Close closes every transport.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, t := range f.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.transports = nil
	return errors.Join(errs...)
}

var _ pipeline.Sink = (*Fanout)(nil)

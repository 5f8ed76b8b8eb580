package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lid/internal/classifier"
)

// fakeInput returns full chunks of value fill every period until stopped.
// When limit > 0 it reports io.EOF after that many reads.
type fakeInput struct {
	fill   float32
	period time.Duration
	limit  int

	mu      sync.Mutex
	started bool
	starts  int
	reads   int
	closed  bool
}

func (f *fakeInput) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.starts++
	return nil
}

func (f *fakeInput) Read(buf []float32) (int, error) {
	time.Sleep(f.period)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limit > 0 && f.reads >= f.limit {
		return 0, io.EOF
	}
	f.reads++
	for i := range buf {
		buf[i] = f.fill
	}
	return len(buf), nil
}

func (f *fakeInput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

func (f *fakeInput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeInput) isStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeInput) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// fakeOutput records writes. While writing it checks that the paired input
// is not running.
type fakeOutput struct {
	input    *fakeInput
	writeErr error
	short    bool
	startErr error
	delay    time.Duration

	mu        sync.Mutex
	started   bool
	written   [][]float32
	overlap   bool
	closed    bool
	stopCalls int
}

func (f *fakeOutput) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeOutput) Write(buf []float32) (int, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.input != nil && f.input.isStarted() {
		f.overlap = true
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, append([]float32(nil), buf...))
	if f.short {
		return len(buf) / 2, nil
	}
	return len(buf), nil
}

func (f *fakeOutput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.stopCalls++
	return nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// stubClassifier returns fixed scores and records how it was called.
type stubClassifier struct {
	scores   []float32
	inputLen int
	delay    time.Duration
	err      error
	block    chan struct{} // When set, every call waits for a receive.

	calls     atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	closed    atomic.Bool

	mu        sync.Mutex
	lastInput []float32
}

func (s *stubClassifier) Classify(ctx context.Context, input []float32) ([]float32, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxFlight.Load()
		if n <= cur || s.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	s.calls.Add(1)

	s.mu.Lock()
	s.lastInput = append([]float32(nil), input...)
	s.mu.Unlock()

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return append([]float32(nil), s.scores...), nil
}

func (s *stubClassifier) NumClasses() int  { return len(s.scores) }
func (s *stubClassifier) InputLength() int { return s.inputLen }
func (s *stubClassifier) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *stubClassifier) last() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInput
}

var _ classifier.Classifier = (*stubClassifier)(nil)

// recordingSink collects results and signals each one.
type recordingSink struct {
	mu      sync.Mutex
	results []Result
	signal  chan Result
}

func newRecordingSink() *recordingSink {
	return &recordingSink{signal: make(chan Result, 256)}
}

func (r *recordingSink) Display(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	select {
	case r.signal <- res:
	default:
	}
}

func (r *recordingSink) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func (r *recordingSink) next(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-r.signal:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
		return Result{}
	}
}

var errBoom = errors.New("boom")

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

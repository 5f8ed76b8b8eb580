package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"lid/internal/audio"
)

// playAndWait starts a playback and returns its outcome.
func playAndWait(t *testing.T, c *Controller) error {
	t.Helper()
	done := make(chan error, 1)
	c.OnPlaybackDone(func(err error) { done <- err })
	if !c.Playback() {
		t.Fatal("playback was not started")
	}
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
		return nil
	}
}

func TestPlaybackSuspendsAndRestoresCapture(t *testing.T) {
	f := newFixture(t, nil)
	f.out.delay = time.Millisecond

	if err := f.c.StartCapture(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "full window", func() bool { return f.c.Status().WindowChunks == 5 })

	var mu sync.Mutex
	var during []Status
	f.c.Subscribe(func(st Status) {
		if st.Playback == Playing {
			mu.Lock()
			during = append(during, st)
			mu.Unlock()
		}
	})

	if err := playAndWait(t, f.c); err != nil {
		t.Fatalf("playback failed: %v", err)
	}

	f.out.mu.Lock()
	overlap, written := f.out.overlap, len(f.out.written)
	f.out.mu.Unlock()
	if overlap {
		t.Error("input was running while the output was written")
	}
	if written != 5 {
		t.Errorf("played %d chunks, want 5", written)
	}

	st := f.c.Status()
	if st.Capture != audio.Recording || !st.InferenceEnabled || st.Suspended {
		t.Errorf("capture not restored: %+v", st)
	}
	if f.in.startCount() != 2 {
		t.Errorf("input started %d times, want 2", f.in.startCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(during) == 0 {
		t.Fatal("no status published while playing")
	}
	if during[0].Controls != (Controls{Reset: true}) {
		t.Errorf("controls while playing = %+v", during[0].Controls)
	}
}

func TestPlaybackWhileStoppedLeavesCaptureAlone(t *testing.T) {
	f := newFixture(t, nil)
	f.fillWindow(t)
	starts := f.in.startCount()

	if err := playAndWait(t, f.c); err != nil {
		t.Fatal(err)
	}
	if f.in.startCount() != starts {
		t.Error("playback started capture")
	}
	if st := f.c.Status(); st.Capture != audio.Stopped || st.InferenceEnabled {
		t.Errorf("status after playback = %+v", st)
	}
}

func TestPlaybackErrorsRestoreCapture(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeOutput)
		wantErr error
		stopped int
	}{
		{"write error", func(o *fakeOutput) { o.writeErr = errBoom }, errBoom, 1},
		{"short write", func(o *fakeOutput) { o.short = true }, audio.ErrShortWrite, 1},
		{"start error", func(o *fakeOutput) { o.startErr = errBoom }, errBoom, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(f.out)

			f.c.StartCapture()
			eventually(t, "buffered chunk", func() bool { return f.c.Status().WindowChunks > 0 })

			err := playAndWait(t, f.c)
			if !errors.Is(err, ErrPlaybackDevice) || !errors.Is(err, tt.wantErr) {
				t.Errorf("playback error = %v", err)
			}

			st := f.c.Status()
			if st.Capture != audio.Recording || !st.InferenceEnabled {
				t.Errorf("capture not restored after failure: %+v", st)
			}
			if st.Playback != Idle {
				t.Errorf("playback state = %v, want idle", st.Playback)
			}
			f.out.mu.Lock()
			defer f.out.mu.Unlock()
			if f.out.stopCalls != tt.stopped {
				t.Errorf("output stopped %d times, want %d", f.out.stopCalls, tt.stopped)
			}
		})
	}
}

func TestPlaybackIgnoredWhilePlaying(t *testing.T) {
	f := newFixture(t, nil)
	f.fillWindow(t)
	f.out.delay = 10 * time.Millisecond

	done := make(chan error, 2)
	f.c.OnPlaybackDone(func(err error) { done <- err })

	if !f.c.Playback() {
		t.Fatal("first playback rejected")
	}
	if f.c.Playback() {
		t.Error("second playback accepted while playing")
	}

	// Start is ignored and Stop has nothing to stop.
	if err := f.c.StartCapture(); err != nil {
		t.Fatal(err)
	}
	if f.c.Status().Capture != audio.Stopped {
		t.Error("StartCapture took effect during playback")
	}
	// Reset is still allowed; the player plays its own snapshot.
	f.c.Reset()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
	}

	f.out.mu.Lock()
	defer f.out.mu.Unlock()
	if len(f.out.written) != 5 {
		t.Errorf("played %d chunks, want 5", len(f.out.written))
	}
	if f.c.Status().Capture != audio.Stopped {
		t.Error("capture running after playback from stopped")
	}
}

package transport

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"lid/internal/classifier"
	applog "lid/internal/log"
	"lid/internal/pipeline"
)

type recordingTransport struct {
	mu      sync.Mutex
	sent    []any
	sendErr error
	closed  bool
}

func (r *recordingTransport) Send(data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, data)
	return r.sendErr
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func sampleResult() pipeline.Result {
	ranked, _ := classifier.Rank([]string{"Chinese", "English", "Spanish"}, []float32{0.1, 0.7, 0.2})
	return pipeline.Result{
		Seq:      7,
		Session:  "s-1",
		At:       time.Unix(1700000000, 0),
		Duration: 12 * time.Millisecond,
		Ranked:   ranked,
	}
}

func TestFanoutDeliversToEveryTransport(t *testing.T) {
	failing := &recordingTransport{sendErr: errors.New("unreachable")}
	ok := &recordingTransport{}
	f := NewFanout(failing)
	f.Add(ok)

	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}

	res := sampleResult()
	f.Display(res)

	for name, rt := range map[string]*recordingTransport{"failing": failing, "ok": ok} {
		if len(rt.sent) != 1 || rt.sent[0].(pipeline.Result).Seq != res.Seq {
			t.Errorf("%s transport got %v", name, rt.sent)
		}
	}

	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if !failing.closed || !ok.closed {
		t.Error("transports not closed")
	}
	if f.Len() != 0 {
		t.Error("transports kept after Close")
	}
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(sampleResult())
	if m.Seq != 7 || m.Session != "s-1" || m.DurationMs != 12 {
		t.Errorf("message = %+v", m)
	}
	if len(m.Scores) != 3 || m.Scores[0].Label != "English" || m.Error != "" {
		t.Errorf("scores = %+v", m.Scores)
	}

	failed := NewMessage(pipeline.Result{Seq: 8, Err: errors.New("model file missing")})
	if failed.Error != "model file missing" || len(failed.Scores) != 0 {
		t.Errorf("failed message = %+v", failed)
	}

	if got := encodable("ping"); got != "ping" {
		t.Errorf("non-result payload changed: %v", got)
	}
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	t.Cleanup(func() { applog.SetOutput(os.Stderr) })

	lt := NewLoggingTransport()
	lt.Send(sampleResult())
	lt.Send(pipeline.Result{Seq: 9, Err: errors.New("boom")})

	out := buf.String()
	if !strings.Contains(out, "English: 70.000%, Spanish: 20.000%, Chinese: 10.000%") {
		t.Errorf("ranked text missing from log:\n%s", out)
	}
	if !strings.Contains(out, "result 9: boom") {
		t.Errorf("error missing from log:\n%s", out)
	}
	if err := lt.Close(); err != nil {
		t.Error(err)
	}
}

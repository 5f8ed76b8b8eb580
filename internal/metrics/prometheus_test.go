package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ChunkCaptured()
	m.ReadError()
	m.ShortRead()
	m.SetWindowChunks(3)
	m.InferenceDone(time.Millisecond, nil)
	m.InferenceDropped()
	m.InferenceCoalesced()
	m.PlaybackDone(errors.New("boom"))
}

func TestCounters(t *testing.T) {
	m := NewMetrics()

	m.ChunkCaptured()
	m.ChunkCaptured()
	m.ShortRead()
	m.InferenceDone(2*time.Millisecond, nil)
	m.InferenceDone(2*time.Millisecond, errors.New("model failed"))
	m.PlaybackDone(nil)
	m.SetWindowChunks(7)

	if got := testutil.ToFloat64(m.ChunksCaptured); got != 2 {
		t.Errorf("ChunksCaptured = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ShortReads); got != 1 {
		t.Errorf("ShortReads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InferencesRun); got != 2 {
		t.Errorf("InferencesRun = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InferencesFailed); got != 1 {
		t.Errorf("InferencesFailed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PlaybackErrors); got != 0 {
		t.Errorf("PlaybackErrors = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.WindowChunks); got != 7 {
		t.Errorf("WindowChunks = %v, want 7", got)
	}
}

func TestRegistryExposition(t *testing.T) {
	m := NewMetrics()
	m.InferenceDropped()

	srv := httptest.NewServer(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "lid_inferences_dropped_total 1") {
		t.Errorf("exposition missing dropped counter:\n%s", body)
	}
}

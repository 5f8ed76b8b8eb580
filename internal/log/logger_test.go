package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestComponentLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	origLevel := GetLevel()
	t.Cleanup(func() {
		SetLevel(origLevel)
		SetOutput(&bytes.Buffer{})
	})

	SetLevel(LevelWarn)
	l := New("capture")
	l.Infof("hidden %d", 1)
	l.Warnf("short read %d/%d", 10, 20)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN ] capture: short read 10/20") {
		t.Errorf("missing component prefix in %q", out)
	}
}

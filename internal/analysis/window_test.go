package analysis

import (
	"math"
	"testing"
)

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"", Hann, false},
		{" BLACKMAN ", Blackman, false},
		{"BartlettHann", BartlettHann, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"Hamming", Hamming, false},
		{"lanczos", Lanczos, false},
		{"nuttall", Nuttall, false},
		{"none", Rectangular, false},
		{"triangle", Hann, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestWindowFuncString(t *testing.T) {
	if Hamming.String() != "Hamming" {
		t.Errorf("Hamming.String() = %q", Hamming.String())
	}
	if WindowFunc(99).String() != "WindowFunc(99)" {
		t.Errorf("unknown window String() = %q", WindowFunc(99).String())
	}
}

func TestApplyWindow(t *testing.T) {
	coeffs := make([]float64, 64)

	applyWindow(coeffs, Rectangular)
	for i, c := range coeffs {
		if c != 1 {
			t.Fatalf("rectangular coefficient %d = %v, want 1", i, c)
		}
	}

	applyWindow(coeffs, Hann)
	if coeffs[0] > 1e-9 {
		t.Errorf("Hann window should start at zero, got %v", coeffs[0])
	}
	if math.Abs(coeffs[32]-1) > 0.01 {
		t.Errorf("Hann window should peak near the center, got %v", coeffs[32])
	}

	// Unknown types fall back to Hann.
	fallback := make([]float64, 64)
	applyWindow(fallback, WindowFunc(42))
	for i := range coeffs {
		if fallback[i] != coeffs[i] {
			t.Fatalf("fallback coefficient %d = %v, want Hann %v", i, fallback[i], coeffs[i])
		}
	}
}

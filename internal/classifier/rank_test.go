package classifier

import (
	"testing"
)

func TestRank(t *testing.T) {
	got, err := Rank([]string{"A", "B", "C"}, []float32{0.1, 0.7, 0.2})
	if err != nil {
		t.Fatal(err)
	}
	want := Ranked{{"B", 0.7}, {"C", 0.2}, {"A", 0.1}}
	if len(got) != len(want) {
		t.Fatalf("Rank() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rank() = %v, want %v", got, want)
		}
	}
}

func TestRankTiesKeepLabelOrder(t *testing.T) {
	got, _ := Rank([]string{"x", "y", "z"}, []float32{0.25, 0.5, 0.25})
	order := []string{"y", "x", "z"}
	for i, l := range order {
		if got[i].Label != l {
			t.Fatalf("Rank() = %v, want order %v", got, order)
		}
	}
}

func TestRankLengthMismatch(t *testing.T) {
	if _, err := Rank([]string{"A", "B"}, []float32{1}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestRankedTop(t *testing.T) {
	if _, ok := (Ranked{}).Top(); ok {
		t.Error("empty result should have no top score")
	}
	r, _ := Rank([]string{"English", "Spanish"}, []float32{0.3, 0.6})
	top, ok := r.Top()
	if !ok || top.Label != "Spanish" {
		t.Errorf("Top() = %v, %v", top, ok)
	}
}

func TestRankedString(t *testing.T) {
	r, _ := Rank([]string{"Chinese", "English", "Spanish"}, []float32{0.1, 0.7, 0.2})
	want := "English: 70.000%\nSpanish: 20.000%\nChinese: 10.000%\n"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

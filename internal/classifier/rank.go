package classifier

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Score pairs a class label with its score in [0, 1].
type Score struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Ranked holds every class score of one inference, highest first.
type Ranked []Score

// Rank pairs labels with scores and sorts them descending. Ties keep label order.
func Rank(labels []string, scores []float32) (Ranked, error) {
	if len(labels) != len(scores) {
		return nil, fmt.Errorf("got %d scores for %d labels", len(scores), len(labels))
	}
	r := make(Ranked, len(labels))
	for i, l := range labels {
		r[i] = Score{Label: l, Score: scores[i]}
	}
	slices.SortStableFunc(r, func(a, b Score) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return r, nil
}

// Top returns the highest scoring class.
func (r Ranked) Top() (Score, bool) {
	if len(r) == 0 {
		return Score{}, false
	}
	return r[0], true
}

// String renders one "Label: 70.000%" line per class.
func (r Ranked) String() string {
	var sb strings.Builder
	for _, s := range r {
		fmt.Fprintf(&sb, "%s: %.3f%%\n", s.Label, s.Score*100)
	}
	return sb.String()
}

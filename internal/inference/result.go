package inference

import (
	"math"
	"sort"
)

type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is the ranked output of one zero-shot classification.
type Result struct {
	Sequence string       `json:"sequence"`
	Labels   []LabelScore `json:"labels"`
}

// Top returns the rank-0 label, or "" for an empty result.
func (r *Result) Top() string {
	if r == nil || len(r.Labels) == 0 {
		return ""
	}
	return r.Labels[0].Label
}

// SortLabels orders scores descending. Equal scores are ordered by label so
// the ranking never depends on the order labels were submitted in.
func SortLabels(labels []LabelScore) {
	sort.SliceStable(labels, func(i, j int) bool {
		if labels[i].Score != labels[j].Score {
			return labels[i].Score > labels[j].Score
		}
		return labels[i].Label < labels[j].Label
	})
}

// Softmax returns exp(x_i) / sum(exp(x)), shifted by max(x) for stability.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// NewResult pairs labels with scores and ranks them.
func NewResult(sequence string, labels []string, scores []float64) *Result {
	ls := make([]LabelScore, len(labels))
	for i, label := range labels {
		ls[i] = LabelScore{Label: label, Score: scores[i]}
	}
	SortLabels(ls)
	return &Result{Sequence: sequence, Labels: ls}
}

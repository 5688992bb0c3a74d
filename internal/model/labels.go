package model

import (
	"fmt"
	"sort"
)

// LabelSet is the deduplicated class list of a classifier. Position i names
// the i-th score of the model output.
type LabelSet struct {
	labels []string
}

// NewLabelSet sorts and deduplicates labels, matching classifiers trained on
// alphabetically ordered class folders.
func NewLabelSet(labels []string) LabelSet {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, l := range sorted {
		if i > 0 && l == sorted[i-1] {
			continue
		}
		out = append(out, l)
	}
	return LabelSet{labels: out}
}

// OrderedLabelSet keeps labels in the given order, which must be the model's
// output order.
func OrderedLabelSet(labels []string) (LabelSet, error) {
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		if seen[label] {
			return LabelSet{}, fmt.Errorf("duplicate class %q", label)
		}
		seen[label] = true
	}
	return LabelSet{labels: append([]string(nil), labels...)}, nil
}

func (l LabelSet) Len() int {
	return len(l.labels)
}

func (l LabelSet) Labels() []string {
	return append([]string(nil), l.labels...)
}

func (l LabelSet) Contains(label string) bool {
	for _, s := range l.labels {
		if s == label {
			return true
		}
	}
	return false
}

// Top returns the highest scoring label. The first maximum wins ties.
func (l LabelSet) Top(scores []float32) (PredictionResult, error) {
	if len(scores) == 0 {
		return PredictionResult{}, fmt.Errorf("model produced no scores")
	}
	if len(scores) != len(l.labels) {
		return PredictionResult{}, fmt.Errorf("model produced %d scores for %d labels", len(scores), len(l.labels))
	}
	maxIdx := 0
	for i, v := range scores {
		if v > scores[maxIdx] {
			maxIdx = i
		}
	}
	return PredictionResult{
		Index:      maxIdx,
		Label:      l.labels[maxIdx],
		Confidence: float64(scores[maxIdx]),
	}, nil
}

// Ranked is one class code with its probability.
type Ranked struct {
	Class       string
	Probability float64
}

// TopK orders classes by probability, highest first, and keeps k of them.
// Equal probabilities keep the class order.
func TopK(classes []string, probs []float32, k int) ([]Ranked, error) {
	if len(classes) != len(probs) {
		return nil, fmt.Errorf("model produced %d probabilities for %d classes", len(probs), len(classes))
	}
	ranked := make([]Ranked, len(classes))
	for i, c := range classes {
		ranked[i] = Ranked{Class: c, Probability: float64(probs[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}

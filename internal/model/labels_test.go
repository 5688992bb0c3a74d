package model

import (
	"reflect"
	"testing"

	"github.com/Brownie44l1/farm-api/internal/catalog"
)

func TestNewLabelSet(t *testing.T) {
	got := NewLabelSet([]string{"Maize", "Charlock", "Maize", "Black-grass"})
	want := []string{"Black-grass", "Charlock", "Maize"}
	if !reflect.DeepEqual(got.Labels(), want) {
		t.Errorf("Labels() = %v, want %v", got.Labels(), want)
	}
	if !got.Contains("Charlock") || got.Contains("Cleavers") {
		t.Errorf("Contains() mismatch for %v", got.Labels())
	}
}

func TestOrderedLabelSet(t *testing.T) {
	got, err := OrderedLabelSet([]string{"Maize", "Charlock", "Black-grass"})
	if err != nil {
		t.Fatalf("OrderedLabelSet() error = %v", err)
	}
	if want := []string{"Maize", "Charlock", "Black-grass"}; !reflect.DeepEqual(got.Labels(), want) {
		t.Errorf("Labels() = %v, want %v", got.Labels(), want)
	}
	top, err := got.Top([]float32{0.7, 0.2, 0.1})
	if err != nil || top.Label != "Maize" {
		t.Errorf("Top() = %+v, %v, want Maize", top, err)
	}
	if !got.Contains("Black-grass") || got.Contains("Cleavers") {
		t.Errorf("Contains() mismatch for %v", got.Labels())
	}
	if _, err := OrderedLabelSet([]string{"a", "b", "a"}); err == nil {
		t.Errorf("OrderedLabelSet() with duplicate, want error")
	}
}

func TestLabelSetTop(t *testing.T) {
	labels := NewLabelSet(catalog.DiseaseLabels())
	if labels.Len() != 38 {
		t.Fatalf("Len() = %d, want 38", labels.Len())
	}
	scores := make([]float32, 38)
	for i := range scores {
		scores[i] = 0.01
	}
	scores[29] = 0.6

	got, err := labels.Top(scores)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if got.Index != 29 || got.Label != "Tomato___Early_blight" {
		t.Errorf("Top() = %+v, want index 29 Tomato___Early_blight", got)
	}
	if got.Confidence != float64(float32(0.6)) {
		t.Errorf("Confidence = %v, want max score", got.Confidence)
	}
	if !labels.Contains(got.Label) {
		t.Errorf("label %q not in label set", got.Label)
	}
}

func TestLabelSetTopErrors(t *testing.T) {
	labels := NewLabelSet([]string{"a", "b"})
	if _, err := labels.Top(nil); err == nil {
		t.Errorf("Top(nil), want error")
	}
	if _, err := labels.Top([]float32{0.2, 0.3, 0.5}); err == nil {
		t.Errorf("Top() with extra scores, want error")
	}
}

func TestTopK(t *testing.T) {
	tests := []struct {
		name    string
		classes []string
		probs   []float32
		k       int
		want    []string
		wantErr bool
	}{
		{
			name:    "descending",
			classes: []string{"MAIZ", "RICE", "WHEAT", "COTN"},
			probs:   []float32{0.1, 0.5, 0.15, 0.25},
			k:       3,
			want:    []string{"RICE", "COTN", "WHEAT"},
		},
		{
			name:    "ties keep class order",
			classes: []string{"A", "B", "C", "D"},
			probs:   []float32{0.25, 0.25, 0.25, 0.25},
			k:       3,
			want:    []string{"A", "B", "C"},
		},
		{
			name:    "fewer classes than k",
			classes: []string{"A", "B"},
			probs:   []float32{0.3, 0.7},
			k:       3,
			want:    []string{"B", "A"},
		},
		{
			name:    "length mismatch",
			classes: []string{"A"},
			probs:   []float32{0.3, 0.7},
			k:       3,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TopK(tt.classes, tt.probs, tt.k)
			if (err != nil) != tt.wantErr {
				t.Errorf("TopK() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			names := []string{}
			for _, r := range got {
				names = append(names, r.Class)
			}
			if !tt.wantErr && !reflect.DeepEqual(names, tt.want) {
				t.Errorf("TopK() = %v, want %v", names, tt.want)
			}
		})
	}
}

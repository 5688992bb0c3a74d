package explain

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/Brownie44l1/farm-api/internal/imaging"
)

func TestExplainImageBands(t *testing.T) {
	tests := []struct {
		kind       Kind
		confidence float64
		header     string
		advice     string
	}{
		{KindDisease, 0.92, "High Confidence Detection (92.0%)", "Immediate Actions"},
		{KindDisease, 0.75, "Moderate Confidence (75.0%)", "Immediate Actions"},
		{KindDisease, 0.65, "Moderate Confidence (65.0%)", "Next Steps"},
		{KindDisease, 0.40, "Low Confidence (40.0%)", "Next Steps"},
		{KindWeed, 0.85, "Weed Identified (85.0%)", "Management Options"},
		{KindWeed, 0.72, "Uncertain Detection (72.0%)", "Management Options"},
		{KindWeed, 0.50, "Uncertain Detection (50.0%)", "Verification Steps"},
	}
	for _, tt := range tests {
		got := ExplainImage(tt.kind, "Tomato - Early blight", tt.confidence, []float64{0.3})
		if !strings.Contains(got.FarmerExplanation, tt.header) {
			t.Errorf("ExplainImage(%s, %v) missing %q in %q", tt.kind, tt.confidence, tt.header, got.FarmerExplanation)
		}
		if !strings.Contains(got.FarmerExplanation, tt.advice) {
			t.Errorf("ExplainImage(%s, %v) missing advice %q", tt.kind, tt.confidence, tt.advice)
		}
		if got.Confidence != tt.confidence {
			t.Errorf("Confidence = %v, want %v", got.Confidence, tt.confidence)
		}
	}
}

func TestExplainImageKeyFactors(t *testing.T) {
	got := ExplainImage(KindWeed, "Fat_Hen", 0.9, []float64{0.1, -0.2, 0.5, 0.05, 0.3, 0.2, 0.4})
	want := []Factor{
		{Factor: "Image region 1", Importance: 0.5, Effect: "positive", Description: "Plant shape and structure"},
		{Factor: "Image region 2", Importance: 0.4, Effect: "positive", Description: "Leaf arrangement patterns"},
		{Factor: "Image region 3", Importance: 0.3, Effect: "positive", Description: "Growth habit indicators"},
		{Factor: "Image region 4", Importance: 0.2, Effect: "positive", Description: "Stem characteristics"},
		{Factor: "Image region 5", Importance: 0.1, Effect: "positive", Description: "Overall plant morphology"},
	}
	if !reflect.DeepEqual(got.KeyFactors, want) {
		t.Errorf("KeyFactors = %+v, want %+v", got.KeyFactors, want)
	}
	if !strings.Contains(got.FarmerExplanation, "**Fat Hen** detected") {
		t.Errorf("FarmerExplanation = %q", got.FarmerExplanation)
	}

	none := ExplainImage(KindDisease, "x", 0.9, []float64{-0.1, 0})
	if len(none.KeyFactors) != 0 {
		t.Errorf("KeyFactors for non-positive regions = %+v, want none", none.KeyFactors)
	}
}

func TestExplainImageFallback(t *testing.T) {
	got := ExplainImage(KindDisease, "corn_common_rust", 0.5, nil)
	want := "AI detected Corn Common Rust with 50.0% confidence. Please consult agricultural experts for detailed analysis."
	if got.FarmerExplanation != want {
		t.Errorf("FarmerExplanation = %q, want %q", got.FarmerExplanation, want)
	}
	if len(got.KeyFactors) != 1 || got.KeyFactors[0].Factor != "Image analysis" {
		t.Errorf("KeyFactors = %+v", got.KeyFactors)
	}
}

func TestTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Common_Chickweed", "Common Chickweed"},
		{"tomato - LATE blight", "Tomato - Late Blight"},
		{"Shepherd’s Purse", "Shepherd’S Purse"},
		{"black-grass", "Black-Grass"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := title(tt.in); got != tt.want {
			t.Errorf("title(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExplainCrop(t *testing.T) {
	recs := []Recommendation{{Crop: "Rice", Confidence: 61.5}, {Crop: "Maize", Confidence: 20}}
	names := []string{"K", "N", "P", "PRECTOTCORR", "T2M_MAX"}
	values := []float64{30, 150, 45, 30, 38}

	got := ExplainCrop(recs, names, values)

	wantImportance := []struct {
		feature    string
		value      float64
		importance float64
		status     string
	}{
		{"Maximum Temperature", 38, 0.2, "high"},
		{"Nitrogen Level", 150, 0.1875, "high"},
		{"Phosphorus Level", 45, 0.09, "optimal"},
		{"Potassium Level", 30, 0.03, "low"},
		{"Rainfall", 30, 0.02, "low"},
	}
	if len(got.FeatureImportance) != len(wantImportance) {
		t.Fatalf("FeatureImportance = %+v, want %d entries", got.FeatureImportance, len(wantImportance))
	}
	for i, want := range wantImportance {
		fi := got.FeatureImportance[i]
		if fi.Feature != want.feature || fi.Value != want.value || fi.Status != want.status || math.Abs(fi.Importance-want.importance) > 1e-9 {
			t.Errorf("FeatureImportance[%d] = %+v, want %+v", i, fi, want)
		}
	}

	for _, line := range []string{
		"**Top Recommendation: Rice** (61.5% match)",
		"High temperature (38°C)",
		"Low rainfall (30mm)",
		"Nitrogen level is high (150)",
		"Phosphorus level is optimal (45)",
		"Potassium level is low (30) - may need fertilization",
		"Rice is recommended because",
	} {
		if !strings.Contains(got.FarmerExplanation, line) {
			t.Errorf("FarmerExplanation missing %q", line)
		}
	}

	wantFactors := []string{"High Temperature", "Low Rainfall"}
	var factors []string
	for _, f := range got.EnvironmentalFactors {
		factors = append(factors, f.Factor)
	}
	if !reflect.DeepEqual(factors, wantFactors) {
		t.Errorf("EnvironmentalFactors = %v, want %v", factors, wantFactors)
	}

	wantCategories := []string{"Crop Management", "Fertilization", "Water Management", "Soil Health"}
	var categories []string
	for _, r := range got.Recommendations {
		categories = append(categories, r.Category)
	}
	if !reflect.DeepEqual(categories, wantCategories) {
		t.Errorf("Recommendations = %v, want %v", categories, wantCategories)
	}
}

func TestExplainCropTopSix(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	values := []float64{10, 80, 20, 70, 30, 60, 40, 50}
	got := ExplainCrop([]Recommendation{{Crop: "Rice", Confidence: 90}}, names, values)
	if len(got.FeatureImportance) != 6 {
		t.Fatalf("len(FeatureImportance) = %d, want 6", len(got.FeatureImportance))
	}
	if got.FeatureImportance[0].Feature != "B" || got.FeatureImportance[0].Status != "normal" {
		t.Errorf("FeatureImportance[0] = %+v", got.FeatureImportance[0])
	}
	for i := 1; i < len(got.FeatureImportance); i++ {
		if got.FeatureImportance[i].Importance > got.FeatureImportance[i-1].Importance {
			t.Errorf("FeatureImportance not sorted at %d", i)
		}
	}
}

func TestExplainCropFallback(t *testing.T) {
	got := ExplainCrop(nil, []string{"N"}, []float64{1})
	if got.FarmerExplanation != "Crop recommendations are based on your environmental and soil conditions." {
		t.Errorf("FarmerExplanation = %q", got.FarmerExplanation)
	}
	if len(got.Recommendations) != 1 || got.Recommendations[0].Category != "General" {
		t.Errorf("Recommendations = %+v", got.Recommendations)
	}
}

// quadrantPredictor scores class 0 by the mean of the top-left quadrant.
type quadrantPredictor struct{ size int }

func (p quadrantPredictor) Predict(ctx context.Context, shape []int64, data []float32) ([]float32, error) {
	var sum float32
	half := p.size / 2
	for y := 0; y < half; y++ {
		for x := 0; x < half; x++ {
			for c := 0; c < 3; c++ {
				sum += data[(y*p.size+x)*3+c]
			}
		}
	}
	return []float32{sum / float32(half*half*3), 0}, nil
}

func TestOcclusionRegions(t *testing.T) {
	data := make([]float32, 4*4*3)
	for i := range data {
		data[i] = 1
	}
	tensor := imaging.Tensor{Shape: []int64{1, 4, 4, 3}, Data: data}

	o := Occlusion{Predictor: quadrantPredictor{size: 4}, Grid: 2}
	got, err := o.Regions(context.Background(), tensor, 0)
	if err != nil {
		t.Fatalf("Regions() error = %v", err)
	}
	want := []float64{1, 0, 0, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Regions() = %v, want %v", got, want)
	}
	if data[0] != 1 {
		t.Errorf("Regions() modified the input tensor")
	}

	if _, err := o.Regions(context.Background(), tensor, 5); err == nil {
		t.Errorf("Regions() with out-of-range class, want error")
	}
	if _, err := o.Regions(context.Background(), imaging.Tensor{Shape: []int64{1, 48}}, 0); err == nil {
		t.Errorf("Regions() with 2-d tensor, want error")
	}
}

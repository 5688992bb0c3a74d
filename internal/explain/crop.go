package explain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const maxImportances = 6

type Recommendation struct {
	Crop       string  `json:"crop"`
	Confidence float64 `json:"confidence"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Value      float64 `json:"value"`
	Importance float64 `json:"importance"`
	Status     string  `json:"status"`
}

type EnvironmentalFactor struct {
	Factor         string `json:"factor"`
	Value          string `json:"value"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

type FarmingRecommendation struct {
	Category       string `json:"category"`
	Recommendation string `json:"recommendation"`
	Priority       string `json:"priority"`
}

type CropExplanation struct {
	RecommendedCrops     []Recommendation        `json:"recommended_crops"`
	FeatureImportance    []FeatureImportance     `json:"feature_importance"`
	FarmerExplanation    string                  `json:"farmer_explanation"`
	EnvironmentalFactors []EnvironmentalFactor   `json:"environmental_factors"`
	Recommendations      []FarmingRecommendation `json:"recommendations"`
}

type valueRange struct{ lo, hi float64 }

var (
	featureWeights = map[string]float64{
		"T2M_MAX":     0.25,
		"T2M_MIN":     0.20,
		"PRECTOTCORR": 0.20,
		"RH2M":        0.15,
		"WS2M":        0.10,
		"N":           0.25,
		"P":           0.20,
		"K":           0.20,
		"temperature": 0.25,
		"humidity":    0.15,
		"rainfall":    0.20,
		"ph":          0.15,
	}

	// Typical ranges used to scale a value into [0,1].
	typicalRanges = map[string]valueRange{
		"T2M_MAX":     {10, 45},
		"T2M_MIN":     {5, 30},
		"PRECTOTCORR": {0, 300},
		"RH2M":        {20, 100},
		"WS2M":        {0, 20},
		"N":           {0, 200},
		"P":           {0, 100},
		"K":           {0, 200},
	}

	optimalRanges = map[string]valueRange{
		"T2M_MAX":     {20, 35},
		"T2M_MIN":     {10, 25},
		"PRECTOTCORR": {50, 150},
		"RH2M":        {40, 70},
		"WS2M":        {2, 8},
		"N":           {40, 120},
		"P":           {20, 60},
		"K":           {40, 120},
	}

	friendlyNames = map[string]string{
		"T2M_MAX":     "Maximum Temperature",
		"T2M_MIN":     "Minimum Temperature",
		"PRECTOTCORR": "Rainfall",
		"RH2M":        "Humidity",
		"WS2M":        "Wind Speed",
		"N":           "Nitrogen Level",
		"P":           "Phosphorus Level",
		"K":           "Potassium Level",
		"temperature": "Temperature",
		"humidity":    "Humidity",
		"rainfall":    "Rainfall",
		"ph":          "Soil pH",
	}
)

// ExplainCrop explains a crop recommendation given the numeric inputs it was
// made from. names and values are parallel.
func ExplainCrop(recs []Recommendation, names []string, values []float64) CropExplanation {
	if len(recs) == 0 || len(names) != len(values) {
		return FallbackCrop(recs)
	}
	fields := make(map[string]float64, len(names))
	for i, name := range names {
		fields[name] = values[i]
	}
	return CropExplanation{
		RecommendedCrops:     recs,
		FeatureImportance:    featureImportance(names, values),
		FarmerExplanation:    cropText(recs[0], fields),
		EnvironmentalFactors: environmentalFactors(fields),
		Recommendations:      farmingRecommendations(recs[0], fields),
	}
}

func FallbackCrop(recs []Recommendation) CropExplanation {
	if recs == nil {
		recs = []Recommendation{}
	}
	return CropExplanation{
		RecommendedCrops:     recs,
		FeatureImportance:    []FeatureImportance{},
		FarmerExplanation:    "Crop recommendations are based on your environmental and soil conditions.",
		EnvironmentalFactors: []EnvironmentalFactor{},
		Recommendations: []FarmingRecommendation{
			{Category: "General", Recommendation: "Consult with local agricultural experts", Priority: "high"},
		},
	}
}

func featureImportance(names []string, values []float64) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(names))
	for i, name := range names {
		w, ok := featureWeights[name]
		if !ok {
			w = 0.1
		}
		out = append(out, FeatureImportance{
			Feature:    friendlyName(name),
			Value:      values[i],
			Importance: w * normalize(name, values[i]),
			Status:     status(name, values[i]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out[:min(maxImportances, len(out))]
}

func normalize(name string, v float64) float64 {
	r, ok := typicalRanges[name]
	if !ok {
		r = valueRange{0, 100}
	}
	return min(1, max(0, (v-r.lo)/(r.hi-r.lo)))
}

// status reports "low", "high" or "optimal" against the optimal range, or
// "normal" for features without one.
func status(name string, v float64) string {
	r, ok := optimalRanges[name]
	switch {
	case !ok:
		return "normal"
	case v < r.lo:
		return "low"
	case v > r.hi:
		return "high"
	default:
		return "optimal"
	}
}

func friendlyName(name string) string {
	if f, ok := friendlyNames[name]; ok {
		return f
	}
	return title(name)
}

func cropText(top Recommendation, fields map[string]float64) string {
	var b strings.Builder
	b.WriteString("🌾 **Crop Recommendation Analysis**\n\n")
	fmt.Fprintf(&b, "**Top Recommendation: %s** (%s%% match)\n\n", top.Crop, num(top.Confidence))
	b.WriteString("**Your Field Conditions:**\n")

	if temp, ok := fields["T2M_MAX"]; ok {
		switch {
		case temp > 35:
			fmt.Fprintf(&b, "🌡️ High temperature (%s°C) - suitable for heat-tolerant crops\n", num(temp))
		case temp < 20:
			fmt.Fprintf(&b, "🌡️ Cool temperature (%s°C) - good for cold-season crops\n", num(temp))
		default:
			fmt.Fprintf(&b, "🌡️ Moderate temperature (%s°C) - suitable for most crops\n", num(temp))
		}
	}
	if rain, ok := fields["PRECTOTCORR"]; ok {
		switch {
		case rain > 150:
			fmt.Fprintf(&b, "🌧️ High rainfall (%smm) - good for water-loving crops\n", num(rain))
		case rain < 50:
			fmt.Fprintf(&b, "🌧️ Low rainfall (%smm) - consider drought-resistant varieties\n", num(rain))
		default:
			fmt.Fprintf(&b, "🌧️ Adequate rainfall (%smm) - suitable for most crops\n", num(rain))
		}
	}
	for _, n := range []struct{ field, name string }{{"N", "Nitrogen"}, {"P", "Phosphorus"}, {"K", "Potassium"}} {
		v, ok := fields[n.field]
		if !ok {
			continue
		}
		switch status(n.field, v) {
		case "low":
			fmt.Fprintf(&b, "⚠️ %s level is low (%s) - may need fertilization\n", n.name, num(v))
		case "high":
			fmt.Fprintf(&b, "✅ %s level is high (%s) - good for nutrient-demanding crops\n", n.name, num(v))
		default:
			fmt.Fprintf(&b, "✅ %s level is optimal (%s)\n", n.name, num(v))
		}
	}

	b.WriteString("\n**Why this recommendation?**\n")
	fmt.Fprintf(&b, "%s is recommended because it matches your current environmental and soil conditions well.\n", top.Crop)
	return b.String()
}

func environmentalFactors(fields map[string]float64) []EnvironmentalFactor {
	factors := []EnvironmentalFactor{}
	if temp, ok := fields["T2M_MAX"]; ok {
		switch {
		case temp > 35:
			factors = append(factors, EnvironmentalFactor{
				Factor:         "High Temperature",
				Value:          num(temp) + "°C",
				Impact:         "Requires heat-tolerant varieties",
				Recommendation: "Consider crops like sorghum, millet, cotton",
			})
		case temp < 20:
			factors = append(factors, EnvironmentalFactor{
				Factor:         "Cool Temperature",
				Value:          num(temp) + "°C",
				Impact:         "Suitable for cool-season crops",
				Recommendation: "Consider wheat, barley, peas",
			})
		}
	}
	if rain, ok := fields["PRECTOTCORR"]; ok {
		switch {
		case rain < 50:
			factors = append(factors, EnvironmentalFactor{
				Factor:         "Low Rainfall",
				Value:          num(rain) + "mm",
				Impact:         "Water stress risk",
				Recommendation: "Install drip irrigation, choose drought-resistant varieties",
			})
		case rain > 200:
			factors = append(factors, EnvironmentalFactor{
				Factor:         "High Rainfall",
				Value:          num(rain) + "mm",
				Impact:         "Risk of waterlogging",
				Recommendation: "Ensure good drainage, choose water-tolerant crops",
			})
		}
	}
	return factors
}

func farmingRecommendations(top Recommendation, fields map[string]float64) []FarmingRecommendation {
	recs := []FarmingRecommendation{
		{Category: "Crop Management", Recommendation: fmt.Sprintf("For %s, ensure proper spacing and timely planting", top.Crop), Priority: "high"},
		{Category: "Fertilization", Recommendation: "Apply balanced fertilizer based on soil test results", Priority: "high"},
	}
	if rain, ok := fields["PRECTOTCORR"]; ok {
		switch {
		case rain < 50:
			recs = append(recs, FarmingRecommendation{Category: "Water Management", Recommendation: "Install efficient irrigation system to supplement rainfall", Priority: "high"})
		case rain > 200:
			recs = append(recs, FarmingRecommendation{Category: "Drainage", Recommendation: "Ensure proper field drainage to prevent waterlogging", Priority: "medium"})
		}
	}
	return append(recs, FarmingRecommendation{Category: "Soil Health", Recommendation: "Regular soil testing and organic matter addition", Priority: "medium"})
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

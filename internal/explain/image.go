// Package explain turns predictions into farmer-readable explanations.
package explain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Brownie44l1/farm-api/internal/imaging"
)

type Kind string

const (
	KindDisease Kind = "disease"
	KindWeed    Kind = "weed"
)

const maxKeyFactors = 5

// RegionExplainer scores image regions by how much they support class.
// Higher weights mean stronger support; the order of the returned weights is
// the explainer's region order.
type RegionExplainer interface {
	Regions(ctx context.Context, t imaging.Tensor, class int) ([]float64, error)
}

type Factor struct {
	Factor      string  `json:"factor"`
	Importance  float64 `json:"importance"`
	Effect      string  `json:"effect"`
	Description string  `json:"description"`
}

type ImageExplanation struct {
	FarmerExplanation string   `json:"farmer_explanation"`
	Confidence        float64  `json:"confidence"`
	KeyFactors        []Factor `json:"key_factors"`
}

var regionDescriptions = map[Kind][]string{
	KindDisease: {
		"Leaf discoloration patterns",
		"Spot or lesion characteristics",
		"Leaf texture changes",
		"Growth abnormalities",
		"Color variations",
	},
	KindWeed: {
		"Plant shape and structure",
		"Leaf arrangement patterns",
		"Growth habit indicators",
		"Stem characteristics",
		"Overall plant morphology",
	},
}

// ExplainImage explains an image prediction. confidence is in [0,1]. When
// regions is empty the generic fallback explanation is returned.
func ExplainImage(kind Kind, label string, confidence float64, regions []float64) ImageExplanation {
	if len(regions) == 0 {
		return FallbackImage(label, confidence)
	}
	pct := confidence * 100
	name := title(label)

	var b strings.Builder
	switch kind {
	case KindWeed:
		if pct > 80 {
			fmt.Fprintf(&b, "🌿 **Weed Identified (%.1f%%)**\n\n", pct)
			fmt.Fprintf(&b, "**%s** detected in your field.\n\n", name)
		} else {
			fmt.Fprintf(&b, "🤔 **Uncertain Detection (%.1f%%)**\n\n", pct)
			fmt.Fprintf(&b, "Possible **%s** but needs verification.\n\n", name)
		}
	default:
		switch {
		case pct > 80:
			fmt.Fprintf(&b, "🔍 **High Confidence Detection (%.1f%%)**\n\n", pct)
			fmt.Fprintf(&b, "The AI has detected **%s** in your crop with high confidence.\n\n", name)
		case pct > 60:
			fmt.Fprintf(&b, "⚠️ **Moderate Confidence (%.1f%%)**\n\n", pct)
			fmt.Fprintf(&b, "The AI suggests possible **%s** but recommends further inspection.\n\n", name)
		default:
			fmt.Fprintf(&b, "❓ **Low Confidence (%.1f%%)**\n\n", pct)
			b.WriteString("The AI is uncertain. Please consult with agricultural experts or take clearer photos.\n\n")
		}
	}
	b.WriteString(advice(kind, pct))

	return ImageExplanation{
		FarmerExplanation: b.String(),
		Confidence:        confidence,
		KeyFactors:        keyFactors(kind, regions),
	}
}

// FallbackImage is the explanation used when no region weights exist.
func FallbackImage(label string, confidence float64) ImageExplanation {
	return ImageExplanation{
		FarmerExplanation: fmt.Sprintf("AI detected %s with %.1f%% confidence. Please consult agricultural experts for detailed analysis.",
			title(label), confidence*100),
		Confidence: confidence,
		KeyFactors: []Factor{
			{Factor: "Image analysis", Importance: 0.8, Effect: "positive", Description: "Overall visual pattern recognition"},
		},
	}
}

func advice(kind Kind, pct float64) string {
	var b strings.Builder
	b.WriteString("**What should you do?**\n\n")
	switch {
	case kind == KindWeed && pct > 70:
		b.WriteString("🚜 **Management Options:**\n")
		b.WriteString("• Hand removal for small infestations\n")
		b.WriteString("• Targeted herbicide application\n")
		b.WriteString("• Prevent seed formation\n")
		b.WriteString("• Regular monitoring\n\n")
		b.WriteString("⚠️ **Important:** Follow local pesticide regulations\n")
	case kind == KindWeed:
		b.WriteString("🔍 **Verification Steps:**\n")
		b.WriteString("• Take photos from different angles\n")
		b.WriteString("• Compare with weed identification guides\n")
		b.WriteString("• Check with local experts\n")
	case pct > 70:
		b.WriteString("✅ **Immediate Actions:**\n")
		b.WriteString("• Isolate affected plants if possible\n")
		b.WriteString("• Check nearby plants for similar symptoms\n")
		b.WriteString("• Consider targeted treatment\n")
		b.WriteString("• Monitor weather conditions\n\n")
		b.WriteString("📞 **Recommended:** Consult with local agricultural extension officer\n")
	default:
		b.WriteString("🔍 **Next Steps:**\n")
		b.WriteString("• Take more clear, well-lit photos\n")
		b.WriteString("• Check multiple plants\n")
		b.WriteString("• Monitor symptoms for 2-3 days\n")
		b.WriteString("• Seek expert opinion\n")
	}
	return b.String()
}

// keyFactors ranks regions by weight and describes the strongest positive ones.
func keyFactors(kind Kind, regions []float64) []Factor {
	ranked := append([]float64(nil), regions...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i] > ranked[j] })

	descs, ok := regionDescriptions[kind]
	if !ok {
		descs = regionDescriptions[KindDisease]
	}
	factors := []Factor{}
	for i, w := range ranked[:min(maxKeyFactors, len(ranked))] {
		if w <= 0 {
			break
		}
		factors = append(factors, Factor{
			Factor:      fmt.Sprintf("Image region %d", i+1),
			Importance:  w,
			Effect:      "positive",
			Description: descs[i%len(descs)],
		})
	}
	return factors
}

// title replaces underscores with spaces and upper-cases the first letter of
// every word, lower-casing the rest.
func title(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	out := make([]rune, 0, len(s))
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			out = append(out, unicode.ToLower(r))
		} else {
			out = append(out, unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return string(out)
}

// Package catalog holds the static crop, label and region tables the service
// is built around. Nothing in here changes after process start.
package catalog

import "sort"

// Nutrients is a per-crop nitrogen/phosphorus/potassium requirement in kg/ha.
type Nutrients struct {
	N float64 `json:"N"`
	P float64 `json:"P"`
	K float64 `json:"K"`
}

var cropNames = map[string]string{
	"AREC":  "Arecanut",
	"ARHR":  "Arhar/Tur",
	"BAJR":  "Bajra",
	"BANA":  "Banana",
	"BARL":  "Barley",
	"BLAC":  "Black pepper",
	"COTN":  "Cotton",
	"GNUT":  "Groundnut",
	"JOWA":  "Jowar",
	"MAIZ":  "Maize",
	"MOOG":  "Moong (Green Gram)",
	"ONIO":  "Onion",
	"POTA":  "Potato",
	"RAGI":  "Ragi",
	"RICE":  "Rice",
	"RM":    "Rapeseed & Mustard",
	"SOYB":  "Soyabean",
	"SUGC":  "Sugarcane",
	"WHEAT": "Wheat",
	"CPEA":  "Cowpea",
	"TURM":  "Turmeric",
}

var cropNutrients = map[string]Nutrients{
	"Rice":      {N: 120, P: 60, K: 60},
	"Wheat":     {N: 150, P: 75, K: 60},
	"Maize":     {N: 180, P: 80, K: 70},
	"Sugarcane": {N: 250, P: 85, K: 120},
	"Cotton":    {N: 120, P: 60, K: 60},
	"Soyabean":  {N: 25, P: 60, K: 40},
	"Potato":    {N: 180, P: 100, K: 120},
	"Onion":     {N: 100, P: 50, K: 50},
	"Groundnut": {N: 20, P: 40, K: 40},
	"Bajra":     {N: 80, P: 40, K: 40},
}

// data.gov.in spells some states differently from the training data.
var marketStateAliases = map[string]string{
	"Chhattisgarh": "Chattisgarh",
}

// DisplayName maps an internal crop code to its display name. Unknown codes
// are returned as given.
func DisplayName(code string) string {
	if name, ok := cropNames[code]; ok {
		return name
	}
	return code
}

// CropCodes returns the known crop codes, sorted.
func CropCodes() []string {
	codes := make([]string, 0, len(cropNames))
	for code := range cropNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsCropCode reports whether code is a known crop code.
func IsCropCode(code string) bool {
	_, ok := cropNames[code]
	return ok
}

// Requirement returns the nutrient requirement for a crop display name.
func Requirement(crop string) (Nutrients, bool) {
	n, ok := cropNutrients[crop]
	return n, ok
}

// FertilizerCrops returns the crops with nutrient data, sorted.
func FertilizerCrops() []string {
	crops := make([]string, 0, len(cropNutrients))
	for crop := range cropNutrients {
		crops = append(crops, crop)
	}
	sort.Strings(crops)
	return crops
}

// MarketState maps a region name to the spelling used by the market price API.
func MarketState(state string) string {
	if alias, ok := marketStateAliases[state]; ok {
		return alias
	}
	return state
}

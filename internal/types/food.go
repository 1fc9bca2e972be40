package types

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

// Food represents one record from the OpenNutrition catalog.
// This is the canonical food struct used throughout the application.
// JSON field names follow the dataset columns.
type Food struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Type               string              `json:"type"`
	EAN13              string              `json:"ean_13"`
	Labels             []string            `json:"labels,omitempty"`
	Nutrition100g      *Nutrition100g      `json:"nutrition_100g,omitempty"`
	AlternateNames     []string            `json:"alternate_names,omitempty"`
	Source             []SourceReference   `json:"source,omitempty"`
	Serving            *Serving            `json:"serving,omitempty"`
	PackageSize        *PackageSize        `json:"package_size,omitempty"`
	IngredientAnalysis *IngredientAnalysis `json:"ingredient_analysis,omitempty"`
}

// SourceReference points at the entry for a food in an external database.
type SourceReference struct {
	ID        SourceID `json:"id"`
	Reference string   `json:"reference"`
	Database  string   `json:"database"`
	Name      string   `json:"name"`
	URL       string   `json:"url"`
}

// SourceID is a source database identifier. The dataset stores it as either a
// JSON string or a JSON number; the raw form is kept so records re-serialize
// exactly as stored.
type SourceID struct {
	raw json.RawMessage
}

// NewSourceID creates a SourceID from a plain string.
func NewSourceID(s string) SourceID {
	b, _ := json.Marshal(s)
	return SourceID{raw: b}
}

func (s *SourceID) UnmarshalJSON(data []byte) error {
	s.raw = append(s.raw[:0], data...)
	return nil
}

func (s SourceID) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte(`""`), nil
	}
	return s.raw, nil
}

// String returns the identifier as text, without JSON quoting.
func (s SourceID) String() string {
	if len(s.raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(s.raw, &str); err == nil {
		return str
	}
	return string(bytes.TrimSpace(s.raw))
}

// ServingSize is a quantity in a single unit of measurement.
type ServingSize struct {
	Unit     string  `json:"unit"`
	Quantity float64 `json:"quantity"`
}

// Serving holds the common and metric serving sizes for a food.
type Serving struct {
	Common *ServingSize `json:"common,omitempty"`
	Metric *ServingSize `json:"metric,omitempty"`
}

// PackageSize describes the package of a packaged food.
type PackageSize struct {
	Unit     *string  `json:"unit,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
}

// Nutrition100g holds nutritional values per 100 grams. The dataset's key set
// is open-ended; values outside the known vocabulary are preserved in Extra so
// a parse/serialize round trip is lossless.
type Nutrition100g struct {
	// Macronutrients
	Calories      *float64 `json:"calories,omitempty"`
	Protein       *float64 `json:"protein,omitempty"`
	TotalFat      *float64 `json:"total_fat,omitempty"`
	Carbohydrates *float64 `json:"carbohydrates,omitempty"`
	DietaryFiber  *float64 `json:"dietary_fiber,omitempty"`
	TotalSugars   *float64 `json:"total_sugars,omitempty"`
	AddedSugars   *float64 `json:"added_sugars,omitempty"`

	// Fat breakdown
	SaturatedFats       *float64 `json:"saturated_fats,omitempty"`
	MonounsaturatedFats *float64 `json:"monounsaturated_fats,omitempty"`
	PolyunsaturatedFats *float64 `json:"polyunsaturated_fats,omitempty"`
	TransFats           *float64 `json:"trans_fats,omitempty"`
	Cholesterol         *float64 `json:"cholesterol,omitempty"`
	Omega3              *float64 `json:"omega_3,omitempty"`
	Omega6              *float64 `json:"omega_6,omitempty"`
	Omega9              *float64 `json:"omega_9,omitempty"`

	// Minerals
	Sodium    *float64 `json:"sodium,omitempty"`
	Potassium *float64 `json:"potassium,omitempty"`
	Calcium   *float64 `json:"calcium,omitempty"`
	Iron      *float64 `json:"iron,omitempty"`
	Magnesium *float64 `json:"magnesium,omitempty"`
	Zinc      *float64 `json:"zinc,omitempty"`

	// Vitamins
	VitaminA   *float64 `json:"vitamin_a,omitempty"`
	VitaminC   *float64 `json:"vitamin_c,omitempty"`
	VitaminD   *float64 `json:"vitamin_d,omitempty"`
	VitaminE   *float64 `json:"vitamin_e,omitempty"`
	VitaminK   *float64 `json:"vitamin_k,omitempty"`
	Thiamin    *float64 `json:"thiamin,omitempty"`
	Riboflavin *float64 `json:"riboflavin,omitempty"`
	Niacin     *float64 `json:"niacin,omitempty"`
	VitaminB6  *float64 `json:"vitamin_b6,omitempty"`
	VitaminB12 *float64 `json:"vitamin_b12,omitempty"`
	FolateDFE  *float64 `json:"folate_dfe,omitempty"`

	// Other
	Water        *float64 `json:"water,omitempty"`
	Caffeine     *float64 `json:"caffeine,omitempty"`
	EthylAlcohol *float64 `json:"ethyl_alcohol,omitempty"`

	// Extra holds numeric nutrient keys outside the known vocabulary
	// (amino acids, trace minerals, vendor-specific values).
	Extra map[string]float64 `json:"-"`
}

var knownNutritionKeys = jsonFieldNames(reflect.TypeOf(Nutrition100g{}))

func (n *Nutrition100g) UnmarshalJSON(data []byte) error {
	type plain Nutrition100g
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key, raw := range all {
		if knownNutritionKeys[key] {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			continue // non-numeric stray value, nothing to keep
		}
		if known.Extra == nil {
			known.Extra = make(map[string]float64)
		}
		known.Extra[key] = v
	}

	*n = Nutrition100g(known)
	return nil
}

func (n Nutrition100g) MarshalJSON() ([]byte, error) {
	type plain Nutrition100g
	base, err := json.Marshal(plain(n))
	if err != nil {
		return nil, err
	}
	if len(n.Extra) == 0 {
		return base, nil
	}

	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, v := range n.Extra {
		if _, exists := merged[key]; !exists {
			merged[key] = v
		}
	}
	return json.Marshal(merged)
}

// IngredientAnalysis holds dietary suitability flags derived from a food's
// ingredients. Unknown flags are preserved in Extra.
type IngredientAnalysis struct {
	Vegetarian  *bool `json:"vegetarian,omitempty"`
	Vegan       *bool `json:"vegan,omitempty"`
	PalmOilFree *bool `json:"palm_oil_free,omitempty"`

	Extra map[string]bool `json:"-"`
}

var knownAnalysisKeys = jsonFieldNames(reflect.TypeOf(IngredientAnalysis{}))

func (a *IngredientAnalysis) UnmarshalJSON(data []byte) error {
	type plain IngredientAnalysis
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key, raw := range all {
		if knownAnalysisKeys[key] {
			continue
		}
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if known.Extra == nil {
			known.Extra = make(map[string]bool)
		}
		known.Extra[key] = v
	}

	*a = IngredientAnalysis(known)
	return nil
}

func (a IngredientAnalysis) MarshalJSON() ([]byte, error) {
	type plain IngredientAnalysis
	base, err := json.Marshal(plain(a))
	if err != nil {
		return nil, err
	}
	if len(a.Extra) == 0 {
		return base, nil
	}

	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, v := range a.Extra {
		if _, exists := merged[key]; !exists {
			merged[key] = v
		}
	}
	return json.Marshal(merged)
}

// jsonFieldNames collects the json tag names of a struct's exported fields.
func jsonFieldNames(t reflect.Type) map[string]bool {
	names := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		names[tag] = true
	}
	return names
}

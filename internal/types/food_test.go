package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFood_JSONSerialization(t *testing.T) {
	unit := "g"
	qty := 250.0
	vegan := true
	protein := 0.3

	food := Food{
		ID:             "fd_1",
		Name:           "Organic Apple",
		Type:           "everyday",
		EAN13:          "1234567890123",
		Labels:         []string{"organic", "raw"},
		AlternateNames: []string{"Apple, Organic"},
		Nutrition100g: &Nutrition100g{
			Calories: float64Ptr(52),
			Protein:  &protein,
		},
		Source: []SourceReference{
			{
				ID:        NewSourceID("167765"),
				Reference: "FDC ID",
				Database:  "USDA FoodData Central",
				Name:      "Apples, raw",
				URL:       "https://fdc.nal.usda.gov/food-details/167765",
			},
		},
		Serving: &Serving{
			Common: &ServingSize{Unit: "medium", Quantity: 1},
			Metric: &ServingSize{Unit: "g", Quantity: 182},
		},
		PackageSize:        &PackageSize{Unit: &unit, Quantity: &qty},
		IngredientAnalysis: &IngredientAnalysis{Vegan: &vegan},
	}

	data, err := json.Marshal(food)
	require.NoError(t, err)

	var decoded Food
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, food, decoded)
}

func TestNutrition100g_PreservesUnknownKeys(t *testing.T) {
	raw := `{"calories": 52, "protein": 0.3, "leucine": 0.013, "boron": 0.2}`

	var n Nutrition100g
	require.NoError(t, json.Unmarshal([]byte(raw), &n))

	require.NotNil(t, n.Calories)
	assert.Equal(t, 52.0, *n.Calories)
	require.NotNil(t, n.Protein)
	assert.Equal(t, 0.3, *n.Protein)

	// Keys outside the known vocabulary land in Extra
	assert.Equal(t, map[string]float64{"leucine": 0.013, "boron": 0.2}, n.Extra)

	// ... and survive re-serialization
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var roundTripped Nutrition100g
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, n, roundTripped)
}

func TestNutrition100g_IgnoresNonNumericStrayValues(t *testing.T) {
	raw := `{"calories": 52, "note": "approximate"}`

	var n Nutrition100g
	require.NoError(t, json.Unmarshal([]byte(raw), &n))

	require.NotNil(t, n.Calories)
	assert.Empty(t, n.Extra)
}

func TestIngredientAnalysis_PreservesUnknownFlags(t *testing.T) {
	raw := `{"vegetarian": true, "vegan": false, "palm_oil_free": true, "gluten_free": true}`

	var a IngredientAnalysis
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	require.NotNil(t, a.Vegetarian)
	assert.True(t, *a.Vegetarian)
	require.NotNil(t, a.Vegan)
	assert.False(t, *a.Vegan)
	require.NotNil(t, a.PalmOilFree)
	assert.True(t, *a.PalmOilFree)
	assert.Equal(t, map[string]bool{"gluten_free": true}, a.Extra)

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var roundTripped IngredientAnalysis
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, a, roundTripped)
}

func TestSourceID_RoundTripsStringAndNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		text string
	}{
		{name: "string id", raw: `{"id":"167765","reference":"FDC ID","database":"USDA","name":"Apples, raw","url":"https://example.com"}`, text: "167765"},
		{name: "numeric id", raw: `{"id":167765,"reference":"FDC ID","database":"USDA","name":"Apples, raw","url":"https://example.com"}`, text: "167765"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref SourceReference
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &ref))
			assert.Equal(t, tt.text, ref.ID.String())

			data, err := json.Marshal(ref)
			require.NoError(t, err)
			assert.JSONEq(t, tt.raw, string(data))
		})
	}
}

func TestParseHelpers_DegradeToAbsent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty text", raw: ""},
		{name: "stored null", raw: "null"},
		{name: "truncated json", raw: `{"calories": 52`},
		{name: "wrong shape", raw: `"just a string"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ParseStringList(tt.raw))
			assert.Nil(t, ParseNutrition(tt.raw))
			assert.Nil(t, ParseSources(tt.raw))
			assert.Nil(t, ParseServing(tt.raw))
			assert.Nil(t, ParsePackageSize(tt.raw))
			assert.Nil(t, ParseIngredientAnalysis(tt.raw))
		})
	}
}

func TestParseHelpers_ValidInput(t *testing.T) {
	labels := ParseStringList(`["cooked","organic"]`)
	assert.Equal(t, []string{"cooked", "organic"}, labels)

	serving := ParseServing(`{"common":{"unit":"cup","quantity":1},"metric":{"unit":"g","quantity":240}}`)
	require.NotNil(t, serving)
	require.NotNil(t, serving.Common)
	assert.Equal(t, "cup", serving.Common.Unit)
	assert.Equal(t, 1.0, serving.Common.Quantity)
	require.NotNil(t, serving.Metric)
	assert.Equal(t, 240.0, serving.Metric.Quantity)

	pkg := ParsePackageSize(`{"unit":"ml","quantity":330}`)
	require.NotNil(t, pkg)
	require.NotNil(t, pkg.Unit)
	assert.Equal(t, "ml", *pkg.Unit)
	require.NotNil(t, pkg.Quantity)
	assert.Equal(t, 330.0, *pkg.Quantity)

	sources := ParseSources(`[{"id":1,"reference":"Food ID","database":"Example","name":"Apple","url":"https://example.com/1"}]`)
	require.Len(t, sources, 1)
	assert.Equal(t, "Food ID", sources[0].Reference)
}

func float64Ptr(v float64) *float64 { return &v }

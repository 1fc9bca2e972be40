package types

import "encoding/json"

// The catalog stores every nested attribute as serialized JSON text. Each
// parse helper turns one stored column into its typed form. Empty, "null", or
// malformed text yields the zero value — a corrupt column degrades to an
// absent field, it never fails the record.

// ParseStringList parses a labels or alternate_names column.
func ParseStringList(raw string) []string {
	var v []string
	if !parseColumn(raw, &v) {
		return nil
	}
	return v
}

// ParseNutrition parses a nutrition_100g column.
func ParseNutrition(raw string) *Nutrition100g {
	var v Nutrition100g
	if !parseColumn(raw, &v) {
		return nil
	}
	return &v
}

// ParseSources parses a source column.
func ParseSources(raw string) []SourceReference {
	var v []SourceReference
	if !parseColumn(raw, &v) {
		return nil
	}
	return v
}

// ParseServing parses a serving column.
func ParseServing(raw string) *Serving {
	var v Serving
	if !parseColumn(raw, &v) {
		return nil
	}
	return &v
}

// ParsePackageSize parses a package_size column.
func ParsePackageSize(raw string) *PackageSize {
	var v PackageSize
	if !parseColumn(raw, &v) {
		return nil
	}
	return &v
}

// ParseIngredientAnalysis parses an ingredient_analysis column.
func ParseIngredientAnalysis(raw string) *IngredientAnalysis {
	var v IngredientAnalysis
	if !parseColumn(raw, &v) {
		return nil
	}
	return &v
}

func parseColumn(raw string, v interface{}) bool {
	if raw == "" || raw == "null" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

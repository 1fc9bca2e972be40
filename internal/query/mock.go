package query

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/opennutrition/opennutrition-mcp-server/internal/types"
)

// MockEngine is an in-memory implementation for tests and for running the
// server without a catalog database (QUERY_ENGINE_MOCK=true).
type MockEngine struct {
	foods []types.Food
	err   error
	log   *slog.Logger
}

var _ QueryEngine = (*MockEngine)(nil)

// NewMockEngine creates a mock engine seeded with a few recognizable foods.
func NewMockEngine(logger *slog.Logger) *MockEngine {
	vegan := true
	vegetarian := true
	return &MockEngine{
		log: logger,
		foods: []types.Food{
			{
				ID:             "fd_1",
				Name:           "Organic Apple",
				Type:           "everyday",
				Labels:         []string{"organic", "raw"},
				AlternateNames: []string{"Apple, Organic"},
				Nutrition100g: &types.Nutrition100g{
					Calories:      floatPtr(52),
					Protein:       floatPtr(0.3),
					Carbohydrates: floatPtr(13.8),
				},
				IngredientAnalysis: &types.IngredientAnalysis{Vegan: &vegan, Vegetarian: &vegetarian},
			},
			{
				ID:    "fd_2",
				Name:  "Whole Milk",
				Type:  "everyday",
				EAN13: "4025500277765",
				Nutrition100g: &types.Nutrition100g{
					Calories: floatPtr(61),
					Protein:  floatPtr(3.2),
					TotalFat: floatPtr(3.3),
				},
				IngredientAnalysis: &types.IngredientAnalysis{Vegetarian: &vegetarian},
			},
			{
				ID:             "fd_3",
				Name:           "Dark Chocolate Bar",
				Type:           "branded",
				EAN13:          "3017620422003",
				AlternateNames: []string{"Chocolate, Dark", "Bittersweet Chocolate"},
				Nutrition100g: &types.Nutrition100g{
					Calories:    floatPtr(546),
					TotalSugars: floatPtr(47.9),
				},
			},
		},
	}
}

// SearchByName matches each whitespace-separated term against name and
// alternate names, the same semantics as the DuckDB engine.
func (m *MockEngine) SearchByName(ctx context.Context, query string, page, pageSize int) ([]types.Food, error) {
	if m.err != nil {
		return nil, m.err
	}

	terms := strings.Fields(query)
	var matched []types.Food
	for _, food := range m.foods {
		if matchesAllTerms(food, terms) {
			matched = append(matched, food)
		}
	}

	return paginate(matched, page, pageSize), nil
}

// ListFoods returns one page of the seeded foods in id order.
func (m *MockEngine) ListFoods(ctx context.Context, page, pageSize int) ([]types.Food, error) {
	if m.err != nil {
		return nil, m.err
	}
	return paginate(m.foods, page, pageSize), nil
}

// GetByID returns the seeded food with the given id, or nil.
func (m *MockEngine) GetByID(ctx context.Context, id string) (*types.Food, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.foods {
		if m.foods[i].ID == id {
			food := m.foods[i]
			return &food, nil
		}
	}
	return nil, nil
}

// GetByEAN13 returns the seeded food with the given barcode, or nil.
func (m *MockEngine) GetByEAN13(ctx context.Context, ean13 string) (*types.Food, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.foods {
		if m.foods[i].EAN13 == ean13 {
			food := m.foods[i]
			return &food, nil
		}
	}
	return nil, nil
}

// HealthCheck reports the configured error, if any.
func (m *MockEngine) HealthCheck(ctx context.Context) error {
	return m.err
}

// Close closes the mock engine (no-op)
func (m *MockEngine) Close() error {
	return nil
}

// SetError sets an error to be returned by every operation.
func (m *MockEngine) SetError(err error) {
	m.err = err
}

// SetFoods replaces the seeded foods.
func (m *MockEngine) SetFoods(foods []types.Food) {
	m.foods = foods
}

func matchesAllTerms(food types.Food, terms []string) bool {
	for _, term := range terms {
		if contains(food.Name, term) {
			continue
		}
		matched := false
		for _, alt := range food.AlternateNames {
			if contains(alt, term) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func paginate(foods []types.Food, page, pageSize int) []types.Food {
	sorted := make([]types.Food, len(foods))
	copy(sorted, foods)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	offset := (page - 1) * pageSize
	if offset >= len(sorted) {
		return nil
	}
	end := offset + pageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end]
}

// contains checks if a string contains a substring (case-insensitive)
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func floatPtr(v float64) *float64 { return &v }

package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogRow struct {
	id, name, foodType, ean13 string
	labels, nutrition, altNames, source, serving, pkgSize, analysis string
}

// newTestCatalog builds a DuckDB catalog file with the given rows and returns
// its path. The schema matches what the dataset importer creates.
func newTestCatalog(t *testing.T, rows []catalogRow) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "catalog.duckdb")
	db, err := sql.Open("duckdb", dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE foods (
		id VARCHAR PRIMARY KEY,
		name VARCHAR,
		type VARCHAR,
		ean_13 VARCHAR,
		labels VARCHAR,
		nutrition_100g VARCHAR,
		alternate_names VARCHAR,
		source VARCHAR,
		serving VARCHAR,
		package_size VARCHAR,
		ingredient_analysis VARCHAR
	)`)
	require.NoError(t, err)

	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO foods VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.id, r.name, r.foodType, r.ean13,
			r.labels, r.nutrition, r.altNames, r.source, r.serving, r.pkgSize, r.analysis)
		require.NoError(t, err)
	}

	return dbPath
}

func newTestEngine(t *testing.T, rows []catalogRow) *Engine {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := NewEngine(newTestCatalog(t, rows), logger)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEngine_SearchByName_MatchesNameAndAlternateNames(t *testing.T) {
	engine := newTestEngine(t, []catalogRow{
		{id: "fd_1", name: "Organic Apple", foodType: "everyday", altNames: `["Apple, Organic"]`},
		{id: "fd_2", name: "Banana", foodType: "everyday"},
	})
	ctx := context.Background()

	t.Run("all terms must match across name and alternates", func(t *testing.T) {
		foods, err := engine.SearchByName(ctx, "organic apple", 1, 10)
		require.NoError(t, err)
		require.Len(t, foods, 1)
		assert.Equal(t, "fd_1", foods[0].ID)
	})

	t.Run("non-matching query returns empty", func(t *testing.T) {
		foods, err := engine.SearchByName(ctx, "banana", 1, 10)
		require.NoError(t, err)
		require.Len(t, foods, 1)
		assert.Equal(t, "fd_2", foods[0].ID)

		foods, err = engine.SearchByName(ctx, "organic banana", 1, 10)
		require.NoError(t, err)
		assert.Empty(t, foods)
	})

	t.Run("match through alternate name only", func(t *testing.T) {
		foods, err := engine.SearchByName(ctx, "ORGANIC", 1, 10)
		require.NoError(t, err)
		require.Len(t, foods, 1)
		assert.Equal(t, "fd_1", foods[0].ID)
	})

	t.Run("empty query matches everything", func(t *testing.T) {
		foods, err := engine.SearchByName(ctx, "   ", 1, 10)
		require.NoError(t, err)
		assert.Len(t, foods, 2)
	})
}

func TestEngine_SearchByName_NoDuplicateIDs(t *testing.T) {
	// Several alternate names match the same term; the record must appear once.
	engine := newTestEngine(t, []catalogRow{
		{id: "fd_1", name: "Apple", foodType: "everyday", altNames: `["Red Apple", "Green Apple", "Apple, Fresh"]`},
	})

	foods, err := engine.SearchByName(context.Background(), "apple", 1, 10)
	require.NoError(t, err)
	require.Len(t, foods, 1)
	assert.Equal(t, "fd_1", foods[0].ID)
}

func TestEngine_SearchByName_PaginationDisjoint(t *testing.T) {
	var rows []catalogRow
	for i := 1; i <= 10; i++ {
		rows = append(rows, catalogRow{
			id:       fmt.Sprintf("fd_%02d", i),
			name:     fmt.Sprintf("Test Food %d", i),
			foodType: "everyday",
		})
	}
	engine := newTestEngine(t, rows)
	ctx := context.Background()

	page1, err := engine.SearchByName(ctx, "food", 1, 3)
	require.NoError(t, err)
	page2, err := engine.SearchByName(ctx, "food", 2, 3)
	require.NoError(t, err)

	require.Len(t, page1, 3)
	require.Len(t, page2, 3)

	seen := make(map[string]bool)
	for _, f := range append(page1, page2...) {
		assert.False(t, seen[f.ID], "id %s returned on both pages", f.ID)
		seen[f.ID] = true
	}
}

func TestEngine_ListFoods_PageSizeAndRemainder(t *testing.T) {
	var rows []catalogRow
	for i := 1; i <= 5; i++ {
		rows = append(rows, catalogRow{
			id:       fmt.Sprintf("fd_%02d", i),
			name:     fmt.Sprintf("Food %d", i),
			foodType: "everyday",
		})
	}
	engine := newTestEngine(t, rows)
	ctx := context.Background()

	tests := []struct {
		page    int
		wantLen int
	}{
		{page: 1, wantLen: 2},
		{page: 2, wantLen: 2},
		{page: 3, wantLen: 1}, // remainder
		{page: 4, wantLen: 0}, // past the end
	}

	for _, tt := range tests {
		foods, err := engine.ListFoods(ctx, tt.page, 2)
		require.NoError(t, err)
		assert.Len(t, foods, tt.wantLen, "page %d", tt.page)
	}
}

func TestEngine_GetByID(t *testing.T) {
	engine := newTestEngine(t, []catalogRow{
		{id: "fd_1", name: "Organic Apple", foodType: "everyday", labels: `["organic"]`},
	})
	ctx := context.Background()

	t.Run("found and idempotent", func(t *testing.T) {
		first, err := engine.GetByID(ctx, "fd_1")
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "Organic Apple", first.Name)
		assert.Equal(t, []string{"organic"}, first.Labels)

		second, err := engine.GetByID(ctx, "fd_1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("absent id returns nil without error", func(t *testing.T) {
		food, err := engine.GetByID(ctx, "fd_missing")
		require.NoError(t, err)
		assert.Nil(t, food)
	})
}

func TestEngine_GetByEAN13(t *testing.T) {
	engine := newTestEngine(t, []catalogRow{
		{id: "fd_1", name: "Dark Chocolate", foodType: "branded", ean13: "3017620422003"},
	})
	ctx := context.Background()

	food, err := engine.GetByEAN13(ctx, "3017620422003")
	require.NoError(t, err)
	require.NotNil(t, food)
	assert.Equal(t, "fd_1", food.ID)

	// Exact match only: a different barcode of the right length finds nothing.
	food, err = engine.GetByEAN13(ctx, "0000000000000")
	require.NoError(t, err)
	assert.Nil(t, food)
}

func TestEngine_CorruptColumnsDegradeToAbsent(t *testing.T) {
	engine := newTestEngine(t, []catalogRow{
		{
			id:        "fd_1",
			name:      "Broken Row",
			foodType:  "everyday",
			nutrition: `{"calories": 52`, // truncated JSON
			altNames:  `["unterminated`,  // corrupt array
			labels:    `["intact"]`,
		},
		{id: "fd_2", name: "Healthy Row", foodType: "everyday", nutrition: `{"calories": 61}`},
	})
	ctx := context.Background()

	// The corrupt row still lists, with the bad fields absent, and its
	// siblings are unaffected.
	foods, err := engine.ListFoods(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, foods, 2)

	assert.Nil(t, foods[0].Nutrition100g)
	assert.Nil(t, foods[0].AlternateNames)
	assert.Equal(t, []string{"intact"}, foods[0].Labels)

	require.NotNil(t, foods[1].Nutrition100g)
	require.NotNil(t, foods[1].Nutrition100g.Calories)
	assert.Equal(t, 61.0, *foods[1].Nutrition100g.Calories)

	// A corrupt alternate_names column does not break name search either.
	matched, err := engine.SearchByName(ctx, "broken", 1, 10)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "fd_1", matched[0].ID)

	// The search predicate is evaluated across every row, so a term matching
	// one row must not fail because a different row carries corrupt (fd_1) or
	// empty (fd_2) alternate_names.
	matched, err = engine.SearchByName(ctx, "healthy", 1, 10)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "fd_2", matched[0].ID)
}

func TestEngine_NestedAttributesRoundTrip(t *testing.T) {
	nutrition := `{"calories": 52, "protein": 0.3, "leucine": 0.013}`
	serving := `{"common": {"unit": "medium", "quantity": 1}, "metric": {"unit": "g", "quantity": 182}}`
	analysis := `{"vegan": true, "vegetarian": true, "gluten_free": true}`
	source := `[{"id": 167765, "reference": "FDC ID", "database": "USDA", "name": "Apples, raw", "url": "https://example.com/167765"}]`

	engine := newTestEngine(t, []catalogRow{
		{
			id: "fd_1", name: "Organic Apple", foodType: "everyday",
			nutrition: nutrition, serving: serving, analysis: analysis, source: source,
		},
	})

	food, err := engine.GetByID(context.Background(), "fd_1")
	require.NoError(t, err)
	require.NotNil(t, food)

	assertJSONRoundTrip(t, nutrition, food.Nutrition100g)
	assertJSONRoundTrip(t, serving, food.Serving)
	assertJSONRoundTrip(t, analysis, food.IngredientAnalysis)
	assertJSONRoundTrip(t, source, food.Source)
}

func assertJSONRoundTrip(t *testing.T, stored string, parsed interface{}) {
	t.Helper()
	data, err := json.Marshal(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(data))
}

func TestEngine_HealthCheck(t *testing.T) {
	t.Run("populated catalog is healthy", func(t *testing.T) {
		engine := newTestEngine(t, []catalogRow{
			{id: "fd_1", name: "Apple", foodType: "everyday"},
		})
		assert.NoError(t, engine.HealthCheck(context.Background()))
	})

	t.Run("missing database file fails to open", func(t *testing.T) {
		// Read-only mode cannot create the file, and the driver connects
		// eagerly, so the failure surfaces at construction time.
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		_, err := NewEngine(filepath.Join(t.TempDir(), "nope.duckdb"), logger)
		assert.Error(t, err)
	})
}

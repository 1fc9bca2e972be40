package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/opennutrition/opennutrition-mcp-server/internal/types"
)

// foodColumns is the column list every catalog read selects. Scalar columns
// come back as text; the remaining columns hold serialized JSON.
const foodColumns = `id, name, type, ean_13, labels, nutrition_100g, alternate_names, source, serving, package_size, ingredient_analysis`

// termPredicate matches one search term against the food name or any entry of
// the alternate_names JSON array. The json_valid guard must live inside the
// json_each argument: DuckDB plans the table function as a join and evaluates
// it for every row regardless of AND short-circuiting, so guarding outside
// still feeds empty or corrupt column text to the JSON parser. Rows whose
// alternate_names is missing or malformed fall back to an empty array and
// simply never match through alternates.
const termPredicate = `(name ILIKE ? OR EXISTS (
	SELECT 1 FROM json_each(CASE
		WHEN alternate_names IS NOT NULL AND json_valid(alternate_names) THEN alternate_names
		ELSE '[]'
	END) AS alt
	WHERE CAST(alt.value AS VARCHAR) ILIKE ?
))`

// Engine handles DuckDB queries against the catalog database file.
type Engine struct {
	db     *sql.DB
	dbPath string
	log    *slog.Logger
}

// Ensure Engine implements QueryEngine interface
var _ QueryEngine = (*Engine)(nil)

// NewEngine opens the catalog database read-only. The driver connects
// eagerly, so a missing or unreadable catalog file fails here rather than on
// first query.
func NewEngine(dbPath string, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", dbPath+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	return &Engine{
		db:     db,
		dbPath: dbPath,
		log:    logger,
	}, nil
}

// Close closes the database connection
func (e *Engine) Close() error {
	return e.db.Close()
}

// SearchByName searches foods by name or alternate name. The query is split
// on whitespace; every term must appear as a case-insensitive substring of
// the name or of one alternate name. An empty query matches everything.
// Results are ordered by id so that offset pagination returns disjoint pages.
func (e *Engine) SearchByName(ctx context.Context, query string, page, pageSize int) ([]types.Food, error) {
	start := time.Now()
	e.log.Debug("SearchByName starting", "query", query, "page", page, "page_size", pageSize)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + foodColumns + ` FROM foods`)

	terms := strings.Fields(query)
	args := make([]interface{}, 0, 2*len(terms)+2)
	if len(terms) > 0 {
		predicates := make([]string, 0, len(terms))
		for _, term := range terms {
			predicates = append(predicates, termPredicate)
			pattern := "%" + term + "%"
			args = append(args, pattern, pattern)
		}
		sb.WriteString(" WHERE " + strings.Join(predicates, " AND "))
	}

	sb.WriteString(" ORDER BY id LIMIT ? OFFSET ?")
	args = append(args, pageSize, (page-1)*pageSize)

	foods, err := e.queryFoods(ctx, sb.String(), args...)
	if err != nil {
		e.log.Error("DuckDB search query failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("search query failed: %w", err)
	}

	e.log.Info("SearchByName completed", "terms", len(terms), "count", len(foods), "duration", time.Since(start))
	return foods, nil
}

// ListFoods returns one page of the catalog in id order.
func (e *Engine) ListFoods(ctx context.Context, page, pageSize int) ([]types.Food, error) {
	start := time.Now()
	e.log.Debug("ListFoods starting", "page", page, "page_size", pageSize)

	querySQL := `SELECT ` + foodColumns + ` FROM foods ORDER BY id LIMIT ? OFFSET ?`
	foods, err := e.queryFoods(ctx, querySQL, pageSize, (page-1)*pageSize)
	if err != nil {
		e.log.Error("DuckDB list query failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list query failed: %w", err)
	}

	e.log.Info("ListFoods completed", "count", len(foods), "duration", time.Since(start))
	return foods, nil
}

// GetByID returns the food with the given id (exact match on the primary
// key), or nil when no such food exists.
func (e *Engine) GetByID(ctx context.Context, id string) (*types.Food, error) {
	start := time.Now()
	e.log.Debug("GetByID starting", "id", id)

	querySQL := `SELECT ` + foodColumns + ` FROM foods WHERE id = ? LIMIT 1`
	food, err := e.queryOneFood(ctx, querySQL, id)
	if err != nil {
		e.log.Error("DuckDB id lookup failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("id lookup failed: %w", err)
	}

	e.log.Info("GetByID completed", "found", food != nil, "duration", time.Since(start))
	return food, nil
}

// GetByEAN13 returns the food with the given barcode, or nil when no such
// food exists. Matching is exact; no partial or case-insensitive matching.
func (e *Engine) GetByEAN13(ctx context.Context, ean13 string) (*types.Food, error) {
	start := time.Now()
	e.log.Debug("GetByEAN13 starting", "ean_13", ean13)

	querySQL := `SELECT ` + foodColumns + ` FROM foods WHERE ean_13 = ? LIMIT 1`
	food, err := e.queryOneFood(ctx, querySQL, ean13)
	if err != nil {
		e.log.Error("DuckDB barcode lookup failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("barcode lookup failed: %w", err)
	}

	e.log.Info("GetByEAN13 completed", "found", food != nil, "duration", time.Since(start))
	return food, nil
}

// HealthCheck verifies the catalog is reachable and populated.
func (e *Engine) HealthCheck(ctx context.Context) error {
	start := time.Now()

	var count int64
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods`).Scan(&count); err != nil {
		e.log.Error("Health check failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("health check failed: %w", err)
	}

	e.log.Debug("Health check successful", "total_records", count, "duration", time.Since(start))
	return nil
}

// queryFoods runs a multi-row catalog query and shapes the rows.
func (e *Engine) queryFoods(ctx context.Context, querySQL string, args ...interface{}) ([]types.Food, error) {
	rows, err := e.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var foods []types.Food
	for rows.Next() {
		food, err := e.scanFood(rows)
		if err != nil {
			return nil, err
		}
		foods = append(foods, food)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return foods, nil
}

// queryOneFood runs a point lookup. Absence is not an error: it returns nil.
func (e *Engine) queryOneFood(ctx context.Context, querySQL string, args ...interface{}) (*types.Food, error) {
	rows, err := e.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	food, err := e.scanFood(rows)
	if err != nil {
		return nil, err
	}
	return &food, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanFood shapes one catalog row into a Food. JSON columns that fail to
// parse come back as absent fields; the row itself still succeeds.
func (e *Engine) scanFood(row rowScanner) (types.Food, error) {
	var f types.Food
	var labels, nutrition, altNames, source, serving, pkgSize, analysis sql.NullString

	if err := row.Scan(&f.ID, &f.Name, &f.Type, &f.EAN13,
		&labels, &nutrition, &altNames, &source, &serving, &pkgSize, &analysis); err != nil {
		return types.Food{}, err
	}

	f.Labels = types.ParseStringList(text(labels))
	f.Nutrition100g = types.ParseNutrition(text(nutrition))
	f.AlternateNames = types.ParseStringList(text(altNames))
	f.Source = types.ParseSources(text(source))
	f.Serving = types.ParseServing(text(serving))
	f.PackageSize = types.ParsePackageSize(text(pkgSize))
	f.IngredientAnalysis = types.ParseIngredientAnalysis(text(analysis))

	dropped := func(column string, raw sql.NullString, parsed bool) {
		if raw.Valid && raw.String != "" && raw.String != "null" && !parsed {
			e.log.Debug("Malformed JSON column, field returned as absent", "id", f.ID, "column", column)
		}
	}
	dropped("labels", labels, f.Labels != nil)
	dropped("nutrition_100g", nutrition, f.Nutrition100g != nil)
	dropped("alternate_names", altNames, f.AlternateNames != nil)
	dropped("source", source, f.Source != nil)
	dropped("serving", serving, f.Serving != nil)
	dropped("package_size", pkgSize, f.PackageSize != nil)
	dropped("ingredient_analysis", analysis, f.IngredientAnalysis != nil)

	return f, nil
}

func text(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

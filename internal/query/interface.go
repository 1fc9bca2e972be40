package query

import (
	"context"
	"log/slog"
	"os"

	"github.com/opennutrition/opennutrition-mcp-server/internal/types"
)

// QueryEngine defines the interface for reading the food catalog. The catalog
// is read-only after import, so every operation is a self-contained read.
type QueryEngine interface {
	// SearchByName matches whitespace-separated terms against food names and
	// alternate names (case-insensitive substring, all terms must match).
	SearchByName(ctx context.Context, query string, page, pageSize int) ([]types.Food, error)
	// ListFoods returns one page of the catalog in stable id order.
	ListFoods(ctx context.Context, page, pageSize int) ([]types.Food, error)
	// GetByID returns the food with the given id, or nil when absent.
	GetByID(ctx context.Context, id string) (*types.Food, error)
	// GetByEAN13 returns the food with the given barcode (exact match), or nil.
	GetByEAN13(ctx context.Context, ean13 string) (*types.Food, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// NewQueryEngine creates a new query engine for the catalog database.
// Uses the mock engine if the QUERY_ENGINE_MOCK environment variable is set.
func NewQueryEngine(dbPath string, logger *slog.Logger) (QueryEngine, error) {
	if os.Getenv("QUERY_ENGINE_MOCK") == "true" {
		return NewMockEngine(logger), nil
	}
	return NewEngine(dbPath, logger)
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opennutrition/opennutrition-mcp-server/internal/auth"
	"github.com/opennutrition/opennutrition-mcp-server/internal/config"
	"github.com/opennutrition/opennutrition-mcp-server/internal/query"
	"github.com/opennutrition/opennutrition-mcp-server/internal/types"
	"github.com/opennutrition/opennutrition-mcp-server/internal/version"
)

// serverInstructions tells MCP clients when to reach for this server.
const serverInstructions = `This server answers queries about food, nutrition, ingredients, dietary
composition, and product identification from the OpenNutrition dataset.

Use it to:
- Retrieve nutritional facts, labels, and serving information for foods
- Look up foods by name, by id, or by EAN-13 barcode
- Browse the catalog page by page
- Answer questions about dietary suitability (vegan, vegetarian, palm oil free)

Do not use it for topics outside food and nutrition.`

// Server wraps the mcp-go server with the query engine and authentication.
type Server struct {
	mcpServer   *server.MCPServer
	queryEngine query.QueryEngine
	auth        *auth.BearerTokenAuth
	config      *config.Config
	log         *slog.Logger

	// Health check caching to keep /health from hammering the engine
	healthMu        sync.RWMutex
	lastHealthCheck time.Time
	lastHealthError error
}

// FoodListResponse is the structured result of the search and listing tools.
type FoodListResponse struct {
	Found bool         `json:"found"`
	Count int          `json:"count"`
	Foods []types.Food `json:"foods"`
}

// FoodResponse is the structured result of the point-lookup tools.
type FoodResponse struct {
	Found bool        `json:"found"`
	Food  *types.Food `json:"food,omitempty"`
}

// NewServer creates a new MCP server exposing the catalog query tools.
func NewServer(queryEngine query.QueryEngine, authenticator *auth.BearerTokenAuth, cfg *config.Config, logger *slog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"OpenNutrition MCP Server",
		version.Tag(),
		server.WithToolCapabilities(false), // Tools don't change dynamically
		server.WithRecovery(),              // Recover from panics
		server.WithLogging(),
		server.WithInstructions(serverInstructions),
	)

	s := &Server{
		mcpServer:   mcpServer,
		queryEngine: queryEngine,
		auth:        authenticator,
		config:      cfg,
		log:         logger,
	}

	s.addTools()

	return s
}

func (s *Server) addTools() {
	searchTool := mcp.NewTool("search-food-by-name",
		mcp.WithDescription("Search for foods by name, synonym, or partial name. Every whitespace-separated word of the query must match the food name or one of its alternate names (case-insensitive). Supports pagination."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query for food name. An empty query matches everything."),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number (1-indexed)"),
			mcp.DefaultNumber(1),
			mcp.Min(1),
		),
		mcp.WithNumber("page_size",
			mcp.Description(fmt.Sprintf("Number of results per page (default: %d, max: %d)", s.config.DefaultPageSize, s.config.MaxPageSize)),
			mcp.DefaultNumber(float64(s.config.DefaultPageSize)),
			mcp.Min(1),
			mcp.Max(float64(s.config.MaxPageSize)),
		),
		mcp.WithOutputSchema[FoodListResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearchFoodByName)

	listTool := mcp.NewTool("get-foods",
		mcp.WithDescription("Get a paginated list of all available foods. Use this tool when browsing foods or requesting an overview."),
		mcp.WithNumber("page",
			mcp.Description("Page number (1-indexed)"),
			mcp.DefaultNumber(1),
			mcp.Min(1),
		),
		mcp.WithNumber("page_size",
			mcp.Description(fmt.Sprintf("Number of results per page (default: %d, max: %d)", s.config.DefaultPageSize, s.config.MaxPageSize)),
			mcp.DefaultNumber(float64(s.config.DefaultPageSize)),
			mcp.Min(1),
			mcp.Max(float64(s.config.MaxPageSize)),
		),
		mcp.WithOutputSchema[FoodListResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(listTool, s.handleGetFoods)

	idTool := mcp.NewTool("get-food-by-id",
		mcp.WithDescription("Get detailed information for a specific food by its ID. Use this tool when you have a food ID and need complete nutritional data."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Food ID (must start with 'fd_')"),
		),
		mcp.WithOutputSchema[FoodResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(idTool, s.handleGetFoodByID)

	barcodeTool := mcp.NewTool("get-food-by-ean13",
		mcp.WithDescription("Look up a food by its EAN-13 barcode. Use this tool when identifying foods from barcodes."),
		mcp.WithString("ean_13",
			mcp.Required(),
			mcp.Description("EAN-13 barcode (exactly 13 characters)"),
		),
		mcp.WithOutputSchema[FoodResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(barcodeTool, s.handleGetFoodByEAN13)
}

// pageArgs extracts and clamps the pagination arguments.
func (s *Server) pageArgs(request mcp.CallToolRequest) (page, pageSize int) {
	page = int(request.GetFloat("page", 1))
	if page < 1 {
		page = 1
	}

	pageSize = int(request.GetFloat("page_size", float64(s.config.DefaultPageSize)))
	if pageSize < 1 {
		pageSize = s.config.DefaultPageSize
	}
	if pageSize > s.config.MaxPageSize {
		pageSize = s.config.MaxPageSize
	}
	return page, pageSize
}

func (s *Server) handleSearchFoodByName(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	searchQuery, err := request.RequireString("query")
	if err != nil {
		s.log.Warn("handleSearchFoodByName: Missing 'query' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'query': %v", err)), nil
	}

	page, pageSize := s.pageArgs(request)
	s.log.Debug("MCP search-food-by-name called", "query", searchQuery, "page", page, "page_size", pageSize)

	foods, err := s.queryEngine.SearchByName(ctx, searchQuery, page, pageSize)
	if err != nil {
		s.log.Error("Food search failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}

	return s.foodListResult(foods)
}

func (s *Server) handleGetFoods(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, pageSize := s.pageArgs(request)
	s.log.Debug("MCP get-foods called", "page", page, "page_size", pageSize)

	foods, err := s.queryEngine.ListFoods(ctx, page, pageSize)
	if err != nil {
		s.log.Error("Food listing failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Listing failed: %v", err)), nil
	}

	return s.foodListResult(foods)
}

func (s *Server) handleGetFoodByID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		s.log.Warn("handleGetFoodByID: Missing 'id' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'id': %v", err)), nil
	}

	// Reject malformed ids before touching the store.
	if err := query.ValidateFoodID(id); err != nil {
		s.log.Warn("handleGetFoodByID: Invalid 'id' parameter", "id", id, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.log.Debug("MCP get-food-by-id called", "id", id)

	food, err := s.queryEngine.GetByID(ctx, id)
	if err != nil {
		s.log.Error("Food id lookup failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Lookup failed: %v", err)), nil
	}
	if food == nil {
		s.log.Debug("get-food-by-id: not found", "id", id)
	}

	return s.foodResult(food)
}

func (s *Server) handleGetFoodByEAN13(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ean13, err := request.RequireString("ean_13")
	if err != nil {
		s.log.Warn("handleGetFoodByEAN13: Missing 'ean_13' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'ean_13': %v", err)), nil
	}

	// Reject wrong-length barcodes before touching the store.
	if err := query.ValidateEAN13(ean13); err != nil {
		s.log.Warn("handleGetFoodByEAN13: Invalid 'ean_13' parameter", "ean_13", ean13, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.log.Debug("MCP get-food-by-ean13 called", "ean_13", ean13)

	food, err := s.queryEngine.GetByEAN13(ctx, ean13)
	if err != nil {
		s.log.Error("Food barcode lookup failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Lookup failed: %v", err)), nil
	}
	if food == nil {
		s.log.Debug("get-food-by-ean13: not found", "ean_13", ean13)
	}

	return s.foodResult(food)
}

// foodListResult shapes a page of foods into a structured tool result with a
// JSON text fallback for clients without structured-content support.
func (s *Server) foodListResult(foods []types.Food) (*mcp.CallToolResult, error) {
	if foods == nil {
		foods = []types.Food{}
	}
	response := FoodListResponse{
		Found: len(foods) > 0,
		Count: len(foods),
		Foods: foods,
	}

	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("Failed to marshal food list response", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}

	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

func (s *Server) foodResult(food *types.Food) (*mcp.CallToolResult, error) {
	response := FoodResponse{
		Found: food != nil,
		Food:  food,
	}

	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("Failed to marshal food response", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}

	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

// checkHealthWithCache runs the engine health check at most once per cache
// window, so the unauthenticated /health endpoint cannot be used to hammer
// the database.
func (s *Server) checkHealthWithCache(ctx context.Context) error {
	const cacheDuration = 10 * time.Second

	s.healthMu.RLock()
	if time.Since(s.lastHealthCheck) < cacheDuration {
		err := s.lastHealthError
		s.healthMu.RUnlock()
		return err
	}
	s.healthMu.RUnlock()

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if time.Since(s.lastHealthCheck) < cacheDuration {
		return s.lastHealthError
	}

	err := s.queryEngine.HealthCheck(ctx)
	s.lastHealthCheck = time.Now()
	s.lastHealthError = err

	return err
}

// ServeStdio serves the MCP server over stdio (no auth required for local use)
func (s *Server) ServeStdio() error {
	s.log.Info("Starting MCP server in stdio mode")
	return server.ServeStdio(s.mcpServer)
}

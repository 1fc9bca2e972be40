package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opennutrition/opennutrition-mcp-server/internal/auth"
	"github.com/opennutrition/opennutrition-mcp-server/internal/config"
	"github.com/opennutrition/opennutrition-mcp-server/internal/dataset"
	"github.com/opennutrition/opennutrition-mcp-server/internal/mcp"
	"github.com/opennutrition/opennutrition-mcp-server/internal/query"
	"github.com/opennutrition/opennutrition-mcp-server/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "opennutrition-mcp-server",
	Short:   "OpenNutrition MCP Server with DuckDB",
	Version: version.String(),
	Long: `OpenNutrition MCP Server provides access to the OpenNutrition food dataset
via an MCP server using DuckDB for fast queries.

The server operates in three modes:

1. STDIO Mode (--stdio): For local Claude Desktop integration
   - Uses stdio pipes for communication
   - No authentication required
   - Perfect for local development and Claude Desktop

2. HTTP Mode (default): For remote deployment over the internet
   - Exposes HTTP endpoints with JSON-RPC 2.0
   - Requires Bearer token authentication (except /health)
   - Ideal for shared/remote MCP server deployments

3. Setup Database Mode (--setup-db): Build the catalog and exit
   - Downloads the OpenNutrition dataset archive and imports it into DuckDB
   - Checks if the local catalog is up-to-date with the remote archive
   - Exits after the import completes (does not start a server)
   - Useful for pre-populating the catalog in CI or container images

Available MCP Tools:
- search-food-by-name: Search foods by name or alternate name
- get-foods: Page through the full catalog
- get-food-by-id: Look up a food by its 'fd_' id
- get-food-by-ean13: Look up a food by EAN-13 barcode

Authentication (HTTP Mode Only):
Bearer token authentication is required for all MCP endpoints except /health.
Use the AUTH_TOKEN environment variable to set the token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupDB, _ := cmd.Flags().GetBool("setup-db")
		if setupDB {
			return runSetupDBMode(cmd, args)
		}

		stdio, _ := cmd.Flags().GetBool("stdio")
		if stdio {
			return runStdioMode(cmd, args)
		}
		return runHTTPMode(cmd, args)
	},
}

func init() {
	rootCmd.Flags().Bool("stdio", false, "Run in stdio mode for local Claude Desktop integration (default: HTTP mode for remote deployment)")
	rootCmd.Flags().Bool("setup-db", false, "Build the food catalog database and exit (useful for pre-populating the catalog without starting the server)")
}

// runSetupDBMode builds the catalog database and exits
func runSetupDBMode(cmd *cobra.Command, args []string) error {
	logger := config.NewTextLogger(os.Stdout)
	cfg := config.Load()

	logger.Info("Starting catalog setup",
		"mode", "setup-db",
		"dataset_url", cfg.DatasetURL,
		"database_path", cfg.DatabasePath)

	dataManager := dataset.NewManager(cfg, logger)

	ctx := context.Background()
	if err := dataManager.EnsureDatabase(ctx); err != nil {
		logger.Error("Failed to build catalog database", "error", err)
		return err
	}

	logger.Info("Catalog setup completed",
		"database_path", cfg.DatabasePath,
		"metadata_path", cfg.MetadataPath)

	return nil
}

// runStdioMode runs the MCP server in stdio mode for Claude Desktop
func runStdioMode(cmd *cobra.Command, args []string) error {
	// Logs go to stderr so they cannot corrupt the stdio MCP stream
	logger := config.NewLogger(true)
	cfg := config.Load()

	logger.Info("Starting OpenNutrition MCP Server in STDIO mode",
		"mode", "stdio",
		"auth", "not required for stdio mode",
		"transport", "stdio pipes")

	mcpSrv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}

	return mcpSrv.ServeStdio()
}

// runHTTPMode runs the MCP server in HTTP mode for remote deployment
func runHTTPMode(cmd *cobra.Command, args []string) error {
	logger := config.NewLogger(false)
	cfg := config.Load()

	logger.Info("Starting OpenNutrition MCP Server in HTTP mode",
		"mode", "http",
		"auth", "Bearer token required (except /health endpoint)",
		"transport", "HTTP/JSON-RPC 2.0",
		"port", cfg.Port)

	mcpSrv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}

	return mcpSrv.ServeHTTP(":" + cfg.Port)
}

// buildServer wires the catalog, query engine, and auth into an MCP server.
func buildServer(cfg *config.Config, logger *slog.Logger) (*mcp.Server, error) {
	dataManager := dataset.NewManager(cfg, logger)

	ctx := context.Background()
	if err := dataManager.EnsureDatabase(ctx); err != nil {
		logger.Error("Failed to ensure catalog database", "error", err)
		return nil, err
	}

	queryEngine, err := query.NewQueryEngine(cfg.DatabasePath, logger)
	if err != nil {
		logger.Error("Failed to create query engine", "error", err)
		return nil, err
	}

	if err := queryEngine.HealthCheck(ctx); err != nil {
		logger.Error("Catalog health check failed", "error", err)
		return nil, err
	}

	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)

	return mcp.NewServer(queryEngine, authenticator, cfg, logger), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// Run is the main entry point for the CLI application
func Run() error {
	return Execute()
}

package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all configuration for the server. It is built once at startup
// and passed by reference; nothing mutates it afterwards.
type Config struct {
	// Auth
	AuthToken string

	// Dataset / catalog locations
	DatasetURL   string
	DataDir      string
	ZipPath      string
	DatabasePath string
	MetadataPath string
	LockFile     string

	// Import behavior
	DisableRemoteCheck bool
	IgnoreLock         bool

	// Query paging
	DefaultPageSize int
	MaxPageSize     int

	// Server
	Port string
}

// Load reads configuration from environment variables
func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		AuthToken:          getEnv("AUTH_TOKEN", "super-secret-token"),
		DatasetURL:         getEnv("DATASET_URL", "https://www.opennutrition.app/opennutrition-dataset-2025.1.zip"),
		DataDir:            dataDir,
		ZipPath:            getEnv("DATASET_ZIP_PATH", filepath.Join(dataDir, "opennutrition-dataset-2025.1.zip")),
		DatabasePath:       getEnv("DATABASE_PATH", filepath.Join(dataDir, "opennutrition_foods.duckdb")),
		MetadataPath:       getEnv("METADATA_PATH", filepath.Join(dataDir, "metadata.json")),
		LockFile:           getEnv("LOCK_FILE", filepath.Join(dataDir, "setup.lock")),
		DisableRemoteCheck: getEnvBool("DISABLE_REMOTE_CHECK", false),
		IgnoreLock:         getEnvBool("IGNORE_LOCK", false),
		DefaultPageSize:    getEnvInt("DEFAULT_PAGE_SIZE", 5),
		MaxPageSize:        getEnvInt("MAX_PAGE_SIZE", 50),
		Port:               getEnv("PORT", "8080"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

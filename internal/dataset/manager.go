package dataset

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/opennutrition/opennutrition-mcp-server/internal/config"
)

// tsvFileName is the name of the food table inside the dataset archive.
const tsvFileName = "opennutrition_foods.tsv"

// buildCatalogSQL loads the extracted TSV into the foods table. Quoting is
// disabled so the JSON columns arrive as the exact text the dataset carries.
const buildCatalogSQL = `CREATE OR REPLACE TABLE foods AS
SELECT
	id,
	COALESCE(name, '') AS name,
	COALESCE(type, '') AS type,
	COALESCE(ean_13, '') AS ean_13,
	labels,
	nutrition_100g,
	alternate_names,
	source,
	serving,
	package_size,
	ingredient_analysis
FROM read_csv(?, delim = E'\t', header = true, all_varchar = true, quote = '')`

// Metadata holds information about the imported dataset
type Metadata struct {
	SHA256     string    `json:"sha256"`
	ImportedAt time.Time `json:"imported_at"`
	ETag       string    `json:"etag,omitempty"`
	Size       int64     `json:"size"`
}

// Manager is the one-shot import collaborator. It downloads the dataset
// archive, extracts the TSV, and builds the DuckDB catalog the query engine
// reads. The catalog is never written again after a build.
type Manager struct {
	datasetURL   string
	zipPath      string
	databasePath string
	metadataPath string
	lockPath     string
	config       *config.Config
	log          *slog.Logger
}

// NewManager creates a new dataset manager
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		datasetURL:   cfg.DatasetURL,
		zipPath:      cfg.ZipPath,
		databasePath: cfg.DatabasePath,
		metadataPath: cfg.MetadataPath,
		lockPath:     cfg.LockFile,
		config:       cfg,
		log:          logger,
	}
}

// EnsureDatabase makes sure the catalog database exists and is current.
func (m *Manager) EnsureDatabase(ctx context.Context) error {
	start := time.Now()
	m.log.Info("Ensuring catalog database is available", "database_path", m.databasePath)

	refresh := false
	if _, err := os.Stat(m.databasePath); err == nil {
		if m.config.DisableRemoteCheck {
			m.log.Info("Remote checks disabled, using local catalog", "duration", time.Since(start))
			return nil
		}

		upToDate, err := m.isUpToDate(ctx)
		if err != nil {
			m.log.Warn("Failed to verify dataset freshness", "error", err)
		}
		if upToDate {
			m.log.Info("Catalog database is up-to-date", "duration", time.Since(start))
			return nil
		}
		refresh = true
	}

	if err := m.setupWithLock(ctx, refresh); err != nil {
		return fmt.Errorf("failed to build catalog database: %w", err)
	}

	m.log.Info("Catalog database ensured", "duration", time.Since(start))
	return nil
}

// isUpToDate compares local import metadata against the remote archive.
func (m *Manager) isUpToDate(ctx context.Context) (bool, error) {
	localMeta, err := m.loadMetadata()
	if err != nil {
		m.log.Debug("No local metadata found", "error", err)
		return false, nil
	}

	remoteMeta, err := m.getRemoteMetadata(ctx)
	if err != nil {
		return false, err
	}

	if remoteMeta.ETag != "" && localMeta.ETag != "" {
		upToDate := remoteMeta.ETag == localMeta.ETag
		m.log.Debug("ETag comparison", "local", localMeta.ETag, "remote", remoteMeta.ETag, "up_to_date", upToDate)
		return upToDate, nil
	}

	// Fallback to size comparison
	upToDate := remoteMeta.Size == localMeta.Size
	m.log.Debug("Size comparison", "local", localMeta.Size, "remote", remoteMeta.Size, "up_to_date", upToDate)
	return upToDate, nil
}

// getRemoteMetadata fetches archive metadata with a HEAD request.
func (m *Manager) getRemoteMetadata(ctx context.Context) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.datasetURL, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HEAD request failed with status: %d", resp.StatusCode)
	}

	return &Metadata{
		ETag: resp.Header.Get("ETag"),
		Size: resp.ContentLength,
	}, nil
}

// setupWithLock runs the import under an exclusive lock file so concurrent
// instances do not build the catalog twice.
func (m *Manager) setupWithLock(ctx context.Context, refresh bool) error {
	m.log.Info("Attempting to acquire setup lock", "lock_path", m.lockPath)

	if m.config.IgnoreLock {
		if _, err := os.Stat(m.lockPath); err == nil {
			m.log.Warn("IGNORE_LOCK enabled, forcefully removing existing lock file", "lock_path", m.lockPath)
			if err := os.Remove(m.lockPath); err != nil {
				m.log.Warn("Failed to remove lock file", "error", err)
			}
		}
	}

	lockFile, err := acquireLock(m.lockPath)
	if err != nil {
		if m.config.IgnoreLock {
			m.log.Warn("IGNORE_LOCK enabled but still failed to acquire lock, proceeding anyway", "error", err)
		} else {
			m.log.Info("Another instance is importing, waiting", "lock_path", m.lockPath)
			return m.waitForSetup(ctx)
		}
	}
	if lockFile != nil {
		defer releaseLock(lockFile, m.lockPath)
	}

	if err := os.MkdirAll(filepath.Dir(m.databasePath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Reuse a local archive when there is one and nothing marked it stale.
	if _, err := os.Stat(m.zipPath); err != nil || refresh {
		if err := m.downloadArchive(ctx); err != nil {
			return err
		}
	} else {
		m.log.Info("Using existing dataset archive", "zip_path", m.zipPath)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(m.databasePath), "dataset-extract-")
	if err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tsvPath, err := m.extractTSV(m.zipPath, tmpDir)
	if err != nil {
		return fmt.Errorf("failed to extract dataset: %w", err)
	}

	if err := m.buildDatabase(ctx, tsvPath); err != nil {
		return err
	}

	sha, err := computeSHA256(m.zipPath)
	if err != nil {
		m.log.Warn("Failed to compute archive checksum", "error", err)
	}
	stat, err := os.Stat(m.zipPath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	remoteMeta, _ := m.getRemoteMetadata(ctx)
	etag := ""
	if remoteMeta != nil {
		etag = remoteMeta.ETag
	}

	meta := &Metadata{
		SHA256:     sha,
		ImportedAt: time.Now().UTC(),
		ETag:       etag,
		Size:       stat.Size(),
	}
	if err := m.saveMetadata(meta); err != nil {
		m.log.Warn("Failed to save metadata", "error", err)
	}

	return nil
}

// downloadArchive downloads the dataset zip to its configured location.
func (m *Manager) downloadArchive(ctx context.Context) error {
	start := time.Now()
	m.log.Info("Downloading dataset archive", "url", m.datasetURL, "path", m.zipPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.datasetURL, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tmpPath := m.zipPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, m.zipPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	m.log.Info("Download completed", "bytes", written, "duration", time.Since(start))
	return nil
}

// extractTSV pulls the food table out of the dataset archive.
func (m *Manager) extractTSV(zipPath, destDir string) (string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if filepath.Base(entry.Name) != tsvFileName {
			continue
		}

		src, err := entry.Open()
		if err != nil {
			return "", err
		}
		defer src.Close()

		tsvPath := filepath.Join(destDir, tsvFileName)
		dst, err := os.Create(tsvPath)
		if err != nil {
			return "", err
		}

		_, err = io.Copy(dst, src)
		if closeErr := dst.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return "", err
		}

		m.log.Info("Dataset extracted", "tsv_path", tsvPath, "compressed_size", entry.CompressedSize64)
		return tsvPath, nil
	}

	return "", fmt.Errorf("%s not found in archive %s", tsvFileName, zipPath)
}

// buildDatabase creates the foods table from the TSV in a fresh database
// file, then swaps it into place so readers never see a half-built catalog.
func (m *Manager) buildDatabase(ctx context.Context, tsvPath string) error {
	start := time.Now()
	tmpPath := m.databasePath + ".tmp"
	os.Remove(tmpPath)

	db, err := sql.Open("duckdb", tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open duckdb: %w", err)
	}

	if _, err := db.ExecContext(ctx, buildCatalogSQL, tsvPath); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX idx_foods_id ON foods (id)`); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to index catalog: %w", err)
	}

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods`).Scan(&count); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to count imported rows: %w", err)
	}

	if err := db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close database: %w", err)
	}

	if err := os.Rename(tmpPath, m.databasePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move database into place: %w", err)
	}

	m.log.Info("Catalog database built", "rows", count, "database_path", m.databasePath, "duration", time.Since(start))
	return nil
}

// waitForSetup waits for another instance to finish the import.
func (m *Manager) waitForSetup(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	timeout := time.After(10 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for import by other instance")
		case <-ticker.C:
			if _, err := os.Stat(m.databasePath); err == nil {
				m.log.Info("Catalog now available after other instance completed")
				return nil
			}
		}
	}
}

// loadMetadata loads metadata from the metadata file
func (m *Manager) loadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(m.metadataPath)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// saveMetadata saves metadata to the metadata file
func (m *Manager) saveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.metadataPath, data, 0644)
}

// acquireLock attempts to acquire an exclusive lock
func acquireLock(lockPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// O_CREATE|O_EXCL will fail if file exists
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// releaseLock releases the lock file
func releaseLock(f *os.File, lockPath string) {
	f.Close()
	os.Remove(lockPath)
}

// computeSHA256 computes the SHA256 hash of a file
func computeSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

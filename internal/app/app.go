// Package app wires configuration into the long-lived components shared by the
// commands: logger, storage and the import runner.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"catalog_sync/internal/config"
	"catalog_sync/internal/fetcher"
	"catalog_sync/internal/pipeline"
	"catalog_sync/internal/storage"
)

// NewLogger returns a text logger writing to stderr at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// OpenStore opens the configured database and applies pending migrations.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.DatabaseDriver == config.DriverPostgres {
		store, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DatabasePath, err)
	}
	return store, nil
}

// NewRunner builds the import pipeline for catalog and wraps it in a Runner.
// Feed archiving is enabled when cfg configures a bucket.
func NewRunner(ctx context.Context, cfg *config.Config, catalog *config.Catalog, store storage.Storage, log *slog.Logger) (*pipeline.Runner, error) {
	client := &http.Client{Timeout: cfg.FetchTimeout}
	p := pipeline.New(store, fetcher.New(client, cfg.FeedMaxBytes), pipeline.SettingsFromCatalog(catalog), log)

	if cfg.Archive.Enabled() {
		a := cfg.Archive
		archive, err := fetcher.NewArchive(a.Endpoint, a.AccessKey, a.SecretKey, a.Bucket, a.Region, a.UseSSL)
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("archive bucket %s: %w", a.Bucket, err)
		}
		p.SetArchive(archive)
		log.Info("feed archiving enabled", "endpoint", a.Endpoint, "bucket", a.Bucket)
	}

	runner := pipeline.NewRunner(p, catalog, store, log)
	if err := runner.SyncSuppliers(ctx); err != nil {
		return nil, err
	}
	return runner, nil
}

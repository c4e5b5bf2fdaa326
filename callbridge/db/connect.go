// Package db opens the embedded libSQL database and applies its schema.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// Config holds connection settings for the embedded database.
type Config struct {
	Path         string // path to the .db file
	MaxOpenConns int
}

// Connect opens the database at path with default settings.
func Connect(ctx context.Context, path string, logger zerolog.Logger) (*sql.DB, error) {
	return ConnectWithConfig(ctx, Config{Path: path}, logger)
}

// ConnectWithConfig opens an embedded libSQL database, creating the file
// and its directory on first use, and verifies connectivity.
func ConnectWithConfig(ctx context.Context, cfg Config, logger zerolog.Logger) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	path := strings.TrimPrefix(cfg.Path, "file:")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory for %s: %w", path, err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("database not found, creating a new one")
	}
	dsn := "file:" + path

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		db.Close()
		return nil, fmt.Errorf("basic connectivity test failed: %w", err)
	}

	logger.Debug().Str("dsn", dsn).Msg("connected to embedded libsql")
	return db, nil
}

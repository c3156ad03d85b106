package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultMigrationsDir is resolved relative to the working directory.
const DefaultMigrationsDir = "migrations"

const createMigrationsTable = `
    CREATE TABLE IF NOT EXISTS schema_migrations (
        name       TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`

// MigrationFiles lists the .sql files in dir in lexical order.
func MigrationFiles(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		filenames = append(filenames, entry.Name())
	}
	sort.Strings(filenames)
	return filenames, nil
}

// RunMigrations applies each SQL file in dir that has not been applied yet.
// Every file runs in its own transaction together with its bookkeeping row.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fs afero.Fs, dir string, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}

	filenames, err := MigrationFiles(fs, dir)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, name := range filenames {
		content, err := afero.ReadFile(fs, filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		ran, err := applyMigration(ctx, pool, name, string(content))
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if ran {
			applied++
			logger.Info("applied migration", zap.String("file", name))
		}
	}

	logger.Info("migrations up to date", zap.Int("applied", applied), zap.Int("total", len(filenames)))
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, name, sql string) (bool, error) {
	ran := false
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, sql); err != nil {
			return err
		}
		ran = true
		return nil
	})
	return ran, err
}

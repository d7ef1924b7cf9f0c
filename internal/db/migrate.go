package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const migrationsDir = "migrations"

// Migrate applies the SQL files under migrations/ in migrationFS that are not yet
// recorded in schema_migrations, in lexical order. Each file runs in its own
// transaction together with its schema_migrations row, so a failing file leaves
// neither partial tables nor a record.
func Migrate(ctx context.Context, d *DB, migrationFS fs.FS) error {
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := migrationFiles(migrationFS)
	if err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, d)
	if err != nil {
		return err
	}

	for _, fname := range files {
		version := strings.TrimSuffix(fname, path.Ext(fname))
		if applied[version] {
			continue
		}
		b, err := fs.ReadFile(migrationFS, path.Join(migrationsDir, fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}
		if err := applyMigration(ctx, d, version, string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", fname, err)
		}
		d.logger.Info("migration applied", "version", version)
	}
	return nil
}

func migrationFiles(migrationFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(path.Ext(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func appliedVersions(ctx context.Context, d *DB) (map[string]bool, error) {
	rows, err := d.QueryRows(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, d *DB, version, script string) error {
	tx, err := d.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, strftime('%s','now'))`, version); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

package db_test

import (
	"context"
	"testing"
	"testing/fstest"

	dbfs "github.com/garnizeh/campuscare/db"
	"github.com/garnizeh/campuscare/internal/db"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 migrations recorded, got %d", count)
	}

	for _, table := range []string{"emergency_alerts", "profiles", "user_preferences", "jobs", "dead_letter_jobs"} {
		var name string
		r := d.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table)
		if err := r.Scan(&name); err != nil {
			t.Fatalf("expected %s table exists: %v", table, err)
		}
	}
}

func TestMigrate_AppliesInOrderAndSkipsNonSQL(t *testing.T) {
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	fsys := fstest.MapFS{
		"migrations/0002_add.sql":  {Data: []byte(`INSERT INTO things (name) VALUES ('second');`)},
		"migrations/0001_init.sql": {Data: []byte(`CREATE TABLE things (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT);`)},
		"migrations/README.md":     {Data: []byte(`not a migration`)},
	}
	if err := db.Migrate(ctx, d, fsys); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var n int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM things`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestMigrate_MissingDir(t *testing.T) {
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, fstest.MapFS{}); err == nil {
		t.Fatalf("expected error for missing migrations dir")
	}
}

func TestMigrate_FailedFileIsRolledBack(t *testing.T) {
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	fsys := fstest.MapFS{
		"migrations/0001_init.sql":   {Data: []byte(`CREATE TABLE things (id INTEGER PRIMARY KEY);`)},
		"migrations/0002_broken.sql": {Data: []byte(`CREATE TABLE more (id INTEGER); INSERT INTO missing VALUES (1);`)},
	}
	if err := db.Migrate(ctx, d, fsys); err == nil {
		t.Fatalf("expected broken migration to fail")
	}

	var n int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the first migration recorded, got %d", n)
	}
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE name='more'`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("partial migration left table behind (n=%d, err=%v)", n, err)
	}
}

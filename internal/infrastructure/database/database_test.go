package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "fleetguard.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesMissingDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "fleetguard.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("database directory not created: %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestOpen_WALMode(t *testing.T) {
	db := openTestDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpen_ForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE fleets (id TEXT PRIMARY KEY);
		CREATE TABLE fleet_devices (
			id TEXT PRIMARY KEY,
			fleet_id TEXT NOT NULL REFERENCES fleets(id)
		);
	`); err != nil {
		t.Fatalf("creating fixture schema: %v", err)
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO fleet_devices (id, fleet_id) VALUES ('plug-01', 'no-such-fleet')")
	if err == nil {
		t.Error("insert with dangling fleet reference should fail")
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail on a closed database")
	}
}

func TestClose_ZeroValue(t *testing.T) {
	var db DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on zero DB = %v, want nil", err)
	}
}

func TestOpen_ReopensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetguard.db")
	cfg := Config{Path: path, WALMode: true, BusyTimeout: 5}

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE marker (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("creating marker table: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO marker (id) VALUES ('first-run')"); err != nil {
		t.Fatalf("inserting marker: %v", err)
	}
	db.Close()

	db, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer db.Close()

	var id string
	if err := db.QueryRowContext(ctx, "SELECT id FROM marker").Scan(&id); err != nil {
		t.Fatalf("reading marker after reopen: %v", err)
	}
	if id != "first-run" {
		t.Errorf("marker = %q, want %q", id, "first-run")
	}
}

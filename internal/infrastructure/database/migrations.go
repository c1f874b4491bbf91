package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// AppliedMigration is one row of the schema_migrations ledger.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// Migrate brings the schema up to date from the .sql files in fsys
// (normally migrations.Files).
//
// Files are applied in filename order and the filename without its
// .sql suffix becomes the recorded version. Each file runs in its own
// transaction: on failure, earlier files stay committed, the failing
// file is rolled back, and a later Migrate resumes from it. The schema
// is append-only; there is no down path.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	versions, err := migrationVersions(fsys)
	if err != nil {
		return err
	}

	applied, err := db.appliedSet(ctx)
	if err != nil {
		return err
	}

	for _, version := range versions {
		if applied[version] {
			continue
		}
		if err := db.applyMigration(ctx, fsys, version); err != nil {
			return fmt.Errorf("migration %s: %w", version, err)
		}
	}
	return nil
}

// AppliedMigrations returns the ledger, oldest first.
func (db *DB) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		var appliedAt string
		if err := rows.Scan(&m.Version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		m.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) appliedSet(ctx context.Context) (map[string]bool, error) {
	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(applied))
	for _, m := range applied {
		set[m.Version] = true
	}
	return set, nil
}

// applyMigration runs one schema file and records its version, both in
// the same transaction.
func (db *DB) applyMigration(ctx context.Context, fsys fs.FS, version string) error {
	schema, err := fs.ReadFile(fsys, version+".sql")
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// migrationVersions lists the schema versions in fsys, sorted so that
// zero-padded filename prefixes give the application order.
func migrationVersions(fsys fs.FS) ([]string, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing schema files: %w", err)
	}
	sort.Strings(names)

	versions := make([]string, len(names))
	for i, name := range names {
		versions[i] = strings.TrimSuffix(name, ".sql")
	}
	return versions, nil
}

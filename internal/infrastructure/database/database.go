package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo SQLite driver
)

const (
	dirPerm  = 0750
	filePerm = 0600

	openPingTimeout = 5 * time.Second
)

// Config maps the database section of config.yaml.
type Config struct {
	// Path to the SQLite file. Parent directories are created on Open.
	Path string

	// WALMode switches the journal to write-ahead logging so audit
	// reads do not block behind the writer.
	WALMode bool

	// BusyTimeout is how long, in seconds, a statement waits on a
	// locked database before erroring.
	BusyTimeout int
}

// DB is the process handle to the fleet database. It embeds *sql.DB;
// the audit repository operates on the embedded handle directly, this
// wrapper adds lifecycle, schema and health management.
type DB struct {
	*sql.DB
	path string
}

// Open opens the SQLite file at cfg.Path, creating it and its
// directory as needed, applies the configured pragmas, restricts the
// file to the owning user and verifies the connection with a ping.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite serialises writes; a second connection only buys lock
	// contention.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file appears on the first write; chmod is best effort until
	// then.
	_ = os.Chmod(cfg.Path, filePerm)

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close releases the connection pool. Safe to call on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the location of the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck confirms the database answers a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

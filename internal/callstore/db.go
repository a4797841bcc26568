// Package callstore persists CallRecord values to an embedded SQLite
// database and serves the read-side call-record query API.
package callstore

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a single-writer sqlite connection with the core's migration
// bootstrap.
type DB struct {
	*sql.DB
}

// Open creates or opens the call-log database under dataDir, enabling WAL
// durability, and runs any pending migrations.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "phonecore.db")
	// foreign_keys(on) matters here specifically because call_log rows will
	// gain a references column once speed-dial/allow-list entries move into
	// their own tables (tracked informally, not yet done) — enabling it now
	// means that migration doesn't also have to flip a connection pragma.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", dbPath)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	// The record store is serialised by design (spec §5 "the record store
	// is serialised by the persistence sink; no other component writes").
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Default().With("component", "callstore").Info("database opened", "path", dbPath)
	return db, nil
}

// Close runs PRAGMA optimize before handing off to the embedded *sql.DB's
// own Close — recommended by sqlite for a connection that stayed open for
// the lifetime of a long-running process, and worth doing explicitly here
// since the core typically runs on resource-constrained single-board
// hardware rather than a server with disk and memory to spare.
func (db *DB) Close() error {
	if _, err := db.Exec("PRAGMA optimize"); err != nil {
		slog.Default().With("component", "callstore").Warn("PRAGMA optimize before close failed", "error", err)
	}
	return db.DB.Close()
}

func (db *DB) migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}
		slog.Default().With("component", "callstore").Info("applied migration", "version", version)
	}
	return nil
}

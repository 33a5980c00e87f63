package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/shelfwise/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Sync state, orders, items and snapshots
// 2 - Snapshot display titles and the recommendation log
const currentSchemaVersion = model.SchemaVersion

// ErrStoreNotFound is returned when a storefront has not been connected.
var ErrStoreNotFound = errors.New("store not found")

// ErrUnsupported is returned by operations whose tables the capability probe
// did not find (externally provisioned schemas only).
var ErrUnsupported = errors.New("operation not supported by schema")

// Capabilities records which optional parts of the schema exist. It is
// probed once when the store is opened.
type Capabilities struct {
	// SnapshotTitles is true when variant_snapshots carries product_title
	// and variant_title.
	SnapshotTitles bool

	// SyncRuns is true when the sync_runs ledger exists.
	SyncRuns bool

	// RecLogs is true when the rec_logs table exists.
	RecLogs bool
}

// Store is the relational store for synchronised commerce data.
// Uses SQLite with WAL mode for concurrent read access.
//
// Thread-safety: Store is safe for concurrent use. The pool holds a single
// connection, so writers are serialised by database/sql.
type Store struct {
	db   *sql.DB
	caps Capabilities
	now  func() time.Time
}

type options struct {
	migrate bool
	now     func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithoutMigrations opens a schema provisioned elsewhere: schema.sql and the
// migrations are not applied, only probed.
func WithoutMigrations() Option {
	return func(o *options) {
		o.migrate = false
	}
}

// WithClock sets the clock used for default timestamps (snapshot capture
// time, row bookkeeping).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (order_items cascade with their order)
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{migrate: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if o.migrate {
		if err := applySchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	caps, err := probeCapabilities(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to probe schema: %w", err)
	}

	return &Store{db: db, caps: caps, now: o.now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Capabilities returns the result of the probe performed by Open.
func (s *Store) Capabilities() Capabilities {
	return s.caps
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV2 adds the snapshot title columns to databases created before
// they existed. New databases get them from schema.sql; rec_logs is created
// there with IF NOT EXISTS for both.
func migrateToV2(db *sql.DB) error {
	cols, err := tableColumns(db, "variant_snapshots")
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	for _, col := range []string{"product_title", "variant_title"} {
		if cols[col] {
			continue
		}
		if _, err := db.Exec("ALTER TABLE variant_snapshots ADD COLUMN " + col + " TEXT"); err != nil {
			return fmt.Errorf("migrate to v2: add %s: %w", col, err)
		}
	}
	return nil
}

// probeCapabilities inspects the schema once so that queries never need to
// introspect per call.
func probeCapabilities(db *sql.DB) (Capabilities, error) {
	var caps Capabilities

	cols, err := tableColumns(db, "variant_snapshots")
	if err != nil {
		return caps, err
	}
	caps.SnapshotTitles = cols["product_title"] && cols["variant_title"]

	if caps.SyncRuns, err = tableExists(db, "sync_runs"); err != nil {
		return caps, err
	}
	if caps.RecLogs, err = tableExists(db, "rec_logs"); err != nil {
		return caps, err
	}
	return caps, nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("table_info %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return n > 0, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func formatTime(t time.Time) string {
	return model.FormatTimestamp(t)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := model.ParseTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Implements circulation.TxStore (trips, return log, CD dispatches, origin
  shipments, catalog lookup) on a single SQLite file. The same queries run
  inside and outside transactions: Store and txStore both embed queries,
  which only needs something that can Exec/Query.

INTERFACES IMPLEMENTED:
  circulation.TripStore:      trips, trip_line_items
  circulation.ReturnLogStore: return_log
  circulation.DepotStore:     cd_dispatches, cd_origin_shipments
  circulation.CatalogLookup:  stores
  circulation.TxStore:        WithTx

KEY TABLES:
  drivers, stores:      Catalog (see catalog.go)
  trips:                One delivery run, status in_progress/completed
  trip_line_items:      Sent/returned per store, CHECK 0 <= returned <= sent
  return_log:           Return events, weak references to trip/line item
  cd_dispatches:        CD -> store shipments, CHECK 0 <= returned <= sent
  cd_origin_shipments:  CD -> manufacturer

  trips and trip_line_items use AUTOINCREMENT so a deleted line item id is
  never handed out again; log entries of deleted lines must stay orphaned.

CONCURRENCY:
  WithTx takes the in-process mutex and opens the transaction with
  BEGIN IMMEDIATE (_txlock=immediate), which grabs SQLite's write lock
  before the first read. Other processes wait up to _busy_timeout.
  An in-memory database is pinned to one connection, otherwise every pool
  connection would see its own empty database.

DATES:
  Calendar dates are TEXT "2006-01-02"; return_log.created_at is RFC3339 UTC.
  Columns are declared TEXT so the driver hands back strings.

USAGE:
  store, err := sqlite.New("./data/crates.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := trips.NewLedger(store, circulation.Options{})

SEE ALSO:
  - circulation/store.go: Interface definitions
  - catalog.go: Driver and store catalog CRUD
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/crate-ledger/circulation"
)

// Store implements circulation.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

var _ circulation.TxStore = (*Store)(nil)

const dsnParams = "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := NewFromDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an already opened handle without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Catalog
	CREATE TABLE IF NOT EXISTS drivers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL DEFAULT '',
		registered_on TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number INTEGER NOT NULL UNIQUE CHECK (number > 0),
		name TEXT NOT NULL UNIQUE,
		is_distribution_center INTEGER NOT NULL DEFAULT 0
	);

	-- Trips
	CREATE TABLE IF NOT EXISTS trips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		driver_id INTEGER NOT NULL REFERENCES drivers(id),
		trip_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress'
			CHECK (status IN ('in_progress', 'completed'))
	);

	CREATE INDEX IF NOT EXISTS idx_trips_date
		ON trips(trip_date DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_trips_driver
		ON trips(driver_id);

	CREATE TABLE IF NOT EXISTS trip_line_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id INTEGER NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		store TEXT NOT NULL,
		boxes_sent INTEGER NOT NULL CHECK (boxes_sent >= 1),
		boxes_returned INTEGER NOT NULL DEFAULT 0
			CHECK (boxes_returned >= 0 AND boxes_returned <= boxes_sent)
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_trip
		ON trip_line_items(trip_id);
	-- CD received-from-trips sum (hot path of every stock check)
	CREATE INDEX IF NOT EXISTS idx_line_items_store
		ON trip_line_items(store);

	-- Return audit log: no foreign keys, entries outlive their trip
	CREATE TABLE IF NOT EXISTS return_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id INTEGER NOT NULL,
		line_item_id INTEGER NOT NULL,
		store TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		kind TEXT NOT NULL CHECK (kind IN ('individual', 'bulk')),
		acting_user TEXT NOT NULL,
		batch_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_return_log_trip
		ON return_log(trip_id);
	CREATE INDEX IF NOT EXISTS idx_return_log_created
		ON return_log(created_at DESC, id DESC);

	-- Distribution center
	CREATE TABLE IF NOT EXISTS cd_dispatches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		center TEXT NOT NULL,
		destination TEXT NOT NULL,
		dispatch_date TEXT NOT NULL,
		boxes_sent INTEGER NOT NULL CHECK (boxes_sent >= 1),
		boxes_returned INTEGER NOT NULL DEFAULT 0
			CHECK (boxes_returned >= 0 AND boxes_returned <= boxes_sent)
	);

	CREATE INDEX IF NOT EXISTS idx_dispatches_destination
		ON cd_dispatches(destination, dispatch_date, id);
	CREATE INDEX IF NOT EXISTS idx_dispatches_date
		ON cd_dispatches(dispatch_date DESC, id DESC);

	CREATE TABLE IF NOT EXISTS cd_origin_shipments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shipment_date TEXT NOT NULL,
		boxes_sent INTEGER NOT NULL CHECK (boxes_sent >= 1)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a write-serialized database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store circulation.Store) error) error {
	return s.inTx(ctx, func(q queries) error {
		return fn(&txStore{queries: q})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(q queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs the shared queries on an open transaction.
type txStore struct {
	queries
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements circulation.Store on a querier.
type queries struct {
	q querier
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data and id sequences (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"return_log", "trip_line_items", "trips",
		"cd_dispatches", "cd_origin_shipments", "stores", "drivers",
		"sqlite_sequence",
	}
	return s.inTx(ctx, func(q queries) error {
		for _, table := range tables {
			if _, err := q.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// Helper functions

type rowScanner interface {
	Scan(dest ...any) error
}

// where collects optional filter clauses.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) dateRange(column string, r circulation.DateRange) {
	if !r.From.IsZero() {
		w.add(column+" >= ?", circulation.FormatDate(r.From))
	}
	if !r.To.IsZero() {
		w.add(column+" <= ?", circulation.FormatDate(r.To))
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func parseDate(s string) (time.Time, error) {
	t, err := circulation.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt date %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

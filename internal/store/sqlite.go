package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pbaille/nutrilog/internal/logger"
)

var (
	// ErrNotInitialized is returned by every operation on a nil or closed store
	ErrNotInitialized = errors.New("diary database is not initialized")
	ErrEntryNotFound  = errors.New("diary entry not found")
	ErrFoodNotFound   = errors.New("food not found")
	ErrSchemaTooNew   = errors.New("database schema is newer than this build")
)

//go:embed schema.sql
var schema string

// migrations[i] upgrades a database from version i to i+1
var migrations = []string{
	schema,
}

// SchemaVersion is the user_version of a fully migrated database
var SchemaVersion = len(migrations)

// columns that must exist for a version 0 database to be adopted instead of reset
var requiredColumns = map[string][]string{
	"food": {
		"id", "name", "brand", "is_custom_entry", "is_custom_food", "serving_quantity",
		"energy_100g", "protein_100g", "carbs_100g", "fat_100g",
	},
	"diary_entries": {
		"id", "quantity", "is_servings", "date", "meal_type",
		"kcal_total", "protein_total", "carbs_total", "fat_total", "food_id",
	},
	"favorite_food": {"id", "food_id"},
}

// Store is the handle to the embedded database, shared by the repositories
type Store struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *logger.Logger
}

// Open opens (or creates) the database at dbPath and brings its schema up to date
func Open(ctx context.Context, dbPath string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	dsn := "file:" + dbPath + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, log: log.With("component", "store")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection. Later calls fail with ErrNotInitialized.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing only if fn succeeds
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Version reports the on-disk schema version
func (s *Store) Version(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	return userVersion(ctx, db)
}

func userVersion(ctx context.Context, q querier) (int, error) {
	var v int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (s *Store) migrate(ctx context.Context) error {
	version, err := userVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: on disk %d, supported %d", ErrSchemaTooNew, version, SchemaVersion)
	}

	if version == 0 {
		compatible, err := s.legacyCompatible(ctx)
		if err != nil {
			return err
		}
		if !compatible {
			s.log.Warn("Incompatible database schema, resetting to an empty diary")
			if err := s.reset(ctx); err != nil {
				return err
			}
		}
	}

	for v := version; v < SchemaVersion; v++ {
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
				return fmt.Errorf("apply migration %d: %w", v+1, err)
			}
			// PRAGMA does not take bind parameters
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
				return fmt.Errorf("set schema version: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.log.Info("Applied schema migration", "version", v+1)
	}
	return nil
}

// legacyCompatible reports whether an unversioned database already has every current column.
// An empty database counts as compatible.
func (s *Store) legacyCompatible(ctx context.Context) (bool, error) {
	var tables int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('food', 'diary_entries', 'favorite_food')",
	).Scan(&tables)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return true, nil
	}
	for table, cols := range requiredColumns {
		query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", strings.Join(cols, ", "), table)
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			s.log.Debug("Schema check failed", "table", table, "error", err)
			return false, nil
		}
		rows.Close()
	}
	return true, nil
}

func (s *Store) reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DROP VIEW IF EXISTS diary_entries_view",
			"DROP VIEW IF EXISTS food_view",
			"DROP TABLE IF EXISTS diary_entries",
			"DROP TABLE IF EXISTS favorite_food",
			"DROP TABLE IF EXISTS food",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("reset schema: %w", err)
			}
		}
		return nil
	})
}

// Package sqlstore implements storage.Store as a remote KV service:
// a single relay_storage(collection, key, value) table reachable over a
// network DSN. It speaks both SQLite (local/dev) and Postgres (networked)
// through the same database/sql code path, selected by DSN scheme.
// golang-migrate bootstraps the schema on Open so a fresh deployment needs
// no manual setup step.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// resourceCollection is the sentinel collection name single-valued
// resources are stored under, keeping the schema to one table.
const resourceCollection = "__resource__"

// Store is a database/sql-backed storage.Store.
type Store struct {
	dsn    string
	driver string // "sqlite3" or "postgres"
	db     *sql.DB
}

// New returns an unopened Store. dsn is either "sqlite://<path>" for the
// local driver or a "postgres://..." URL for the networked one.
func New(dsn string) (*Store, error) {
	driver, connStr, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return &Store{dsn: connStr, driver: driver}, nil
}

func parseDSN(dsn string) (driver, connStr string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	default:
		return "", "", fmt.Errorf("sqlstore: unrecognised DSN scheme in %q", dsn)
	}
}

// Open connects and runs any pending schema migrations.
func (s *Store) Open(ctx context.Context) error {
	db, err := sql.Open(s.driver, s.connectionString())
	if err != nil {
		return fmt.Errorf("sqlstore: open %s: %w", s.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqlstore: ping %s: %w", s.driver, err)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *Store) connectionString() string {
	if s.driver == "sqlite3" {
		return s.dsn + "?_foreign_keys=on"
	}
	return s.dsn
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlstore: load migrations: %w", err)
	}

	// Closing the migrator closes the *sql.DB its database driver wraps, so
	// migrations run on their own handle rather than on the store's pool.
	db, err := sql.Open(s.driver, s.connectionString())
	if err != nil {
		return fmt.Errorf("sqlstore: open migration handle: %w", err)
	}
	defer db.Close()

	var dbDriver database.Driver
	switch s.driver {
	case "sqlite3":
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case "postgres":
		dbDriver, err = migratepg.WithInstance(db, &migratepg.Config{})
	default:
		return fmt.Errorf("sqlstore: no migrate driver for %q", s.driver)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, dbDriver)
	if err != nil {
		return fmt.Errorf("sqlstore: new migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: migrate up: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// placeholder returns the positional-parameter marker for the active
// driver: SQLite accepts "?", Postgres requires "$1", "$2", ...
func (s *Store) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	q := fmt.Sprintf(`SELECT value FROM relay_storage WHERE collection = %s AND key = %s;`,
		s.placeholder(1), s.placeholder(2))

	var value string
	err := s.db.QueryRowContext(ctx, q, collection, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get %s/%s: %w", collection, key, err)
	}
	return []byte(value), true, nil
}

func (s *Store) set(ctx context.Context, collection, key string, value []byte) error {
	var q string
	if s.driver == "postgres" {
		q = `INSERT INTO relay_storage (collection, key, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (collection, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at;`
	} else {
		q = `INSERT INTO relay_storage (collection, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`
	}

	_, err := s.db.ExecContext(ctx, q, collection, key, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlstore: set %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, collection, key string) (bool, error) {
	q := fmt.Sprintf(`DELETE FROM relay_storage WHERE collection = %s AND key = %s;`,
		s.placeholder(1), s.placeholder(2))

	res, err := s.db.ExecContext(ctx, q, collection, key)
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

func (s *Store) GetResource(ctx context.Context, name string) ([]byte, bool, error) {
	return s.get(ctx, resourceCollection, name)
}

func (s *Store) SetResource(ctx context.Context, name string, value []byte) error {
	return s.set(ctx, resourceCollection, name, value)
}

func (s *Store) ExistsResource(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.get(ctx, resourceCollection, name)
	return ok, err
}

func (s *Store) GetKey(ctx context.Context, collection, key string) ([]byte, bool, error) {
	return s.get(ctx, collection, key)
}

func (s *Store) SetKey(ctx context.Context, collection, key string, value []byte) error {
	return s.set(ctx, collection, key, value)
}

func (s *Store) DeleteKey(ctx context.Context, collection, key string) (bool, error) {
	return s.delete(ctx, collection, key)
}

func (s *Store) ExistsKey(ctx context.Context, collection, key string) (bool, error) {
	_, ok, err := s.get(ctx, collection, key)
	return ok, err
}

// Package db opens the service database and applies its schema.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // driver: sqlite
)

// Driver selects the database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	// DriverNone runs without a database: acceptable answers live in memory
	// and submissions are not recorded.
	DriverNone Driver = "none"
)

const (
	defaultSQLiteDSN   = "file:gmath.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
	defaultPostgresDSN = "postgres://localhost:5432/gmath?sslmode=disable"
)

// ErrUnsupportedDriver is returned for drivers Open cannot serve.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

func init() {
	// modernc registers as "sqlite", which sqlx does not know; queries are
	// written with ? placeholders.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sqlx.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = defaultPostgresDSN
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sqlx.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection also keeps
		// in-memory databases alive for the lifetime of the pool.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sqlx.DB, driver Driver) error {
	schema := schemaSQLite
	if driver == DriverPostgres {
		schema = schemaPostgres
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS acceptable_answers (
  question_id TEXT NOT NULL,
  answer TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (question_id, answer)
);

CREATE TABLE IF NOT EXISTS hw_responses (
  id TEXT PRIMARY KEY,
  stud_id TEXT NOT NULL,
  question_id TEXT NOT NULL DEFAULT '',
  user_answer TEXT NOT NULL,
  correct_answer TEXT NOT NULL,
  is_correct BOOLEAN NOT NULL,
  tier TEXT NOT NULL,
  attempt INTEGER NOT NULL DEFAULT 1,
  ip TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS hw_responses_student_idx ON hw_responses (stud_id, created_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS acceptable_answers (
  question_id TEXT NOT NULL,
  answer TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (question_id, answer)
);

CREATE TABLE IF NOT EXISTS hw_responses (
  id TEXT PRIMARY KEY,
  stud_id TEXT NOT NULL,
  question_id TEXT NOT NULL DEFAULT '',
  user_answer TEXT NOT NULL,
  correct_answer TEXT NOT NULL,
  is_correct BOOLEAN NOT NULL,
  tier TEXT NOT NULL,
  attempt INTEGER NOT NULL DEFAULT 1,
  ip TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS hw_responses_student_idx ON hw_responses (stud_id, created_at);
`

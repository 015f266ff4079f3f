// Package sqlitedb provides an embedded SQLite storage backend, handy for local runs
// without a PostgreSQL server. Queries live in sqldb.
package sqlitedb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/patric-chuzhbe/bookmarkapi/internal/db/sqldb"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DSNPrefix marks a DATABASE_DSN that should be served by this backend.
const DSNPrefix = "sqlite://"

var placeholder = regexp.MustCompile(`\$(\d+)`)

type SQLiteDB struct {
	*sqldb.DB
}

// IsDSN reports whether dsn points at a SQLite database.
func IsDSN(dsn string) bool {
	return strings.HasPrefix(dsn, DSNPrefix) || strings.HasPrefix(dsn, "file:")
}

// New opens the database file named by dsn (":memory:" works too), enables WAL and
// foreign keys and runs migrations.
func New(ctx context.Context, dsn string, connectionTimeout time.Duration) (*SQLiteDB, error) {
	database, err := sql.Open("sqlite", strings.TrimPrefix(dsn, DSNPrefix))
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/New(): error while `sql.Open()` calling: %w", err)
	}

	// SQLite allows a single writer; pragmas below are per connection.
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := database.ExecContext(ctx, pragma); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/New(): error while setting %q: %w", pragma, err)
		}
	}

	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	db, err := sqldb.New(ctx, database, sqldb.Dialect{
		Goose:                 goose.DialectSQLite3,
		Migrations:            migrations,
		Rebind:                rebind,
		IsUniqueViolation:     hasCode(sqlite3.SQLITE_CONSTRAINT_UNIQUE),
		IsForeignKeyViolation: hasCode(sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY),
	}, connectionTimeout)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	return &SQLiteDB{DB: db}, nil
}

// rebind turns $N placeholders into SQLite's numbered ?N form.
func rebind(query string) string {
	return placeholder.ReplaceAllString(query, "?$1")
}

func hasCode(code int) func(error) bool {
	return func(err error) bool {
		var sqliteErr *sqlite.Error
		return errors.As(err, &sqliteErr) && sqliteErr.Code() == code
	}
}

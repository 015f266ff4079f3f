// Package postgresdb provides the PostgreSQL storage backend. Queries live in sqldb;
// this package opens the pgx connection, owns the schema migrations and maps
// PostgreSQL constraint errors.
package postgresdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/bookmarkapi/internal/db/sqldb"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresDB is the PostgreSQL-backed storage.
type PostgresDB struct {
	*sqldb.DB
}

type initOptions struct {
	DBPreReset bool
}

// InitOption customizes New.
type InitOption func(*initOptions)

// WithDBPreReset drops every table before migrating. Meant for tests only.
func WithDBPreReset(dbPreReset bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = dbPreReset
	}
}

// New connects to databaseDSN, runs migrations and returns the storage.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `sql.Open()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := resetDB(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `resetDB()` calling: %w", err)
		}
	}

	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	db, err := sqldb.New(ctx, database, sqldb.Dialect{
		Goose:                 goose.DialectPostgres,
		Migrations:            migrations,
		IsUniqueViolation:     hasCode(uniqueViolation),
		IsForeignKeyViolation: hasCode(foreignKeyViolation),
	}, connectionTimeout)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	return &PostgresDB{DB: db}, nil
}

func hasCode(code string) func(error) bool {
	return func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == code
	}
}

func resetDB(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(
		ctx,
		`DROP TABLE IF EXISTS bookmarks, users, goose_db_version CASCADE`,
	)
	return err
}

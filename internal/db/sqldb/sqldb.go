// Package sqldb implements the user and bookmark storage on top of database/sql.
// The SQL is shared by every relational backend; a Dialect supplies what differs
// between them: placeholder syntax, migrations and constraint error detection.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

// Dialect describes one relational backend.
type Dialect struct {
	// Goose is the migration dialect.
	Goose goose.Dialect

	// Migrations holds the *.sql goose migrations at its root.
	Migrations fs.FS

	// Rebind rewrites a query written with $1, $2, ... placeholders. Nil keeps it as is.
	Rebind func(query string) string

	IsUniqueViolation     func(err error) bool
	IsForeignKeyViolation func(err error) bool
}

// DB is a relational storage backend. It is safe for concurrent use.
type DB struct {
	database          *sql.DB
	dialect           Dialect
	connectionTimeout time.Duration
}

// New pings the database and applies pending migrations.
func New(
	ctx context.Context,
	database *sql.DB,
	dialect Dialect,
	connectionTimeout time.Duration,
) (*DB, error) {
	result := &DB{
		database:          database,
		dialect:           dialect,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		return nil, fmt.Errorf("in internal/db/sqldb/sqldb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	provider, err := goose.NewProvider(dialect.Goose, database, dialect.Migrations)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqldb/sqldb.go/New(): error while `goose.NewProvider()` calling: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return nil, fmt.Errorf("in internal/db/sqldb/sqldb.go/New(): error while `provider.Up()` calling: %w", err)
	}

	return result, nil
}

func (db *DB) q(query string) string {
	if db.dialect.Rebind == nil {
		return query
	}
	return db.dialect.Rebind(query)
}

// Ping checks the connection, bounded by the configured connection timeout.
func (db *DB) Ping(ctx context.Context) error {
	if db.connectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.connectionTimeout)
		defer cancel()
	}
	return db.database.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.database.Close()
}

// CreateUser inserts a user. The unique index on email turns a concurrent duplicate
// signup into ErrEmailAlreadyExists.
func (db *DB) CreateUser(ctx context.Context, usr *user.User) error {
	_, err := db.database.ExecContext(
		ctx,
		db.q(`
			INSERT INTO users (id, email, password_hash, first_name, last_name, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
		`),
		usr.ID,
		usr.Email,
		usr.PasswordHash,
		usr.FirstName,
		usr.LastName,
		usr.CreatedAt,
		usr.UpdatedAt,
	)
	if err != nil {
		if db.dialect.IsUniqueViolation(err) {
			return models.ErrEmailAlreadyExists
		}
		return fmt.Errorf("in internal/db/sqldb/sqldb.go/CreateUser(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return nil
}

func (db *DB) GetUserByID(ctx context.Context, userID string) (*user.User, error) {
	return db.getUser(ctx, `id = $1`, userID)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return db.getUser(ctx, `email = $1`, email)
}

func (db *DB) getUser(ctx context.Context, condition string, arg string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		db.q(`
			SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
				FROM users
				WHERE `+condition),
		arg,
	)

	usr := &user.User{}
	err := row.Scan(
		&usr.ID,
		&usr.Email,
		&usr.PasswordHash,
		&usr.FirstName,
		&usr.LastName,
		&usr.CreatedAt,
		&usr.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqldb/sqldb.go/getUser(): error while `row.Scan()` calling: %w", err)
	}

	return usr, nil
}

func (db *DB) UpdateUser(ctx context.Context, usr *user.User) error {
	result, err := db.database.ExecContext(
		ctx,
		db.q(`
			UPDATE users
				SET email = $2, first_name = $3, last_name = $4, updated_at = $5
				WHERE id = $1
		`),
		usr.ID,
		usr.Email,
		usr.FirstName,
		usr.LastName,
		usr.UpdatedAt,
	)
	if err != nil {
		if db.dialect.IsUniqueViolation(err) {
			return models.ErrEmailAlreadyExists
		}
		return fmt.Errorf("in internal/db/sqldb/sqldb.go/UpdateUser(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return expectOneRow(result, models.ErrUserNotFound)
}

func (db *DB) CreateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	_, err := db.database.ExecContext(
		ctx,
		db.q(`
			INSERT INTO bookmarks (id, user_id, title, link, description, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
		`),
		b.ID,
		b.OwnerID,
		b.Title,
		b.Link,
		b.Description,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		if db.dialect.IsForeignKeyViolation(err) {
			return models.ErrUserNotFound
		}
		return fmt.Errorf("in internal/db/sqldb/sqldb.go/CreateBookmark(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return nil
}

const bookmarkColumns = `id, user_id, title, link, description, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row scanner) (*bookmark.Bookmark, error) {
	b := &bookmark.Bookmark{}
	err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Link, &b.Description, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (db *DB) GetBookmarkByID(ctx context.Context, bookmarkID string) (*bookmark.Bookmark, error) {
	row := db.database.QueryRowContext(
		ctx,
		db.q(`SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = $1`),
		bookmarkID,
	)

	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookmarkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqldb/sqldb.go/GetBookmarkByID(): error while `scanBookmark()` calling: %w", err)
	}

	return b, nil
}

// GetUserBookmarks filters by owner in the query itself, so other users' rows are never read.
func (db *DB) GetUserBookmarks(ctx context.Context, ownerID string) ([]bookmark.Bookmark, error) {
	rows, err := db.database.QueryContext(
		ctx,
		db.q(`
			SELECT `+bookmarkColumns+`
				FROM bookmarks
				WHERE user_id = $1
				ORDER BY created_at, id
		`),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqldb/sqldb.go/GetUserBookmarks(): error while `db.database.QueryContext()` calling: %w", err)
	}
	defer rows.Close()

	result := []bookmark.Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (db *DB) UpdateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	result, err := db.database.ExecContext(
		ctx,
		db.q(`
			UPDATE bookmarks
				SET title = $3, link = $4, description = $5, updated_at = $6
				WHERE id = $1 AND user_id = $2
		`),
		b.ID,
		b.OwnerID,
		b.Title,
		b.Link,
		b.Description,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("in internal/db/sqldb/sqldb.go/UpdateBookmark(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return expectOneRow(result, models.ErrBookmarkNotFound)
}

func (db *DB) DeleteBookmark(ctx context.Context, bookmarkID, ownerID string) error {
	result, err := db.database.ExecContext(
		ctx,
		db.q(`DELETE FROM bookmarks WHERE id = $1 AND user_id = $2`),
		bookmarkID,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("in internal/db/sqldb/sqldb.go/DeleteBookmark(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return expectOneRow(result, models.ErrBookmarkNotFound)
}

func (db *DB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (db *DB) GetNumberOfBookmarks(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM bookmarks`)
}

func (db *DB) count(ctx context.Context, query string) (int64, error) {
	var count int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("in internal/db/sqldb/sqldb.go/count(): error while `row.Scan()` calling: %w", err)
	}
	return count, nil
}

func expectOneRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

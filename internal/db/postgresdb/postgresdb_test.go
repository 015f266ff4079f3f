package postgresdb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

func TestConstraintDetection(t *testing.T) {
	isUnique := hasCode(uniqueViolation)

	assert.True(t, isUnique(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUnique(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUnique(errors.New("23505")))
	assert.False(t, isUnique(nil))
}

// TestPostgresDB needs a disposable database, e.g.
// TEST_DATABASE_DSN="host=localhost user=test password=test dbname=bookmarks_test sslmode=disable".
func TestPostgresDB(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN is not set")
	}

	ctx := context.Background()
	db, err := New(ctx, dsn, 5*time.Second, WithDBPreReset(true))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	now := time.Now().UTC().Truncate(time.Microsecond)
	owner := &user.User{ID: "u1", Email: "hi@example.com", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateUser(ctx, owner))
	assert.ErrorIs(t,
		db.CreateUser(ctx, &user.User{ID: "u2", Email: "hi@example.com", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}),
		models.ErrEmailAlreadyExists,
	)

	assert.ErrorIs(t,
		db.CreateBookmark(ctx, &bookmark.Bookmark{ID: "b0", OwnerID: "ghost", Title: "t", Link: "l", CreatedAt: now, UpdatedAt: now}),
		models.ErrUserNotFound,
	)
	require.NoError(t, db.CreateBookmark(ctx, &bookmark.Bookmark{ID: "b1", OwnerID: "u1", Title: "t", Link: "l", CreatedAt: now, UpdatedAt: now}))

	owned, err := db.GetUserBookmarks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.True(t, now.Equal(owned[0].CreatedAt))

	assert.ErrorIs(t, db.DeleteBookmark(ctx, "b1", "u2"), models.ErrBookmarkNotFound)
	require.NoError(t, db.DeleteBookmark(ctx, "b1", "u1"))

	_, err = db.GetUserByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/bookmarkapi/internal/auth"
	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookmarkapi/internal/mockstorage"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/password"
	"github.com/patric-chuzhbe/bookmarkapi/internal/token"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

func strPtr(s string) *string {
	return &s
}

func setup(t *testing.T) (*Service, *token.Service) {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)
	tokens, err := token.New([]byte("test-signing-key"), 15*time.Minute)
	require.NoError(t, err)

	s, err := New(db, password.NewBcryptHasher(bcrypt.MinCost, ""), tokens)
	require.NoError(t, err)

	return s, tokens
}

func signup(t *testing.T, s *Service, email string) auth.Identity {
	t.Helper()
	usr, err := s.Signup(context.Background(), user.Credential{Email: email, Password: "123"})
	require.NoError(t, err)
	return auth.Identity{UserID: usr.ID, User: usr}
}

func TestSignupAndSignin(t *testing.T) {
	ctx := context.Background()
	s, tokens := setup(t)

	usr, err := s.Signup(ctx, user.Credential{Email: "  Hi@Example.com ", Password: "123"})
	require.NoError(t, err)
	assert.Equal(t, "hi@example.com", usr.Email)
	assert.NotEmpty(t, usr.ID)
	assert.NotEqual(t, "123", usr.PasswordHash)
	assert.False(t, usr.CreatedAt.IsZero())

	_, err = s.Signup(ctx, user.Credential{Email: "hi@example.com", Password: "456"})
	assert.ErrorIs(t, err, ErrConflict)

	accessToken, err := s.Signin(ctx, user.Credential{Email: "HI@example.com", Password: "123"})
	require.NoError(t, err)
	userID, err := tokens.Verify(accessToken)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, userID)

	_, err = s.Signin(ctx, user.Credential{Email: "hi@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Signin(ctx, user.Credential{Email: "nobody@example.com", Password: "123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSamePasswordGivesDifferentHashes(t *testing.T) {
	s, _ := setup(t)
	first := signup(t, s, "one@example.com")
	second := signup(t, s, "two@example.com")

	assert.NotEqual(t, first.User.PasswordHash, second.User.PasswordHash)
}

func TestSignupValidation(t *testing.T) {
	s, _ := setup(t)

	tests := []struct {
		name       string
		credential user.Credential
	}{
		{name: "missing email", credential: user.Credential{Password: "123"}},
		{name: "invalid email", credential: user.Credential{Email: "not-an-email", Password: "123"}},
		{name: "missing password", credential: user.Credential{Email: "hi@example.com"}},
		{name: "overlong password", credential: user.Credential{Email: "hi@example.com", Password: string(make([]byte, 73))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Signup(context.Background(), tt.credential)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSigninValidation(t *testing.T) {
	s, _ := setup(t)

	_, err := s.Signin(context.Background(), user.Credential{Password: "123"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.Signin(context.Background(), user.Credential{Email: "hi@example.com"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConcurrentSignup(t *testing.T) {
	s, _ := setup(t)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Signup(context.Background(), user.Credential{Email: "race@example.com", Password: "123"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestEditUser(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t)
	me := signup(t, s, "hi@example.com")
	signup(t, s, "taken@example.com")

	updated, err := s.EditUser(ctx, me, models.EditUserRequest{
		FirstName: strPtr("Vladimir"),
		Email:     strPtr("Vladimir@Gmail.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "vladimir@gmail.com", updated.Email)
	assert.Equal(t, "Vladimir", updated.FirstName)

	_, err = s.EditUser(ctx, me, models.EditUserRequest{Email: strPtr("taken@example.com")})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.EditUser(ctx, me, models.EditUserRequest{Email: strPtr("")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.EditUser(ctx, me, models.EditUserRequest{Email: strPtr("nope")})
	assert.ErrorIs(t, err, ErrValidation)

	// Nothing but the first name changes when only the first name is sent.
	again, err := s.EditUser(ctx, me, models.EditUserRequest{FirstName: strPtr("Vova")})
	require.NoError(t, err)
	assert.Equal(t, "vladimir@gmail.com", again.Email)
	assert.Equal(t, "Vova", again.FirstName)

	accessToken, err := s.Signin(ctx, user.Credential{Email: "vladimir@gmail.com", Password: "123"})
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
}

func TestBookmarkOwnership(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t)
	owner := signup(t, s, "owner@example.com")
	stranger := signup(t, s, "stranger@example.com")

	b, err := s.CreateBookmark(ctx, owner, models.CreateBookmarkRequest{Title: "First Bookmark", Link: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, owner.UserID, b.OwnerID)

	_, err = s.GetBookmarkByID(ctx, stranger, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.EditBookmark(ctx, stranger, b.ID, models.EditBookmarkRequest{Title: strPtr("mine now")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteBookmark(ctx, stranger, b.ID), ErrNotFound)

	listed, err := s.GetBookmarks(ctx, stranger)
	require.NoError(t, err)
	assert.NotNil(t, listed)
	assert.Empty(t, listed)

	_, err = s.GetBookmarkByID(ctx, owner, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	edited, err := s.EditBookmark(ctx, owner, b.ID, models.EditBookmarkRequest{Description: strPtr("notes")})
	require.NoError(t, err)
	assert.Equal(t, "First Bookmark", edited.Title)
	assert.Equal(t, "notes", edited.Description)

	_, err = s.EditBookmark(ctx, owner, b.ID, models.EditBookmarkRequest{Link: strPtr("not a url")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.EditBookmark(ctx, owner, b.ID, models.EditBookmarkRequest{Title: strPtr("  ")})
	assert.ErrorIs(t, err, ErrValidation)

	listed, err = s.GetBookmarks(ctx, owner)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "notes", listed[0].Description)

	require.NoError(t, s.DeleteBookmark(ctx, owner, b.ID))
	listed, err = s.GetBookmarks(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.ErrorIs(t, s.DeleteBookmark(ctx, owner, b.ID), ErrNotFound)

	stats, err := s.GetInternalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Users)
	assert.Equal(t, int64(0), stats.Bookmarks)
}

func TestCreateBookmarkValidation(t *testing.T) {
	s, _ := setup(t)
	owner := signup(t, s, "owner@example.com")

	for _, request := range []models.CreateBookmarkRequest{
		{Link: "https://example.com"},
		{Title: "no link"},
		{Title: "bad link", Link: "example"},
	} {
		_, err := s.CreateBookmark(context.Background(), owner, request)
		assert.ErrorIs(t, err, ErrValidation, request)
	}
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	db := &mockstorage.StorageMock{
		OnGetNumberOfBookmarks: func(context.Context) (int64, error) { return 0, storeErr },
	}
	db.On("GetUserByEmail", mock.Anything, "hi@example.com").Return(nil, storeErr)
	db.On("GetBookmarkByID", mock.Anything, "b1").Return(
		&bookmark.Bookmark{ID: "b1", OwnerID: "u1", Title: "t", Link: "https://example.com"}, nil,
	)
	db.On("DeleteBookmark", mock.Anything, "b1", "u1").Return(storeErr)
	db.On("Ping", mock.Anything).Return(storeErr)

	tokens, err := token.New([]byte("key"), time.Minute)
	require.NoError(t, err)
	s, err := New(db, password.NewBcryptHasher(bcrypt.MinCost, ""), tokens)
	require.NoError(t, err)

	_, err = s.Signup(ctx, user.Credential{Email: "hi@example.com", Password: "123"})
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrConflict)

	_, err = s.Signin(ctx, user.Credential{Email: "hi@example.com", Password: "123"})
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	err = s.DeleteBookmark(ctx, auth.Identity{UserID: "u1"}, "b1")
	assert.ErrorIs(t, err, storeErr)

	assert.ErrorIs(t, s.Ping(ctx), storeErr)

	_, err = s.GetInternalStats(ctx)
	assert.ErrorIs(t, err, storeErr)

	db.AssertExpectations(t)
}

func TestWithClock(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	tokens, err := token.New([]byte("key"), time.Minute)
	require.NoError(t, err)

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("UTC+3", 3*60*60))
	s, err := New(db, password.NewBcryptHasher(bcrypt.MinCost, ""), tokens, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	usr, err := s.Signup(context.Background(), user.Credential{Email: "hi@example.com", Password: "123"})
	require.NoError(t, err)
	assert.True(t, fixed.Equal(usr.CreatedAt))
	assert.Equal(t, time.UTC, usr.CreatedAt.Location())
}

// Package service implements the account and bookmark operations behind the HTTP API.
// It owns input validation, password checks and ownership enforcement; storage and
// token signing are injected.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/bookmarkapi/internal/auth"
	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) error

	GetUserByID(ctx context.Context, userID string) (*user.User, error)

	GetUserByEmail(ctx context.Context, email string) (*user.User, error)

	UpdateUser(ctx context.Context, usr *user.User) error
}

type bookmarkKeeper interface {
	CreateBookmark(ctx context.Context, b *bookmark.Bookmark) error

	GetBookmarkByID(ctx context.Context, bookmarkID string) (*bookmark.Bookmark, error)

	GetUserBookmarks(ctx context.Context, ownerID string) ([]bookmark.Bookmark, error)

	UpdateBookmark(ctx context.Context, b *bookmark.Bookmark) error

	DeleteBookmark(ctx context.Context, bookmarkID, ownerID string) error
}

type statsKeeper interface {
	GetNumberOfUsers(ctx context.Context) (int64, error)

	GetNumberOfBookmarks(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	bookmarkKeeper
	statsKeeper
	pinger
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

type tokenIssuer interface {
	Issue(userID string) (string, error)
}

var (
	// ErrValidation wraps a description of the rejected input.
	ErrValidation = errors.New("invalid input")

	// ErrConflict is returned when the email is already registered.
	ErrConflict = errors.New("email already registered")

	// ErrInvalidCredentials is returned by Signin for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound is returned for bookmarks that do not exist or belong to another user.
	ErrNotFound = errors.New("not found")
)

// maxPasswordBytes is the longest password bcrypt can hash.
const maxPasswordBytes = 72

type Service struct {
	db       storage
	hasher   passwordHasher
	tokens   tokenIssuer
	validate *validator.Validate
	now      func() time.Time

	// dummyHash is verified against when signin hits an unknown email, so that
	// the response takes as long as for a wrong password.
	dummyHash string
}

type InitOption func(*Service)

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) InitOption {
	return func(s *Service) {
		s.now = now
	}
}

func New(
	db storage,
	hasher passwordHasher,
	tokens tokenIssuer,
	optionsProto ...InitOption,
) (*Service, error) {
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/New(): error while `hasher.Hash()` calling: %w", err)
	}

	s := &Service{
		db:        db,
		hasher:    hasher,
		tokens:    tokens,
		validate:  validator.New(),
		now:       time.Now,
		dummyHash: dummyHash,
	}
	for _, protoOption := range optionsProto {
		protoOption(s)
	}

	return s, nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// validationError turns validator output into ErrValidation listing the offending fields.
func validationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	details := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		details = append(details, strings.ToLower(fieldError.Field())+" failed on "+fieldError.Tag())
	}

	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(details, ", "))
}

// Signup registers a new user and returns it. No token is issued.
func (s *Service) Signup(ctx context.Context, credential user.Credential) (*user.User, error) {
	credential.Email = user.NormalizeEmail(credential.Email)
	if err := s.validate.Struct(credential); err != nil {
		return nil, validationError(err)
	}
	if len(credential.Password) > maxPasswordBytes {
		return nil, fmt.Errorf("%w: password is longer than %d bytes", ErrValidation, maxPasswordBytes)
	}

	_, err := s.db.GetUserByEmail(ctx, credential.Email)
	if err == nil {
		return nil, ErrConflict
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return nil, fmt.Errorf("in internal/service/service.go/Signup(): error while `s.db.GetUserByEmail()` calling: %w", err)
	}

	hash, err := s.hasher.Hash(credential.Password)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Signup(): error while `s.hasher.Hash()` calling: %w", err)
	}

	now := s.timestamp()
	usr := &user.User{
		ID:           uuid.NewString(),
		Email:        credential.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Concurrent signups with the same email both pass the lookup above;
	// the store's unique constraint lets exactly one of them through.
	err = s.db.CreateUser(ctx, usr)
	if errors.Is(err, models.ErrEmailAlreadyExists) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Signup(): error while `s.db.CreateUser()` calling: %w", err)
	}

	return usr, nil
}

// Signin checks the credential and returns a fresh access token.
func (s *Service) Signin(ctx context.Context, credential user.Credential) (string, error) {
	if err := s.validate.Var(credential.Email, "required"); err != nil {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	if err := s.validate.Var(credential.Password, "required"); err != nil {
		return "", fmt.Errorf("%w: password is required", ErrValidation)
	}

	usr, err := s.db.GetUserByEmail(ctx, user.NormalizeEmail(credential.Email))
	if errors.Is(err, models.ErrUserNotFound) {
		s.hasher.Verify(credential.Password, s.dummyHash)
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("in internal/service/service.go/Signin(): error while `s.db.GetUserByEmail()` calling: %w", err)
	}

	if !s.hasher.Verify(credential.Password, usr.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	accessToken, err := s.tokens.Issue(usr.ID)
	if err != nil {
		return "", fmt.Errorf("in internal/service/service.go/Signin(): error while `s.tokens.Issue()` calling: %w", err)
	}

	return accessToken, nil
}

// GetMe returns the caller's own record.
func (s *Service) GetMe(ctx context.Context, identity auth.Identity) (*user.User, error) {
	if identity.User != nil {
		return identity.User, nil
	}

	usr, err := s.db.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetMe(): error while `s.db.GetUserByID()` calling: %w", err)
	}

	return usr, nil
}

// EditUser applies a partial profile update to the caller's own account.
func (s *Service) EditUser(ctx context.Context, identity auth.Identity, request models.EditUserRequest) (*user.User, error) {
	if request.Email != nil {
		email := user.NormalizeEmail(*request.Email)
		request.Email = &email
		if err := s.validate.Var(email, "required,email"); err != nil {
			return nil, fmt.Errorf("%w: email failed on email", ErrValidation)
		}
	}
	if err := s.validate.Struct(request); err != nil {
		return nil, validationError(err)
	}

	usr, err := s.db.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/EditUser(): error while `s.db.GetUserByID()` calling: %w", err)
	}

	if request.Email != nil {
		usr.Email = *request.Email
	}
	if request.FirstName != nil {
		usr.FirstName = strings.TrimSpace(*request.FirstName)
	}
	if request.LastName != nil {
		usr.LastName = strings.TrimSpace(*request.LastName)
	}
	usr.UpdatedAt = s.timestamp()

	err = s.db.UpdateUser(ctx, usr)
	if errors.Is(err, models.ErrEmailAlreadyExists) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/EditUser(): error while `s.db.UpdateUser()` calling: %w", err)
	}

	return usr, nil
}

// CreateBookmark saves a bookmark owned by the caller.
func (s *Service) CreateBookmark(
	ctx context.Context,
	identity auth.Identity,
	request models.CreateBookmarkRequest,
) (*bookmark.Bookmark, error) {
	request.Title = strings.TrimSpace(request.Title)
	request.Link = strings.TrimSpace(request.Link)
	if err := s.validate.Struct(request); err != nil {
		return nil, validationError(err)
	}

	now := s.timestamp()
	b := &bookmark.Bookmark{
		ID:          uuid.NewString(),
		OwnerID:     identity.UserID,
		Title:       request.Title,
		Link:        request.Link,
		Description: request.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.CreateBookmark(ctx, b); err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/CreateBookmark(): error while `s.db.CreateBookmark()` calling: %w", err)
	}

	return b, nil
}

// GetBookmarks lists the caller's bookmarks. The store filters by owner.
func (s *Service) GetBookmarks(ctx context.Context, identity auth.Identity) ([]bookmark.Bookmark, error) {
	bookmarks, err := s.db.GetUserBookmarks(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetBookmarks(): error while `s.db.GetUserBookmarks()` calling: %w", err)
	}
	if bookmarks == nil {
		bookmarks = []bookmark.Bookmark{}
	}

	return bookmarks, nil
}

// GetBookmarkByID returns the bookmark if the caller owns it and ErrNotFound otherwise.
func (s *Service) GetBookmarkByID(ctx context.Context, identity auth.Identity, bookmarkID string) (*bookmark.Bookmark, error) {
	b, err := s.db.GetBookmarkByID(ctx, bookmarkID)
	if errors.Is(err, models.ErrBookmarkNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetBookmarkByID(): error while `s.db.GetBookmarkByID()` calling: %w", err)
	}

	if err := auth.AssertOwns(identity, b.OwnerID); err != nil {
		return nil, ErrNotFound
	}

	return b, nil
}

// EditBookmark applies a partial update to one of the caller's bookmarks.
func (s *Service) EditBookmark(
	ctx context.Context,
	identity auth.Identity,
	bookmarkID string,
	request models.EditBookmarkRequest,
) (*bookmark.Bookmark, error) {
	b, err := s.GetBookmarkByID(ctx, identity, bookmarkID)
	if err != nil {
		return nil, err
	}

	if request.Title != nil {
		b.Title = strings.TrimSpace(*request.Title)
	}
	if request.Link != nil {
		b.Link = strings.TrimSpace(*request.Link)
	}
	if request.Description != nil {
		b.Description = *request.Description
	}

	// The edited bookmark has to satisfy the same rules as a new one.
	err = s.validate.Struct(models.CreateBookmarkRequest{
		Title:       b.Title,
		Link:        b.Link,
		Description: b.Description,
	})
	if err != nil {
		return nil, validationError(err)
	}
	b.UpdatedAt = s.timestamp()

	err = s.db.UpdateBookmark(ctx, b)
	if errors.Is(err, models.ErrBookmarkNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/EditBookmark(): error while `s.db.UpdateBookmark()` calling: %w", err)
	}

	return b, nil
}

// DeleteBookmark removes one of the caller's bookmarks.
func (s *Service) DeleteBookmark(ctx context.Context, identity auth.Identity, bookmarkID string) error {
	if _, err := s.GetBookmarkByID(ctx, identity, bookmarkID); err != nil {
		return err
	}

	err := s.db.DeleteBookmark(ctx, bookmarkID, identity.UserID)
	if errors.Is(err, models.ErrBookmarkNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/DeleteBookmark(): error while `s.db.DeleteBookmark()` calling: %w", err)
	}

	return nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetInternalStats returns the number of users and bookmarks.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	bookmarks, err := s.db.GetNumberOfBookmarks(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Users:     users,
		Bookmarks: bookmarks,
	}, nil
}

// Package models holds the request/response payloads of the HTTP API and the
// errors shared by every storage backend.
package models

import "errors"

type SigninResponse struct {
	AccessToken string `json:"access_token"`
}

// EditUserRequest is a partial profile update: nil fields are left untouched.
type EditUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"firstName" validate:"omitempty,max=255"`
	LastName  *string `json:"lastName" validate:"omitempty,max=255"`
}

type CreateBookmarkRequest struct {
	Title       string `json:"title" validate:"required,max=1024"`
	Link        string `json:"link" validate:"required,url"`
	Description string `json:"description" validate:"max=4096"`
}

// EditBookmarkRequest is a partial bookmark update: nil fields are left untouched.
type EditBookmarkRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=1024"`
	Link        *string `json:"link" validate:"omitempty,url"`
	Description *string `json:"description" validate:"omitempty,max=4096"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type InternalStatsResponse struct {
	Users     int64 `json:"users"`
	Bookmarks int64 `json:"bookmarks"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeSQLite
	StorageTypeFile
	StorageTypeMemory
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrBookmarkNotFound   = errors.New("bookmark not found")
	ErrEmailAlreadyExists = errors.New("email already registered")
)

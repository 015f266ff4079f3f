// Package mockstorage provides a testify-based mock implementation
// of the storage interfaces used by the service and router packages.
// It is used for unit testing HTTP handlers by simulating storage failures.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

// StorageMock is a testify mock that implements the whole storage contract.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers, when set, replaces the generic mock handler of GetNumberOfUsers.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)

	// OnGetNumberOfBookmarks, when set, replaces the generic mock handler of GetNumberOfBookmarks.
	OnGetNumberOfBookmarks func(ctx context.Context) (int64, error)
}

// Ping mocks the storage health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) error {
	args := m.Called(ctx, usr)
	return args.Error(0)
}

func (m *StorageMock) GetUserByID(ctx context.Context, userID string) (*user.User, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) UpdateUser(ctx context.Context, usr *user.User) error {
	args := m.Called(ctx, usr)
	return args.Error(0)
}

func (m *StorageMock) CreateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *StorageMock) GetBookmarkByID(ctx context.Context, bookmarkID string) (*bookmark.Bookmark, error) {
	args := m.Called(ctx, bookmarkID)
	b, _ := args.Get(0).(*bookmark.Bookmark)
	return b, args.Error(1)
}

// GetUserBookmarks mocks the owner-filtered listing.
func (m *StorageMock) GetUserBookmarks(ctx context.Context, ownerID string) ([]bookmark.Bookmark, error) {
	args := m.Called(ctx, ownerID)
	bookmarks, _ := args.Get(0).([]bookmark.Bookmark)
	return bookmarks, args.Error(1)
}

func (m *StorageMock) UpdateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *StorageMock) DeleteBookmark(ctx context.Context, bookmarkID, ownerID string) error {
	args := m.Called(ctx, bookmarkID, ownerID)
	return args.Error(0)
}

// GetNumberOfUsers returns 0 and no error unless OnGetNumberOfUsers is set.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	return 0, nil
}

// GetNumberOfBookmarks returns 0 and no error unless OnGetNumberOfBookmarks is set.
func (m *StorageMock) GetNumberOfBookmarks(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfBookmarks != nil {
		return m.OnGetNumberOfBookmarks(ctx)
	}
	return 0, nil
}

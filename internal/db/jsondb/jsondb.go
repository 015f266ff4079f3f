// Package jsondb is an in-process storage backend that keeps users and bookmarks in
// maps and persists them to a JSON file on Close. It is safe for concurrent use.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct

	// emails maps a normalized email to its user ID. It backs the uniqueness check.
	emails map[string]string
}

// CacheStruct is the on-disk document.
type CacheStruct struct {
	Users     map[string]*user.User         `json:"users"`
	Bookmarks map[string]*bookmark.Bookmark `json:"bookmarks"`
}

// New loads fileName, creating it when missing. An empty fileName gives a purely
// in-memory store.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache: CacheStruct{
			Users:     map[string]*user.User{},
			Bookmarks: map[string]*bookmark.Bookmark{},
		},
		emails: map[string]string{},
	}

	if fileName == "" {
		return db, nil
	}

	err := parseJSONFile(fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `parseJSONFile()` calling: %w", err)
		}
		if err := writeToJSONFile(fileName, db.Cache); err != nil {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `writeToJSONFile()` calling: %w", err)
		}
	}

	if db.Cache.Users == nil {
		db.Cache.Users = map[string]*user.User{}
	}
	if db.Cache.Bookmarks == nil {
		db.Cache.Bookmarks = map[string]*bookmark.Bookmark{}
	}
	for id, usr := range db.Cache.Users {
		db.emails[usr.Email] = id
	}

	return db, nil
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	return os.WriteFile(fileName, jsonData, 0600)
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// persistedUser keeps the password hash, which user.User hides from JSON.
type persistedUser struct {
	user.User
	PasswordHash string `json:"passwordHash"`
}

// MarshalJSON stores users together with their password hashes.
func (c CacheStruct) MarshalJSON() ([]byte, error) {
	users := make(map[string]persistedUser, len(c.Users))
	for id, usr := range c.Users {
		users[id] = persistedUser{User: *usr, PasswordHash: usr.PasswordHash}
	}

	return json.Marshal(struct {
		Users     map[string]persistedUser      `json:"users"`
		Bookmarks map[string]*bookmark.Bookmark `json:"bookmarks"`
	}{users, c.Bookmarks})
}

func (c *CacheStruct) UnmarshalJSON(data []byte) error {
	var raw struct {
		Users     map[string]persistedUser      `json:"users"`
		Bookmarks map[string]*bookmark.Bookmark `json:"bookmarks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Users = make(map[string]*user.User, len(raw.Users))
	for id, stored := range raw.Users {
		usr := stored.User
		usr.PasswordHash = stored.PasswordHash
		c.Users[id] = &usr
	}
	c.Bookmarks = raw.Bookmarks

	return nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close flushes the cache to the file, if any.
func (db *JSONDB) Close() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.Cache)
}

func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, taken := db.emails[usr.Email]; taken {
		return models.ErrEmailAlreadyExists
	}

	stored := *usr
	db.Cache.Users[usr.ID] = &stored
	db.emails[usr.Email] = usr.ID

	return nil
}

func (db *JSONDB) GetUserByID(ctx context.Context, userID string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stored, ok := db.Cache.Users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	usr := *stored

	return &usr, nil
}

func (db *JSONDB) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	userID, ok := db.emails[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	usr := *db.Cache.Users[userID]

	return &usr, nil
}

func (db *JSONDB) UpdateUser(ctx context.Context, usr *user.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	current, ok := db.Cache.Users[usr.ID]
	if !ok {
		return models.ErrUserNotFound
	}
	if ownerID, taken := db.emails[usr.Email]; taken && ownerID != usr.ID {
		return models.ErrEmailAlreadyExists
	}

	delete(db.emails, current.Email)
	stored := *usr
	db.Cache.Users[usr.ID] = &stored
	db.emails[usr.Email] = usr.ID

	return nil
}

func (db *JSONDB) CreateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.Cache.Users[b.OwnerID]; !ok {
		return models.ErrUserNotFound
	}

	stored := *b
	db.Cache.Bookmarks[b.ID] = &stored

	return nil
}

func (db *JSONDB) GetBookmarkByID(ctx context.Context, bookmarkID string) (*bookmark.Bookmark, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stored, ok := db.Cache.Bookmarks[bookmarkID]
	if !ok {
		return nil, models.ErrBookmarkNotFound
	}
	b := *stored

	return &b, nil
}

// GetUserBookmarks returns the bookmarks of ownerID, oldest first.
func (db *JSONDB) GetUserBookmarks(ctx context.Context, ownerID string) ([]bookmark.Bookmark, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	owned := funk.Filter(
		funk.Values(db.Cache.Bookmarks),
		func(b *bookmark.Bookmark) bool { return b.OwnerID == ownerID },
	).([]*bookmark.Bookmark)

	result := make([]bookmark.Bookmark, 0, len(owned))
	for _, b := range owned {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// UpdateBookmark replaces the bookmark with the same ID and owner.
func (db *JSONDB) UpdateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	current, ok := db.Cache.Bookmarks[b.ID]
	if !ok || current.OwnerID != b.OwnerID {
		return models.ErrBookmarkNotFound
	}

	stored := *b
	db.Cache.Bookmarks[b.ID] = &stored

	return nil
}

// DeleteBookmark removes the bookmark with the given ID and owner.
func (db *JSONDB) DeleteBookmark(ctx context.Context, bookmarkID, ownerID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	current, ok := db.Cache.Bookmarks[bookmarkID]
	if !ok || current.OwnerID != ownerID {
		return models.ErrBookmarkNotFound
	}
	delete(db.Cache.Bookmarks, bookmarkID)

	return nil
}

func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

func (db *JSONDB) GetNumberOfBookmarks(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Bookmarks)), nil
}

// Package memorystorage is the default storage backend: a jsondb that never touches disk.
// Data is lost when the process exits.
package memorystorage

import (
	"github.com/patric-chuzhbe/bookmarkapi/internal/db/jsondb"
)

type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	db, err := jsondb.New("")
	if err != nil {
		return nil, err
	}

	return &MemoryStorage{JSONDB: db}, nil
}

package app

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookmarkapi/internal/config"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		RunAddr:               ":0",
		LogLevel:              "debug",
		DBConnectionTimeout:   time.Second,
		AccessTokenTTL:        time.Minute,
		PasswordHashAlgorithm: "bcrypt",
		BcryptCost:            4,
	}
}

func TestGetAvailableStorageType(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		fileName string
		want     int
	}{
		{name: "postgres", dsn: "host=localhost user=postgres", want: models.StorageTypePostgresql},
		{name: "sqlite scheme", dsn: "sqlite://bookmarks.db", want: models.StorageTypeSQLite},
		{name: "sqlite file uri", dsn: "file:bookmarks.db", want: models.StorageTypeSQLite},
		{name: "dsn wins over file", dsn: "sqlite://bookmarks.db", fileName: "db.json", want: models.StorageTypeSQLite},
		{name: "file", fileName: "db.json", want: models.StorageTypeFile},
		{name: "memory", want: models.StorageTypeMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DatabaseDSN = tt.dsn
			cfg.DBFileName = tt.fileName
			assert.Equal(t, tt.want, getAvailableStorageType(cfg))
		})
	}
}

func TestGetSigningKey(t *testing.T) {
	key, err := getSigningKey(base64.URLEncoding.EncodeToString([]byte("secret")))
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), key)

	first, err := getSigningKey("")
	require.NoError(t, err)
	second, err := getSigningKey("")
	require.NoError(t, err)
	assert.Len(t, first, generatedKeyLength)
	assert.NotEqual(t, first, second)

	_, err = getSigningKey("%%%")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	storages := map[string]func(cfg *config.Config, dir string){
		"memory": func(*config.Config, string) {},
		"file": func(cfg *config.Config, dir string) {
			cfg.DBFileName = filepath.Join(dir, "db.json")
		},
		"sqlite": func(cfg *config.Config, dir string) {
			cfg.DatabaseDSN = "sqlite://" + filepath.Join(dir, "bookmarks.db")
		},
	}

	for name, configure := range storages {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			configure(cfg, t.TempDir())

			handler, db, err := build(cfg)
			require.NoError(t, err)
			defer func() {
				require.NoError(t, db.Close())
			}()

			req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"hi@example.com","password":"123"}`))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusCreated, rec.Code)

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	t.Run("unknown hash algorithm", func(t *testing.T) {
		cfg := testConfig()
		cfg.PasswordHashAlgorithm = "md5"

		_, _, err := build(cfg)
		assert.Error(t, err)
	})
}

// Package app initializes and runs the bookmarks API service.
// It configures logging, storage, password hashing, tokens and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patric-chuzhbe/bookmarkapi/internal/auth"
	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/config"
	"github.com/patric-chuzhbe/bookmarkapi/internal/db/jsondb"
	"github.com/patric-chuzhbe/bookmarkapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookmarkapi/internal/db/postgresdb"
	"github.com/patric-chuzhbe/bookmarkapi/internal/db/sqlitedb"
	"github.com/patric-chuzhbe/bookmarkapi/internal/ipchecker"
	"github.com/patric-chuzhbe/bookmarkapi/internal/logger"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/password"
	"github.com/patric-chuzhbe/bookmarkapi/internal/router"
	"github.com/patric-chuzhbe/bookmarkapi/internal/service"
	"github.com/patric-chuzhbe/bookmarkapi/internal/token"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

const (
	generatedKeyLength = 32
	shutdownTimeout    = 10 * time.Second
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
	Close() error
}

// App holds the configuration, storage and HTTP handler of the service.
type App struct {
	cfg         *config.Config
	db          storage
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - building the password hasher, token service and auth guard
// - setting up the router and middleware
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.httpHandler, app.db, err = build(app.cfg)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// build assembles storage and handler from a ready configuration.
func build(cfg *config.Config) (http.Handler, storage, error) {
	db, err := getStorageByType(cfg)
	if err != nil {
		return nil, nil, err
	}

	handler, err := buildHandler(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return handler, db, nil
}

func buildHandler(cfg *config.Config, db storage) (http.Handler, error) {
	signingKey, err := getSigningKey(cfg.JWTSigningSecretKey)
	if err != nil {
		return nil, err
	}

	tokens, err := token.New(signingKey, cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/buildHandler(): error while `token.New()` calling: %w", err)
	}

	hasher, err := password.New(cfg.PasswordHashAlgorithm, cfg.BcryptCost, cfg.PasswordPepper)
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/buildHandler(): error while `password.New()` calling: %w", err)
	}

	svc, err := service.New(db, hasher, tokens)
	if err != nil {
		return nil, err
	}

	trusted, err := ipchecker.New(cfg.TrustedSubnet, ipchecker.WithTrustedProxies(cfg.TrustedProxies))
	if err != nil {
		return nil, err
	}
	if trusted.IsTrustedSubnetEmpty() {
		logger.Log.Infow("TRUSTED_SUBNET is empty, internal stats are disabled")
	}

	return router.New(svc, auth.New(db, tokens), trusted), nil
}

// getSigningKey decodes the configured key. Without one, a random key is generated,
// so tokens do not survive a restart.
func getSigningKey(encoded string) ([]byte, error) {
	if encoded != "" {
		key, err := base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("in internal/app/app.go/getSigningKey(): error while `base64.URLEncoding.DecodeString()` calling: %w", err)
		}
		return key, nil
	}

	logger.Log.Warnw("JWT_SIGNING_SECRET_KEY is not set, using a random key; tokens will not survive a restart")
	key := make([]byte, generatedKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/getSigningKey(): error while `rand.Read()` calling: %w", err)
	}

	return key, nil
}

// Run starts the HTTP(S) server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow("server running", "RunAddr", a.cfg.RunAddr, "https", a.cfg.EnableHTTPS)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if a.cfg.EnableHTTPS {
			serverErrCh <- server.ListenAndServeTLS(a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
			return
		}
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		closeErr := a.db.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return closeErr
		}
		return errors.Join(fmt.Errorf("server error: %w", err), closeErr)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		if sqlitedb.IsDSN(cfg.DatabaseDSN) {
			return models.StorageTypeSQLite
		}
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
		)

	case models.StorageTypeSQLite:
		return sqlitedb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}

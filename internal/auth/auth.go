// Package auth resolves the caller's identity from the bearer token of an HTTP
// request and guards protected handlers. The resolved identity lives in the request
// context only, for the duration of that single request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkapi/internal/logger"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

var (
	// ErrMissingToken means the Authorization header is absent or not "Bearer <token>".
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken means the token failed verification or its user no longer exists.
	ErrInvalidToken = errors.New("invalid bearer token")
)

type userKeeper interface {
	GetUserByID(ctx context.Context, userID string) (*user.User, error)
}

type tokenVerifier interface {
	Verify(tokenString string) (string, error)
}

// Identity is the authenticated caller of one request.
type Identity struct {
	UserID string

	// User is the caller's record as loaded during resolution.
	User *user.User
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext returns the identity attached by AuthenticateUser.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}

// Auth resolves identities from bearer tokens.
type Auth struct {
	db     userKeeper
	tokens tokenVerifier
}

// New creates an Auth backed by the user store and the token verifier.
func New(db userKeeper, tokens tokenVerifier) *Auth {
	return &Auth{
		db:     db,
		tokens: tokens,
	}
}

// Resolve turns an Authorization header value into an Identity.
// It fails with ErrMissingToken or ErrInvalidToken; any other error is a store failure.
func (a *Auth) Resolve(ctx context.Context, authorizationHeader string) (Identity, error) {
	tokenString, ok := bearerToken(authorizationHeader)
	if !ok {
		return Identity{}, ErrMissingToken
	}

	userID, err := a.tokens.Verify(tokenString)
	if err != nil {
		logger.Log.Debugw("access token rejected", zap.Error(err))
		return Identity{}, ErrInvalidToken
	}

	usr, err := a.db.GetUserByID(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, fmt.Errorf("in internal/auth/auth.go/Resolve(): error while `a.db.GetUserByID()` calling: %w", err)
	}

	return Identity{UserID: usr.ID, User: usr}, nil
}

// AuthenticateUser is the guard middleware. It resolves the caller before the wrapped
// handler runs; on any authentication failure the handler never runs and the client gets
// the same 401 regardless of why the token was refused.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		identity, err := a.Resolve(request.Context(), request.Header.Get("Authorization"))
		switch {
		case err == nil:
		case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
			writeUnauthorized(response)
			return
		default:
			logger.Log.Errorw("identity resolution failed", zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}

		h.ServeHTTP(response, request.WithContext(WithIdentity(request.Context(), identity)))
	}

	return http.HandlerFunc(middleware)
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", false
	}

	return tokenString, true
}

func writeUnauthorized(response http.ResponseWriter) {
	response.Header().Set("Content-Type", "application/json")
	response.Header().Set("WWW-Authenticate", `Bearer realm="bookmarkapi"`)
	response.WriteHeader(http.StatusUnauthorized)
	_, _ = response.Write([]byte(`{"error":"unauthorized"}`))
}

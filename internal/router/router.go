// Package router wires the HTTP API: routes, middleware and the translation of
// service errors into status codes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkapi/internal/auth"
	"github.com/patric-chuzhbe/bookmarkapi/internal/bookmark"
	"github.com/patric-chuzhbe/bookmarkapi/internal/gzippedhttp"
	"github.com/patric-chuzhbe/bookmarkapi/internal/logger"
	"github.com/patric-chuzhbe/bookmarkapi/internal/models"
	"github.com/patric-chuzhbe/bookmarkapi/internal/service"
	"github.com/patric-chuzhbe/bookmarkapi/internal/user"
)

type accountService interface {
	Signup(ctx context.Context, credential user.Credential) (*user.User, error)

	Signin(ctx context.Context, credential user.Credential) (string, error)

	GetMe(ctx context.Context, identity auth.Identity) (*user.User, error)

	EditUser(ctx context.Context, identity auth.Identity, request models.EditUserRequest) (*user.User, error)
}

type bookmarkService interface {
	CreateBookmark(ctx context.Context, identity auth.Identity, request models.CreateBookmarkRequest) (*bookmark.Bookmark, error)

	GetBookmarks(ctx context.Context, identity auth.Identity) ([]bookmark.Bookmark, error)

	GetBookmarkByID(ctx context.Context, identity auth.Identity, bookmarkID string) (*bookmark.Bookmark, error)

	EditBookmark(ctx context.Context, identity auth.Identity, bookmarkID string, request models.EditBookmarkRequest) (*bookmark.Bookmark, error)

	DeleteBookmark(ctx context.Context, identity auth.Identity, bookmarkID string) error
}

type maintenanceService interface {
	Ping(ctx context.Context) error

	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)
}

type appService interface {
	accountService
	bookmarkService
	maintenanceService
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
}

type subnetGuard interface {
	TrustedOnly(h http.Handler) http.Handler
}

// maxRequestBodyBytes caps a request body after gzip decompression.
const maxRequestBodyBytes = 1 << 20

var (
	errMalformedBody = errors.New("malformed JSON body")
	errBodyTooLarge  = errors.New("request body too large")
)

// Router holds the HTTP handlers of the API.
type Router struct {
	service appService
}

// New builds the chi mux. Everything under /users and /bookmarks goes through
// authMiddleware; /api/internal/stats goes through trusted.
func New(
	svc appService,
	authMiddleware authenticator,
	trusted subnetGuard,
) *chi.Mux {
	myRouter := Router{
		service: svc,
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		logger.WithLoggingHTTPMiddleware,
		middleware.Recoverer,
		gzippedhttp.DecompressRequest,
		middleware.RequestSize(maxRequestBodyBytes),
		gzippedhttp.CompressJSONResponse,
	)

	router.Get(`/ping`, myRouter.GetPing)
	router.Post(`/auth/signup`, myRouter.PostAuthsignup)
	router.Post(`/auth/signin`, myRouter.PostAuthsignin)

	router.Group(func(r chi.Router) {
		r.Use(authMiddleware.AuthenticateUser)

		r.Get(`/users/me`, myRouter.GetUsersme)
		r.Patch(`/users`, myRouter.PatchUsers)

		r.Get(`/bookmarks`, myRouter.GetBookmarks)
		r.Post(`/bookmarks`, myRouter.PostBookmarks)
		r.Get(`/bookmarks/{id}`, myRouter.GetBookmarksid)
		r.Patch(`/bookmarks/{id}`, myRouter.PatchBookmarksid)
		r.Delete(`/bookmarks/{id}`, myRouter.DeleteBookmarksid)
	})

	router.With(trusted.TrustedOnly).Get(`/api/internal/stats`, myRouter.GetApiinternalstats)

	return router
}

func writeJSON(response http.ResponseWriter, status int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugw("error while encoding response", zap.Error(err))
	}
}

func writeErrorMessage(response http.ResponseWriter, status int, message string) {
	writeJSON(response, status, models.ErrorResponse{Error: message})
}

// writeError maps a service error to its status code. Only unexpected errors are logged.
func writeError(response http.ResponseWriter, request *http.Request, err error) {
	switch {
	case errors.Is(err, errMalformedBody):
		writeErrorMessage(response, http.StatusBadRequest, errMalformedBody.Error())
	case errors.Is(err, errBodyTooLarge):
		writeErrorMessage(response, http.StatusBadRequest, errBodyTooLarge.Error())
	case errors.Is(err, service.ErrValidation):
		writeErrorMessage(response, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeErrorMessage(response, http.StatusConflict, service.ErrConflict.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeErrorMessage(response, http.StatusForbidden, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrNotFound):
		writeErrorMessage(response, http.StatusNotFound, service.ErrNotFound.Error())
	default:
		logger.Log.Errorw(
			"request failed",
			"request_id", middleware.GetReqID(request.Context()),
			"method", request.Method,
			"path", request.URL.Path,
			zap.Error(err),
		)
		writeErrorMessage(response, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
func decodeJSON(request *http.Request, dst interface{}) error {
	err := json.NewDecoder(request.Body).Decode(dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return errMalformedBody
	}

	var tooLargeErr *http.MaxBytesError
	if errors.As(err, &tooLargeErr) {
		return errBodyTooLarge
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errMalformedBody
	}

	return err
}

// identity returns the caller resolved by the auth middleware. Handlers behind the
// guard always have one; the check covers a misconfigured route.
func identity(response http.ResponseWriter, request *http.Request) (auth.Identity, bool) {
	caller, ok := auth.IdentityFromContext(request.Context())
	if !ok {
		writeErrorMessage(response, http.StatusUnauthorized, "unauthorized")
	}
	return caller, ok
}

// GetPing reports whether the storage is reachable.
func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.service.Ping(request.Context()); err != nil {
		logger.Log.Errorw("storage ping failed", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// PostAuthsignup registers a user and responds 201 with the sanitized profile.
func (router *Router) PostAuthsignup(response http.ResponseWriter, request *http.Request) {
	var credential user.Credential
	if err := decodeJSON(request, &credential); err != nil {
		writeError(response, request, err)
		return
	}

	usr, err := router.service.Signup(request.Context(), credential)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusCreated, usr.Profile())
}

// PostAuthsignin responds with {"access_token": ...} for valid credentials.
func (router *Router) PostAuthsignin(response http.ResponseWriter, request *http.Request) {
	var credential user.Credential
	if err := decodeJSON(request, &credential); err != nil {
		writeError(response, request, err)
		return
	}

	accessToken, err := router.service.Signin(request.Context(), credential)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, models.SigninResponse{AccessToken: accessToken})
}

func (router *Router) GetUsersme(response http.ResponseWriter, request *http.Request) {
	caller, ok := identity(response, request)
	if !ok {
		return
	}

	usr, err := router.service.GetMe(request.Context(), caller)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, usr.Profile())
}

func (router *Router) PatchUsers(response http.ResponseWriter, request *http.Request) {
	caller, ok := identity(response, request)
	if !ok {
		return
	}

	var edit models.EditUserRequest
	if err := decodeJSON(request, &edit); err != nil {
		writeError(response, request, err)
		return
	}

	usr, err := router.service.EditUser(request.Context(), caller, edit)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, usr.Profile())
}

// GetBookmarks always responds with a JSON array, empty when the caller has none.
func (router *Router) GetBookmarks(response http.ResponseWriter, request *http.Request) {
	caller, ok := identity(response, request)
	if !ok {
		return
	}

	bookmarks, err := router.service.GetBookmarks(request.Context(), caller)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, bookmarks)
}

func (router *Router) PostBookmarks(response http.ResponseWriter, request *http.Request) {
	caller, ok := identity(response, request)
	if !ok {
		return
	}

	var create models.CreateBookmarkRequest
	if err := decodeJSON(request, &create); err != nil {
		writeError(response, request, err)
		return
	}

	b, err := router.service.CreateBookmark(request.Context(), caller, create)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusCreated, b)
}

func (router *Router) GetBookmarksid(response http.ResponseWriter, request *http.Request) {
	caller, ok := identity(response, request)
	if !ok {
		return
	}

	b, err := router.service.GetBookmarkByID(request.Context(), caller, chi.URLParam(request, "id"))
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, b)
}

func (router *Router) PatchBookmarksid(response http.ResponseWriter, request *http.Request) {
	caller, ok := identity(response, request)
	if !ok {
		return
	}

	var edit models.EditBookmarkRequest
	if err := decodeJSON(request, &edit); err != nil {
		writeError(response, request, err)
		return
	}

	b, err := router.service.EditBookmark(request.Context(), caller, chi.URLParam(request, "id"), edit)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, b)
}

func (router *Router) DeleteBookmarksid(response http.ResponseWriter, request *http.Request) {
	caller, ok := identity(response, request)
	if !ok {
		return
	}

	if err := router.service.DeleteBookmark(request.Context(), caller, chi.URLParam(request, "id")); err != nil {
		writeError(response, request, err)
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// GetApiinternalstats responds with the number of users and bookmarks.
func (router *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := router.service.GetInternalStats(request.Context())
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}

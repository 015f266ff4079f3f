package logger

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	defer func(previous *zap.SugaredLogger) { Log = previous }(Log)

	require.NoError(t, Init("debug"))
	assert.True(t, Log.Desugar().Core().Enabled(zap.DebugLevel))

	assert.Error(t, Init("verbose"))
}

func TestWithLoggingHTTPMiddleware(t *testing.T) {
	defer func(previous *zap.SugaredLogger) { Log = previous }(Log)

	core, logs := observer.New(zap.InfoLevel)
	Log = zap.New(core).Sugar()

	handler := middleware.RequestID(WithLoggingHTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	})))

	req := httptest.NewRequest(http.MethodPost, "/bookmarks", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/bookmarks", fields["path"])
	assert.Equal(t, http.MethodPost, fields["method"])
	assert.EqualValues(t, http.StatusCreated, fields["status"])
	assert.EqualValues(t, 10, fields["size"])
	assert.NotEmpty(t, fields["request_id"])

	for _, value := range fields {
		assert.NotContains(t, fmt.Sprint(value), "secret-token")
	}
}

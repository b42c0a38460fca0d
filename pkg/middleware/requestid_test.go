package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/tally/pkg/contextkeys"
	"github.com/platinummonkey/tally/pkg/observability"
)

func TestRequestID(t *testing.T) {
	logger := observability.NopLogger()

	var seen string
	var gotLogger *observability.Logger
	handler := RequestID(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
		gotLogger = observability.GetLogger(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
		assert.Same(t, logger, gotLogger)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "upstream-123", seen)
		assert.Equal(t, "upstream-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("oversized inbound id replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})
}

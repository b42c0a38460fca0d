package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/tally/pkg/contextkeys"
	"github.com/platinummonkey/tally/pkg/observability"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds caller supplied IDs before they reach the logs
const maxRequestIDLen = 128

// RequestID assigns each request an ID (reusing a sane inbound X-Request-ID), echoes it
// in the response and stores it plus the logger in the context. observability.FromContext
// then yields a logger tagged with the request ID.
func RequestID(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > maxRequestIDLen {
				requestID = uuid.New().String()
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			ctx = observability.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

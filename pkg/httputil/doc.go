// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every error body has the same shape:
//
//	{"message": "timeframe must be between 1 and 12"}
//
// which the helpers produce:
//
//	httputil.WriteJSON(w, http.StatusOK, dashboard)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteServiceUnavailable(w, "Service temporarily unavailable")
//	httputil.WriteNotFound(w, r) // {"message":"Route not found","path":"/nope"}
//
// # Request Parsing
//
//	var records []analytics.RawRecord
//	if !httputil.ParseJSONOrError(w, r, &records) {
//		return // Error response already written
//	}
//
//	timeframe, err := httputil.ParseQueryInt(r, "timeframe", 6)
//	period := httputil.ParseQueryString(r, "period", "monthly")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.CORSMiddleware([]string{"http://localhost:5173"}),
//		httputil.MaxBytesMiddleware(10<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: request IDs and the identity gate
package httputil

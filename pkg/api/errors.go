package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/observability"
)

// retryAfterSeconds is advertised on 503s caused by an unavailable store
const retryAfterSeconds = "5"

// writeServiceError maps a service error onto the HTTP status contract:
// invalid input is 400, an unavailable or cancelled upstream is 503, anything else 500.
// fallback is the client-facing message for the 500 case; details go to the log only.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	logger := observability.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path)

	switch {
	case analytics.IsInvalidParameter(err):
		httputil.WriteBadRequest(w, invalidParamMessage(err))
	case analytics.IsRetryable(err):
		logger.Warn("upstream unavailable")
		w.Header().Set("Retry-After", retryAfterSeconds)
		httputil.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		logger.Error(fallback)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, fallback)
	}
}

// invalidParamMessage drops the sentinel prefix so clients see only the reason
func invalidParamMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, analytics.ErrInvalidParameter.Error()+": "); i >= 0 {
		return msg[i+len(analytics.ErrInvalidParameter.Error())+2:]
	}
	return msg
}

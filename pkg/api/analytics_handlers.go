package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/contextkeys"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/period"
)

// AnalyticsService is the slice of analytics.Service the handlers call
type AnalyticsService interface {
	Dashboard(ctx context.Context, accountID string, g period.Granularity, timeframe int) (*analytics.Dashboard, error)
	GenerateRollup(ctx context.Context, accountID string, g period.Granularity, ref time.Time) (*analytics.PeriodRollup, error)
	RevenueTrends(ctx context.Context, accountID string, g period.Granularity, days int) ([]analytics.PeriodRollup, error)
	IngestRecords(ctx context.Context, accountID string, records []analytics.RawRecord) (int64, error)
}

// TrendsResponse is the revenue-trends body
type TrendsResponse struct {
	Trends []analytics.PeriodRollup `json:"trends"`
}

// IngestResponse is the records ingest body
type IngestResponse struct {
	Message  string `json:"message"`
	Inserted int64  `json:"inserted"`
}

// AnalyticsHandlers provides analytics API endpoints
type AnalyticsHandlers struct {
	service AnalyticsService
}

// NewAnalyticsHandlers creates a new analytics handlers instance
func NewAnalyticsHandlers(service AnalyticsService) *AnalyticsHandlers {
	return &AnalyticsHandlers{service: service}
}

// RegisterRoutes registers analytics and data routes on a router whose requests
// already carry an account ID
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/analytics/dashboard", h.getDashboard).Methods(http.MethodGet)
	r.HandleFunc("/analytics/generate/{period}", h.generate).Methods(http.MethodPost)
	r.HandleFunc("/analytics/revenue-trends", h.getRevenueTrends).Methods(http.MethodGet)

	r.HandleFunc("/data/records", h.ingestRecords).Methods(http.MethodPost)
}

// getDashboard handles GET /api/analytics/dashboard
// Query params:
//   - period: daily, weekly or monthly - default: monthly
//   - timeframe: number of buckets of history (1-12) - default: 6
func (h *AnalyticsHandlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	g, ok := queryGranularity(w, r, period.Monthly)
	if !ok {
		return
	}
	timeframe, err := httputil.ParseQueryInt(r, "timeframe", analytics.DefaultTimeframe)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	dash, err := h.service.Dashboard(r.Context(), contextkeys.GetAccountID(r.Context()), g, timeframe)
	if err != nil {
		writeServiceError(w, r, err, "Server error fetching analytics")
		return
	}

	httputil.WriteSuccess(w, dash)
}

// generate handles POST /api/analytics/generate/{period}
// Builds (or rebuilds) the rollup for the bucket containing now.
func (h *AnalyticsHandlers) generate(w http.ResponseWriter, r *http.Request) {
	raw, ok := httputil.PathParamOrError(w, r, "period")
	if !ok {
		return
	}
	g, err := period.Parse(raw)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid period")
		return
	}

	if _, err := h.service.GenerateRollup(r.Context(), contextkeys.GetAccountID(r.Context()), g, time.Time{}); err != nil {
		writeServiceError(w, r, err, "Server error generating analytics")
		return
	}

	httputil.WriteMessage(w, fmt.Sprintf("%s analytics generated successfully", g))
}

// getRevenueTrends handles GET /api/analytics/revenue-trends
// Query params:
//   - period: daily, weekly or monthly - default: daily
//   - days: look-back window in days (1-365) - default: 30
func (h *AnalyticsHandlers) getRevenueTrends(w http.ResponseWriter, r *http.Request) {
	g, ok := queryGranularity(w, r, period.Daily)
	if !ok {
		return
	}
	days, err := httputil.ParseQueryInt(r, "days", analytics.DefaultTrendDays)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	trends, err := h.service.RevenueTrends(r.Context(), contextkeys.GetAccountID(r.Context()), g, days)
	if err != nil {
		writeServiceError(w, r, err, "Server error fetching revenue trends")
		return
	}

	httputil.WriteSuccess(w, TrendsResponse{Trends: trends})
}

// ingestRecords handles POST /api/data/records
// Body: JSON array of records. Any account_id in the body is replaced by the caller's.
func (h *AnalyticsHandlers) ingestRecords(w http.ResponseWriter, r *http.Request) {
	var records []analytics.RawRecord
	if !httputil.ParseJSONOrError(w, r, &records) {
		return
	}

	n, err := h.service.IngestRecords(r.Context(), contextkeys.GetAccountID(r.Context()), records)
	if err != nil {
		writeServiceError(w, r, err, "Server error storing records")
		return
	}

	httputil.WriteCreated(w, IngestResponse{
		Message:  fmt.Sprintf("%d records ingested", n),
		Inserted: n,
	})
}

func queryGranularity(w http.ResponseWriter, r *http.Request, def period.Granularity) (period.Granularity, bool) {
	g, err := period.Parse(httputil.ParseQueryString(r, "period", string(def)))
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid period")
		return "", false
	}
	return g, true
}

// Package api provides the HTTP REST API server for the tally analytics backend.
//
// # Overview
//
// The API is built on gorilla/mux. Everything under /api except /api/health sits behind
// the identity gate, so handlers read the caller's account from the request context
// and never from the request itself.
//
//	server := api.NewServer(api.ServerConfig{
//		Service:  analyticsService,
//		Resolver: middleware.NewStaticTokens(cfg.Auth.Tokens),
//		Logger:   logger,
//		Metrics:  metrics,
//		Gatherer: registry,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Endpoints
//
//	GET  /api/analytics/dashboard?period=monthly&timeframe=6
//	POST /api/analytics/generate/{period}
//	GET  /api/analytics/revenue-trends?period=daily&days=30
//	POST /api/data/records
//	GET  /api/health, /healthz, /readyz, /metrics
//
// # Errors
//
// All error bodies are {"message": "..."}. Invalid input maps to 400, an unavailable
// store (or a cancelled request) to 503 with Retry-After, anything else to 500.
// Unknown routes answer {"message": "Route not found", "path": "..."}.
package api

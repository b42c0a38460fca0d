// Package observability provides structured logging, Prometheus metrics, health
// probes and OpenTelemetry tracing for the tally server and rollup job.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithAccount(accountID).WithField("period", "monthly").Info("dashboard served")
//
// Request-scoped loggers carry the request ID, account ID and trace IDs:
//
//	observability.FromContext(r.Context()).WithError(err).Error("snapshot failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RollupGenerated("daily", err)
//
// A nil *Metrics records nothing, so library code can accept it optionally.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database gates readiness. Redis only degrades it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// The rollup job pushes JobMetrics through the OTLP meter provider because it
// has no scrape endpoint.
package observability

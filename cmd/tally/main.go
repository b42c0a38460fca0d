package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/tally/pkg/api"
	"github.com/platinummonkey/tally/pkg/bootstrap"
	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/middleware"
	"github.com/platinummonkey/tally/pkg/observability"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(); err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("tally exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "tally")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return err
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(registry)
	}

	backend, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		observability.ShutdownOTel(context.Background(), providers, logger)
		return err
	}
	if pg := backend.Postgres(); pg != nil {
		pg.Connections().StartHealthCheckRoutine(ctx, 30*time.Second, metrics)
	}

	health := observability.NewHealthChecker(backend.DB, backend.Redis, version)

	serverCfg := api.ServerConfig{
		Service:      backend.Service(cfg, logger, metrics),
		Resolver:     middleware.NewStaticTokens(cfg.Auth.Tokens),
		Logger:       logger,
		Metrics:      metrics,
		Health:       health,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if registry != nil {
		serverCfg.Gatherer = registry
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(serverCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthRouter(health, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return backend.Close(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	serveErr := make(chan error, 2)
	go serve(logger, httpServer, "api", serveErr)
	go serve(logger, healthServer, "health", serveErr)

	logger.WithFields(map[string]interface{}{
		"addr":        httpServer.Addr,
		"health_addr": healthServer.Addr,
		"storage":     cfg.Storage.Type,
		"cache":       cfg.Cache.Type,
		"tokens":      len(cfg.Auth.Tokens),
	}).Info("Tally analytics API started")

	// a listener failure ends the wait the same way a signal does
	waitCtx, stopWaiting := context.WithCancelCause(context.Background())
	defer stopWaiting(nil)
	go func() { stopWaiting(<-serveErr) }()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	if cause := context.Cause(waitCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func serve(logger *observability.Logger, srv *http.Server, name string, errc chan<- error) {
	defer observability.RecoverPanic(logger, name+" server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("server", name).Error("HTTP server failed")
		errc <- fmt.Errorf("%s server: %w", name, err)
	}
}

// healthRouter serves probes and metrics on the separate health port
func healthRouter(health *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	r := mux.NewRouter()
	observability.RegisterHealthRoutes(r, health)
	if registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	return r
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/bootstrap"
	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/period"
)

var (
	runOnce         = flag.Bool("run-once", false, "Run aggregation once and exit (for testing or backfilling)")
	aggregationDate = flag.String("date", "", "Date to aggregate (YYYY-MM-DD). If empty, aggregates the last closed bucket. Only used with --run-once")
	periodFlag      = flag.String("period", "all", "Granularity for --run-once: daily, weekly, monthly or all")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("tally-aggregator exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "tally-aggregator")

	granularities, err := parsePeriods(*periodFlag)
	if err != nil {
		return err
	}
	var date time.Time
	if *aggregationDate != "" {
		if date, err = parseDate(*aggregationDate); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		observability.ShutdownOTel(shutdownCtx, providers, logger)
	}()

	jobMetrics, err := observability.NewJobMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	backend, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())

	archiver, err := bootstrap.OpenArchiver(ctx, cfg, logger)
	if err != nil {
		return err
	}

	aggregator := analytics.NewAggregator(backend.Service(cfg, logger, nil), analytics.AggregatorConfig{
		Concurrency: cfg.Aggregator.Concurrency,
		Archiver:    archiver,
		JobMetrics:  jobMetrics,
		Logger:      logger,
	})

	// Run once mode (for testing or backfilling)
	if *runOnce {
		return runAll(ctx, aggregator, granularities, date, cfg.Aggregator.RunTimeout, logger)
	}

	// Scheduled mode
	c := bootstrap.NewScheduler(logger)
	schedules := []struct {
		g    period.Granularity
		spec string
	}{
		{period.Daily, cfg.Aggregator.DailySchedule},
		{period.Weekly, cfg.Aggregator.WeeklySchedule},
		{period.Monthly, cfg.Aggregator.MonthlySchedule},
	}
	for _, s := range schedules {
		g := s.g
		scheduled, err := bootstrap.AddJob(c, s.spec, func() {
			runJob(ctx, aggregator, g, time.Time{}, cfg.Aggregator.RunTimeout, logger)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s aggregation: %w", g, err)
		}
		if scheduled {
			logger.WithField("period", string(g)).WithField("schedule", s.spec).Info("Aggregation scheduled")
		} else {
			logger.WithField("period", string(g)).Info("Aggregation disabled")
		}
	}

	c.Start()
	logger.Info("Tally aggregator started")

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	// Stop the cron scheduler and wait for a running job
	<-c.Stop().Done()

	logger.Info("Aggregator stopped")
	return nil
}

// runAll runs each granularity once and joins the failures
func runAll(ctx context.Context, aggregator *analytics.Aggregator, granularities []period.Granularity, date time.Time, timeout time.Duration, logger *observability.Logger) error {
	var errs []error
	for _, g := range granularities {
		if err := runJob(ctx, aggregator, g, date, timeout, logger); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g, err))
		}
	}
	return errors.Join(errs...)
}

// runJob rolls up the bucket containing date, or the last closed bucket when date is zero
func runJob(ctx context.Context, aggregator *analytics.Aggregator, g period.Granularity, date time.Time, timeout time.Duration, logger *observability.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		result *analytics.RunResult
		err    error
	)
	if date.IsZero() {
		result, err = aggregator.RunClosed(ctx, g, time.Now().UTC())
	} else {
		result, err = aggregator.Run(ctx, g, date)
	}

	if err != nil {
		entry := logger.WithError(err).WithField("period", string(g))
		if result != nil {
			entry = entry.WithField("failed_accounts", strings.Join(result.Failed, ","))
		}
		entry.Error("Aggregation failed")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"period":       string(g),
		"bucket_start": result.BucketStart.Format("2006-01-02"),
		"rollups":      len(result.Written),
	}).Info("Aggregation completed successfully")
	return nil
}

// parsePeriods resolves the --period flag
func parsePeriods(raw string) ([]period.Granularity, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "all") {
		return append([]period.Granularity(nil), period.All...), nil
	}
	g, err := period.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --period: %w", err)
	}
	return []period.Granularity{g}, nil
}

// parseDate reads a YYYY-MM-DD flag value as a UTC midnight
func parseDate(raw string) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %w", err)
	}
	return date, nil
}

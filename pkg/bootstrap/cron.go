package bootstrap

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tally/pkg/observability"
)

// cronLogger routes robfig/cron's internal logging through observability.Logger
type cronLogger struct {
	logger *observability.Logger
}

// CronLogger adapts logger to cron.Logger
func CronLogger(logger *observability.Logger) cron.Logger {
	return cronLogger{logger: logger.WithField("component", "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

// fields pairs up cron's alternating key/value arguments
func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}

// NewScheduler creates a UTC cron scheduler that skips a run while the previous one
// is still going and recovers panics in jobs
func NewScheduler(logger *observability.Logger) *cron.Cron {
	l := CronLogger(logger)
	return cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

// AddJob registers job under spec. An empty spec leaves the job disabled and reports false.
func AddJob(c *cron.Cron, spec string, job func()) (bool, error) {
	if spec == "" {
		return false, nil
	}
	if _, err := c.AddFunc(spec, job); err != nil {
		return false, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return true, nil
}

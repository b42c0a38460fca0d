package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/tally/pkg/observability"
)

// ConnectionManager manages the PostgreSQL primary and optional read replicas.
// Writes go to the primary; record and rollup reads round-robin over replicas.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func configurePool(db *sql.DB, maxConns, minConns int, cfg ConnectionConfig) {
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
}

func openAndPing(ctx context.Context, url string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

// NewConnectionManager connects to the primary (required) and replicas (best effort)
func NewConnectionManager(ctx context.Context, config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	primary, err := openAndPing(ctx, config.PrimaryURL, config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	configurePool(primary, config.MaxConns, config.MinConns, config)

	cm := &ConnectionManager{
		primary: primary,
		config:  config,
		logger:  logger,
	}

	replicaMaxConns := config.MaxConns / 2
	if replicaMaxConns < 2 {
		replicaMaxConns = 2
	}
	for i, url := range config.ReplicaURLs {
		replica, err := openAndPing(ctx, url, config.Timeout)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping unreachable replica")
			continue
		}
		configurePool(replica, replicaMaxConns, config.MinConns, config)
		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("PostgreSQL connection manager initialized")
	return cm, nil
}

// NewConnectionManagerFromDB wraps an already-open handle as the primary, without replicas
func NewConnectionManagerFromDB(db *sql.DB) *ConnectionManager {
	return &ConnectionManager{
		primary: db,
		logger:  observability.NopLogger(),
	}
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection, or the primary when none exist
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck fails when the primary is down or every replica is down
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := append([]*sql.DB(nil), cm.replicas...)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// ConnectionStats holds statistics for all database connections
type ConnectionStats struct {
	Primary  sql.DBStats
	Replicas []sql.DBStats
}

// Stats returns connection pool statistics for primary and replicas
func (cm *ConnectionManager) Stats() ConnectionStats {
	stats := ConnectionStats{Primary: cm.primary.Stats()}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	stats.Replicas = make([]sql.DBStats, len(cm.replicas))
	for i, replica := range cm.replicas {
		stats.Replicas[i] = replica.Stats()
	}
	return stats
}

// RemoveUnhealthyReplicas closes and drops replicas that fail a ping
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(cm.replicas))
	removed := 0
	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
			continue
		}
		healthy = append(healthy, replica)
	}
	cm.replicas = healthy
	return removed
}

// StartHealthCheckRoutine prunes unhealthy replicas every interval until ctx is done.
// When metrics is non-nil the primary pool stats are published on each tick.
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration, metrics *observability.Metrics) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer observability.RecoverPanic(cm.logger, "replica health check routine")

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				removed := cm.RemoveUnhealthyReplicas(checkCtx)
				cancel()
				if removed > 0 {
					cm.logger.WithField("removed", removed).Warn("Removed unhealthy replicas")
				}
				stats := cm.primary.Stats()
				metrics.DBStats(stats.OpenConnections, stats.InUse)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLs string) []string {
	if replicaURLs == "" {
		return nil
	}

	parts := strings.Split(replicaURLs, ",")
	result := make([]string, 0, len(parts))
	for _, url := range parts {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/period"
	"github.com/platinummonkey/tally/pkg/storage"
)

var tracer = otel.Tracer("github.com/platinummonkey/tally/storage/postgres")

// Store implements storage.Store on PostgreSQL
type Store struct {
	conn   *ConnectionManager
	logger *observability.Logger
}

// NewStore connects using cfg and applies the schema when cfg.AutoMigrate is set
func NewStore(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	conn, err := NewConnectionManager(ctx, ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: cfg.PostgresReplicaURLs,
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: cfg.PostgresMaxLifetime,
		MaxIdleTime: cfg.PostgresMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, conn.Primary()); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &Store{conn: conn, logger: logger}, nil
}

// NewStoreFromDB builds a store on an open handle; used by tests and tooling
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{conn: NewConnectionManagerFromDB(db), logger: observability.NopLogger()}
}

// Connections exposes the connection manager for health checks and pool metrics
func (s *Store) Connections() *ConnectionManager {
	return s.conn
}

func startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+op, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const recordColumns = `id, account_id, occurred_at, revenue, price, quantity, customer_id, product_id, category`

// FindRecords returns the account's records with occurred_at in [r.Start, r.End)
func (s *Store) FindRecords(ctx context.Context, accountID string, r analytics.TimeRange) (records []analytics.RawRecord, err error) {
	ctx, span := startSpan(ctx, "find_records")
	defer func() { finish(span, err) }()

	query := `
		SELECT ` + recordColumns + `
		FROM raw_records
		WHERE account_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at, id
	`
	rows, err := s.conn.Replica().QueryContext(ctx, query, accountID, r.Start.UTC(), r.End.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec        analytics.RawRecord
			occurredAt sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.AccountID, &occurredAt, &rec.Revenue, &rec.Price,
			&rec.Quantity, &rec.CustomerID, &rec.ProductID, &rec.Category); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if occurredAt.Valid {
			rec.Date = occurredAt.Time.UTC()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// AggregateByCategory ranks all-time categories by revenue, empty category folded into Uncategorized
func (s *Store) AggregateByCategory(ctx context.Context, accountID string, limit int) (totals []analytics.CategoryTotal, err error) {
	ctx, span := startSpan(ctx, "aggregate_categories")
	defer func() { finish(span, err) }()

	query := `
		SELECT COALESCE(NULLIF(category, ''), $2) AS category, SUM(revenue) AS revenue, COUNT(*) AS orders
		FROM raw_records
		WHERE account_id = $1
		GROUP BY 1
		ORDER BY revenue DESC, category ASC
		LIMIT $3
	`
	rows, err := s.conn.Replica().QueryContext(ctx, query, accountID, analytics.UncategorizedLabel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer rows.Close()

	totals = []analytics.CategoryTotal{}
	for rows.Next() {
		var t analytics.CategoryTotal
		if err := rows.Scan(&t.Category, &t.Revenue, &t.Orders); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return totals, nil
}

// InsertRecords writes all records in one transaction
func (s *Store) InsertRecords(ctx context.Context, records []analytics.RawRecord) (n int64, err error) {
	ctx, span := startSpan(ctx, "insert_records")
	defer func() { finish(span, err) }()

	tx, err := s.conn.Primary().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_records (account_id, occurred_at, revenue, price, quantity, customer_id, product_id, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		occurredAt := sql.NullTime{Time: rec.Date.UTC(), Valid: rec.HasDate()}
		if _, err := stmt.ExecContext(ctx, rec.AccountID, occurredAt, rec.Revenue, rec.Price,
			rec.Quantity, rec.CustomerID, rec.ProductID, rec.Category); err != nil {
			return 0, fmt.Errorf("failed to insert record: %w", err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	return n, nil
}

// ListAccounts returns every account that owns records
func (s *Store) ListAccounts(ctx context.Context) (accounts []string, err error) {
	ctx, span := startSpan(ctx, "list_accounts")
	defer func() { finish(span, err) }()

	rows, err := s.conn.Replica().QueryContext(ctx, `SELECT DISTINCT account_id FROM raw_records ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, id)
	}
	return accounts, rows.Err()
}

const rollupColumns = `account_id, period, bucket_start,
	total_revenue, total_orders, unique_customers, avg_order_value,
	new_customers, returning_customers, conversion_rate, churn_rate,
	revenue_growth, customer_growth, order_growth,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRollup(row scanner) (*analytics.PeriodRollup, error) {
	var (
		r analytics.PeriodRollup
		p string
	)
	err := row.Scan(&r.AccountID, &p, &r.BucketStart,
		&r.Metrics.TotalRevenue, &r.Metrics.TotalOrders, &r.Metrics.UniqueCustomers, &r.Metrics.AvgOrderValue,
		&r.Metrics.NewCustomers, &r.Metrics.ReturningCustomers, &r.Metrics.ConversionRate, &r.Metrics.ChurnRate,
		&r.Growth.RevenueGrowth, &r.Growth.CustomerGrowth, &r.Growth.OrderGrowth,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Period = period.Granularity(p)
	r.BucketStart = r.BucketStart.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// UpsertRollup inserts the rollup or overwrites the existing row for its key, keeping created_at
func (s *Store) UpsertRollup(ctx context.Context, rollup *analytics.PeriodRollup) (stored *analytics.PeriodRollup, err error) {
	ctx, span := startSpan(ctx, "upsert_rollup")
	defer func() { finish(span, err) }()

	query := `
		INSERT INTO period_rollups (
			account_id, period, bucket_start,
			total_revenue, total_orders, unique_customers, avg_order_value,
			new_customers, returning_customers, conversion_rate, churn_rate,
			revenue_growth, customer_growth, order_growth
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (account_id, period, bucket_start) DO UPDATE SET
			total_revenue = EXCLUDED.total_revenue,
			total_orders = EXCLUDED.total_orders,
			unique_customers = EXCLUDED.unique_customers,
			avg_order_value = EXCLUDED.avg_order_value,
			new_customers = EXCLUDED.new_customers,
			returning_customers = EXCLUDED.returning_customers,
			conversion_rate = EXCLUDED.conversion_rate,
			churn_rate = EXCLUDED.churn_rate,
			revenue_growth = EXCLUDED.revenue_growth,
			customer_growth = EXCLUDED.customer_growth,
			order_growth = EXCLUDED.order_growth,
			updated_at = NOW()
		RETURNING ` + rollupColumns

	m, g := rollup.Metrics, rollup.Growth
	row := s.conn.Primary().QueryRowContext(ctx, query,
		rollup.AccountID, string(rollup.Period), rollup.BucketStart.UTC(),
		m.TotalRevenue, m.TotalOrders, m.UniqueCustomers, m.AvgOrderValue,
		m.NewCustomers, m.ReturningCustomers, m.ConversionRate, m.ChurnRate,
		g.RevenueGrowth, g.CustomerGrowth, g.OrderGrowth,
	)
	stored, err = scanRollup(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rollup: %w", err)
	}
	return stored, nil
}

// FindRollup returns nil, nil when no rollup exists for key
func (s *Store) FindRollup(ctx context.Context, key analytics.RollupKey) (rollup *analytics.PeriodRollup, err error) {
	ctx, span := startSpan(ctx, "find_rollup")
	defer func() { finish(span, err) }()

	query := `
		SELECT ` + rollupColumns + `
		FROM period_rollups
		WHERE account_id = $1 AND period = $2 AND bucket_start = $3
	`
	rollup, err = scanRollup(s.conn.Replica().QueryRowContext(ctx, query,
		key.AccountID, string(key.Period), key.BucketStart.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rollup: %w", err)
	}
	return rollup, nil
}

// FindRollupsInRange returns rollups with bucket_start in [r.Start, r.End), ascending
func (s *Store) FindRollupsInRange(ctx context.Context, accountID string, g period.Granularity, r analytics.TimeRange) (rollups []analytics.PeriodRollup, err error) {
	ctx, span := startSpan(ctx, "find_rollups")
	defer func() { finish(span, err) }()

	query := `
		SELECT ` + rollupColumns + `
		FROM period_rollups
		WHERE account_id = $1 AND period = $2 AND bucket_start >= $3 AND bucket_start < $4
		ORDER BY bucket_start ASC
	`
	rows, err := s.conn.Replica().QueryContext(ctx, query, accountID, string(g), r.Start.UTC(), r.End.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rollup, err := scanRollup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollup: %w", err)
		}
		rollups = append(rollups, *rollup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rollups: %w", err)
	}
	return rollups, nil
}

// HealthCheck pings the primary and replicas
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.conn.HealthCheck(ctx)
}

// Close closes every connection
func (s *Store) Close() error {
	return s.conn.Close()
}

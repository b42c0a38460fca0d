package analytics

import (
	"time"

	"github.com/platinummonkey/tally/pkg/period"
)

// RawRecord is one ingested business event (an order line)
type RawRecord struct {
	ID         int64     `json:"id,omitempty"`
	AccountID  string    `json:"account_id"`
	Date       time.Time `json:"date,omitempty"`
	Revenue    float64   `json:"revenue,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	ProductID  string    `json:"product_id,omitempty"`
	Category   string    `json:"category,omitempty"`
}

// HasDate reports whether the record carries an event timestamp
func (r RawRecord) HasDate() bool {
	return !r.Date.IsZero()
}

// Units returns the record quantity, treating an absent quantity as a single unit
func (r RawRecord) Units() int {
	if r.Quantity <= 0 {
		return 1
	}
	return r.Quantity
}

// OrderValue is price times units
func (r RawRecord) OrderValue() float64 {
	return r.Price * float64(r.Units())
}

// TimeRange is a half-open [Start, End) interval
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// Metrics is the persisted summary of one bucket.
// ConversionRate and ChurnRate stay 0 until longitudinal customer history exists.
type Metrics struct {
	TotalRevenue       float64 `json:"total_revenue"`
	TotalOrders        int64   `json:"total_orders"`
	UniqueCustomers    int64   `json:"unique_customers"`
	AvgOrderValue      float64 `json:"avg_order_value"`
	NewCustomers       int64   `json:"new_customers"`
	ReturningCustomers int64   `json:"returning_customers"`
	ConversionRate     float64 `json:"conversion_rate"`
	ChurnRate          float64 `json:"churn_rate"`
}

// Growth holds bucket-over-bucket percentage changes
type Growth struct {
	RevenueGrowth  float64 `json:"revenue_growth"`
	CustomerGrowth float64 `json:"customer_growth"`
	OrderGrowth    float64 `json:"order_growth"`
}

// RollupKey identifies exactly one stored rollup
type RollupKey struct {
	AccountID   string             `json:"account_id"`
	Period      period.Granularity `json:"period"`
	BucketStart time.Time          `json:"bucket_start"`
}

// PeriodRollup is a durable, pre-aggregated bucket
type PeriodRollup struct {
	RollupKey
	Metrics   Metrics   `json:"metrics"`
	Growth    Growth    `json:"growth"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductStats accumulates one product's activity in a window
type ProductStats struct {
	ProductID string  `json:"product_id"`
	Revenue   float64 `json:"revenue"`
	Orders    int64   `json:"orders"`
	Quantity  int64   `json:"quantity"`
}

// CategoryStats accumulates one category's activity in a window
type CategoryStats struct {
	Name              string  `json:"name"`
	Revenue           float64 `json:"revenue"`
	Orders            int64   `json:"orders"`
	AvgOrderValue     float64 `json:"avg_order_value"`
	PercentageOfTotal float64 `json:"percentage_of_total"`
}

// YearStats is the per-calendar-year comparison block
type YearStats struct {
	Revenue    float64 `json:"revenue"`
	Orders     int64   `json:"orders"`
	Customers  int64   `json:"customers"`
	Products   int64   `json:"products"`
	Categories int64   `json:"categories"`
}

// Retention splits a window's customers by whether they were seen in the comparison window
type Retention struct {
	Total     int64   `json:"total"`
	Returning int64   `json:"returning"`
	New       int64   `json:"new"`
	Rate      float64 `json:"rate"`
}

// Performance holds per-window ratios
type Performance struct {
	ConversionRate     float64 `json:"conversion_rate"`
	AvgOrderValue      float64 `json:"avg_order_value"`
	RevenuePerCustomer float64 `json:"revenue_per_customer"`
	OrderFrequency     float64 `json:"order_frequency"`
	ChurnRate          float64 `json:"churn_rate"`
}

// SnapshotGrowth compares a window with its comparison window
type SnapshotGrowth struct {
	Revenue       float64 `json:"revenue"`
	Customers     float64 `json:"customers"`
	Orders        float64 `json:"orders"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// MetricsSnapshot is the live, non-persisted view of one window
type MetricsSnapshot struct {
	TotalRevenue      float64              `json:"total_revenue"`
	TotalOrders       int64                `json:"total_orders"`
	UniqueCustomers   int64                `json:"unique_customers"`
	AvgOrderValue     float64              `json:"avg_order_value"`
	TopProducts       []ProductStats       `json:"top_products"`
	TopCategories     []CategoryStats      `json:"top_categories"`
	TimeDistribution  map[string]float64   `json:"time_distribution"`
	YearlyComparison  map[string]YearStats `json:"yearly_comparison"`
	CustomerRetention Retention            `json:"customer_retention"`
	Performance       Performance          `json:"performance"`
	Growth            SnapshotGrowth       `json:"growth"`
}

// HistoricalPoint is one bucket of the dashboard chart series
type HistoricalPoint struct {
	Date          time.Time `json:"date"`
	Revenue       float64   `json:"revenue"`
	Orders        int64     `json:"orders"`
	Customers     int64     `json:"customers"`
	AvgOrderValue float64   `json:"avg_order_value"`
}

// CategoryTotal is a pre-grouped all-time category ranking row
type CategoryTotal struct {
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
	Orders   int64   `json:"orders"`
}

// Dashboard is the combined dashboard payload
type Dashboard struct {
	CurrentMetrics *MetricsSnapshot   `json:"current_metrics"`
	HistoricalData []HistoricalPoint  `json:"historical_data"`
	GrowthRates    Growth             `json:"growth_rates"`
	TopCategories  []CategoryTotal    `json:"top_categories"`
	Period         period.Granularity `json:"period"`
	Timeframe      int                `json:"timeframe"`
}

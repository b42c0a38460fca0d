package analytics

import (
	"sort"

	"github.com/platinummonkey/tally/pkg/period"
)

// SummarizeRollup computes the persisted metrics for one bucket. Retention follows the same
// rule as ComputeSnapshot: a customer is returning if they appear in the previous bucket.
func SummarizeRollup(records, previous []RawRecord) Metrics {
	prev := totalsOf(previous)
	cur := totalsOf(records)

	m := Metrics{
		TotalRevenue:    cur.revenue,
		TotalOrders:     cur.orders,
		UniqueCustomers: int64(len(cur.customers)),
		AvgOrderValue:   cur.avgOrderValue(),
	}
	for id := range cur.customers {
		if _, ok := prev.customers[id]; ok {
			m.ReturningCustomers++
		} else {
			m.NewCustomers++
		}
	}
	return m
}

// RollupGrowth compares a bucket's metrics against the previous bucket's rollup.
// A missing previous rollup yields zero growth.
func RollupGrowth(cur Metrics, prev *PeriodRollup) Growth {
	if prev == nil {
		return Growth{}
	}
	return Growth{
		RevenueGrowth:  GrowthRate(cur.TotalRevenue, prev.Metrics.TotalRevenue),
		CustomerGrowth: GrowthRate(float64(cur.UniqueCustomers), float64(prev.Metrics.UniqueCustomers)),
		OrderGrowth:    GrowthRate(float64(cur.TotalOrders), float64(prev.Metrics.TotalOrders)),
	}
}

type historyBucket struct {
	point      HistoricalPoint
	customers  map[string]struct{}
	orderValue float64
}

// GroupHistorical buckets dated records by granularity and returns the series in ascending order.
// Average order value in the series is based on price times quantity.
func GroupHistorical(g period.Granularity, records []RawRecord) []HistoricalPoint {
	buckets := make(map[int64]*historyBucket)
	for _, r := range records {
		if !r.HasDate() {
			continue
		}
		start := period.BucketStart(g, r.Date)
		b, ok := buckets[start.Unix()]
		if !ok {
			b = &historyBucket{
				point:     HistoricalPoint{Date: start},
				customers: make(map[string]struct{}),
			}
			buckets[start.Unix()] = b
		}
		b.point.Revenue += r.Revenue
		b.point.Orders++
		if r.CustomerID != "" {
			b.customers[r.CustomerID] = struct{}{}
		}
		b.orderValue += r.OrderValue()
	}

	points := make([]HistoricalPoint, 0, len(buckets))
	for _, b := range buckets {
		b.point.Customers = int64(len(b.customers))
		b.point.AvgOrderValue = ratio(b.orderValue, float64(b.point.Orders))
		points = append(points, b.point)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points
}

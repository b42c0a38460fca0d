package analytics

import (
	"math"
	"sort"
	"strconv"
)

// windowTotals are the aggregate figures growth is computed from
type windowTotals struct {
	revenue   float64
	orders    int64
	customers map[string]struct{}
}

func totalsOf(records []RawRecord) windowTotals {
	t := windowTotals{customers: make(map[string]struct{})}
	for _, r := range records {
		t.revenue += r.Revenue
		t.orders++
		if r.CustomerID != "" {
			t.customers[r.CustomerID] = struct{}{}
		}
	}
	return t
}

func (t windowTotals) avgOrderValue() float64 {
	return ratio(t.revenue, float64(t.orders))
}

type yearAccumulator struct {
	revenue    float64
	orders     int64
	customers  map[string]struct{}
	products   map[string]struct{}
	categories map[string]struct{}
}

func newYearAccumulator() *yearAccumulator {
	return &yearAccumulator{
		customers:  make(map[string]struct{}),
		products:   make(map[string]struct{}),
		categories: make(map[string]struct{}),
	}
}

// ComputeSnapshot aggregates records into a live snapshot, using previous as the comparison window
// for retention and growth. Undated records count toward totals but not toward the time series.
func ComputeSnapshot(records, previous []RawRecord) *MetricsSnapshot {
	prev := totalsOf(previous)
	cur := windowTotals{customers: make(map[string]struct{})}

	var retention Retention
	products := make(map[string]*ProductStats)
	var productOrder []string
	categories := make(map[string]*CategoryStats)
	var categoryOrder []string
	distribution := make(map[string]float64)
	years := make(map[string]*yearAccumulator)

	for _, r := range records {
		cur.revenue += r.Revenue
		cur.orders++

		// retention classifies every record, so repeat buyers count once per order
		if r.CustomerID != "" {
			cur.customers[r.CustomerID] = struct{}{}
			if _, ok := prev.customers[r.CustomerID]; ok {
				retention.Returning++
			} else {
				retention.New++
			}
		}

		if r.ProductID != "" {
			p, ok := products[r.ProductID]
			if !ok {
				p = &ProductStats{ProductID: r.ProductID}
				products[r.ProductID] = p
				productOrder = append(productOrder, r.ProductID)
			}
			p.Revenue += r.Revenue
			p.Orders++
			p.Quantity += int64(r.Units())
		}

		if r.Category != "" {
			c, ok := categories[r.Category]
			if !ok {
				c = &CategoryStats{Name: r.Category}
				categories[r.Category] = c
				categoryOrder = append(categoryOrder, r.Category)
			}
			c.Revenue += r.Revenue
			c.Orders++
		}

		if !r.HasDate() {
			continue
		}
		day := r.Date.UTC()
		distribution[day.Format("2006-01-02")] += r.Revenue

		yearKey := strconv.Itoa(day.Year())
		y, ok := years[yearKey]
		if !ok {
			y = newYearAccumulator()
			years[yearKey] = y
		}
		y.revenue += r.Revenue
		y.orders++
		if r.CustomerID != "" {
			y.customers[r.CustomerID] = struct{}{}
		}
		if r.ProductID != "" {
			y.products[r.ProductID] = struct{}{}
		}
		if r.Category != "" {
			y.categories[r.Category] = struct{}{}
		}
	}

	uniqueCustomers := int64(len(cur.customers))
	retention.Total = retention.Returning + retention.New
	retention.Rate = ratio(float64(retention.Returning), float64(retention.Total)) * 100

	snap := &MetricsSnapshot{
		TotalRevenue:      cur.revenue,
		TotalOrders:       cur.orders,
		UniqueCustomers:   uniqueCustomers,
		AvgOrderValue:     cur.avgOrderValue(),
		TopProducts:       rankProducts(products, productOrder),
		TopCategories:     rankCategories(categories, categoryOrder, cur.revenue),
		TimeDistribution:  distribution,
		YearlyComparison:  make(map[string]YearStats, len(years)),
		CustomerRetention: retention,
		Performance: Performance{
			AvgOrderValue:      cur.avgOrderValue(),
			RevenuePerCustomer: ratio(cur.revenue, float64(uniqueCustomers)),
			ConversionRate:     ratio(float64(cur.orders), float64(uniqueCustomers)) * 100,
			OrderFrequency:     ratio(float64(cur.orders), float64(uniqueCustomers)),
		},
		Growth: SnapshotGrowth{
			Revenue:       GrowthRate(cur.revenue, prev.revenue),
			Customers:     GrowthRate(float64(uniqueCustomers), float64(len(prev.customers))),
			Orders:        GrowthRate(float64(cur.orders), float64(prev.orders)),
			AvgOrderValue: GrowthRate(cur.avgOrderValue(), prev.avgOrderValue()),
		},
	}

	for key, y := range years {
		snap.YearlyComparison[key] = YearStats{
			Revenue:    y.revenue,
			Orders:     y.orders,
			Customers:  int64(len(y.customers)),
			Products:   int64(len(y.products)),
			Categories: int64(len(y.categories)),
		}
	}

	return snap
}

// rankProducts orders products by revenue, keeping first-seen order between equal revenues
func rankProducts(products map[string]*ProductStats, order []string) []ProductStats {
	ranked := make([]ProductStats, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, *products[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Revenue > ranked[j].Revenue
	})
	return ranked
}

// rankCategories finalizes per-category ratios and orders categories by revenue (stable)
func rankCategories(categories map[string]*CategoryStats, order []string, totalRevenue float64) []CategoryStats {
	ranked := make([]CategoryStats, 0, len(order))
	for _, name := range order {
		c := *categories[name]
		c.AvgOrderValue = ratio(c.Revenue, float64(c.Orders))
		c.PercentageOfTotal = ratio(c.Revenue, totalRevenue) * 100
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Revenue > ranked[j].Revenue
	})
	return ranked
}

// TopN truncates a ranking to at most n entries. n <= 0 keeps everything.
func TopN[T any](ranked []T, n int) []T {
	if n <= 0 || len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// GrowthRate returns the percentage change from prev to cur, rounded to one decimal.
// A zero baseline yields 100 for positive growth and 0 otherwise.
func GrowthRate(cur, prev float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return roundTo((cur-prev)/prev*100, 1)
}

// ratio divides, mapping a zero denominator (and any non-finite result) to 0
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func TestGrowthRate(t *testing.T) {
	tests := []struct {
		name      string
		cur, prev float64
		want      float64
	}{
		{"increase", 150, 100, 50},
		{"decrease", 50, 100, -50},
		{"flat", 100, 100, 0},
		{"zero baseline positive", 5, 0, 100},
		{"zero baseline zero", 0, 0, 0},
		{"zero baseline negative", -5, 0, 0},
		{"rounds to one decimal", 1, 3, -66.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GrowthRate(tt.cur, tt.prev))
		})
	}
}

func TestComputeSnapshot_Empty(t *testing.T) {
	snap := ComputeSnapshot(nil, nil)

	assert.Zero(t, snap.TotalRevenue)
	assert.Zero(t, snap.TotalOrders)
	assert.Zero(t, snap.AvgOrderValue)
	assert.Empty(t, snap.TopProducts)
	assert.Empty(t, snap.TopCategories)
	assert.NotNil(t, snap.TimeDistribution)
	assert.NotNil(t, snap.YearlyComparison)
	assert.Equal(t, Retention{}, snap.CustomerRetention)
	assert.Equal(t, Performance{}, snap.Performance)
	assert.Equal(t, SnapshotGrowth{}, snap.Growth)
}

func TestComputeSnapshot_Totals(t *testing.T) {
	records := []RawRecord{
		{Date: at(2024, 3, 1), Revenue: 100, CustomerID: "A", ProductID: "p1", Category: "food", Quantity: 2},
		{Date: at(2024, 3, 2), Revenue: 50, CustomerID: "B", ProductID: "p2", Category: "tech"},
		{Date: at(2024, 3, 2), Revenue: 100, CustomerID: "A", ProductID: "p3", Category: "toys"},
		{Revenue: 20, CustomerID: "C", ProductID: "p1", Category: "food"},
	}
	previous := []RawRecord{
		{Date: at(2024, 2, 10), Revenue: 60, CustomerID: "A"},
		{Date: at(2024, 2, 11), Revenue: 40, CustomerID: "C"},
	}

	snap := ComputeSnapshot(records, previous)

	assert.Equal(t, float64(270), snap.TotalRevenue)
	assert.Equal(t, int64(4), snap.TotalOrders)
	assert.Equal(t, int64(3), snap.UniqueCustomers)
	assert.Equal(t, 67.5, snap.AvgOrderValue)

	// undated records count toward totals only
	assert.Equal(t, map[string]float64{"2024-03-01": 100, "2024-03-02": 150}, snap.TimeDistribution)
	require.Contains(t, snap.YearlyComparison, "2024")
	assert.Equal(t, YearStats{Revenue: 250, Orders: 3, Customers: 2, Products: 3, Categories: 3}, snap.YearlyComparison["2024"])

	require.Len(t, snap.TopProducts, 3)
	assert.Equal(t, ProductStats{ProductID: "p1", Revenue: 120, Orders: 2, Quantity: 3}, snap.TopProducts[0])

	assert.Equal(t, int64(4), snap.CustomerRetention.Total)
	assert.Equal(t, int64(3), snap.CustomerRetention.Returning)
	assert.Equal(t, int64(1), snap.CustomerRetention.New)
	assert.Equal(t, 75.0, snap.CustomerRetention.Rate)

	assert.Equal(t, 170.0, snap.Growth.Revenue)
	assert.Equal(t, 100.0, snap.Growth.Orders)
	assert.Equal(t, 50.0, snap.Growth.Customers)
	assert.Equal(t, 35.0, snap.Growth.AvgOrderValue)

	assert.Equal(t, 67.5, snap.Performance.AvgOrderValue)
	assert.Equal(t, 90.0, snap.Performance.RevenuePerCustomer)
	assert.InDelta(t, 133.33, snap.Performance.ConversionRate, 0.01)
	assert.InDelta(t, 1.333, snap.Performance.OrderFrequency, 0.001)
	assert.Zero(t, snap.Performance.ChurnRate)
}

func TestComputeSnapshot_Retention(t *testing.T) {
	previous := []RawRecord{
		{Date: at(2024, 2, 1), CustomerID: "A"},
		{Date: at(2024, 2, 1), CustomerID: "B"},
	}

	tests := []struct {
		name      string
		customers []string
		want      Retention
	}{
		{"each record is classified", []string{"A", "A", "A", "C"}, Retention{Returning: 3, New: 1, Total: 4, Rate: 75}},
		{"repeat new customer", []string{"A", "C", "C"}, Retention{Returning: 1, New: 2, Total: 3, Rate: 33.33333333333333}},
		{"anonymous records skipped", []string{"", "B", ""}, Retention{Returning: 1, Total: 1, Rate: 100}},
		{"no returning", []string{"D"}, Retention{New: 1, Total: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]RawRecord, len(tt.customers))
			for i, id := range tt.customers {
				records[i] = RawRecord{Date: at(2024, 3, 1), Revenue: 10, CustomerID: id}
			}

			r := ComputeSnapshot(records, previous).CustomerRetention

			assert.Equal(t, tt.want.Returning, r.Returning)
			assert.Equal(t, tt.want.New, r.New)
			assert.Equal(t, tt.want.Total, r.Total)
			assert.InDelta(t, tt.want.Rate, r.Rate, 0.0001)
		})
	}
}

func invariantFixtures() map[string][]RawRecord {
	repeat := make([]RawRecord, 0, 50)
	for i := 0; i < 50; i++ {
		repeat = append(repeat, RawRecord{Date: at(2024, 3, 1+i%28), Revenue: float64(i%7) * 3.1, CustomerID: []string{"A", "B", "C"}[i%3]})
	}
	return map[string][]RawRecord{
		"empty":            nil,
		"single":           {{Date: at(2024, 3, 1), Revenue: 42.5, CustomerID: "A"}},
		"repeat customers": repeat,
		"anonymous orders": {
			{Date: at(2024, 3, 1), Revenue: 10},
			{Date: at(2024, 3, 2), Revenue: 20},
			{Date: at(2024, 3, 3), Revenue: 30, CustomerID: "A"},
		},
		"zero revenue":     {{Revenue: 0, CustomerID: "A"}, {Revenue: 0, CustomerID: "B"}},
		"refund":           {{Date: at(2024, 3, 1), Revenue: 100, CustomerID: "A"}, {Date: at(2024, 3, 2), Revenue: -40, CustomerID: "A"}},
		"fractional":       {{Revenue: 0.1, CustomerID: "A"}, {Revenue: 0.2, CustomerID: "B"}, {Revenue: 0.3, CustomerID: "C"}},
		"undated mixed in": {{Revenue: 5, CustomerID: "A"}, {Date: at(2024, 3, 9), Revenue: 7, CustomerID: "B"}},
	}
}

func TestComputeSnapshot_UniqueCustomersNeverExceedOrders(t *testing.T) {
	for name, records := range invariantFixtures() {
		t.Run(name, func(t *testing.T) {
			snap := ComputeSnapshot(records, records)
			assert.LessOrEqual(t, snap.UniqueCustomers, snap.TotalOrders)

			m := SummarizeRollup(records, nil)
			assert.LessOrEqual(t, m.UniqueCustomers, m.TotalOrders)
		})
	}
}

func TestComputeSnapshot_AvgOrderValueReconstructsRevenue(t *testing.T) {
	for name, records := range invariantFixtures() {
		t.Run(name, func(t *testing.T) {
			snap := ComputeSnapshot(records, nil)
			assert.InDelta(t, snap.TotalRevenue, snap.AvgOrderValue*float64(snap.TotalOrders), 1e-9)

			m := SummarizeRollup(records, nil)
			assert.InDelta(t, m.TotalRevenue, m.AvgOrderValue*float64(m.TotalOrders), 1e-9)
		})
	}
}

func TestComputeSnapshot_CategoryTieKeepsFirstSeen(t *testing.T) {
	records := []RawRecord{
		{Date: at(2024, 3, 1), Revenue: 100, Category: "food"},
		{Date: at(2024, 3, 1), Revenue: 50, Category: "tech"},
		{Date: at(2024, 3, 1), Revenue: 100, Category: "toys"},
		{Date: at(2024, 3, 1), Revenue: 0, Category: ""},
	}

	cats := ComputeSnapshot(records, nil).TopCategories

	require.Len(t, cats, 3)
	assert.Equal(t, []string{"food", "toys", "tech"}, []string{cats[0].Name, cats[1].Name, cats[2].Name})
	assert.Equal(t, float64(40), cats[0].PercentageOfTotal)
	assert.Equal(t, float64(20), cats[2].PercentageOfTotal)
	assert.Equal(t, float64(100), cats[0].AvgOrderValue)
}

func TestComputeSnapshot_ZeroRevenueRatios(t *testing.T) {
	records := []RawRecord{
		{Date: at(2024, 3, 1), Category: "food"},
	}

	snap := ComputeSnapshot(records, nil)

	require.Len(t, snap.TopCategories, 1)
	assert.Zero(t, snap.TopCategories[0].PercentageOfTotal)
	assert.Zero(t, snap.Performance.RevenuePerCustomer)
	assert.Zero(t, snap.Performance.ConversionRate)
}

func TestTopN(t *testing.T) {
	in := []int{5, 4, 3, 2, 1}

	assert.Equal(t, []int{5, 4}, TopN(in, 2))
	assert.Equal(t, in, TopN(in, 10))
	assert.Equal(t, in, TopN(in, 0))
	assert.Empty(t, TopN([]int{}, 3))
}

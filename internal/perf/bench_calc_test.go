package perf

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
)

var benchNow = time.Date(2024, time.June, 20, 10, 0, 0, 0, time.UTC)

func benchOrders(n int) []intelligence.Order {
	orders := make([]intelligence.Order, n)
	for i := range orders {
		at := benchNow.AddDate(0, 0, -7*(n-i))
		orders[i] = intelligence.Order{
			ID:          int64(i + 1),
			CustomerID:  10,
			TenantID:    1,
			Status:      intelligence.OrderStatusFulfilled,
			FulfilledAt: &at,
			Lines: []intelligence.OrderLine{{
				ProductID: int64(100 + i%20), Quantity: 2, LineTotal: decimal.NewFromInt(250),
			}},
		}
	}
	return orders
}

func BenchmarkCalculatePace(b *testing.B) {
	cfg := intelligence.DefaultSettings().Pace
	orders := benchOrders(200)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		intelligence.CalculatePace(10, orders, benchNow, cfg)
	}
}

func BenchmarkEvaluateHealth(b *testing.B) {
	cfg := intelligence.DefaultSettings().Health
	months := make([]intelligence.MonthlyRevenue, 0, 7)
	for m := 6; m >= 0; m-- {
		start := time.Date(benchNow.Year(), benchNow.Month()-time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		months = append(months, intelligence.MonthlyRevenue{
			Year: start.Year(), Month: start.Month(), Revenue: decimal.NewFromInt(int64(1000 + 37*m)),
		})
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		intelligence.EvaluateHealth(10, months, benchNow, cfg)
	}
}

func benchSignals(n int) []intelligence.AccountSignals {
	signals := make([]intelligence.AccountSignals, n)
	for i := range signals {
		arpdd := 20 + i%15
		days := i % 60
		level := intelligence.RiskOnTrack
		switch {
		case days > 2*arpdd:
			level = intelligence.RiskCritical
		case days > arpdd:
			level = intelligence.RiskWarning
		}
		signals[i] = intelligence.AccountSignals{
			Customer: intelligence.Customer{ID: int64(i + 1), TenantID: 1, DisplayName: fmt.Sprintf("Account %d", i+1)},
			Pace:     &intelligence.PaceResult{CustomerID: int64(i + 1), ARPDD: &arpdd, DaysSinceLastOrder: days, RiskLevel: level},
			Health: &intelligence.HealthResult{
				CustomerID:       int64(i + 1),
				PercentageChange: float64(-(i % 30)),
				RiskLevel:        intelligence.RiskHealthy,
			},
		}
	}
	return signals
}

func BenchmarkPrioritize(b *testing.B) {
	signals := benchSignals(2000)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		intelligence.Prioritize(signals, logger)
	}
}

func BenchmarkRankOpportunities(b *testing.B) {
	candidates := make([]intelligence.Product, 500)
	sales := make(map[int64][]intelligence.ProductSale, len(candidates))
	for i := range candidates {
		id := int64(i + 1)
		candidates[i] = intelligence.Product{ID: id, TenantID: 1, IsActive: true}
		for c := 0; c < 3+i%40; c++ {
			sales[id] = append(sales[id], intelligence.ProductSale{
				OrderID: int64(c), ProductID: id, CustomerID: int64(c), Quantity: 1, LineTotal: decimal.NewFromInt(int64(10 + i)),
			})
		}
	}
	q := intelligence.QueryFromSettings(intelligence.DefaultSettings().Opportunity)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		intelligence.RankOpportunities(candidates, sales, 200, q)
	}
}

func TestPrioritizeLargeTenantWithinBudget(t *testing.T) {
	signals := benchSignals(20000)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start := time.Now()
	alerts := intelligence.Prioritize(signals, logger)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("prioritizing 20000 accounts took %s", elapsed)
	}
	if len(alerts) == 0 {
		t.Fatal("expected flagged accounts")
	}
	for i := 1; i < len(alerts); i++ {
		if alerts[i].PriorityScore > alerts[i-1].PriorityScore {
			t.Fatalf("alerts not sorted at %d", i)
		}
	}
}

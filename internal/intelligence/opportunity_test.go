package intelligence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sale(productID, customerID, qty, total int64) ProductSale {
	return ProductSale{ProductID: productID, CustomerID: customerID, Quantity: qty, LineTotal: decimal.NewFromInt(total)}
}

func opportunityFixture() ([]Product, map[int64][]ProductSale) {
	products := []Product{
		{ID: 1, IsActive: true},
		{ID: 2, IsActive: true},
		{ID: 3, IsActive: true},
		{ID: 4, IsActive: true},
		{ID: 5, IsActive: false},
	}
	sales := map[int64][]ProductSale{
		1: {sale(1, 10, 1, 9000), sale(1, 11, 1, 9000), sale(1, 12, 1, 9000)},
		2: {sale(2, 10, 50, 500), sale(2, 11, 50, 500), sale(2, 12, 50, 500), sale(2, 13, 50, 500)},
		3: {sale(3, 10, 5, 700), sale(3, 11, 5, 700), sale(3, 12, 5, 100)},
		4: {sale(4, 10, 100, 5000), sale(4, 11, 100, 5000)},
		5: {sale(5, 10, 1, 99999), sale(5, 11, 1, 1), sale(5, 12, 1, 1)},
	}
	return products, sales
}

func TestRankOpportunitiesByMetric(t *testing.T) {
	products, sales := opportunityFixture()
	candidates := CandidateProducts(products, nil, false)
	require.Len(t, candidates, 4)

	q := OpportunityQuery{Metric: MetricRevenue, MinimumCustomerThreshold: 3, Limit: 10}
	byRevenue := RankOpportunities(candidates, sales, 8, q)
	require.Equal(t, []int64{1, 2, 3}, productIDs(byRevenue))
	require.True(t, byRevenue[0].RevenueScore.Equal(decimal.NewFromInt(27000)))
	require.Equal(t, 3, byRevenue[0].CustomerCount)
	require.Equal(t, 37.5, byRevenue[0].PenetrationScore)

	q.Metric = MetricVolume
	require.Equal(t, []int64{2, 3, 1}, productIDs(RankOpportunities(candidates, sales, 8, q)))

	q.Metric = MetricPenetration
	byPenetration := RankOpportunities(candidates, sales, 8, q)
	require.Equal(t, []int64{2, 1, 3}, productIDs(byPenetration))
	require.Equal(t, 50.0, byPenetration[0].PenetrationScore)
}

func TestRankOpportunitiesThresholdAndLimit(t *testing.T) {
	products, sales := opportunityFixture()
	candidates := CandidateProducts(products, nil, true)

	q := OpportunityQuery{Metric: MetricRevenue, MinimumCustomerThreshold: 2, Limit: 2}
	ranked := RankOpportunities(candidates, sales, 8, q)
	require.Equal(t, []int64{5, 1}, productIDs(ranked))

	q = OpportunityQuery{Metric: MetricRevenue, MinimumCustomerThreshold: 5, Limit: 2}
	require.Empty(t, RankOpportunities(candidates, sales, 8, q))
}

func TestRankOpportunitiesExcludesPurchased(t *testing.T) {
	products, sales := opportunityFixture()
	since := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	inWindow := since.AddDate(0, 1, 0)
	beforeWindow := since.AddDate(0, -1, 0)
	orders := []Order{
		{ID: 1, Status: OrderStatusFulfilled, FulfilledAt: &inWindow, Lines: []OrderLine{{ProductID: 1}}},
		{ID: 2, Status: OrderStatusFulfilled, FulfilledAt: &beforeWindow, Lines: []OrderLine{{ProductID: 2}}},
		{ID: 3, Status: OrderStatusCancelled, FulfilledAt: &inWindow, Lines: []OrderLine{{ProductID: 3}}},
	}
	purchased := PurchasedProducts(orders, since)
	require.Len(t, purchased, 1)

	candidates := CandidateProducts(products, purchased, false)
	ranked := RankOpportunities(candidates, sales, 8, OpportunityQuery{Metric: MetricRevenue, MinimumCustomerThreshold: 1, Limit: 20})
	for _, opp := range ranked {
		require.NotEqual(t, int64(1), opp.ProductID)
	}
	require.Equal(t, int64(4), ranked[0].ProductID)
}

func TestRankOpportunitiesIsDeterministic(t *testing.T) {
	candidates := []Product{{ID: 30, IsActive: true}, {ID: 10, IsActive: true}, {ID: 20, IsActive: true}}
	sales := map[int64][]ProductSale{
		10: {sale(10, 1, 1, 100), sale(10, 2, 1, 100)},
		20: {sale(20, 1, 1, 100), sale(20, 2, 1, 100)},
		30: {sale(30, 1, 1, 100), sale(30, 2, 1, 100)},
	}
	q := OpportunityQuery{Metric: MetricRevenue, MinimumCustomerThreshold: 1, Limit: 10}

	first, err := json.Marshal(RankOpportunities(candidates, sales, 4, q))
	require.NoError(t, err)
	second, err := json.Marshal(RankOpportunities(candidates, sales, 4, q))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, []int64{10, 20, 30}, productIDs(RankOpportunities(candidates, sales, 4, q)))
}

func TestRankOpportunitiesZeroActiveCustomers(t *testing.T) {
	candidates := []Product{{ID: 1, IsActive: true}}
	sales := map[int64][]ProductSale{1: {sale(1, 1, 1, 10)}}
	ranked := RankOpportunities(candidates, sales, 0, OpportunityQuery{Metric: MetricPenetration, MinimumCustomerThreshold: 1, Limit: 5})
	require.Len(t, ranked, 1)
	require.Zero(t, ranked[0].PenetrationScore)
}

func productIDs(opps []Opportunity) []int64 {
	ids := make([]int64, 0, len(opps))
	for _, o := range opps {
		ids = append(ids, o.ProductID)
	}
	return ids
}

package intelligence

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityQuery selects how candidates are scored and trimmed.
type OpportunityQuery struct {
	Metric                   RankingMetric
	MinimumCustomerThreshold int
	Limit                    int
	IncludeInactiveProducts  bool
}

// QueryFromSettings builds the default query for a tenant.
func QueryFromSettings(cfg OpportunitySettings) OpportunityQuery {
	return OpportunityQuery{
		Metric:                   cfg.DefaultMetric,
		MinimumCustomerThreshold: cfg.MinimumCustomerThreshold,
		Limit:                    cfg.ResultSize,
		IncludeInactiveProducts:  cfg.IncludeInactiveProducts,
	}
}

// PurchasedProducts is the exclusion set: products on the customer's
// fulfilled orders at or after since.
func PurchasedProducts(orders []Order, since time.Time) map[int64]struct{} {
	set := make(map[int64]struct{})
	for _, o := range orders {
		if !o.IsFulfilled() || o.FulfilledAt.Before(since) {
			continue
		}
		for _, line := range o.Lines {
			set[line.ProductID] = struct{}{}
		}
	}
	return set
}

// CandidateProducts removes purchased (and, unless requested, inactive) products.
func CandidateProducts(products []Product, purchased map[int64]struct{}, includeInactive bool) []Product {
	candidates := make([]Product, 0, len(products))
	seen := make(map[int64]struct{}, len(products))
	for _, p := range products {
		if !p.IsActive && !includeInactive {
			continue
		}
		if _, ok := purchased[p.ID]; ok {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		candidates = append(candidates, p)
	}
	return candidates
}

// RankOpportunities scores every candidate from tenant-wide sales, drops
// products with too few buyers and returns the top entries by the selected
// metric. Ties fall back to customer count (desc) then product id (asc).
func RankOpportunities(candidates []Product, sales map[int64][]ProductSale, totalActiveCustomers int, q OpportunityQuery) []Opportunity {
	metric := q.Metric
	if !metric.Valid() {
		metric = MetricRevenue
	}
	ranked := make([]Opportunity, 0, len(candidates))
	for _, p := range candidates {
		opp := scoreProduct(p.ID, sales[p.ID], totalActiveCustomers)
		if opp.CustomerCount < q.MinimumCustomerThreshold {
			continue
		}
		ranked = append(ranked, opp)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if c := compareMetric(a, b, metric); c != 0 {
			return c > 0
		}
		if a.CustomerCount != b.CustomerCount {
			return a.CustomerCount > b.CustomerCount
		}
		return a.ProductID < b.ProductID
	})

	if q.Limit > 0 && len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}
	return ranked
}

func scoreProduct(productID int64, sales []ProductSale, totalActiveCustomers int) Opportunity {
	opp := Opportunity{ProductID: productID, RevenueScore: decimal.Zero}
	buyers := make(map[int64]struct{})
	for _, s := range sales {
		if s.ProductID != 0 && s.ProductID != productID {
			continue
		}
		opp.RevenueScore = opp.RevenueScore.Add(s.LineTotal)
		opp.VolumeScore += s.Quantity
		buyers[s.CustomerID] = struct{}{}
	}
	opp.CustomerCount = len(buyers)
	if totalActiveCustomers > 0 {
		pct := float64(opp.CustomerCount) / float64(totalActiveCustomers) * 100
		opp.PenetrationScore = math.Round(pct*100) / 100
	}
	return opp
}

func compareMetric(a, b Opportunity, metric RankingMetric) int {
	switch metric {
	case MetricVolume:
		return compareInt64(a.VolumeScore, b.VolumeScore)
	case MetricPenetration:
		// penetration is customerCount over a shared denominator
		return compareInt64(int64(a.CustomerCount), int64(b.CustomerCount))
	default:
		return a.RevenueScore.Cmp(b.RevenueScore)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

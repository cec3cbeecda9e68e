package intelligence

import (
	"math"
	"sort"
	"time"
)

// CalculatePace derives a customer's average reorder distance (ARPDD) from
// fulfilled orders and classifies how overdue the next order is. Orders that
// are not fulfilled are ignored; the remainder is sorted by FulfilledAt so
// callers may pass rows in any order.
func CalculatePace(customerID int64, orders []Order, now time.Time, cfg PaceSettings) PaceResult {
	stamps := make([]time.Time, 0, len(orders))
	for _, o := range orders {
		if !o.IsFulfilled() {
			continue
		}
		stamps = append(stamps, o.FulfilledAt.UTC())
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	result := PaceResult{CustomerID: customerID, OrderCount: len(stamps)}
	if len(stamps) > 0 {
		last := stamps[len(stamps)-1]
		result.LastOrderAt = &last
		result.DaysSinceLastOrder = wholeDays(last, now)
	}
	if len(stamps) < cfg.MinimumOrdersRequired || len(stamps) < 2 {
		result.RiskLevel = RiskInsufficientData
		return result
	}

	total := 0
	for i := 0; i+1 < len(stamps); i++ {
		total += wholeDays(stamps[i], stamps[i+1])
	}
	arpdd := int(math.Round(float64(total) / float64(len(stamps)-1)))
	result.ARPDD = &arpdd
	next := result.LastOrderAt.AddDate(0, 0, arpdd)
	result.ExpectedNextOrderAt = &next
	result.RiskLevel = classifyPace(result.DaysSinceLastOrder, arpdd, cfg)
	return result
}

func classifyPace(daysSince, arpdd int, cfg PaceSettings) RiskLevel {
	days := float64(daysSince)
	switch {
	case days >= float64(arpdd)*cfg.CriticalMultiplier:
		return RiskCritical
	case days >= float64(arpdd)*cfg.WarningMultiplier:
		return RiskWarning
	default:
		return RiskOnTrack
	}
}

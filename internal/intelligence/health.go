package intelligence

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EvaluateHealth compares the current calendar month's revenue against the
// average of the preceding baseline months. The baseline starts at the first
// month inside the window that has fulfilled revenue; later months without
// orders count as zero.
func EvaluateHealth(customerID int64, months []MonthlyRevenue, now time.Time, cfg HealthSettings) HealthResult {
	current := monthStart(now)
	windowStart := current.AddDate(0, -(cfg.LookbackMonths - 1), 0)

	buckets := make(map[string]decimal.Decimal, len(months))
	var first *time.Time
	for _, m := range months {
		start := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
		if start.Before(windowStart) || start.After(current) {
			continue
		}
		key := FormatMonth(start)
		buckets[key] = buckets[key].Add(m.Revenue)
		if first == nil || start.Before(*first) {
			s := start
			first = &s
		}
	}

	result := HealthResult{
		CustomerID:          customerID,
		CurrentMonthRevenue: buckets[FormatMonth(current)],
		BaselineAverage:     decimal.Zero,
	}

	baselineEnd := current
	if cfg.ExcludeCurrentMonth {
		baselineEnd = current.AddDate(0, -1, 0)
	}
	var baseline []time.Time
	if first != nil {
		baseline = enumerateMonths(*first, baselineEnd)
	}
	result.BaselineMonths = len(baseline)
	if len(baseline) == 0 || len(baseline) < cfg.MinimumMonthsRequired {
		result.RiskLevel = RiskInsufficientData
		return result
	}

	total := decimal.Zero
	for _, month := range baseline {
		total = total.Add(buckets[FormatMonth(month)])
	}
	average := total.Div(decimal.NewFromInt(int64(len(baseline))))
	result.BaselineAverage = average.Round(2)

	// Classify on the exact change; only the reported figure is rounded.
	change := decimal.Zero
	if average.IsPositive() {
		change = result.CurrentMonthRevenue.Sub(average).Div(average).Mul(hundred)
	}
	result.PercentageChange = change.Round(2).InexactFloat64()

	switch {
	case change.LessThanOrEqual(decimal.NewFromFloat(cfg.CriticalThresholdPercent)):
		result.RiskLevel = RiskCritical
		result.IsAtRisk = true
	case change.LessThanOrEqual(decimal.NewFromFloat(cfg.WarningThresholdPercent)):
		result.RiskLevel = RiskWarning
		result.IsAtRisk = true
	default:
		result.RiskLevel = RiskHealthy
	}
	return result
}

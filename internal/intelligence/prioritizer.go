package intelligence

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	paceWeight         = 10
	healthWeight       = 5
	recencyDivisorDays = 7.0
	recencyCap         = 5.0
)

// AccountSignals bundles the already computed results for one customer.
// Err marks a customer whose upstream reads failed; it is skipped.
type AccountSignals struct {
	Customer              Customer
	Pace                  *PaceResult
	Health                *HealthResult
	DaysSinceLastActivity *int
	Err                   error
}

// Prioritize merges pace and revenue-health signals into one ranked action
// list. Accounts without a flagged dimension are omitted. Scores sort
// descending; equal scores sort by customer id.
func Prioritize(signals []AccountSignals, logger *slog.Logger) []Alert {
	if logger == nil {
		logger = slog.Default()
	}
	printer := message.NewPrinter(language.English)
	alerts := make([]Alert, 0, len(signals))
	for _, sig := range signals {
		if sig.Err != nil {
			logger.Warn("skip account in prioritization",
				slog.Int64("customer_id", sig.Customer.ID),
				slog.Any("error", sig.Err))
			continue
		}
		pace := paceLevel(sig.Pace)
		health := healthLevel(sig.Health)
		if !pace.Flagged() && !health.Flagged() {
			continue
		}
		score := float64(pace.Severity()*paceWeight + health.Severity()*healthWeight)
		score += recencyContribution(sig.DaysSinceLastActivity)
		alerts = append(alerts, Alert{
			AccountID:     sig.Customer.ID,
			AccountName:   sig.Customer.DisplayName,
			PriorityScore: math.Round(score*100) / 100,
			Type:          alertType(pace, health),
			Message:       alertMessage(printer, sig, pace, health),
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].PriorityScore != alerts[j].PriorityScore {
			return alerts[i].PriorityScore > alerts[j].PriorityScore
		}
		return alerts[i].AccountID < alerts[j].AccountID
	})
	return alerts
}

func paceLevel(p *PaceResult) RiskLevel {
	if p == nil {
		return RiskInsufficientData
	}
	return p.RiskLevel
}

func healthLevel(h *HealthResult) RiskLevel {
	if h == nil {
		return RiskInsufficientData
	}
	return h.RiskLevel
}

// recencyContribution is min(days/7, 5). Accounts with no logged activity get the cap.
func recencyContribution(days *int) float64 {
	if days == nil {
		return recencyCap
	}
	if *days <= 0 {
		return 0
	}
	return math.Min(float64(*days)/recencyDivisorDays, recencyCap)
}

func alertType(pace, health RiskLevel) AlertType {
	switch {
	case pace == RiskCritical:
		return AlertPaceCritical
	case pace == RiskWarning:
		return AlertPaceWarning
	case health == RiskCritical:
		return AlertHealthCritical
	default:
		return AlertHealthWarning
	}
}

func alertMessage(p *message.Printer, sig AccountSignals, pace, health RiskLevel) string {
	parts := make([]string, 0, 3)
	if pace.Flagged() && sig.Pace != nil && sig.Pace.ARPDD != nil {
		parts = append(parts, p.Sprintf("%s pace: %d days since last order against a usual %d-day cadence",
			pace, sig.Pace.DaysSinceLastOrder, *sig.Pace.ARPDD))
	}
	if health.Flagged() && sig.Health != nil {
		parts = append(parts, p.Sprintf("%s revenue: %.2f this month, %.1f%% against a %.2f monthly baseline",
			health, sig.Health.CurrentMonthRevenue.InexactFloat64(), sig.Health.PercentageChange, sig.Health.BaselineAverage.InexactFloat64()))
	}
	if sig.DaysSinceLastActivity == nil {
		parts = append(parts, "no logged sales activity")
	} else {
		parts = append(parts, p.Sprintf("last activity %d days ago", *sig.DaysSinceLastActivity))
	}
	name := sig.Customer.DisplayName
	if name == "" {
		name = p.Sprintf("Customer %d", sig.Customer.ID)
	}
	return name + ": " + strings.Join(parts, "; ")
}

package intelligence

import (
	"math"
	"sort"
	"time"
)

// SummarizeAllowance sums the rep's sample pulls inside the calendar month
// containing month. Transfers outside that month or for other reps are ignored.
func SummarizeAllowance(salesRepID int64, month time.Time, transfers []SampleTransfer, cfg SampleSettings) AllowanceSummary {
	pulls := PullsInMonth(salesRepID, month, transfers)
	remaining := cfg.MonthlyAllowance - pulls
	return AllowanceSummary{
		SalesRepID:         salesRepID,
		Month:              FormatMonth(month),
		PullsThisMonth:     pulls,
		Allowance:          cfg.MonthlyAllowance,
		RemainingAllowance: remaining,
		IsOverAllowance:    pulls > cfg.MonthlyAllowance,
	}
}

// PullsInMonth is the arithmetic sum of sample quantities for the rep in month.
func PullsInMonth(salesRepID int64, month time.Time, transfers []SampleTransfer) int64 {
	start, end := MonthRange(month)
	var pulls int64
	for _, t := range transfers {
		if t.SalesRepID != salesRepID || t.Quantity <= 0 {
			continue
		}
		at := t.TransferDate.UTC()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		pulls += t.Quantity
	}
	return pulls
}

// CheckAllowance rejects a new transfer that pushes the month's pulls past the
// manager-approval threshold unless a manager approved it.
func CheckAllowance(pullsThisMonth, requested int64, approvedByManagerID *int64, cfg SampleSettings) error {
	if approvedByManagerID != nil {
		return nil
	}
	if pullsThisMonth+requested > cfg.RequireManagerApprovalOver {
		return &AllowanceExceededError{
			Current:   pullsThisMonth,
			Requested: requested,
			Limit:     cfg.RequireManagerApprovalOver,
		}
	}
	return nil
}

// SummarizeFeedback reports how many of the rep's transfers since windowStart
// have logged tasting feedback. Transfers still inside the grace period
// without feedback count toward neither side.
func SummarizeFeedback(salesRepID int64, transfers []SampleTransfer, windowStart, now time.Time, cfg SampleSettings) FeedbackSummary {
	cutoff := now.AddDate(0, 0, -cfg.MinimumFeedbackDays)
	summary := FeedbackSummary{
		SalesRepID:  salesRepID,
		WindowStart: windowStart,
		WindowEnd:   now,
		Pending:     []SampleTransfer{},
	}
	for _, t := range transfers {
		if t.SalesRepID != salesRepID {
			continue
		}
		if t.TransferDate.Before(windowStart) || t.TransferDate.After(now) {
			continue
		}
		switch {
		case t.HasFeedback():
			summary.HasFeedback++
		case !t.TransferDate.After(cutoff):
			summary.NeedsFeedback++
			summary.Pending = append(summary.Pending, t)
		}
	}
	sort.Slice(summary.Pending, func(i, j int) bool {
		a, b := summary.Pending[i], summary.Pending[j]
		if !a.TransferDate.Equal(b.TransferDate) {
			return a.TransferDate.Before(b.TransferDate)
		}
		return a.ID.String() < b.ID.String()
	})
	if denom := summary.HasFeedback + summary.NeedsFeedback; denom > 0 {
		rate := float64(summary.HasFeedback) / float64(denom) * 100
		summary.FeedbackRate = math.Round(rate*100) / 100
	}
	return summary
}

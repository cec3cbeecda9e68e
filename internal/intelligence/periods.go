package intelligence

import (
	"fmt"
	"math"
	"time"
)

const day = 24 * time.Hour

// wholeDays floors the distance between from and to to whole days.
func wholeDays(from, to time.Time) int {
	return int(math.Floor(float64(to.Sub(from)) / float64(day)))
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func enumerateMonths(from, to time.Time) []time.Time {
	if from.After(to) {
		return nil
	}
	var months []time.Time
	current := monthStart(from)
	end := monthStart(to)
	for !current.After(end) {
		months = append(months, current)
		current = current.AddDate(0, 1, 0)
	}
	return months
}

// FormatMonth renders the YYYY-MM period key.
func FormatMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ParseMonth parses a YYYY-MM period key into the first instant of that month.
func ParseMonth(period string) (time.Time, error) {
	if period == "" {
		return time.Time{}, fmt.Errorf("%w: empty period", ErrInvalidRequest)
	}
	t, err := time.ParseInLocation("2006-01", period, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: period %q: %v", ErrInvalidRequest, period, err)
	}
	return monthStart(t), nil
}

// MonthRange returns [start, end) for the calendar month containing t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	start := monthStart(t)
	return start, start.AddDate(0, 1, 0)
}

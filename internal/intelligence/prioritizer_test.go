package intelligence

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func paceAt(level RiskLevel) *PaceResult {
	arpdd := 30
	return &PaceResult{ARPDD: &arpdd, DaysSinceLastOrder: 50, RiskLevel: level}
}

func healthAt(level RiskLevel) *HealthResult {
	return &HealthResult{RiskLevel: level, PercentageChange: -20}
}

func intPtr(v int) *int {
	return &v
}

func TestPrioritizeScoresAndOrders(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signals := []AccountSignals{
		{Customer: Customer{ID: 5, DisplayName: "Quiet"}, Pace: paceAt(RiskOnTrack), Health: healthAt(RiskHealthy), DaysSinceLastActivity: intPtr(1)},
		{Customer: Customer{ID: 4, DisplayName: "Dropping"}, Pace: paceAt(RiskOnTrack), Health: healthAt(RiskWarning), DaysSinceLastActivity: intPtr(70)},
		{Customer: Customer{ID: 2, DisplayName: "Late"}, Pace: paceAt(RiskWarning), Health: healthAt(RiskCritical), DaysSinceLastActivity: intPtr(14)},
		{Customer: Customer{ID: 1, DisplayName: "Gone"}, Pace: paceAt(RiskCritical), Health: healthAt(RiskHealthy)},
		{Customer: Customer{ID: 3}, Err: errors.New("timeout")},
	}

	alerts := Prioritize(signals, logger)

	require.Len(t, alerts, 3)
	require.Equal(t, int64(1), alerts[0].AccountID)
	require.Equal(t, 25.0, alerts[0].PriorityScore)
	require.Equal(t, AlertPaceCritical, alerts[0].Type)

	require.Equal(t, int64(2), alerts[1].AccountID)
	require.Equal(t, 22.0, alerts[1].PriorityScore)
	require.Equal(t, AlertPaceWarning, alerts[1].Type)

	require.Equal(t, int64(4), alerts[2].AccountID)
	require.Equal(t, 10.0, alerts[2].PriorityScore)
	require.Equal(t, AlertHealthWarning, alerts[2].Type)
	require.Contains(t, alerts[2].Message, "Dropping")
}

func TestPrioritizeFractionalRecencyAndTies(t *testing.T) {
	signals := []AccountSignals{
		{Customer: Customer{ID: 9}, Health: healthAt(RiskCritical), DaysSinceLastActivity: intPtr(10)},
		{Customer: Customer{ID: 8}, Health: healthAt(RiskCritical), DaysSinceLastActivity: intPtr(10)},
		{Customer: Customer{ID: 7}, Pace: paceAt(RiskInsufficientData), Health: healthAt(RiskCritical), DaysSinceLastActivity: intPtr(0)},
	}
	alerts := Prioritize(signals, nil)

	require.Len(t, alerts, 3)
	require.Equal(t, int64(8), alerts[0].AccountID)
	require.Equal(t, int64(9), alerts[1].AccountID)
	require.Equal(t, 11.43, alerts[0].PriorityScore)
	require.Equal(t, AlertHealthCritical, alerts[0].Type)
	require.Equal(t, 10.0, alerts[2].PriorityScore)
	require.Contains(t, alerts[2].Message, "Customer 7")
}

func TestPrioritizeEmpty(t *testing.T) {
	require.Empty(t, Prioritize(nil, nil))
}

package intelligence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
}

func TestSettingsValidateRejectsInvertedThresholds(t *testing.T) {
	s := DefaultSettings()
	s.Pace.CriticalMultiplier = 1.1
	err := s.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidConfiguration))

	s = DefaultSettings()
	s.Health.CriticalThresholdPercent = -5
	require.ErrorIs(t, s.Validate(), ErrInvalidConfiguration)

	s = DefaultSettings()
	s.Opportunity.DefaultMetric = "margin"
	require.ErrorIs(t, s.Validate(), ErrInvalidConfiguration)

	s = DefaultSettings()
	s.Health.LookbackMonths = 3
	s.Health.MinimumMonthsRequired = 3
	require.ErrorIs(t, s.Validate(), ErrInvalidConfiguration)
}

func TestApplyOverrides(t *testing.T) {
	merged, err := ApplyOverrides(DefaultSettings(), []byte(`{"pace":{"lookback_days":90},"samples":{"monthly_allowance":80}}`))
	require.NoError(t, err)
	require.Equal(t, 90, merged.Pace.LookbackDays)
	require.Equal(t, 3, merged.Pace.MinimumOrdersRequired)
	require.Equal(t, int64(80), merged.Samples.MonthlyAllowance)
	require.Equal(t, int64(60), merged.Samples.RequireManagerApprovalOver)

	same, err := ApplyOverrides(DefaultSettings(), nil)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), same)

	same, err = ApplyOverrides(DefaultSettings(), []byte("null"))
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), same)
}

func TestApplyOverridesRejectsBadInput(t *testing.T) {
	_, err := ApplyOverrides(DefaultSettings(), []byte(`{"pace":{"lookbak_days":90}}`))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = ApplyOverrides(DefaultSettings(), []byte(`{"pace":{"warning_multiplier":2.0}}`))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = ApplyOverrides(DefaultSettings(), []byte(`{`))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-02")
	require.NoError(t, err)
	require.Equal(t, "2024-02", FormatMonth(m))
	start, end := MonthRange(m)
	require.Equal(t, m, start)
	require.Equal(t, "2024-03", FormatMonth(end))

	_, err = ParseMonth("2024/02")
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = ParseMonth("")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestWrapDataSource(t *testing.T) {
	require.NoError(t, WrapDataSource("op", nil))

	base := errors.New("conn refused")
	wrapped := WrapDataSource("list orders", base)
	require.ErrorIs(t, wrapped, ErrDataSourceUnavailable)
	require.ErrorIs(t, wrapped, base)
	require.Same(t, wrapped, WrapDataSource("outer", wrapped))
}

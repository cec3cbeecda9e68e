package intelligence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Settings is the per-tenant configuration surface of the engine. The
// envconfig tags seed process-wide defaults; tenant overrides are JSON.
type Settings struct {
	Pace        PaceSettings        `json:"pace" envconfig:"PACE"`
	Health      HealthSettings      `json:"health" envconfig:"HEALTH"`
	Samples     SampleSettings      `json:"samples" envconfig:"SAMPLES"`
	Opportunity OpportunitySettings `json:"opportunity" envconfig:"OPPORTUNITY"`
}

// PaceSettings configures the ordering cadence calculator.
type PaceSettings struct {
	LookbackDays          int     `json:"lookback_days" envconfig:"LOOKBACK_DAYS" default:"180" validate:"gt=0,lte=3650"`
	MinimumOrdersRequired int     `json:"minimum_orders_required" envconfig:"MINIMUM_ORDERS" default:"3" validate:"gte=2"`
	WarningMultiplier     float64 `json:"warning_multiplier" envconfig:"WARNING_MULTIPLIER" default:"1.2" validate:"gt=0"`
	CriticalMultiplier    float64 `json:"critical_multiplier" envconfig:"CRITICAL_MULTIPLIER" default:"1.5" validate:"gtfield=WarningMultiplier"`
}

// HealthSettings configures the rolling revenue baseline.
type HealthSettings struct {
	LookbackMonths int `json:"lookback_months" envconfig:"LOOKBACK_MONTHS" default:"6" validate:"gte=2,lte=60"`
	// MinimumMonthsRequired counts baseline months from the customer's first
	// revenue month inside the lookback window. Months before that are absent
	// rather than zero, so a new customer is not judged against empty months.
	MinimumMonthsRequired    int     `json:"minimum_months_required" envconfig:"MINIMUM_MONTHS" default:"3" validate:"gte=1"`
	WarningThresholdPercent  float64 `json:"warning_threshold_percent" envconfig:"WARNING_PERCENT" default:"-10" validate:"lt=0"`
	CriticalThresholdPercent float64 `json:"critical_threshold_percent" envconfig:"CRITICAL_PERCENT" default:"-15" validate:"ltfield=WarningThresholdPercent"`
	ExcludeCurrentMonth      bool    `json:"exclude_current_month" envconfig:"EXCLUDE_CURRENT_MONTH" default:"true"`
}

// SampleSettings configures the monthly sample allowance.
type SampleSettings struct {
	MonthlyAllowance           int64 `json:"monthly_allowance" envconfig:"MONTHLY_ALLOWANCE" default:"60" validate:"gte=0"`
	RequireManagerApprovalOver int64 `json:"require_manager_approval_over" envconfig:"APPROVAL_OVER" default:"60" validate:"gte=0"`
	MinimumFeedbackDays        int   `json:"minimum_feedback_days" envconfig:"FEEDBACK_GRACE_DAYS" default:"7" validate:"gte=0"`
	FeedbackWindowDays         int   `json:"feedback_window_days" envconfig:"FEEDBACK_WINDOW_DAYS" default:"30" validate:"gt=0"`
}

// OpportunitySettings configures the next-best-product ranker.
type OpportunitySettings struct {
	LookbackDays             int           `json:"lookback_days" envconfig:"LOOKBACK_DAYS" default:"180" validate:"gt=0,lte=3650"`
	MinimumCustomerThreshold int           `json:"minimum_customer_threshold" envconfig:"MINIMUM_CUSTOMERS" default:"3" validate:"gte=1"`
	ResultSize               int           `json:"result_size" envconfig:"RESULT_SIZE" default:"20" validate:"gt=0,lte=200"`
	DefaultMetric            RankingMetric `json:"default_metric" envconfig:"DEFAULT_METRIC" default:"revenue" validate:"oneof=revenue volume penetration"`
	IncludeInactiveProducts  bool          `json:"include_inactive_products" envconfig:"INCLUDE_INACTIVE" default:"false"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Pace: PaceSettings{
			LookbackDays:          180,
			MinimumOrdersRequired: 3,
			WarningMultiplier:     1.2,
			CriticalMultiplier:    1.5,
		},
		Health: HealthSettings{
			LookbackMonths:           6,
			MinimumMonthsRequired:    3,
			WarningThresholdPercent:  -10,
			CriticalThresholdPercent: -15,
			ExcludeCurrentMonth:      true,
		},
		Samples: SampleSettings{
			MonthlyAllowance:           60,
			RequireManagerApprovalOver: 60,
			MinimumFeedbackDays:        7,
			FeedbackWindowDays:         30,
		},
		Opportunity: OpportunitySettings{
			LookbackDays:             180,
			MinimumCustomerThreshold: 3,
			ResultSize:               20,
			DefaultMetric:            MetricRevenue,
		},
	}
}

var settingsValidator = validator.New()

// Validate rejects settings that would misclassify customers.
func (s Settings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return invalidConfig("%s", strings.Join(msgs, "; "))
		}
		return invalidConfig("%v", err)
	}
	baselineMonths := s.Health.LookbackMonths
	if s.Health.ExcludeCurrentMonth {
		baselineMonths--
	}
	if s.Health.MinimumMonthsRequired > baselineMonths {
		return invalidConfig("health minimum months %d exceeds the %d baseline months available", s.Health.MinimumMonthsRequired, baselineMonths)
	}
	return nil
}

// ApplyOverrides decodes a tenant's JSON overrides on top of base and
// validates the result. Unknown keys are rejected.
func ApplyOverrides(base Settings, raw []byte) (Settings, error) {
	merged := base
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&merged); err != nil {
			return Settings{}, invalidConfig("decode tenant overrides: %v", err)
		}
	}
	if err := merged.Validate(); err != nil {
		return Settings{}, err
	}
	return merged, nil
}

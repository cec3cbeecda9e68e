package intelligence

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the order lifecycle states stored by checkout.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Order is a customer order with its nested lines.
type Order struct {
	ID          int64       `json:"id"`
	CustomerID  int64       `json:"customer_id"`
	TenantID    int64       `json:"tenant_id"`
	Status      OrderStatus `json:"status"`
	FulfilledAt *time.Time  `json:"fulfilled_at,omitempty"`
	Lines       []OrderLine `json:"lines,omitempty"`
}

// IsFulfilled reports whether the order participates in pace and revenue calculations.
func (o Order) IsFulfilled() bool {
	return o.Status == OrderStatusFulfilled && o.FulfilledAt != nil
}

// OrderLine is a single product line. LineTotal is the authoritative revenue contribution.
type OrderLine struct {
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ProductSale is an order line joined with the purchasing customer.
type ProductSale struct {
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	CustomerID int64           `json:"customer_id"`
	Quantity   int64           `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// Customer is a tenant's buying account.
type Customer struct {
	ID          int64  `json:"id"`
	TenantID    int64  `json:"tenant_id"`
	DisplayName string `json:"display_name"`
}

// Product is a catalog item. Only active products are opportunity candidates by default.
type Product struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	SKU      string `json:"sku,omitempty"`
	Name     string `json:"name,omitempty"`
	IsActive bool   `json:"is_active"`
}

// MonthlyRevenue is the fulfilled line-total sum for one calendar month.
type MonthlyRevenue struct {
	Year    int             `json:"year"`
	Month   time.Month      `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

// SampleTransfer is an outbound, no-charge inventory movement given to a customer.
type SampleTransfer struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            int64     `json:"tenant_id"`
	SalesRepID          int64     `json:"sales_rep_id"`
	CustomerID          int64     `json:"customer_id"`
	ProductID           int64     `json:"product_id"`
	WarehouseID         int64     `json:"warehouse_id"`
	Quantity            int64     `json:"quantity"`
	TransferDate        time.Time `json:"transfer_date"`
	FollowUpActivityID  *int64    `json:"follow_up_activity_id,omitempty"`
	ApprovedByManagerID *int64    `json:"approved_by_manager_id,omitempty"`
	Note                string    `json:"note,omitempty"`
	CreatedBy           int64     `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"`
}

// HasFeedback reports whether tasting feedback was logged for the transfer.
func (t SampleTransfer) HasFeedback() bool {
	return t.FollowUpActivityID != nil
}

// CustomerActivity carries the last logged sales activity for a customer.
type CustomerActivity struct {
	CustomerID     int64      `json:"customer_id"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

// RiskLevel is the shared classification vocabulary of pace and revenue health.
type RiskLevel string

const (
	RiskOnTrack          RiskLevel = "on-track"
	RiskHealthy          RiskLevel = "healthy"
	RiskWarning          RiskLevel = "warning"
	RiskCritical         RiskLevel = "critical"
	RiskInsufficientData RiskLevel = "insufficient-data"
)

// Severity maps a risk level to 0 (none), 1 (warning) or 2 (critical).
func (r RiskLevel) Severity() int {
	switch r {
	case RiskCritical:
		return 2
	case RiskWarning:
		return 1
	default:
		return 0
	}
}

// Flagged reports whether the level should raise an alert.
func (r RiskLevel) Flagged() bool {
	return r.Severity() > 0
}

// PaceResult is the pace calculator output for one customer.
type PaceResult struct {
	CustomerID          int64      `json:"customer_id"`
	ARPDD               *int       `json:"arpdd"`
	DaysSinceLastOrder  int        `json:"days_since_last_order"`
	RiskLevel           RiskLevel  `json:"risk_level"`
	OrderCount          int        `json:"order_count"`
	LastOrderAt         *time.Time `json:"last_order_at,omitempty"`
	ExpectedNextOrderAt *time.Time `json:"expected_next_order_at,omitempty"`
}

// HealthResult is the revenue health evaluator output for one customer.
type HealthResult struct {
	CustomerID          int64           `json:"customer_id"`
	CurrentMonthRevenue decimal.Decimal `json:"current_month_revenue"`
	BaselineAverage     decimal.Decimal `json:"baseline_average"`
	PercentageChange    float64         `json:"percentage_change"`
	RiskLevel           RiskLevel       `json:"risk_level"`
	IsAtRisk            bool            `json:"is_at_risk"`
	BaselineMonths      int             `json:"baseline_months"`
}

// HealthSnapshot is an immutable point-in-time copy of a HealthResult.
type HealthSnapshot struct {
	ID         int64        `json:"id"`
	TenantID   int64        `json:"tenant_id"`
	Result     HealthResult `json:"result"`
	CapturedAt time.Time    `json:"captured_at"`
}

// AllowanceSummary reports a rep's sample consumption for a month.
type AllowanceSummary struct {
	SalesRepID         int64  `json:"sales_rep_id"`
	Month              string `json:"month"`
	PullsThisMonth     int64  `json:"pulls_this_month"`
	Allowance          int64  `json:"allowance"`
	RemainingAllowance int64  `json:"remaining_allowance"`
	IsOverAllowance    bool   `json:"is_over_allowance"`
}

// FeedbackSummary reports tasting-feedback accountability for a rep.
type FeedbackSummary struct {
	SalesRepID    int64            `json:"sales_rep_id"`
	WindowStart   time.Time        `json:"window_start"`
	WindowEnd     time.Time        `json:"window_end"`
	HasFeedback   int              `json:"has_feedback"`
	NeedsFeedback int              `json:"needs_feedback"`
	FeedbackRate  float64          `json:"feedback_rate"`
	Pending       []SampleTransfer `json:"pending"`
}

// RankingMetric selects the score used by the opportunity ranker.
type RankingMetric string

const (
	MetricRevenue     RankingMetric = "revenue"
	MetricVolume      RankingMetric = "volume"
	MetricPenetration RankingMetric = "penetration"
)

// Valid reports whether m is a supported metric.
func (m RankingMetric) Valid() bool {
	switch m {
	case MetricRevenue, MetricVolume, MetricPenetration:
		return true
	}
	return false
}

// Opportunity is one ranked product recommendation.
type Opportunity struct {
	ProductID        int64           `json:"product_id"`
	RevenueScore     decimal.Decimal `json:"revenue_score"`
	VolumeScore      int64           `json:"volume_score"`
	CustomerCount    int             `json:"customer_count"`
	PenetrationScore float64         `json:"penetration_score"`
}

// AlertType labels the dominant risk dimension of an alert.
type AlertType string

const (
	AlertPaceCritical   AlertType = "pace_critical"
	AlertPaceWarning    AlertType = "pace_warning"
	AlertHealthCritical AlertType = "health_critical"
	AlertHealthWarning  AlertType = "health_warning"
)

// Alert is a prioritized action item for one account.
type Alert struct {
	AccountID     int64     `json:"account_id"`
	AccountName   string    `json:"account_name"`
	PriorityScore float64   `json:"priority_score"`
	Type          AlertType `json:"type"`
	Message       string    `json:"message"`
}

package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PeriodStatus tracks a revenue period through its one-way lifecycle.
type PeriodStatus string

const (
	PeriodStatusOpen      PeriodStatus = "open"
	PeriodStatusClosed    PeriodStatus = "closed"
	PeriodStatusFinalized PeriodStatus = "finalized"
)

// RevenuePeriod is one calendar month's revenue accounting unit, scoped to a
// currency. All monetary fields are minor units.
type RevenuePeriod struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	Month    string       `json:"month" gorm:"type:text;not null;uniqueIndex:ux_revenue_periods_month_currency,priority:1"`
	Currency string       `json:"currency" gorm:"type:text;not null;uniqueIndex:ux_revenue_periods_month_currency,priority:2"`

	SubscriptionGross   int64 `json:"subscription_gross" gorm:"not null;default:0"`
	SubscriptionFees    int64 `json:"subscription_fees" gorm:"not null;default:0"`
	SubscriptionRefunds int64 `json:"subscription_refunds" gorm:"not null;default:0"`
	SubscriptionNet     int64 `json:"subscription_net" gorm:"not null;default:0"`

	PPVGross   int64 `json:"ppv_gross" gorm:"not null;default:0"`
	PPVFees    int64 `json:"ppv_fees" gorm:"not null;default:0"`
	PPVRefunds int64 `json:"ppv_refunds" gorm:"not null;default:0"`
	PPVNet     int64 `json:"ppv_net" gorm:"not null;default:0"`

	Status    PeriodStatus `json:"status" gorm:"type:text;not null;default:'open'"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RevenuePeriod) TableName() string { return "revenue_periods" }

// Finalized reports whether the period is locked against any further change.
func (p RevenuePeriod) Finalized() bool { return p.Status == PeriodStatusFinalized }

// MonthOf formats t as the canonical YYYY-MM period key.
func MonthOf(t time.Time) string { return t.UTC().Format("2006-01") }

// ParseMonth validates a YYYY-MM period key and returns the first instant of
// that month in UTC.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period month %q: %w", month, err)
	}
	return t.UTC(), nil
}

// MonthBounds returns the half-open [start, end) interval covering month.
func MonthBounds(month string) (time.Time, time.Time, error) {
	start, err := ParseMonth(month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PayoutType distinguishes pool-share payouts from direct-sale payouts.
type PayoutType string

const (
	PayoutTypePPV              PayoutType = "ppv"
	PayoutTypeSubscriptionPool PayoutType = "subscription_pool"
)

// PayoutStatus is the workflow state. pending → approved → paid, with
// cancellation allowed from pending or approved. paid and cancelled are
// terminal.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusApproved  PayoutStatus = "approved"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusCancelled PayoutStatus = "cancelled"
)

// Payout is one author's claim on money for one source: either a period's
// creator pool or a single purchase. Rows are never deleted; cancellation is
// a status, not a removal.
type Payout struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	Type     PayoutType   `json:"type" gorm:"type:text;not null;index"`
	AuthorID snowflake.ID `json:"author_id" gorm:"not null;index;uniqueIndex:ux_payouts_author_period,priority:1"`
	Amount   int64        `json:"amount" gorm:"not null"`
	Currency string       `json:"currency" gorm:"type:text;not null"`
	Status   PayoutStatus `json:"status" gorm:"type:text;not null;default:'pending';index"`

	// Audit fields for pool-type payouts.
	EngagementUnits  int64           `json:"engagement_units" gorm:"not null;default:0"`
	PoolSharePercent decimal.Decimal `json:"pool_share_percent" gorm:"type:numeric(9,6);not null;default:0"`

	// Exactly one of these links is set, depending on Type. NULLs keep the
	// unique indexes from colliding across the other payout type.
	PeriodID   *snowflake.ID `json:"period_id" gorm:"uniqueIndex:ux_payouts_author_period,priority:2"`
	PurchaseID *snowflake.ID `json:"purchase_id" gorm:"uniqueIndex:ux_payouts_purchase"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payout) TableName() string { return "payouts" }

// Terminal reports whether no further workflow transition is allowed.
func (p Payout) Terminal() bool {
	return p.Status == PayoutStatusPaid || p.Status == PayoutStatusCancelled
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CreatorPool is the per-period share of subscription net revenue set aside
// for authors. One row per revenue period; recalculation overwrites it until
// the period is finalized.
type CreatorPool struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	PeriodID snowflake.ID `json:"period_id" gorm:"not null;uniqueIndex:ux_creator_pools_period"`

	PoolPercent        decimal.Decimal `json:"pool_percent" gorm:"type:numeric(9,6);not null"`
	PoolAmountNet      int64           `json:"pool_amount_net" gorm:"not null;default:0"`
	TotalEligibleUnits int64           `json:"total_eligible_units" gorm:"not null;default:0"`

	// CalculatedAt is null until the first successful distribution run.
	CalculatedAt *time.Time `json:"calculated_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreatorPool) TableName() string { return "creator_pools" }

// PoolAmount derives the pool's minor-unit amount from net revenue, rounding
// half away from zero to the nearest minor unit.
func PoolAmount(percent decimal.Decimal, subscriptionNet int64) int64 {
	return percent.
		Mul(decimal.NewFromInt(subscriptionNet)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type UpdatePercentRequest struct {
	PeriodID    string
	PoolPercent decimal.Decimal
}

// CalculateSummary backs the operator feedback line after a distribution run.
type CalculateSummary struct {
	PeriodID     string `json:"period_id"`
	PoolAmount   int64  `json:"pool_amount"`
	BooksCount   int    `json:"books_count"`
	AuthorsCount int    `json:"authors_count"`
}

// ReconciliationReport is the result of the conservation check: the recorded
// pool amount must equal the sum of the period's pool payouts exactly.
type ReconciliationReport struct {
	PeriodID      string `json:"period_id"`
	PoolAmountNet int64  `json:"pool_amount_net"`
	PayoutSum     int64  `json:"payout_sum"`
	Balanced      bool   `json:"balanced"`
}

type Service interface {
	GetByPeriod(ctx context.Context, periodID string) (CreatorPool, error)
	UpdatePercent(ctx context.Context, req UpdatePercentRequest) (CreatorPool, error)
	Calculate(ctx context.Context, periodID string) (CalculateSummary, error)
	VerifyConservation(ctx context.Context, periodID string) (ReconciliationReport, error)
}

var (
	ErrNotFound       = errors.New("pool_not_found")
	ErrInvalidPercent = errors.New("invalid_pool_percent")

	// ErrAggregationRequired means calculation was requested before the
	// period's engagement snapshot exists.
	ErrAggregationRequired = errors.New("aggregation_required")

	// ErrNotCalculated means reconciliation was requested before any
	// successful distribution run.
	ErrNotCalculated = errors.New("pool_not_calculated")
)

// ValidPercent bounds the operator-configurable pool share.
func ValidPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(decimal.NewFromInt(100))
}

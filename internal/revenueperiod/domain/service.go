package domain

import (
	"context"
	"errors"
)

// GetOrCreateRequest identifies a period by its natural key. Zero values fall
// back to the current month and the configured default currency.
type GetOrCreateRequest struct {
	Month    string
	Currency string
}

// UpdateRequest is a partial update of an open period's revenue figures.
// Net fields are derived, never accepted.
type UpdateRequest struct {
	ID string

	SubscriptionGross   *int64
	SubscriptionFees    *int64
	SubscriptionRefunds *int64

	PPVGross   *int64
	PPVFees    *int64
	PPVRefunds *int64
}

type ListResponse struct {
	Periods []RevenuePeriod `json:"revenue_periods"`
}

// PeriodSummary is a dashboard rollup of one period with its pool and
// payout totals.
type PeriodSummary struct {
	PeriodID        string       `json:"period_id"`
	Month           string       `json:"month"`
	Currency        string       `json:"currency"`
	Status          PeriodStatus `json:"status"`
	SubscriptionNet int64        `json:"subscription_net"`
	PPVNet          int64        `json:"ppv_net"`
	PoolAmount      int64        `json:"pool_amount"`
	PayoutCount     int64        `json:"payout_count"`
	PayoutTotal     int64        `json:"payout_total"`
	PaidTotal       int64        `json:"paid_total"`
}

type SummariesResponse struct {
	Periods []PeriodSummary `json:"periods"`
}

type Service interface {
	List(ctx context.Context) (ListResponse, error)
	ListSummaries(ctx context.Context) (SummariesResponse, error)
	GetByID(ctx context.Context, id string) (RevenuePeriod, error)
	GetOrCreate(ctx context.Context, req GetOrCreateRequest) (RevenuePeriod, error)
	Update(ctx context.Context, req UpdateRequest) (RevenuePeriod, error)
	Close(ctx context.Context, id string) (RevenuePeriod, error)
	Finalize(ctx context.Context, id string) (RevenuePeriod, error)
}

var (
	ErrNotFound        = errors.New("period_not_found")
	ErrInvalidState    = errors.New("period_invalid_state")
	ErrInvalidID       = errors.New("invalid_period_id")
	ErrInvalidMonth    = errors.New("invalid_period_month")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrNegativeAmount  = errors.New("negative_amount")
	ErrNegativeNet     = errors.New("negative_net_revenue")
)

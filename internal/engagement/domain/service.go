package domain

import (
	"context"
	"errors"
	"time"
)

// ActivitySource yields raw reading-activity facts for a time window. The
// aggregator does not know or care how they were produced.
type ActivitySource interface {
	FactsForRange(ctx context.Context, from, to time.Time) ([]ActivityFact, error)
}

// AggregateRequest scopes an aggregation run to one period.
type AggregateRequest struct {
	Month    string
	Currency string
}

// AggregateSummary backs the operator feedback line after a run.
type AggregateSummary struct {
	PeriodID       string `json:"period_id"`
	BooksProcessed int    `json:"books_processed"`
	EligibleCount  int    `json:"eligible_count"`
	TotalUnits     int64  `json:"total_units"`
}

type Service interface {
	Aggregate(ctx context.Context, req AggregateRequest) (AggregateSummary, error)
	ListByPeriod(ctx context.Context, periodID string) ([]EngagementAggregate, error)
}

var (
	ErrNegativeUnits = errors.New("negative_unit_count")
)

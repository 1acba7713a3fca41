package domain

import (
	"context"
	"errors"

	"github.com/chapterly/revenue/pkg/db/pagination"
)

type ListRequest struct {
	Status    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	Payouts  []Payout            `json:"payouts"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// DashboardStats backs the admin payout dashboard header.
type DashboardStats struct {
	PendingCount  int64 `json:"pending_count"`
	PendingAmount int64 `json:"pending_amount"`
	ApprovedCount int64 `json:"approved_count"`
	PaidThisMonth int64 `json:"paid_this_month"`
	ActiveAuthors int64 `json:"active_authors"`
}

// BulkApproveResult is the per-id outcome of a best-effort batch approval.
type BulkApproveResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	BulkResultApproved        = "approved"
	BulkResultAlreadyApproved = "already_approved"
	BulkResultFailed          = "failed"
)

// RecordSaleRequest creates a ppv payout from a purchase event. PurchaseID is
// the idempotency key: replaying the same purchase returns the existing row.
type RecordSaleRequest struct {
	PurchaseID string
	AuthorID   string
	Amount     int64
	Currency   string
}

type Service interface {
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	GetByID(ctx context.Context, id string) (Payout, error)
	DashboardStats(ctx context.Context) (DashboardStats, error)
	Approve(ctx context.Context, id string) (Payout, error)
	BulkApprove(ctx context.Context, ids []string) ([]BulkApproveResult, error)
	MarkPaid(ctx context.Context, id string) (Payout, error)
	Cancel(ctx context.Context, id string) (Payout, error)
	RecordSale(ctx context.Context, req RecordSaleRequest) (Payout, error)
}

var (
	ErrNotFound            = errors.New("payout_not_found")
	ErrInvalidState        = errors.New("payout_invalid_state")
	ErrConflictingState    = errors.New("payout_conflicting_state")
	ErrInvalidID           = errors.New("invalid_payout_id")
	ErrInvalidAmount       = errors.New("invalid_payout_amount")
	ErrInvalidCurrency     = errors.New("invalid_payout_currency")
	ErrInvalidStatusFilter = errors.New("invalid_status_filter")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidAuthor       = errors.New("invalid_author")
	ErrInvalidPurchase     = errors.New("invalid_purchase")
)

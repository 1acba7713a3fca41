package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/chapterly/revenue/internal/audit/domain"
	auditrepository "github.com/chapterly/revenue/internal/audit/repository"
	auditservice "github.com/chapterly/revenue/internal/audit/service"
	"github.com/chapterly/revenue/internal/clock"
	"github.com/chapterly/revenue/internal/config"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	"github.com/chapterly/revenue/internal/payout/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type payoutFixture struct {
	svc   payoutdomain.Service
	repo  repository.Repository
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&payoutdomain.Payout{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	logger := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	repo := repository.Provide()
	svc := NewService(Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: fake,
		Config: config.Config{
			DefaultCurrency:    "USD",
			BulkApproveWorkers: 1,
		},
		Repo:     repo,
		AuditSvc: auditSvc,
	})

	return &payoutFixture{svc: svc, repo: repo, db: db, node: node, clock: fake}
}

func (f *payoutFixture) addPayout(t *testing.T, status payoutdomain.PayoutStatus, amount int64) payoutdomain.Payout {
	t.Helper()

	purchase := f.node.Generate()
	payout := payoutdomain.Payout{
		ID:         f.node.Generate(),
		Type:       payoutdomain.PayoutTypePPV,
		AuthorID:   f.node.Generate(),
		Amount:     amount,
		Currency:   "USD",
		Status:     status,
		PurchaseID: &purchase,
		CreatedAt:  f.clock.Now(),
		UpdatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, &payout))
	return payout
}

func TestRecordSaleIsIdempotent(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	req := payoutdomain.RecordSaleRequest{
		PurchaseID: f.node.Generate().String(),
		AuthorID:   f.node.Generate().String(),
		Amount:     4900,
		Currency:   "usd",
	}

	first, err := f.svc.RecordSale(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusPending, first.Status)
	assert.Equal(t, payoutdomain.PayoutTypePPV, first.Type)
	assert.Equal(t, "USD", first.Currency)

	// Replayed purchase event returns the existing row.
	replay, err := f.svc.RecordSale(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	var count int64
	require.NoError(t, f.db.Model(&payoutdomain.Payout{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordSaleValidation(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	valid := payoutdomain.RecordSaleRequest{
		PurchaseID: f.node.Generate().String(),
		AuthorID:   f.node.Generate().String(),
		Amount:     100,
		Currency:   "USD",
	}

	bad := valid
	bad.PurchaseID = "nope"
	_, err := f.svc.RecordSale(ctx, bad)
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidPurchase)

	bad = valid
	bad.AuthorID = ""
	_, err = f.svc.RecordSale(ctx, bad)
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidAuthor)

	bad = valid
	bad.Amount = -1
	_, err = f.svc.RecordSale(ctx, bad)
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidAmount)

	bad = valid
	bad.Currency = "US"
	_, err = f.svc.RecordSale(ctx, bad)
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidCurrency)
}

func TestApproveWorkflow(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	payout := f.addPayout(t, payoutdomain.PayoutStatusPending, 1000)

	approved, err := f.svc.Approve(ctx, payout.ID.String())
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusApproved, approved.Status)

	// Approving again is a no-op, not an error.
	again, err := f.svc.Approve(ctx, payout.ID.String())
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusApproved, again.Status)

	paid, err := f.svc.MarkPaid(ctx, payout.ID.String())
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusPaid, paid.Status)

	// Paid stays paid on replayed approval or payment.
	_, err = f.svc.Approve(ctx, payout.ID.String())
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, payout.ID.String())
	require.NoError(t, err)
}

func TestInvalidTransitions(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	pending := f.addPayout(t, payoutdomain.PayoutStatusPending, 1000)
	_, err := f.svc.MarkPaid(ctx, pending.ID.String())
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidState, "pending cannot be paid without approval")

	cancelled := f.addPayout(t, payoutdomain.PayoutStatusCancelled, 1000)
	_, err = f.svc.Approve(ctx, cancelled.ID.String())
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidState)
	_, err = f.svc.MarkPaid(ctx, cancelled.ID.String())
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidState)

	paid := f.addPayout(t, payoutdomain.PayoutStatusPaid, 1000)
	_, err = f.svc.Cancel(ctx, paid.ID.String())
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidState, "paid money needs an out-of-band reversal")

	_, err = f.svc.Approve(ctx, "94837163")
	assert.ErrorIs(t, err, payoutdomain.ErrNotFound)

	_, err = f.svc.Approve(ctx, "garbage")
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidID)
}

func TestCancelWorkflow(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	pending := f.addPayout(t, payoutdomain.PayoutStatusPending, 1000)
	cancelled, err := f.svc.Cancel(ctx, pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusCancelled, cancelled.Status)

	// Cancel is idempotent.
	_, err = f.svc.Cancel(ctx, pending.ID.String())
	require.NoError(t, err)

	approved := f.addPayout(t, payoutdomain.PayoutStatusApproved, 1000)
	cancelled, err = f.svc.Cancel(ctx, approved.ID.String())
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusCancelled, cancelled.Status)
}

func TestBulkApproveMixedBatch(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	pending := f.addPayout(t, payoutdomain.PayoutStatusPending, 1000)
	approved := f.addPayout(t, payoutdomain.PayoutStatusApproved, 2000)
	cancelled := f.addPayout(t, payoutdomain.PayoutStatusCancelled, 3000)

	results, err := f.svc.BulkApprove(ctx, []string{
		pending.ID.String(),
		approved.ID.String(),
		cancelled.ID.String(),
		"73621",
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, payoutdomain.BulkResultApproved, results[0].Status)
	assert.Equal(t, payoutdomain.BulkResultAlreadyApproved, results[1].Status)
	assert.Equal(t, payoutdomain.BulkResultFailed, results[2].Status)
	assert.Equal(t, payoutdomain.ErrInvalidState.Error(), results[2].Error)
	assert.Equal(t, payoutdomain.BulkResultFailed, results[3].Status)

	// The cancelled row was left alone.
	got, err := f.svc.GetByID(ctx, cancelled.ID.String())
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.PayoutStatusCancelled, got.Status)
}

func TestListFiltersByStatus(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addPayout(t, payoutdomain.PayoutStatusPending, 1000)
	f.addPayout(t, payoutdomain.PayoutStatusPending, 2000)
	f.addPayout(t, payoutdomain.PayoutStatusPaid, 3000)

	all, err := f.svc.List(ctx, payoutdomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Payouts, 3)

	pending, err := f.svc.List(ctx, payoutdomain.ListRequest{Status: "Pending"})
	require.NoError(t, err)
	assert.Len(t, pending.Payouts, 2)

	_, err = f.svc.List(ctx, payoutdomain.ListRequest{Status: "done"})
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidStatusFilter)
}

func TestListPaginatesWithCursor(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.addPayout(t, payoutdomain.PayoutStatusPending, int64(100*(i+1)))
		f.clock.Advance(time.Minute)
	}

	first, err := f.svc.List(ctx, payoutdomain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Payouts, 2)
	require.True(t, first.PageInfo.HasMore)

	second, err := f.svc.List(ctx, payoutdomain.ListRequest{
		PageSize:  2,
		PageToken: first.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second.Payouts, 2)
	assert.True(t, second.PageInfo.HasMore)

	// Newest first, no overlap across pages.
	seen := map[snowflake.ID]bool{}
	for _, p := range append(first.Payouts, second.Payouts...) {
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}

	last, err := f.svc.List(ctx, payoutdomain.ListRequest{
		PageSize:  2,
		PageToken: second.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	assert.Len(t, last.Payouts, 1)
	assert.False(t, last.PageInfo.HasMore)

	_, err = f.svc.List(ctx, payoutdomain.ListRequest{PageToken: "%%%"})
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidPageToken)
}

func TestDashboardStats(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addPayout(t, payoutdomain.PayoutStatusPending, 1000)
	f.addPayout(t, payoutdomain.PayoutStatusPending, 500)
	f.addPayout(t, payoutdomain.PayoutStatusApproved, 2000)
	f.addPayout(t, payoutdomain.PayoutStatusPaid, 7000)
	f.addPayout(t, payoutdomain.PayoutStatusCancelled, 9000)

	stats, err := f.svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PendingCount)
	assert.Equal(t, int64(1500), stats.PendingAmount)
	assert.Equal(t, int64(1), stats.ApprovedCount)
	assert.Equal(t, int64(7000), stats.PaidThisMonth)
	assert.Equal(t, int64(4), stats.ActiveAuthors)
}

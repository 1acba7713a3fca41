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
	pooldomain "github.com/chapterly/revenue/internal/creatorpool/domain"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	"github.com/chapterly/revenue/internal/revenueperiod/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newPeriodService(t *testing.T) (perioddomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&perioddomain.RevenuePeriod{},
		&pooldomain.CreatorPool{},
		&payoutdomain.Payout{},
		&auditdomain.AuditLog{},
	))

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

	svc := NewService(Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: fake,
		Config: config.Config{
			DefaultCurrency:    "USD",
			DefaultPoolPercent: decimal.NewFromInt(30),
		},
		Repo:     repository.Provide(),
		AuditSvc: auditSvc,
	})
	return svc, db, fake
}

func TestGetOrCreateDefaultsToCurrentMonth(t *testing.T) {
	svc, _, _ := newPeriodService(t)
	ctx := context.Background()

	period, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "2025-03", period.Month)
	assert.Equal(t, "USD", period.Currency)
	assert.Equal(t, perioddomain.PeriodStatusOpen, period.Status)

	again, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-03", Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, period.ID, again.ID)
}

func TestGetOrCreateValidation(t *testing.T) {
	svc, _, _ := newPeriodService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-13"})
	assert.ErrorIs(t, err, perioddomain.ErrInvalidMonth)

	_, err = svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "March 2025"})
	assert.ErrorIs(t, err, perioddomain.ErrInvalidMonth)

	_, err = svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Currency: "USDD"})
	assert.ErrorIs(t, err, perioddomain.ErrInvalidCurrency)
}

func TestUpdateDerivesNetTotals(t *testing.T) {
	svc, _, _ := newPeriodService(t)
	ctx := context.Background()

	period, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-02"})
	require.NoError(t, err)

	gross := int64(250000)
	fees := int64(25000)
	refunds := int64(5000)
	ppvGross := int64(40000)

	updated, err := svc.Update(ctx, perioddomain.UpdateRequest{
		ID:                  period.ID.String(),
		SubscriptionGross:   &gross,
		SubscriptionFees:    &fees,
		SubscriptionRefunds: &refunds,
		PPVGross:            &ppvGross,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(220000), updated.SubscriptionNet)
	assert.Equal(t, int64(40000), updated.PPVNet)

	// Partial update keeps the untouched fields.
	newFees := int64(30000)
	updated, err = svc.Update(ctx, perioddomain.UpdateRequest{
		ID:               period.ID.String(),
		SubscriptionFees: &newFees,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250000), updated.SubscriptionGross)
	assert.Equal(t, int64(215000), updated.SubscriptionNet)
}

func TestUpdateRejectsNegativeFigures(t *testing.T) {
	svc, _, _ := newPeriodService(t)
	ctx := context.Background()

	period, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-02"})
	require.NoError(t, err)

	negative := int64(-1)
	_, err = svc.Update(ctx, perioddomain.UpdateRequest{
		ID:                period.ID.String(),
		SubscriptionGross: &negative,
	})
	assert.ErrorIs(t, err, perioddomain.ErrNegativeAmount)

	gross := int64(1000)
	fees := int64(2000)
	_, err = svc.Update(ctx, perioddomain.UpdateRequest{
		ID:                period.ID.String(),
		SubscriptionGross: &gross,
		SubscriptionFees:  &fees,
	})
	assert.ErrorIs(t, err, perioddomain.ErrNegativeNet)
}

func TestPeriodLifecycleTransitions(t *testing.T) {
	svc, _, _ := newPeriodService(t)
	ctx := context.Background()

	period, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-01"})
	require.NoError(t, err)

	// Finalize requires closed first.
	_, err = svc.Finalize(ctx, period.ID.String())
	assert.ErrorIs(t, err, perioddomain.ErrInvalidState)

	closed, err := svc.Close(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, perioddomain.PeriodStatusClosed, closed.Status)

	_, err = svc.Close(ctx, period.ID.String())
	assert.ErrorIs(t, err, perioddomain.ErrInvalidState)

	finalized, err := svc.Finalize(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, perioddomain.PeriodStatusFinalized, finalized.Status)

	// A finalized period is immutable.
	gross := int64(100)
	_, err = svc.Update(ctx, perioddomain.UpdateRequest{ID: period.ID.String(), SubscriptionGross: &gross})
	assert.ErrorIs(t, err, perioddomain.ErrInvalidState)
}

func TestTransitionUnknownPeriod(t *testing.T) {
	svc, _, _ := newPeriodService(t)
	ctx := context.Background()

	_, err := svc.Close(ctx, "123456789")
	assert.ErrorIs(t, err, perioddomain.ErrNotFound)

	_, err = svc.Close(ctx, "not-a-number")
	assert.ErrorIs(t, err, perioddomain.ErrInvalidID)
}

func TestLifecycleWritesAuditTrail(t *testing.T) {
	svc, db, _ := newPeriodService(t)
	ctx := context.Background()

	period, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-01"})
	require.NoError(t, err)

	_, err = svc.Close(ctx, period.ID.String())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).
		Where("target_type = ? AND target_id = ?", "revenue_period", period.ID.String()).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListSummariesRollsUpPoolAndPayouts(t *testing.T) {
	svc, db, fake := newPeriodService(t)
	ctx := context.Background()

	withPayouts, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-02"})
	require.NoError(t, err)
	empty, err := svc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: "2025-03"})
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	now := fake.Now()
	require.NoError(t, db.Create(&pooldomain.CreatorPool{
		ID:                 node.Generate(),
		PeriodID:           withPayouts.ID,
		PoolPercent:        decimal.NewFromInt(30),
		PoolAmountNet:      30000,
		TotalEligibleUnits: 10,
		CalculatedAt:       &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}).Error)

	mkPayout := func(amount int64, status payoutdomain.PayoutStatus) payoutdomain.Payout {
		periodID := withPayouts.ID
		return payoutdomain.Payout{
			ID:        node.Generate(),
			Type:      payoutdomain.PayoutTypeSubscriptionPool,
			AuthorID:  node.Generate(),
			Amount:    amount,
			Currency:  "USD",
			Status:    status,
			PeriodID:  &periodID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	require.NoError(t, db.Create([]payoutdomain.Payout{
		mkPayout(21000, payoutdomain.PayoutStatusPaid),
		mkPayout(9000, payoutdomain.PayoutStatusPending),
		mkPayout(5000, payoutdomain.PayoutStatusCancelled),
	}).Error)

	resp, err := svc.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Periods, 2)

	// Most recent month first.
	assert.Equal(t, empty.ID.String(), resp.Periods[0].PeriodID)
	assert.Equal(t, int64(0), resp.Periods[0].PoolAmount)
	assert.Equal(t, int64(0), resp.Periods[0].PayoutCount)

	got := resp.Periods[1]
	assert.Equal(t, withPayouts.ID.String(), got.PeriodID)
	assert.Equal(t, "2025-02", got.Month)
	assert.Equal(t, perioddomain.PeriodStatusOpen, got.Status)
	assert.Equal(t, int64(30000), got.PoolAmount)
	assert.Equal(t, int64(3), got.PayoutCount)
	assert.Equal(t, int64(30000), got.PayoutTotal)
	assert.Equal(t, int64(21000), got.PaidTotal)
}

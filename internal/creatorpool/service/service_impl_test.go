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
	engagementdomain "github.com/chapterly/revenue/internal/engagement/domain"
	engagementrepository "github.com/chapterly/revenue/internal/engagement/repository"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	payoutrepository "github.com/chapterly/revenue/internal/payout/repository"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	periodrepository "github.com/chapterly/revenue/internal/revenueperiod/repository"
	periodservice "github.com/chapterly/revenue/internal/revenueperiod/service"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type poolFixture struct {
	svc            pooldomain.Service
	periodSvc      perioddomain.Service
	engagementRepo engagementrepository.Repository
	payoutRepo     payoutrepository.Repository
	db             *gorm.DB
	node           *snowflake.Node
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&perioddomain.RevenuePeriod{},
		&engagementdomain.EngagementAggregate{},
		&pooldomain.CreatorPool{},
		&payoutdomain.Payout{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	logger := zap.NewNop()
	cfg := config.Config{
		DefaultCurrency:    "USD",
		DefaultPoolPercent: decimal.NewFromInt(30),
		MinEngagementUnits: 10,
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	periodRepo := periodrepository.Provide()
	periodSvc := periodservice.NewService(periodservice.Params{
		DB:       db,
		Log:      logger,
		GenID:    node,
		Clock:    fake,
		Config:   cfg,
		Repo:     periodRepo,
		AuditSvc: auditSvc,
	})

	engagementRepo := engagementrepository.Provide()
	payoutRepo := payoutrepository.Provide()

	svc := NewService(Params{
		DB:             db,
		Log:            logger,
		GenID:          node,
		Clock:          fake,
		Config:         cfg,
		PeriodRepo:     periodRepo,
		EngagementRepo: engagementRepo,
		PayoutRepo:     payoutRepo,
		AuditSvc:       auditSvc,
	})

	return &poolFixture{
		svc:            svc,
		periodSvc:      periodSvc,
		engagementRepo: engagementRepo,
		payoutRepo:     payoutRepo,
		db:             db,
		node:           node,
	}
}

func (f *poolFixture) addPeriod(t *testing.T, month string, subscriptionNet int64) perioddomain.RevenuePeriod {
	t.Helper()
	ctx := context.Background()

	period, err := f.periodSvc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{Month: month})
	require.NoError(t, err)

	gross := subscriptionNet
	period, err = f.periodSvc.Update(ctx, perioddomain.UpdateRequest{
		ID:                period.ID.String(),
		SubscriptionGross: &gross,
	})
	require.NoError(t, err)
	return period
}

func (f *poolFixture) addAggregates(t *testing.T, periodID snowflake.ID, unitsByAuthor map[snowflake.ID]int64) {
	t.Helper()

	rows := make([]engagementdomain.EngagementAggregate, 0, len(unitsByAuthor))
	for authorID, units := range unitsByAuthor {
		rows = append(rows, engagementdomain.EngagementAggregate{
			ID:        f.node.Generate(),
			PeriodID:  periodID,
			BookID:    f.node.Generate(),
			AuthorID:  authorID,
			Units:     units,
			Eligible:  units > 0,
			CreatedAt: time.Now().UTC(),
		})
	}
	require.NoError(t, f.engagementRepo.ReplaceForPeriod(context.Background(), f.db, periodID, rows))
}

func (f *poolFixture) poolPayouts(t *testing.T, periodID snowflake.ID) map[snowflake.ID]payoutdomain.Payout {
	t.Helper()

	payouts, err := f.payoutRepo.ListPoolByPeriod(context.Background(), f.db, periodID)
	require.NoError(t, err)

	byAuthor := make(map[snowflake.ID]payoutdomain.Payout, len(payouts))
	for _, p := range payouts {
		byAuthor[p.AuthorID] = p
	}
	return byAuthor
}

func TestCalculateDistributesPool(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	alice := f.node.Generate()
	bob := f.node.Generate()
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{alice: 7, bob: 3})

	summary, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(30000), summary.PoolAmount)
	assert.Equal(t, 2, summary.BooksCount)
	assert.Equal(t, 2, summary.AuthorsCount)

	payouts := f.poolPayouts(t, period.ID)
	require.Len(t, payouts, 2)
	assert.Equal(t, int64(21000), payouts[alice].Amount)
	assert.Equal(t, int64(9000), payouts[bob].Amount)
	assert.Equal(t, payoutdomain.PayoutStatusPending, payouts[alice].Status)
	assert.Equal(t, int64(7), payouts[alice].EngagementUnits)
	assert.Equal(t, "USD", payouts[alice].Currency)

	pool, err := f.svc.GetByPeriod(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(30000), pool.PoolAmountNet)
	assert.Equal(t, int64(10), pool.TotalEligibleUnits)
	require.NotNil(t, pool.CalculatedAt)

	report, err := f.svc.VerifyConservation(ctx, period.ID.String())
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(30000), report.PayoutSum)
}

func TestCalculateSplitsRemainderCents(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	authors := []snowflake.ID{f.node.Generate(), f.node.Generate(), f.node.Generate()}
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{
		authors[0]: 1, authors[1]: 1, authors[2]: 1,
	})

	_, err := f.svc.UpdatePercent(ctx, pooldomain.UpdatePercentRequest{
		PeriodID:    period.ID.String(),
		PoolPercent: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	summary, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(10000), summary.PoolAmount)

	payouts := f.poolPayouts(t, period.ID)
	require.Len(t, payouts, 3)

	var sum int64
	amounts := map[int64]int{}
	for _, p := range payouts {
		sum += p.Amount
		amounts[p.Amount]++
	}
	assert.Equal(t, int64(10000), sum)
	assert.Equal(t, 1, amounts[3334])
	assert.Equal(t, 2, amounts[3333])

	report, err := f.svc.VerifyConservation(ctx, period.ID.String())
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

func TestCalculateRequiresAggregation(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	_, err := f.svc.Calculate(ctx, period.ID.String())
	assert.ErrorIs(t, err, pooldomain.ErrAggregationRequired)
}

func TestCalculateWithoutEligibleUnits(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{f.node.Generate(): 0})

	summary, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(30000), summary.PoolAmount)
	assert.Equal(t, 0, summary.AuthorsCount)

	payouts := f.poolPayouts(t, period.ID)
	assert.Empty(t, payouts)

	// Nothing was distributable, so an empty payout set reconciles clean.
	report, err := f.svc.VerifyConservation(ctx, period.ID.String())
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(30000), report.PoolAmountNet)
	assert.Equal(t, int64(0), report.PayoutSum)
}

func TestRecalculateWithoutChangesKeepsPayouts(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	alice := f.node.Generate()
	bob := f.node.Generate()
	carol := f.node.Generate()
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{alice: 7, bob: 3, carol: 1})

	first, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)
	before := f.poolPayouts(t, period.ID)
	require.Len(t, before, 3)

	second, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, first.PoolAmount, second.PoolAmount)
	assert.Equal(t, first.AuthorsCount, second.AuthorsCount)

	// Same rows, same amounts: the rerun upserts in place instead of
	// inserting duplicates.
	after := f.poolPayouts(t, period.ID)
	require.Len(t, after, 3)
	for authorID, prev := range before {
		assert.Equal(t, prev.ID, after[authorID].ID)
		assert.Equal(t, prev.Amount, after[authorID].Amount)
		assert.Equal(t, payoutdomain.PayoutStatusPending, after[authorID].Status)
	}

	report, err := f.svc.VerifyConservation(ctx, period.ID.String())
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

func TestUpdatePercentValidation(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)

	_, err := f.svc.UpdatePercent(ctx, pooldomain.UpdatePercentRequest{
		PeriodID:    period.ID.String(),
		PoolPercent: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, pooldomain.ErrInvalidPercent)

	_, err = f.svc.UpdatePercent(ctx, pooldomain.UpdatePercentRequest{
		PeriodID:    period.ID.String(),
		PoolPercent: decimal.NewFromInt(101),
	})
	assert.ErrorIs(t, err, pooldomain.ErrInvalidPercent)

	pool, err := f.svc.UpdatePercent(ctx, pooldomain.UpdatePercentRequest{
		PeriodID:    period.ID.String(),
		PoolPercent: decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	assert.True(t, pool.PoolPercent.Equal(decimal.NewFromInt(25)))

	// Configured percent overrides the default on the next run.
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{f.node.Generate(): 10})
	summary, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(25000), summary.PoolAmount)
}

func TestRecalculateReassignsShares(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	alice := f.node.Generate()
	bob := f.node.Generate()
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{alice: 10, bob: 10})

	_, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)

	// Bob falls out of eligibility; his pending payout is zeroed, not
	// removed, and the full pool reroutes to Alice.
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{alice: 10})
	summary, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AuthorsCount)

	payouts := f.poolPayouts(t, period.ID)
	require.Len(t, payouts, 2)
	assert.Equal(t, int64(30000), payouts[alice].Amount)
	assert.Equal(t, int64(0), payouts[bob].Amount)
	assert.Equal(t, payoutdomain.PayoutStatusPending, payouts[bob].Status)

	report, err := f.svc.VerifyConservation(ctx, period.ID.String())
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

func TestCalculateRefusesCommittedPayouts(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	alice := f.node.Generate()
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{alice: 10})

	_, err := f.svc.Calculate(ctx, period.ID.String())
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(
		`UPDATE payouts SET status = 'approved' WHERE period_id = ?`, period.ID,
	).Error)

	_, err = f.svc.Calculate(ctx, period.ID.String())
	assert.ErrorIs(t, err, payoutdomain.ErrConflictingState)

	// The approved amount must be untouched.
	payouts := f.poolPayouts(t, period.ID)
	assert.Equal(t, int64(30000), payouts[alice].Amount)
}

func TestCalculateRejectsFinalizedPeriod(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)
	f.addAggregates(t, period.ID, map[snowflake.ID]int64{f.node.Generate(): 10})

	_, err := f.periodSvc.Close(ctx, period.ID.String())
	require.NoError(t, err)
	_, err = f.periodSvc.Finalize(ctx, period.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Calculate(ctx, period.ID.String())
	assert.ErrorIs(t, err, perioddomain.ErrInvalidState)
}

func TestVerifyConservationPreconditions(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	period := f.addPeriod(t, "2025-03", 100000)

	_, err := f.svc.VerifyConservation(ctx, period.ID.String())
	assert.ErrorIs(t, err, pooldomain.ErrNotFound)

	_, err = f.svc.UpdatePercent(ctx, pooldomain.UpdatePercentRequest{
		PeriodID:    period.ID.String(),
		PoolPercent: decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	_, err = f.svc.VerifyConservation(ctx, period.ID.String())
	assert.ErrorIs(t, err, pooldomain.ErrNotCalculated)
}

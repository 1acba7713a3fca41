package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/chapterly/revenue/internal/audit/domain"
	"github.com/chapterly/revenue/internal/clock"
	"github.com/chapterly/revenue/internal/config"
	pooldomain "github.com/chapterly/revenue/internal/creatorpool/domain"
	engagementrepository "github.com/chapterly/revenue/internal/engagement/repository"
	obsmetrics "github.com/chapterly/revenue/internal/observability/metrics"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	payoutrepository "github.com/chapterly/revenue/internal/payout/repository"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	periodrepository "github.com/chapterly/revenue/internal/revenueperiod/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         config.Config
	PeriodRepo     periodrepository.Repository
	EngagementRepo engagementrepository.Repository
	PayoutRepo     payoutrepository.Repository
	AuditSvc       auditdomain.Service
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	cfg            config.Config
	periodRepo     periodrepository.Repository
	engagementRepo engagementrepository.Repository
	payoutRepo     payoutrepository.Repository
	auditSvc       auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) pooldomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("creatorpool.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		cfg:            p.Config,
		periodRepo:     p.PeriodRepo,
		engagementRepo: p.EngagementRepo,
		payoutRepo:     p.PayoutRepo,
		auditSvc:       p.AuditSvc,
		obsMetrics:     p.ObsMetrics,
	}
}

const poolColumns = `id, period_id, pool_percent, pool_amount_net, total_eligible_units,
	calculated_at, created_at, updated_at`

func (s *Service) GetByPeriod(ctx context.Context, periodID string) (pooldomain.CreatorPool, error) {
	id, err := parsePeriodID(periodID)
	if err != nil {
		return pooldomain.CreatorPool{}, err
	}

	pool, err := s.findPool(ctx, s.db, id)
	if err != nil {
		return pooldomain.CreatorPool{}, err
	}
	if pool == nil {
		return pooldomain.CreatorPool{}, pooldomain.ErrNotFound
	}
	return *pool, nil
}

// UpdatePercent configures a period's pool share without recalculating.
// Creates the pool row on first use.
func (s *Service) UpdatePercent(ctx context.Context, req pooldomain.UpdatePercentRequest) (pooldomain.CreatorPool, error) {
	id, err := parsePeriodID(req.PeriodID)
	if err != nil {
		return pooldomain.CreatorPool{}, err
	}
	if !pooldomain.ValidPercent(req.PoolPercent) {
		return pooldomain.CreatorPool{}, pooldomain.ErrInvalidPercent
	}

	var result pooldomain.CreatorPool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		period, err := s.periodRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if period == nil {
			return perioddomain.ErrNotFound
		}
		if period.Finalized() {
			return perioddomain.ErrInvalidState
		}

		pool, err := s.findPool(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if pool == nil {
			pool = &pooldomain.CreatorPool{
				ID:          s.genID.Generate(),
				PeriodID:    id,
				PoolPercent: req.PoolPercent,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO creator_pools (`+poolColumns+`)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				pool.ID, pool.PeriodID, pool.PoolPercent, pool.PoolAmountNet,
				pool.TotalEligibleUnits, pool.CalculatedAt, pool.CreatedAt, pool.UpdatedAt,
			).Error; err != nil {
				return err
			}
		} else {
			pool.PoolPercent = req.PoolPercent
			pool.UpdatedAt = now
			if err := tx.WithContext(ctx).Exec(
				`UPDATE creator_pools SET pool_percent = ?, updated_at = ? WHERE id = ?`,
				pool.PoolPercent, pool.UpdatedAt, pool.ID,
			).Error; err != nil {
				return err
			}
		}

		result = *pool
		return s.auditSvc.Log(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeOperator,
			Action:     "creator_pool.percent_updated",
			TargetType: "revenue_period",
			TargetID:   id.String(),
			Metadata:   map[string]any{"pool_percent": req.PoolPercent.String()},
		})
	})
	if err != nil {
		return pooldomain.CreatorPool{}, err
	}
	return result, nil
}

// Calculate derives the pool amount from the period's subscription net
// revenue and distributes it across eligible authors with largest-remainder
// apportionment. The whole run is one transaction holding the period row, so
// a concurrent approval or rerun cannot interleave with its writes.
func (s *Service) Calculate(ctx context.Context, periodID string) (pooldomain.CalculateSummary, error) {
	id, err := parsePeriodID(periodID)
	if err != nil {
		return pooldomain.CalculateSummary{}, err
	}

	var summary pooldomain.CalculateSummary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		period, err := s.periodRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if period == nil {
			return perioddomain.ErrNotFound
		}
		if period.Finalized() {
			return perioddomain.ErrInvalidState
		}

		aggregates, err := s.engagementRepo.ListByPeriod(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(aggregates) == 0 {
			return pooldomain.ErrAggregationRequired
		}

		pool, err := s.findPool(ctx, tx, id)
		if err != nil {
			return err
		}
		percent := s.cfg.DefaultPoolPercent
		if pool != nil {
			percent = pool.PoolPercent
		}

		poolAmount := pooldomain.PoolAmount(percent, period.SubscriptionNet)

		// Per-author eligible weight; an author with several eligible books
		// gets one payout carrying their summed units.
		unitsByAuthor := map[snowflake.ID]int64{}
		var totalEligibleUnits int64
		eligibleBooks := 0
		for _, agg := range aggregates {
			if !agg.Eligible {
				continue
			}
			eligibleBooks++
			totalEligibleUnits += agg.Units
			unitsByAuthor[agg.AuthorID] += agg.Units
		}

		existing, err := s.payoutRepo.ListPoolByPeriod(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if p.Status != payoutdomain.PayoutStatusPending {
				// Money already committed downstream; refuse to rewrite it.
				return payoutdomain.ErrConflictingState
			}
		}
		existingByAuthor := make(map[snowflake.ID]payoutdomain.Payout, len(existing))
		for _, p := range existing {
			existingByAuthor[p.AuthorID] = p
		}

		authors := make([]pooldomain.AuthorUnits, 0, len(unitsByAuthor))
		for authorID, units := range unitsByAuthor {
			authors = append(authors, pooldomain.AuthorUnits{AuthorID: authorID, Units: units})
		}
		sort.Slice(authors, func(i, j int) bool { return authors[i].AuthorID < authors[j].AuthorID })

		shares := pooldomain.Distribute(poolAmount, authors)

		now := s.clock.Now()
		totalDecimal := decimal.NewFromInt(totalEligibleUnits)
		for _, share := range shares {
			sharePercent := decimal.Zero
			if totalEligibleUnits > 0 {
				sharePercent = decimal.NewFromInt(share.Units).Div(totalDecimal).Mul(decimal.NewFromInt(100)).Round(6)
			}

			if prior, ok := existingByAuthor[share.AuthorID]; ok {
				prior.Amount = share.Amount
				prior.EngagementUnits = share.Units
				prior.PoolSharePercent = sharePercent
				prior.UpdatedAt = now
				if err := s.payoutRepo.UpdatePoolShare(ctx, tx, &prior); err != nil {
					return err
				}
				delete(existingByAuthor, share.AuthorID)
				continue
			}

			periodRef := id
			fresh := payoutdomain.Payout{
				ID:               s.genID.Generate(),
				Type:             payoutdomain.PayoutTypeSubscriptionPool,
				AuthorID:         share.AuthorID,
				Amount:           share.Amount,
				Currency:         period.Currency,
				Status:           payoutdomain.PayoutStatusPending,
				EngagementUnits:  share.Units,
				PoolSharePercent: sharePercent,
				PeriodID:         &periodRef,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := s.payoutRepo.Insert(ctx, tx, &fresh); err != nil {
				return err
			}
		}

		// Authors from a prior run who fell out of eligibility keep their
		// pending row at zero, preserving the audit trail and conservation.
		for _, stale := range existingByAuthor {
			stale.Amount = 0
			stale.EngagementUnits = 0
			stale.PoolSharePercent = decimal.Zero
			stale.UpdatedAt = now
			if err := s.payoutRepo.UpdatePoolShare(ctx, tx, &stale); err != nil {
				return err
			}
		}

		if err := s.savePool(ctx, tx, pool, id, percent, poolAmount, totalEligibleUnits, now); err != nil {
			return err
		}

		summary = pooldomain.CalculateSummary{
			PeriodID:     id.String(),
			PoolAmount:   poolAmount,
			BooksCount:   eligibleBooks,
			AuthorsCount: len(shares),
		}

		return s.auditSvc.Log(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeOperator,
			Action:     "creator_pool.calculated",
			TargetType: "revenue_period",
			TargetID:   id.String(),
			Metadata: map[string]any{
				"pool_percent":         percent.String(),
				"pool_amount_net":      poolAmount,
				"total_eligible_units": totalEligibleUnits,
				"authors_count":        len(shares),
			},
		})
	})
	if err != nil {
		s.observe("error")
		return pooldomain.CalculateSummary{}, err
	}

	s.observe("ok")
	s.obsMetrics.AddDistributedAmount(summary.PoolAmount)
	s.log.Info("calculated pool distribution",
		zap.String("period_id", summary.PeriodID),
		zap.Int64("pool_amount", summary.PoolAmount),
		zap.Int("authors_count", summary.AuthorsCount),
	)
	return summary, nil
}

// VerifyConservation checks that the period's pool payouts still sum to the
// recorded pool amount exactly.
func (s *Service) VerifyConservation(ctx context.Context, periodID string) (pooldomain.ReconciliationReport, error) {
	id, err := parsePeriodID(periodID)
	if err != nil {
		return pooldomain.ReconciliationReport{}, err
	}

	pool, err := s.findPool(ctx, s.db, id)
	if err != nil {
		return pooldomain.ReconciliationReport{}, err
	}
	if pool == nil {
		return pooldomain.ReconciliationReport{}, pooldomain.ErrNotFound
	}
	if pool.CalculatedAt == nil {
		return pooldomain.ReconciliationReport{}, pooldomain.ErrNotCalculated
	}

	sum, err := s.payoutRepo.SumPoolAmounts(ctx, s.db, id)
	if err != nil {
		return pooldomain.ReconciliationReport{}, err
	}

	// A calculated pool with no eligible units distributes nothing, so the
	// expected payout sum is zero rather than the recorded pool amount.
	balanced := sum == pool.PoolAmountNet
	if pool.TotalEligibleUnits == 0 {
		balanced = sum == 0
	}

	report := pooldomain.ReconciliationReport{
		PeriodID:      id.String(),
		PoolAmountNet: pool.PoolAmountNet,
		PayoutSum:     sum,
		Balanced:      balanced,
	}
	if !report.Balanced {
		s.log.Error("pool conservation mismatch",
			zap.String("period_id", report.PeriodID),
			zap.Int64("pool_amount_net", report.PoolAmountNet),
			zap.Int64("payout_sum", report.PayoutSum),
		)
	}
	return report, nil
}

func (s *Service) findPool(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (*pooldomain.CreatorPool, error) {
	var pool pooldomain.CreatorPool
	err := tx.WithContext(ctx).Raw(
		`SELECT `+poolColumns+` FROM creator_pools WHERE period_id = ?`,
		periodID,
	).Scan(&pool).Error
	if err != nil {
		return nil, err
	}
	if pool.ID == 0 {
		return nil, nil
	}
	return &pool, nil
}

func (s *Service) savePool(
	ctx context.Context,
	tx *gorm.DB,
	pool *pooldomain.CreatorPool,
	periodID snowflake.ID,
	percent decimal.Decimal,
	poolAmount int64,
	totalEligibleUnits int64,
	now time.Time,
) error {
	if pool == nil {
		fresh := pooldomain.CreatorPool{
			ID:                 s.genID.Generate(),
			PeriodID:           periodID,
			PoolPercent:        percent,
			PoolAmountNet:      poolAmount,
			TotalEligibleUnits: totalEligibleUnits,
			CalculatedAt:       &now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return tx.WithContext(ctx).Exec(
			`INSERT INTO creator_pools (`+poolColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fresh.ID, fresh.PeriodID, fresh.PoolPercent, fresh.PoolAmountNet,
			fresh.TotalEligibleUnits, fresh.CalculatedAt, fresh.CreatedAt, fresh.UpdatedAt,
		).Error
	}

	return tx.WithContext(ctx).Exec(
		`UPDATE creator_pools
		 SET pool_percent = ?, pool_amount_net = ?, total_eligible_units = ?, calculated_at = ?, updated_at = ?
		 WHERE id = ?`,
		percent, poolAmount, totalEligibleUnits, now, now, pool.ID,
	).Error
}

func (s *Service) observe(result string) {
	s.obsMetrics.ObservePoolCalculation(result)
}

func parsePeriodID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, perioddomain.ErrInvalidID
	}
	return id, nil
}

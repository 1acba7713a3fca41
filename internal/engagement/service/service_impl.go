package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/chapterly/revenue/internal/audit/domain"
	bookdomain "github.com/chapterly/revenue/internal/book/domain"
	"github.com/chapterly/revenue/internal/clock"
	"github.com/chapterly/revenue/internal/config"
	engagementdomain "github.com/chapterly/revenue/internal/engagement/domain"
	"github.com/chapterly/revenue/internal/engagement/repository"
	obsmetrics "github.com/chapterly/revenue/internal/observability/metrics"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	periodrepository "github.com/chapterly/revenue/internal/revenueperiod/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       repository.Repository
	PeriodSvc  perioddomain.Service
	PeriodRepo periodrepository.Repository
	Source     engagementdomain.ActivitySource
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	repo       repository.Repository
	periodSvc  perioddomain.Service
	periodRepo periodrepository.Repository
	source     engagementdomain.ActivitySource
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) engagementdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("engagement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		repo:       p.Repo,
		periodSvc:  p.PeriodSvc,
		periodRepo: p.PeriodRepo,
		source:     p.Source,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Aggregate reduces the month's raw reading activity to one snapshot row per
// book. Rerunning replaces the prior snapshot in full; it never adds to it.
func (s *Service) Aggregate(ctx context.Context, req engagementdomain.AggregateRequest) (engagementdomain.AggregateSummary, error) {
	period, err := s.periodSvc.GetOrCreate(ctx, perioddomain.GetOrCreateRequest{
		Month:    req.Month,
		Currency: req.Currency,
	})
	if err != nil {
		return engagementdomain.AggregateSummary{}, err
	}
	if period.Finalized() {
		s.observe("rejected")
		return engagementdomain.AggregateSummary{}, perioddomain.ErrInvalidState
	}

	from, to, err := perioddomain.MonthBounds(period.Month)
	if err != nil {
		return engagementdomain.AggregateSummary{}, perioddomain.ErrInvalidMonth
	}

	facts, err := s.source.FactsForRange(ctx, from, to)
	if err != nil {
		return engagementdomain.AggregateSummary{}, err
	}

	unitsByBook := make(map[snowflake.ID]int64, len(facts))
	for _, fact := range facts {
		if fact.UnitCount < 0 {
			return engagementdomain.AggregateSummary{}, engagementdomain.ErrNegativeUnits
		}
		unitsByBook[fact.BookID] += fact.UnitCount
	}

	bookIDs := make([]snowflake.ID, 0, len(unitsByBook))
	for id := range unitsByBook {
		bookIDs = append(bookIDs, id)
	}
	sort.Slice(bookIDs, func(i, j int) bool { return bookIDs[i] < bookIDs[j] })

	books, err := s.repo.FindBooks(ctx, s.db, bookIDs)
	if err != nil {
		return engagementdomain.AggregateSummary{}, err
	}

	now := s.clock.Now()
	summary := engagementdomain.AggregateSummary{PeriodID: period.ID.String()}
	rows := make([]engagementdomain.EngagementAggregate, 0, len(bookIDs))
	for _, bookID := range bookIDs {
		book, known := books[bookID]
		if !known {
			// Activity for a book this catalog no longer knows; skip rather
			// than attribute units to nobody.
			s.log.Warn("activity for unknown book", zap.String("book_id", bookID.String()))
			continue
		}

		units := unitsByBook[bookID]
		eligible := book.Status == bookdomain.BookStatusPublished && units >= s.cfg.MinEngagementUnits
		rows = append(rows, engagementdomain.EngagementAggregate{
			ID:        s.genID.Generate(),
			PeriodID:  period.ID,
			BookID:    bookID,
			AuthorID:  book.AuthorID,
			Units:     units,
			Eligible:  eligible,
			CreatedAt: now,
		})

		summary.BooksProcessed++
		summary.TotalUnits += units
		if eligible {
			summary.EligibleCount++
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.periodRepo.FindByIDForUpdate(ctx, tx, period.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return perioddomain.ErrNotFound
		}
		if locked.Finalized() {
			return perioddomain.ErrInvalidState
		}

		if err := s.repo.ReplaceForPeriod(ctx, tx, period.ID, rows); err != nil {
			return err
		}

		// First successful aggregation moves the period out of open.
		if locked.Status == perioddomain.PeriodStatusOpen {
			if _, err := s.periodRepo.UpdateStatus(ctx, tx, period.ID, perioddomain.PeriodStatusOpen, perioddomain.PeriodStatusClosed); err != nil {
				return err
			}
		}

		return s.auditSvc.Log(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeOperator,
			Action:     "engagement.aggregated",
			TargetType: "revenue_period",
			TargetID:   period.ID.String(),
			Metadata: map[string]any{
				"books_processed": summary.BooksProcessed,
				"eligible_count":  summary.EligibleCount,
				"total_units":     summary.TotalUnits,
			},
		})
	})
	if err != nil {
		s.observe("error")
		return engagementdomain.AggregateSummary{}, err
	}

	s.observe("ok")
	s.log.Info("aggregated engagement",
		zap.String("period_id", period.ID.String()),
		zap.Int("books_processed", summary.BooksProcessed),
		zap.Int("eligible_count", summary.EligibleCount),
		zap.Int64("total_units", summary.TotalUnits),
	)
	return summary, nil
}

func (s *Service) ListByPeriod(ctx context.Context, periodID string) ([]engagementdomain.EngagementAggregate, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(periodID))
	if err != nil || id == 0 {
		return nil, perioddomain.ErrInvalidID
	}
	return s.repo.ListByPeriod(ctx, s.db, id)
}

func (s *Service) observe(result string) {
	s.obsMetrics.ObserveAggregationRun(result)
}

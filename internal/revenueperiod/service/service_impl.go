package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/chapterly/revenue/internal/audit/domain"
	"github.com/chapterly/revenue/internal/clock"
	"github.com/chapterly/revenue/internal/config"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	"github.com/chapterly/revenue/internal/revenueperiod/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     repository.Repository
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	repo     repository.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) perioddomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("revenueperiod.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context) (perioddomain.ListResponse, error) {
	periods, err := s.repo.List(ctx, s.db)
	if err != nil {
		return perioddomain.ListResponse{}, err
	}
	return perioddomain.ListResponse{Periods: periods}, nil
}

type periodSummaryRow struct {
	ID              snowflake.ID `gorm:"column:id"`
	Month           string       `gorm:"column:month"`
	Currency        string       `gorm:"column:currency"`
	Status          string       `gorm:"column:status"`
	SubscriptionNet int64        `gorm:"column:subscription_net"`
	PPVNet          int64        `gorm:"column:ppv_net"`
	PoolAmount      int64        `gorm:"column:pool_amount"`
	PayoutCount     int64        `gorm:"column:payout_count"`
	PayoutTotal     int64        `gorm:"column:payout_total"`
	PaidTotal       int64        `gorm:"column:paid_total"`
}

// ListSummaries rolls up recent periods with their pool amount and payout
// totals for the operator dashboard. Cancelled payouts are excluded from the
// totals but counted as rows.
func (s *Service) ListSummaries(ctx context.Context) (perioddomain.SummariesResponse, error) {
	var rows []periodSummaryRow
	query := `
		SELECT rp.id,
		       rp.month,
		       rp.currency,
		       rp.status,
		       rp.subscription_net,
		       rp.ppv_net,
		       COALESCE(cp.pool_amount_net, 0) AS pool_amount,
		       COALESCE(pt.payout_count, 0) AS payout_count,
		       COALESCE(pt.payout_total, 0) AS payout_total,
		       COALESCE(pt.paid_total, 0) AS paid_total
		FROM revenue_periods rp
		LEFT JOIN creator_pools cp ON cp.period_id = rp.id
		LEFT JOIN (
			SELECT period_id,
			       COUNT(*) AS payout_count,
			       SUM(CASE WHEN status <> 'cancelled' THEN amount ELSE 0 END) AS payout_total,
			       SUM(CASE WHEN status = 'paid' THEN amount ELSE 0 END) AS paid_total
			FROM payouts
			WHERE period_id IS NOT NULL
			GROUP BY period_id
		) pt ON pt.period_id = rp.id
		ORDER BY rp.month DESC, rp.currency ASC
		LIMIT 12`

	if err := s.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return perioddomain.SummariesResponse{}, err
	}

	periods := make([]perioddomain.PeriodSummary, 0, len(rows))
	for _, row := range rows {
		periods = append(periods, perioddomain.PeriodSummary{
			PeriodID:        row.ID.String(),
			Month:           row.Month,
			Currency:        row.Currency,
			Status:          perioddomain.PeriodStatus(row.Status),
			SubscriptionNet: row.SubscriptionNet,
			PPVNet:          row.PPVNet,
			PoolAmount:      row.PoolAmount,
			PayoutCount:     row.PayoutCount,
			PayoutTotal:     row.PayoutTotal,
			PaidTotal:       row.PaidTotal,
		})
	}

	return perioddomain.SummariesResponse{Periods: periods}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (perioddomain.RevenuePeriod, error) {
	periodID, err := parsePeriodID(id)
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}

	period, err := s.repo.FindByID(ctx, s.db, periodID)
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}
	if period == nil {
		return perioddomain.RevenuePeriod{}, perioddomain.ErrNotFound
	}
	return *period, nil
}

// GetOrCreate converges concurrent callers on one row per (month, currency):
// the insert yields on conflict and the follow-up read returns whichever row
// won.
func (s *Service) GetOrCreate(ctx context.Context, req perioddomain.GetOrCreateRequest) (perioddomain.RevenuePeriod, error) {
	month := strings.TrimSpace(req.Month)
	if month == "" {
		month = perioddomain.MonthOf(s.clock.Now())
	}
	if _, err := perioddomain.ParseMonth(month); err != nil {
		return perioddomain.RevenuePeriod{}, perioddomain.ErrInvalidMonth
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if len(currency) != 3 {
		return perioddomain.RevenuePeriod{}, perioddomain.ErrInvalidCurrency
	}

	existing, err := s.repo.FindByMonthCurrency(ctx, s.db, month, currency)
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	now := s.clock.Now()
	fresh := perioddomain.RevenuePeriod{
		ID:        s.genID.Generate(),
		Month:     month,
		Currency:  currency,
		Status:    perioddomain.PeriodStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inserted, err := s.repo.Insert(ctx, s.db, &fresh)
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}
	if inserted {
		s.log.Info("created revenue period",
			zap.String("month", month),
			zap.String("currency", currency),
			zap.String("period_id", fresh.ID.String()),
		)
		return fresh, nil
	}

	// Lost the insert race; the winner's row is authoritative.
	existing, err = s.repo.FindByMonthCurrency(ctx, s.db, month, currency)
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}
	if existing == nil {
		return perioddomain.RevenuePeriod{}, perioddomain.ErrNotFound
	}
	return *existing, nil
}

func (s *Service) Update(ctx context.Context, req perioddomain.UpdateRequest) (perioddomain.RevenuePeriod, error) {
	periodID, err := parsePeriodID(req.ID)
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}

	for _, v := range []*int64{
		req.SubscriptionGross, req.SubscriptionFees, req.SubscriptionRefunds,
		req.PPVGross, req.PPVFees, req.PPVRefunds,
	} {
		if v != nil && *v < 0 {
			return perioddomain.RevenuePeriod{}, perioddomain.ErrNegativeAmount
		}
	}

	var updated perioddomain.RevenuePeriod
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		period, err := s.repo.FindByIDForUpdate(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if period == nil {
			return perioddomain.ErrNotFound
		}
		if period.Finalized() {
			return perioddomain.ErrInvalidState
		}

		applyInt64(&period.SubscriptionGross, req.SubscriptionGross)
		applyInt64(&period.SubscriptionFees, req.SubscriptionFees)
		applyInt64(&period.SubscriptionRefunds, req.SubscriptionRefunds)
		applyInt64(&period.PPVGross, req.PPVGross)
		applyInt64(&period.PPVFees, req.PPVFees)
		applyInt64(&period.PPVRefunds, req.PPVRefunds)

		period.SubscriptionNet = period.SubscriptionGross - period.SubscriptionFees - period.SubscriptionRefunds
		period.PPVNet = period.PPVGross - period.PPVFees - period.PPVRefunds
		if period.SubscriptionNet < 0 || period.PPVNet < 0 {
			return perioddomain.ErrNegativeNet
		}

		period.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(ctx, tx, period); err != nil {
			return err
		}

		updated = *period
		return s.auditSvc.Log(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeOperator,
			Action:     "revenue_period.updated",
			TargetType: "revenue_period",
			TargetID:   period.ID.String(),
			Metadata: map[string]any{
				"subscription_net": period.SubscriptionNet,
				"ppv_net":          period.PPVNet,
			},
		})
	})
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}
	return updated, nil
}

func (s *Service) Close(ctx context.Context, id string) (perioddomain.RevenuePeriod, error) {
	return s.transition(ctx, id, perioddomain.PeriodStatusOpen, perioddomain.PeriodStatusClosed, "revenue_period.closed")
}

func (s *Service) Finalize(ctx context.Context, id string) (perioddomain.RevenuePeriod, error) {
	return s.transition(ctx, id, perioddomain.PeriodStatusClosed, perioddomain.PeriodStatusFinalized, "revenue_period.finalized")
}

func (s *Service) transition(ctx context.Context, id string, from, to perioddomain.PeriodStatus, action string) (perioddomain.RevenuePeriod, error) {
	periodID, err := parsePeriodID(id)
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}

	var result perioddomain.RevenuePeriod
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.UpdateStatus(ctx, tx, periodID, from, to)
		if err != nil {
			return err
		}
		if !moved {
			period, err := s.repo.FindByID(ctx, tx, periodID)
			if err != nil {
				return err
			}
			if period == nil {
				return perioddomain.ErrNotFound
			}
			return perioddomain.ErrInvalidState
		}

		period, err := s.repo.FindByID(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if period == nil {
			return perioddomain.ErrNotFound
		}
		result = *period

		return s.auditSvc.Log(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeOperator,
			Action:     action,
			TargetType: "revenue_period",
			TargetID:   period.ID.String(),
			Metadata:   map[string]any{"from": string(from), "to": string(to)},
		})
	})
	if err != nil {
		return perioddomain.RevenuePeriod{}, err
	}

	s.log.Info("revenue period transition",
		zap.String("period_id", result.ID.String()),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func applyInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func parsePeriodID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, perioddomain.ErrInvalidID
	}
	return id, nil
}

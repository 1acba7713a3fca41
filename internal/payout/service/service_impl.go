package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/chapterly/revenue/internal/audit/domain"
	"github.com/chapterly/revenue/internal/clock"
	"github.com/chapterly/revenue/internal/config"
	obsmetrics "github.com/chapterly/revenue/internal/observability/metrics"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	"github.com/chapterly/revenue/internal/payout/repository"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	pkgdb "github.com/chapterly/revenue/pkg/db"
	"github.com/chapterly/revenue/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) List(ctx context.Context, req payoutdomain.ListRequest) (payoutdomain.ListResponse, error) {
	status := payoutdomain.PayoutStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case "", payoutdomain.PayoutStatusPending, payoutdomain.PayoutStatusApproved,
		payoutdomain.PayoutStatusPaid, payoutdomain.PayoutStatusCancelled:
	default:
		return payoutdomain.ListResponse{}, payoutdomain.ErrInvalidStatusFilter
	}

	var cursor *pagination.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return payoutdomain.ListResponse{}, payoutdomain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}
	if limit > 250 {
		limit = 250
	}

	// Fetch one extra row to learn whether a further page exists.
	payouts, err := s.repo.List(ctx, s.db, status, cursor, limit+1)
	if err != nil {
		return payoutdomain.ListResponse{}, err
	}

	payouts, pageInfo, err := pagination.Trim(payouts, limit, func(p payoutdomain.Payout) pagination.Cursor {
		return pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	if err != nil {
		return payoutdomain.ListResponse{}, err
	}
	return payoutdomain.ListResponse{Payouts: payouts, PageInfo: pageInfo}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (payoutdomain.Payout, error) {
	payoutID, err := parsePayoutID(id)
	if err != nil {
		return payoutdomain.Payout{}, err
	}
	payout, err := s.repo.FindByID(ctx, s.db, payoutID)
	if err != nil {
		return payoutdomain.Payout{}, err
	}
	if payout == nil {
		return payoutdomain.Payout{}, payoutdomain.ErrNotFound
	}
	return *payout, nil
}

func (s *Service) DashboardStats(ctx context.Context) (payoutdomain.DashboardStats, error) {
	monthStart, monthEnd, err := perioddomain.MonthBounds(perioddomain.MonthOf(s.clock.Now()))
	if err != nil {
		return payoutdomain.DashboardStats{}, err
	}
	return s.repo.Stats(ctx, s.db, monthStart, monthEnd)
}

// Approve moves a pending payout to approved. Approving an approved or paid
// payout is an idempotent no-op; approving a cancelled one is an error.
func (s *Service) Approve(ctx context.Context, id string) (payoutdomain.Payout, error) {
	payout, _, err := s.approveOne(ctx, id)
	return payout, err
}

func (s *Service) approveOne(ctx context.Context, id string) (payoutdomain.Payout, bool, error) {
	var moved bool
	payout, err := s.transition(ctx, id, "payout.approved",
		[]payoutdomain.PayoutStatus{payoutdomain.PayoutStatusPending},
		payoutdomain.PayoutStatusApproved,
		func(current payoutdomain.PayoutStatus) error {
			switch current {
			case payoutdomain.PayoutStatusApproved, payoutdomain.PayoutStatusPaid:
				return nil // already past approval
			default:
				return payoutdomain.ErrInvalidState
			}
		},
		&moved,
	)
	return payout, moved, err
}

// MarkPaid moves an approved payout to paid. A pending payout cannot be paid
// without approval; paid is itself idempotent.
func (s *Service) MarkPaid(ctx context.Context, id string) (payoutdomain.Payout, error) {
	payout, err := s.transition(ctx, id, "payout.paid",
		[]payoutdomain.PayoutStatus{payoutdomain.PayoutStatusApproved},
		payoutdomain.PayoutStatusPaid,
		func(current payoutdomain.PayoutStatus) error {
			if current == payoutdomain.PayoutStatusPaid {
				return nil
			}
			return payoutdomain.ErrInvalidState
		},
		nil,
	)
	return payout, err
}

// Cancel terminates a pending or approved payout. Paid money cannot be
// cancelled; that requires an out-of-band reversal.
func (s *Service) Cancel(ctx context.Context, id string) (payoutdomain.Payout, error) {
	payout, err := s.transition(ctx, id, "payout.cancelled",
		[]payoutdomain.PayoutStatus{payoutdomain.PayoutStatusPending, payoutdomain.PayoutStatusApproved},
		payoutdomain.PayoutStatusCancelled,
		func(current payoutdomain.PayoutStatus) error {
			if current == payoutdomain.PayoutStatusCancelled {
				return nil
			}
			return payoutdomain.ErrInvalidState
		},
		nil,
	)
	return payout, err
}

// transition runs a compare-and-set status change in a transaction. When the
// CAS misses, onMiss decides between idempotent no-op (nil) and
// ErrInvalidState based on the row's current status.
func (s *Service) transition(
	ctx context.Context,
	id string,
	action string,
	from []payoutdomain.PayoutStatus,
	to payoutdomain.PayoutStatus,
	onMiss func(current payoutdomain.PayoutStatus) error,
	movedOut *bool,
) (payoutdomain.Payout, error) {
	payoutID, err := parsePayoutID(id)
	if err != nil {
		return payoutdomain.Payout{}, err
	}

	var result payoutdomain.Payout
	var moved bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		moved, err = s.repo.Transition(ctx, tx, payoutID, from, to, s.clock.Now())
		if err != nil {
			return err
		}

		payout, err := s.repo.FindByID(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return payoutdomain.ErrNotFound
		}
		result = *payout

		if !moved {
			return onMiss(payout.Status)
		}

		return s.auditSvc.Log(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeOperator,
			Action:     action,
			TargetType: "payout",
			TargetID:   payout.ID.String(),
			Metadata: map[string]any{
				"status": string(to),
				"amount": payout.Amount,
			},
		})
	})

	s.observeTransition(action, moved, err)
	if err != nil {
		return payoutdomain.Payout{}, err
	}
	if movedOut != nil {
		*movedOut = moved
	}
	return result, nil
}

// BulkApprove processes each id independently: one failure never aborts the
// siblings. Fan-out is bounded so a large batch cannot exhaust the pool.
func (s *Service) BulkApprove(ctx context.Context, ids []string) ([]payoutdomain.BulkApproveResult, error) {
	results := make([]payoutdomain.BulkApproveResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	workers := s.cfg.BulkApproveWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, id := range ids {
		g.Go(func() error {
			_, moved, err := s.approveOne(gctx, id)
			switch {
			case err != nil:
				results[i] = payoutdomain.BulkApproveResult{
					ID:     id,
					Status: payoutdomain.BulkResultFailed,
					Error:  err.Error(),
				}
			case moved:
				results[i] = payoutdomain.BulkApproveResult{ID: id, Status: payoutdomain.BulkResultApproved}
			default:
				results[i] = payoutdomain.BulkApproveResult{ID: id, Status: payoutdomain.BulkResultAlreadyApproved}
			}
			return nil
		})
	}

	// Per-item errors land in the result list, never in the group.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RecordSale creates a pending ppv payout for a single purchase. PurchaseID
// makes it idempotent: a replayed purchase event returns the existing row.
func (s *Service) RecordSale(ctx context.Context, req payoutdomain.RecordSaleRequest) (payoutdomain.Payout, error) {
	purchaseID, err := snowflake.ParseString(strings.TrimSpace(req.PurchaseID))
	if err != nil || purchaseID == 0 {
		return payoutdomain.Payout{}, payoutdomain.ErrInvalidPurchase
	}
	authorID, err := snowflake.ParseString(strings.TrimSpace(req.AuthorID))
	if err != nil || authorID == 0 {
		return payoutdomain.Payout{}, payoutdomain.ErrInvalidAuthor
	}
	if req.Amount < 0 {
		return payoutdomain.Payout{}, payoutdomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return payoutdomain.Payout{}, payoutdomain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	payout := payoutdomain.Payout{
		ID:         s.genID.Generate(),
		Type:       payoutdomain.PayoutTypePPV,
		AuthorID:   authorID,
		Amount:     req.Amount,
		Currency:   currency,
		Status:     payoutdomain.PayoutStatusPending,
		PurchaseID: &purchaseID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &payout); err != nil {
			return err
		}
		return s.auditSvc.Log(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     "payout.sale_recorded",
			TargetType: "payout",
			TargetID:   payout.ID.String(),
			Metadata: map[string]any{
				"purchase_id": purchaseID.String(),
				"amount":      req.Amount,
			},
		})
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindByPurchaseID(ctx, s.db, purchaseID)
			if findErr != nil {
				return payoutdomain.Payout{}, findErr
			}
			if existing != nil {
				return *existing, nil
			}
		}
		return payoutdomain.Payout{}, err
	}

	s.log.Info("recorded sale payout",
		zap.String("payout_id", payout.ID.String()),
		zap.String("purchase_id", purchaseID.String()),
		zap.Int64("amount", req.Amount),
	)
	return payout, nil
}

func (s *Service) observeTransition(action string, moved bool, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !moved:
		result = "noop"
	}
	s.obsMetrics.ObservePayoutTransition(action, result)
}

func parsePayoutID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, payoutdomain.ErrInvalidID
	}
	return id, nil
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	payoutdomain "github.com/chapterly/revenue/internal/payout/domain"
	"github.com/chapterly/revenue/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, p *payoutdomain.Payout) error
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*payoutdomain.Payout, error)
	FindByPurchaseID(ctx context.Context, tx *gorm.DB, purchaseID snowflake.ID) (*payoutdomain.Payout, error)
	List(ctx context.Context, tx *gorm.DB, status payoutdomain.PayoutStatus, cursor *pagination.Cursor, limit int) ([]payoutdomain.Payout, error)
	ListPoolByPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) ([]payoutdomain.Payout, error)
	Transition(ctx context.Context, tx *gorm.DB, id snowflake.ID, from []payoutdomain.PayoutStatus, to payoutdomain.PayoutStatus, at time.Time) (bool, error)
	UpdatePoolShare(ctx context.Context, tx *gorm.DB, p *payoutdomain.Payout) error
	Stats(ctx context.Context, tx *gorm.DB, monthStart, monthEnd time.Time) (payoutdomain.DashboardStats, error)
	SumPoolAmounts(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

const payoutColumns = `id, type, author_id, amount, currency, status,
	engagement_units, pool_share_percent, period_id, purchase_id,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, p *payoutdomain.Payout) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payouts (`+payoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Type,
		p.AuthorID,
		p.Amount,
		p.Currency,
		p.Status,
		p.EngagementUnits,
		p.PoolSharePercent,
		p.PeriodID,
		p.PurchaseID,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*payoutdomain.Payout, error) {
	return r.findOne(ctx, tx, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id)
}

func (r *repo) FindByPurchaseID(ctx context.Context, tx *gorm.DB, purchaseID snowflake.ID) (*payoutdomain.Payout, error) {
	return r.findOne(ctx, tx, `SELECT `+payoutColumns+` FROM payouts WHERE purchase_id = ?`, purchaseID)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*payoutdomain.Payout, error) {
	var payout payoutdomain.Payout
	err := tx.WithContext(ctx).Raw(query, args...).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

// List pages newest-first with a (created_at, id) keyset cursor.
func (r *repo) List(ctx context.Context, tx *gorm.DB, status payoutdomain.PayoutStatus, cursor *pagination.Cursor, limit int) ([]payoutdomain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE 1=1`
	args := []any{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, payoutdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, payoutdomain.ErrInvalidPageToken
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, createdAt, createdAt, id)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var payouts []payoutdomain.Payout
	err := tx.WithContext(ctx).Raw(query, args...).Scan(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) ListPoolByPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) ([]payoutdomain.Payout, error) {
	var payouts []payoutdomain.Payout
	err := tx.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payouts
		 WHERE type = ? AND period_id = ?
		 ORDER BY author_id ASC`,
		payoutdomain.PayoutTypeSubscriptionPool,
		periodID,
	).Scan(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// Transition is a compare-and-set on status; false means the payout was not
// in any of the expected source statuses (or does not exist).
func (r *repo) Transition(ctx context.Context, tx *gorm.DB, id snowflake.ID, from []payoutdomain.PayoutStatus, to payoutdomain.PayoutStatus, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, updated_at = ? WHERE id = ? AND status IN ?`,
		to, at, id, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdatePoolShare rewrites a pending pool payout's computed fields during
// recalculation.
func (r *repo) UpdatePoolShare(ctx context.Context, tx *gorm.DB, p *payoutdomain.Payout) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET amount = ?, engagement_units = ?, pool_share_percent = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		p.Amount,
		p.EngagementUnits,
		p.PoolSharePercent,
		p.UpdatedAt,
		p.ID,
		payoutdomain.PayoutStatusPending,
	).Error
}

func (r *repo) Stats(ctx context.Context, tx *gorm.DB, monthStart, monthEnd time.Time) (payoutdomain.DashboardStats, error) {
	var stats payoutdomain.DashboardStats
	err := tx.WithContext(ctx).Raw(
		`SELECT
			COUNT(CASE WHEN status = 'pending' THEN 1 END)                       AS pending_count,
			COALESCE(SUM(CASE WHEN status = 'pending' THEN amount ELSE 0 END), 0) AS pending_amount,
			COUNT(CASE WHEN status = 'approved' THEN 1 END)                      AS approved_count,
			COALESCE(SUM(CASE WHEN status = 'paid'
				AND updated_at >= ? AND updated_at < ? THEN amount ELSE 0 END), 0) AS paid_this_month,
			COUNT(DISTINCT CASE WHEN status <> 'cancelled' THEN author_id END)   AS active_authors
		 FROM payouts`,
		monthStart, monthEnd,
	).Scan(&stats).Error
	if err != nil {
		return payoutdomain.DashboardStats{}, err
	}
	return stats, nil
}

func (r *repo) SumPoolAmounts(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (int64, error) {
	var sum int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM payouts WHERE type = ? AND period_id = ? AND status <> ?`,
		payoutdomain.PayoutTypeSubscriptionPool,
		periodID,
		payoutdomain.PayoutStatusCancelled,
	).Scan(&sum).Error
	return sum, err
}

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	perioddomain "github.com/chapterly/revenue/internal/revenueperiod/domain"
	"github.com/chapterly/revenue/pkg/db"
	"gorm.io/gorm"
)

// Repository is the raw persistence surface for revenue periods. All methods
// run against the handle they are given so callers control transactions.
type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, p *perioddomain.RevenuePeriod) (inserted bool, err error)
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*perioddomain.RevenuePeriod, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*perioddomain.RevenuePeriod, error)
	FindByMonthCurrency(ctx context.Context, tx *gorm.DB, month, currency string) (*perioddomain.RevenuePeriod, error)
	List(ctx context.Context, tx *gorm.DB) ([]perioddomain.RevenuePeriod, error)
	Save(ctx context.Context, tx *gorm.DB, p *perioddomain.RevenuePeriod) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to perioddomain.PeriodStatus) (bool, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

const periodColumns = `id, month, currency,
	subscription_gross, subscription_fees, subscription_refunds, subscription_net,
	ppv_gross, ppv_fees, ppv_refunds, ppv_net,
	status, created_at, updated_at`

// Insert writes a fresh open period, yielding to a concurrent creator on the
// (month, currency) key.
func (r *repo) Insert(ctx context.Context, tx *gorm.DB, p *perioddomain.RevenuePeriod) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO revenue_periods (`+periodColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (month, currency) DO NOTHING`,
		p.ID,
		p.Month,
		p.Currency,
		p.SubscriptionGross,
		p.SubscriptionFees,
		p.SubscriptionRefunds,
		p.SubscriptionNet,
		p.PPVGross,
		p.PPVFees,
		p.PPVRefunds,
		p.PPVNet,
		p.Status,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*perioddomain.RevenuePeriod, error) {
	return r.findOne(ctx, tx, `SELECT `+periodColumns+` FROM revenue_periods WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*perioddomain.RevenuePeriod, error) {
	query := db.LockRow(tx, `SELECT `+periodColumns+` FROM revenue_periods WHERE id = ?`)
	return r.findOne(ctx, tx, query, id)
}

func (r *repo) FindByMonthCurrency(ctx context.Context, tx *gorm.DB, month, currency string) (*perioddomain.RevenuePeriod, error) {
	return r.findOne(ctx, tx,
		`SELECT `+periodColumns+` FROM revenue_periods WHERE month = ? AND currency = ?`,
		month, currency,
	)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*perioddomain.RevenuePeriod, error) {
	var period perioddomain.RevenuePeriod
	err := tx.WithContext(ctx).Raw(query, args...).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB) ([]perioddomain.RevenuePeriod, error) {
	var periods []perioddomain.RevenuePeriod
	err := tx.WithContext(ctx).Raw(
		`SELECT ` + periodColumns + ` FROM revenue_periods ORDER BY month DESC, currency ASC`,
	).Scan(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repo) Save(ctx context.Context, tx *gorm.DB, p *perioddomain.RevenuePeriod) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE revenue_periods
		 SET subscription_gross = ?, subscription_fees = ?, subscription_refunds = ?, subscription_net = ?,
		     ppv_gross = ?, ppv_fees = ?, ppv_refunds = ?, ppv_net = ?,
		     updated_at = ?
		 WHERE id = ?`,
		p.SubscriptionGross,
		p.SubscriptionFees,
		p.SubscriptionRefunds,
		p.SubscriptionNet,
		p.PPVGross,
		p.PPVFees,
		p.PPVRefunds,
		p.PPVNet,
		p.UpdatedAt,
		p.ID,
	).Error
}

// UpdateStatus performs a compare-and-set transition; false means the period
// was not in the expected source status.
func (r *repo) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to perioddomain.PeriodStatus) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE revenue_periods SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

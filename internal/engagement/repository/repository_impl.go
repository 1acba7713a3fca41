package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookdomain "github.com/chapterly/revenue/internal/book/domain"
	engagementdomain "github.com/chapterly/revenue/internal/engagement/domain"
	"gorm.io/gorm"
)

type Repository interface {
	ReplaceForPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID, rows []engagementdomain.EngagementAggregate) error
	ListByPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) ([]engagementdomain.EngagementAggregate, error)
	CountByPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (int64, error)
	FindBooks(ctx context.Context, tx *gorm.DB, bookIDs []snowflake.ID) (map[snowflake.ID]bookdomain.Book, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

// ReplaceForPeriod swaps the period's aggregate snapshot. Callers must wrap
// it in a transaction so a partial snapshot is never visible.
func (r *repo) ReplaceForPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID, rows []engagementdomain.EngagementAggregate) error {
	if err := tx.WithContext(ctx).Exec(
		`DELETE FROM engagement_aggregates WHERE period_id = ?`,
		periodID,
	).Error; err != nil {
		return err
	}

	for i := range rows {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO engagement_aggregates (id, period_id, book_id, author_id, units, eligible, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rows[i].ID,
			rows[i].PeriodID,
			rows[i].BookID,
			rows[i].AuthorID,
			rows[i].Units,
			rows[i].Eligible,
			rows[i].CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListByPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) ([]engagementdomain.EngagementAggregate, error) {
	var rows []engagementdomain.EngagementAggregate
	err := tx.WithContext(ctx).Raw(
		`SELECT id, period_id, book_id, author_id, units, eligible, created_at
		 FROM engagement_aggregates
		 WHERE period_id = ?
		 ORDER BY book_id ASC`,
		periodID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CountByPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM engagement_aggregates WHERE period_id = ?`,
		periodID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) FindBooks(ctx context.Context, tx *gorm.DB, bookIDs []snowflake.ID) (map[snowflake.ID]bookdomain.Book, error) {
	if len(bookIDs) == 0 {
		return map[snowflake.ID]bookdomain.Book{}, nil
	}

	var books []bookdomain.Book
	err := tx.WithContext(ctx).Raw(
		`SELECT id, author_id, title, status, created_at FROM books WHERE id IN ?`,
		bookIDs,
	).Scan(&books).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]bookdomain.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	return byID, nil
}

// ActivityTableSource reads facts from the ingestion pipeline's events table.
type ActivityTableSource struct {
	db *gorm.DB
}

func ProvideActivitySource(db *gorm.DB) engagementdomain.ActivitySource {
	return &ActivityTableSource{db: db}
}

func (s *ActivityTableSource) FactsForRange(ctx context.Context, from, to time.Time) ([]engagementdomain.ActivityFact, error) {
	var facts []engagementdomain.ActivityFact
	err := s.db.WithContext(ctx).Raw(
		`SELECT book_id, reader_id, unit_count
		 FROM reading_activity_events
		 WHERE occurred_at >= ? AND occurred_at < ?`,
		from, to,
	).Scan(&facts).Error
	if err != nil {
		return nil, err
	}
	return facts, nil
}

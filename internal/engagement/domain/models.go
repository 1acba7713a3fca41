package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EngagementAggregate is the per-book reduction of a period's reading
// activity. Rows are replaced wholesale on every aggregation run, never
// mutated incrementally.
type EngagementAggregate struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	PeriodID snowflake.ID `json:"period_id" gorm:"not null;index;uniqueIndex:ux_engagement_aggregates_period_book,priority:1"`
	BookID   snowflake.ID `json:"book_id" gorm:"not null;uniqueIndex:ux_engagement_aggregates_period_book,priority:2"`
	AuthorID snowflake.ID `json:"author_id" gorm:"not null;index"`
	Units    int64        `json:"units" gorm:"not null;default:0"`
	Eligible bool         `json:"eligible" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EngagementAggregate) TableName() string { return "engagement_aggregates" }

// ReadingActivityEvent is one raw engagement fact produced by the external
// ingestion pipeline. The engine reads this table; it never writes it.
type ReadingActivityEvent struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BookID     snowflake.ID `gorm:"not null;index"`
	ReaderID   snowflake.ID `gorm:"not null"`
	UnitCount  int64        `gorm:"not null"`
	OccurredAt time.Time    `gorm:"not null;index"`
}

// TableName sets the database table name.
func (ReadingActivityEvent) TableName() string { return "reading_activity_events" }

// ActivityFact is the aggregator's view of a raw engagement event.
type ActivityFact struct {
	BookID    snowflake.ID
	ReaderID  snowflake.ID
	UnitCount int64
}

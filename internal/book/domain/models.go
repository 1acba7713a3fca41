package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BookStatus is the publication state maintained by the authoring system.
type BookStatus string

const (
	BookStatusDraft     BookStatus = "draft"
	BookStatusPublished BookStatus = "published"
	BookStatusArchived  BookStatus = "archived"
)

// Book is read-only from the payout engine's perspective. Only the author
// link and publication status matter for pool eligibility.
type Book struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	AuthorID  snowflake.ID `json:"author_id" gorm:"not null;index"`
	Title     string       `json:"title" gorm:"type:text;not null"`
	Status    BookStatus   `json:"status" gorm:"type:text;not null;default:'draft'"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Book) TableName() string { return "books" }

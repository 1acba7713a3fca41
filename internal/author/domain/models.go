package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Author is the payee identity for payouts. Rows are owned by the account
// system; this engine only reads them.
type Author struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	DisplayName       string       `json:"display_name" gorm:"type:text;not null"`
	PayoutDestination string       `json:"payout_destination" gorm:"type:text;not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Author) TableName() string { return "authors" }

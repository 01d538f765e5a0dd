package models

import "time"

// ChatMessage is one customer or agent message within a session. Rows are
// immutable once written; CreatedAt defines display order with ID as the
// tiebreak for equal timestamps.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:64;not null;index"`
	UserID    string    `gorm:"size:64;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

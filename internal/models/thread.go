package models

import "time"

// Thread status values. Transitions only move between these two; both
// directions are allowed.
const (
	StatusUnresolved = "unresolved"
	StatusResolved   = "resolved"
)

// ChatThread binds one customer session to its mirrored thread in the
// external channel. The primary key on SessionID arbitrates concurrent
// first-message creation: at most one row exists per session.
type ChatThread struct {
	SessionID  string  `gorm:"primaryKey;size:64"`
	ChannelID  string  `gorm:"size:64;not null"`
	ThreadRef  string  `gorm:"size:64;not null"`
	Status     string  `gorm:"size:16;not null;default:unresolved"`
	ResolvedBy *string `gorm:"size:64"`
	JobID      uint    `gorm:"not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Resolved reports whether the thread has been marked resolved.
func (t *ChatThread) Resolved() bool {
	return t.Status == StatusResolved
}

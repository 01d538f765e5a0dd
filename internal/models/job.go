package models

import "time"

// Job is a read-only snapshot of an order record from the order system.
// The bridge never writes Jobs; it reads them to render thread headers and
// the db seed command inserts fixtures for local development.
type Job struct {
	JobID        uint   `gorm:"primaryKey"`
	CustomerName string `gorm:"size:128;not null"`
	Email        string `gorm:"size:128"`
	Phone1Number string `gorm:"size:32"`
	Phone2Number *string `gorm:"size:32"`
	OrderStatus  string `gorm:"size:32"`
	PickupDate   *time.Time
	CreatedAt    time.Time
}

// TableName keeps the table name aligned with the order system's schema.
func (Job) TableName() string { return "jobs" }

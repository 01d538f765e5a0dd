package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relayops/chatbridge/internal/models"
)

// AllModels returns the GORM models owned by the bridge, for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.Job{},
	}
}

// AutoMigrate creates or updates all bridge tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedJobs upserts demo order rows for local development. Production jobs
// are owned by the order system; this only exists so a fresh database has
// something for the chat to attach to.
func SeedJobs(db *gorm.DB) error {
	phone2 := "555-0102"
	pickup := time.Now().AddDate(0, 0, 7)
	jobs := []models.Job{
		{JobID: 42, CustomerName: "Alice Harper", Email: "alice@example.com", Phone1Number: "555-0100", Phone2Number: &phone2, OrderStatus: "scheduled", PickupDate: &pickup},
		{JobID: 43, CustomerName: "Bob Reyes", Email: "bob@example.com", Phone1Number: "555-0110", OrderStatus: "pending"},
	}

	for _, job := range jobs {
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"customer_name", "email", "phone1_number", "phone2_number", "order_status"}),
		}).Create(&job)
		if result.Error != nil {
			return fmt.Errorf("db: seed job %d: %w", job.JobID, result.Error)
		}
	}
	return nil
}

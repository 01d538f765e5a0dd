package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relayops/chatbridge/internal/models"
)

// defaultGatewayTimeout bounds external channel calls when no timeout is
// configured.
const defaultGatewayTimeout = 10 * time.Second

// JobSummary carries the denormalized order fields a request must supply
// so a thread header can be built without a second lookup.
type JobSummary struct {
	JobID        uint   `json:"job_id"`
	CustomerName string `json:"customer_name"`
	Email        string `json:"email"`
	Phone1Number string `json:"phone1_number"`
}

// Reconciler maps each session to exactly one durable thread. Creation is
// lazy and idempotent: the store's primary key on session_id arbitrates
// concurrent first-writers.
type Reconciler struct {
	db      *gorm.DB
	gateway Gateway
	timeout time.Duration
}

// ReconcilerOpts holds parameters for creating a Reconciler.
type ReconcilerOpts struct {
	DB             *gorm.DB
	Gateway        Gateway
	GatewayTimeout time.Duration // defaults to defaultGatewayTimeout
}

// NewReconciler creates a Reconciler with the given options.
func NewReconciler(opts ReconcilerOpts) (*Reconciler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bridge: db is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("bridge: gateway is required")
	}
	timeout := opts.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Reconciler{db: opts.DB, gateway: opts.Gateway, timeout: timeout}, nil
}

// EnsureThread returns the session's thread, creating it exactly once on
// the first message. The external header is posted before the row is
// inserted so that an insert conflict can fall back to the winning row;
// the loser's orphaned header is an accepted, logged cost. A gateway
// failure aborts with nothing persisted, so a message is never relayed
// into a thread that does not exist.
func (r *Reconciler) EnsureThread(ctx context.Context, sessionID string, job JobSummary) (*models.ChatThread, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}
	if job.JobID == 0 {
		return nil, &ValidationError{Field: "job.job_id"}
	}

	var existing models.ChatThread
	err := r.db.WithContext(ctx).First(&existing, "session_id = ?", sessionID).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("bridge: lookup thread %s: %w", sessionID, err)
	}

	header := Header{
		SessionID:    sessionID,
		JobID:        job.JobID,
		CustomerName: job.CustomerName,
		Email:        job.Email,
		Phone:        job.Phone1Number,
		Status:       models.StatusUnresolved,
	}

	postCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ref, err := r.gateway.PostThread(postCtx, header)
	if err != nil {
		return nil, &GatewayError{Op: "post thread", Err: err}
	}

	thread := models.ChatThread{
		SessionID: sessionID,
		ChannelID: ref.ChannelID,
		ThreadRef: ref.MessageTS,
		Status:    models.StatusUnresolved,
		JobID:     job.JobID,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(&thread)

	switch {
	case result.Error != nil && errors.Is(result.Error, gorm.ErrDuplicatedKey):
		// Conflict surfaced as an error rather than zero rows; treat the
		// same as losing the race.
	case result.Error != nil:
		log.Printf("bridge: thread insert for %s failed after external post %s (orphaned header): %v",
			sessionID, ref.MessageTS, result.Error)
		return nil, fmt.Errorf("bridge: insert thread %s: %w", sessionID, result.Error)
	case result.RowsAffected > 0:
		return &thread, nil
	}

	// Lost the create race: another request inserted first. Return the
	// winning row; our header stays orphaned in the channel.
	log.Printf("bridge: thread create race for %s, keeping winner (orphaned header %s)",
		sessionID, ref.MessageTS)
	var winner models.ChatThread
	if err := r.db.WithContext(ctx).First(&winner, "session_id = ?", sessionID).Error; err != nil {
		return nil, fmt.Errorf("bridge: re-read thread %s after conflict: %w", sessionID, err)
	}
	return &winner, nil
}

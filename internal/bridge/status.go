package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/relayops/chatbridge/internal/models"
)

// StatusSynchronizer applies status-change actions from the external
// channel to the thread store and re-renders the thread's header so its
// rendered status and action control match the authoritative row.
type StatusSynchronizer struct {
	db      *gorm.DB
	gateway Gateway
	feed    *Feed
	timeout time.Duration
}

// StatusSynchronizerOpts holds parameters for creating a StatusSynchronizer.
type StatusSynchronizerOpts struct {
	DB             *gorm.DB
	Gateway        Gateway
	Feed           *Feed // optional; nil disables live updates
	GatewayTimeout time.Duration
}

// NewStatusSynchronizer creates a StatusSynchronizer with the given options.
func NewStatusSynchronizer(opts StatusSynchronizerOpts) (*StatusSynchronizer, error) {
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
	return &StatusSynchronizer{db: opts.DB, gateway: opts.Gateway, feed: opts.Feed, timeout: timeout}, nil
}

// statusForAction maps an action identifier to the status it requests.
func statusForAction(actionID string) (string, error) {
	switch actionID {
	case ActionResolve:
		return models.StatusResolved, nil
	case ActionUnresolve:
		return models.StatusUnresolved, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, actionID)
	}
}

// ApplyStatusChange sets the thread's status and resolved_by, then
// re-renders the header in the external channel with the inverse action
// control. The store update is atomic: either it fully applies or the
// operation aborts with nothing external attempted. A failure after the
// update (job fetch or header re-render) returns the updated thread plus
// a MirrorError, since the authoritative status already changed.
func (s *StatusSynchronizer) ApplyStatusChange(ctx context.Context, sessionID, actorID, actionID string) (*models.ChatThread, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}
	if actorID == "" {
		return nil, &ValidationError{Field: "actor_id"}
	}
	status, err := statusForAction(actionID)
	if err != nil {
		return nil, err
	}

	// Update and re-read in one transaction so the returned row carries
	// the thread ref and job id needed for the re-render.
	var thread models.ChatThread
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ChatThread{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"status":      status,
				"resolved_by": actorID,
				"updated_at":  time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrThreadNotFound
		}
		return tx.First(&thread, "session_id = ?", sessionID).Error
	})
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("bridge: update thread %s: %w", sessionID, err)
	}

	if s.feed != nil {
		s.feed.PublishStatus(&thread)
	}

	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, "job_id = ?", thread.JobID).Error; err != nil {
		return &thread, &MirrorError{Op: "fetch job", Err: err}
	}

	header := Header{
		SessionID:    sessionID,
		JobID:        job.JobID,
		CustomerName: job.CustomerName,
		Email:        job.Email,
		Phone:        job.Phone1Number,
		Status:       thread.Status,
	}
	ref := ThreadRef{ChannelID: thread.ChannelID, MessageTS: thread.ThreadRef}
	updateCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.gateway.UpdateHeader(updateCtx, ref, header); err != nil {
		return &thread, &MirrorError{Op: "update header", Err: err}
	}
	return &thread, nil
}

// Thread returns the current thread row for a session.
func (s *StatusSynchronizer) Thread(ctx context.Context, sessionID string) (*models.ChatThread, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}
	var thread models.ChatThread
	if err := s.db.WithContext(ctx).First(&thread, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("bridge: lookup thread %s: %w", sessionID, err)
	}
	return &thread, nil
}

package bridge

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/relayops/chatbridge/internal/models"
)

// Relay persists inbound messages and forwards them into the session's
// external thread, in that order. Persistence is authoritative; forwarding
// is best-effort and its failure is reported as a MirrorError alongside
// the stored message.
type Relay struct {
	db         *gorm.DB
	gateway    Gateway
	reconciler *Reconciler
	feed       *Feed
	timeout    time.Duration
}

// RelayOpts holds parameters for creating a Relay.
type RelayOpts struct {
	DB             *gorm.DB
	Gateway        Gateway
	Reconciler     *Reconciler
	Feed           *Feed // optional; nil disables live updates
	GatewayTimeout time.Duration
}

// NewRelay creates a Relay with the given options.
func NewRelay(opts RelayOpts) (*Relay, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bridge: db is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("bridge: gateway is required")
	}
	if opts.Reconciler == nil {
		return nil, fmt.Errorf("bridge: reconciler is required")
	}
	timeout := opts.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Relay{
		db:         opts.DB,
		gateway:    opts.Gateway,
		reconciler: opts.Reconciler,
		feed:       opts.Feed,
		timeout:    timeout,
	}, nil
}

// Relay ensures the session's thread, persists the message, then forwards
// it as a thread reply. A forward failure does not roll anything back: the
// message is already durable and visible to the session, so the stored
// message is returned together with a MirrorError.
func (r *Relay) Relay(ctx context.Context, sessionID, userID, text string, job JobSummary) (*models.ChatMessage, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}
	if userID == "" {
		return nil, &ValidationError{Field: "user_id"}
	}
	if text == "" {
		return nil, &ValidationError{Field: "text"}
	}

	thread, err := r.reconciler.EnsureThread(ctx, sessionID, job)
	if err != nil {
		return nil, err
	}

	msg := models.ChatMessage{
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("bridge: insert message for %s: %w", sessionID, err)
	}

	// The message is durable; notify live viewers before attempting the
	// external mirror so the session never waits on the channel.
	if r.feed != nil {
		r.feed.PublishMessage(&msg)
	}

	ref := ThreadRef{ChannelID: thread.ChannelID, MessageTS: thread.ThreadRef}
	replyCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.gateway.PostReply(replyCtx, ref, userID, text); err != nil {
		return &msg, &MirrorError{Op: "post reply", Err: err}
	}
	return &msg, nil
}

// History returns the session's messages in display order: created_at
// ascending with id as the stable tiebreak.
func (r *Relay) History(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}
	var msgs []models.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("bridge: history %s: %w", sessionID, err)
	}
	return msgs, nil
}

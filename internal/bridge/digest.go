package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/relayops/chatbridge/internal/models"
)

// Digest posts a periodic channel notice summarizing threads that are
// still unresolved. It only reads store state; it never mutates threads
// or retries failed mirrors.
type Digest struct {
	db      *gorm.DB
	gateway Gateway
	cron    string
	timeout time.Duration
}

// DigestOpts holds parameters for creating a Digest.
type DigestOpts struct {
	DB             *gorm.DB
	Gateway        Gateway
	Cron           string // 5-field cron expression
	GatewayTimeout time.Duration
}

// NewDigest creates a Digest with the given options.
func NewDigest(opts DigestOpts) (*Digest, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bridge: db is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("bridge: gateway is required")
	}
	if opts.Cron == "" {
		return nil, fmt.Errorf("bridge: digest cron expression is required")
	}
	timeout := opts.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Digest{db: opts.DB, gateway: opts.Gateway, cron: opts.Cron, timeout: timeout}, nil
}

// Run fires the digest on its cron schedule until ctx is cancelled.
func (d *Digest) Run(ctx context.Context) {
	wait := nextCronDuration(d.cron)
	if wait <= 0 {
		log.Printf("bridge: digest cron %q did not parse, digest disabled", d.cron)
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.fire(ctx)
			if wait = nextCronDuration(d.cron); wait <= 0 {
				return
			}
			timer.Reset(wait)
		}
	}
}

// fire builds and posts one digest. No unresolved threads suppresses it.
func (d *Digest) fire(ctx context.Context) {
	text, err := d.Build(ctx)
	if err != nil {
		log.Printf("bridge: build digest: %v", err)
		return
	}
	if text == "" {
		return
	}
	postCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.gateway.PostNotice(postCtx, text); err != nil {
		log.Printf("bridge: post digest: %v", err)
	}
}

// Build renders the digest text, or empty when nothing is unresolved.
func (d *Digest) Build(ctx context.Context) (string, error) {
	var threads []models.ChatThread
	if err := d.db.WithContext(ctx).
		Where("status = ?", models.StatusUnresolved).
		Order("updated_at ASC").
		Find(&threads).Error; err != nil {
		return "", fmt.Errorf("list unresolved threads: %w", err)
	}
	if len(threads) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%d unresolved chat thread(s)*\n", len(threads))
	for _, t := range threads {
		age := time.Since(t.UpdatedAt).Round(time.Minute)
		fmt.Fprintf(&b, "• session %s (order #%d) — quiet for %s\n", t.SessionID, t.JobID, age)
	}
	return b.String(), nil
}

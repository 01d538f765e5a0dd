// Package slack implements the bridge Gateway against the Slack Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/relayops/chatbridge/internal/bridge"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
}

// Gateway posts thread headers, replies, and header updates to a single
// Slack channel over the Web API.
type Gateway struct {
	client    slackClient
	channelID string
}

// GatewayOpts holds parameters for creating a Slack Gateway.
type GatewayOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel all threads are posted to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Gateway.
func New(opts GatewayOpts) (*Gateway, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	g := &Gateway{channelID: opts.ChannelID}
	if opts.Client != nil {
		g.client = opts.Client
	} else {
		g.client = slackapi.New(opts.BotToken)
	}
	return g, nil
}

// PostThread posts a new header message and returns its thread reference.
func (g *Gateway) PostThread(ctx context.Context, h bridge.Header) (bridge.ThreadRef, error) {
	options := []slackapi.MsgOption{
		slackapi.MsgOptionText(headerFallback(h), false),
		slackapi.MsgOptionBlocks(headerBlocks(h)...),
	}

	var channel, ts string
	err := retryOnRateLimit(ctx, func() error {
		var postErr error
		channel, ts, postErr = g.client.PostMessageContext(ctx, g.channelID, options...)
		return postErr
	})
	if err != nil {
		return bridge.ThreadRef{}, fmt.Errorf("slack: post thread: %w", err)
	}
	return bridge.ThreadRef{ChannelID: channel, MessageTS: ts}, nil
}

// PostReply posts a message into the thread anchored at ref.
func (g *Gateway) PostReply(ctx context.Context, ref bridge.ThreadRef, userID, text string) error {
	options := []slackapi.MsgOption{
		slackapi.MsgOptionTS(ref.MessageTS),
		slackapi.MsgOptionText(fmt.Sprintf("*%s*: %s", userID, text), false),
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := g.client.PostMessageContext(ctx, ref.ChannelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post reply: %w", err)
	}
	return nil
}

// UpdateHeader replaces the header message content at ref.
func (g *Gateway) UpdateHeader(ctx context.Context, ref bridge.ThreadRef, h bridge.Header) error {
	options := []slackapi.MsgOption{
		slackapi.MsgOptionText(headerFallback(h), false),
		slackapi.MsgOptionBlocks(headerBlocks(h)...),
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, _, updateErr := g.client.UpdateMessageContext(ctx, ref.ChannelID, ref.MessageTS, options...)
		return updateErr
	})
	if err != nil {
		return fmt.Errorf("slack: update header: %w", err)
	}
	return nil
}

// PostNotice posts a plain channel-level message.
func (g *Gateway) PostNotice(ctx context.Context, text string) error {
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := g.client.PostMessageContext(ctx, g.channelID, slackapi.MsgOptionText(text, false))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post notice: %w", err)
	}
	return nil
}

// Close is a no-op; the Web API client holds no connection.
func (g *Gateway) Close() error { return nil }

// headerBlocks renders the header as a single section with an inline
// accessory button. The button's action id requests the inverse of the
// current status, and its value round-trips the session id.
func headerBlocks(h bridge.Header) []slackapi.Block {
	text := slackapi.NewTextBlockObject(slackapi.MarkdownType, headerFallback(h), false, false)

	label := slackapi.NewTextBlockObject(slackapi.PlainTextType, h.ActionLabel(), false, false)
	button := slackapi.NewButtonBlockElement(h.ActionID(), h.SessionID, label)
	if h.Status == "resolved" {
		button.Style = slackapi.StyleDanger
	} else {
		button.Style = slackapi.StylePrimary
	}

	section := slackapi.NewSectionBlock(text, nil, slackapi.NewAccessory(button))
	return []slackapi.Block{section}
}

// headerFallback renders the header's plain markdown text, also used as
// the notification fallback.
func headerFallback(h bridge.Header) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Status:* %s\n", strings.ToUpper(h.Status))
	fmt.Fprintf(&b, "*Job #%d*\n", h.JobID)
	fmt.Fprintf(&b, "• Customer: %s\n", h.CustomerName)
	fmt.Fprintf(&b, "• Email: %s\n", h.Email)
	fmt.Fprintf(&b, "• Phone1: %s", h.Phone)
	return b.String()
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit
// errors. It respects context cancellation and the RetryAfter duration
// from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

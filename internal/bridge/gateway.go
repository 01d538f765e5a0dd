// Package bridge implements the thread-reconciliation and message-relay
// engine between customer chat sessions and an external team channel.
package bridge

import "context"

// Action identifiers round-tripped through the header's button control.
// The value attached to the control is the opaque session ID.
const (
	ActionResolve   = "resolve_thread"
	ActionUnresolve = "unresolve_thread"
)

// ThreadRef identifies one thread in the external channel: the channel it
// lives in plus the platform's timestamp/ID of the header message.
type ThreadRef struct {
	ChannelID string
	MessageTS string
}

// Header is the renderable state of a thread's top-level message. The
// external channel only supports whole-message replacement, so every
// status change re-sends the full header.
type Header struct {
	SessionID    string
	JobID        uint
	CustomerName string
	Email        string
	Phone        string
	Status       string
}

// ActionID returns the action identifier the header's control should carry:
// always the inverse of the current status.
func (h Header) ActionID() string {
	if h.Status == "resolved" {
		return ActionUnresolve
	}
	return ActionResolve
}

// ActionLabel returns the human-readable label for the header's control.
func (h Header) ActionLabel() string {
	if h.Status == "resolved" {
		return "Mark as Unresolved"
	}
	return "Mark as Resolved"
}

// Gateway is the capability contract against the external messaging
// channel. None of its operations are transactional with the store; the
// reconciler and relay own the ordering and partial-failure rules.
type Gateway interface {
	// PostThread posts a new top-level header message and returns the
	// reference that anchors the thread.
	PostThread(ctx context.Context, h Header) (ThreadRef, error)

	// PostReply posts a message into an existing thread.
	PostReply(ctx context.Context, ref ThreadRef, userID, text string) error

	// UpdateHeader replaces the content of the thread's header message.
	UpdateHeader(ctx context.Context, ref ThreadRef, h Header) error

	// PostNotice posts a plain channel-level message outside any thread.
	PostNotice(ctx context.Context, text string) error

	// Close releases any platform connections.
	Close() error
}

// StatusAction is a status-change request originating inside the external
// channel (someone pressed the header's control).
type StatusAction struct {
	SessionID string
	ActorID   string
	ActionID  string
}

// ActionSource is an optional interface for gateways that deliver status
// actions over their own connection (Discord interactions). Slack actions
// arrive through the HTTP interactivity endpoint instead.
type ActionSource interface {
	Actions() <-chan StatusAction
}

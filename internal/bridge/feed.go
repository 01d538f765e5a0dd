package bridge

import (
	"log"
	"sync"

	"github.com/relayops/chatbridge/internal/models"
)

// EventType distinguishes live feed events.
type EventType string

const (
	EventMessage EventType = "message"
	EventStatus  EventType = "status"
)

// Event is one live update for a session: a newly inserted message or a
// thread status change. Delivery may duplicate what the producing call
// already returned synchronously; consumers dedupe by message ID and treat
// repeated status events as no-ops.
type Event struct {
	Type    EventType
	Message *models.ChatMessage
	Thread  *models.ChatThread
}

// subBuffer is the per-subscription channel depth. A subscriber that falls
// this far behind loses events and must refetch; publishers never block.
const subBuffer = 16

// Feed fans out per-session live updates to zero or more subscribers.
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription is one live view of a session. Close must be called when
// the view goes away; it detaches the subscription and closes Events.
type Subscription struct {
	feed      *Feed
	sessionID string
	ch        chan Event
	closeOnce sync.Once
}

// Events returns the subscription's event channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription from the feed and closes Events.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.feed.remove(s)
		close(s.ch)
	})
}

// Subscribe registers a live view for a session.
func (f *Feed) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		feed:      f,
		sessionID: sessionID,
		ch:        make(chan Event, subBuffer),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		f.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// remove detaches a subscription, dropping the session's entry when empty.
func (f *Feed) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.subs[sub.sessionID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(f.subs, sub.sessionID)
	}
}

// PublishMessage notifies the session's subscribers of a new message.
func (f *Feed) PublishMessage(msg *models.ChatMessage) {
	f.publish(msg.SessionID, Event{Type: EventMessage, Message: msg})
}

// PublishStatus notifies the session's subscribers of a status change.
func (f *Feed) PublishStatus(thread *models.ChatThread) {
	f.publish(thread.SessionID, Event{Type: EventStatus, Thread: thread})
}

// publish delivers an event to every live subscriber without blocking.
// A full subscriber buffer drops the event; the subscriber is expected to
// refetch on reconnect.
func (f *Feed) publish(sessionID string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[sessionID] {
		select {
		case sub.ch <- ev:
		default:
			log.Printf("bridge: feed subscriber for %s is full, dropping %s event", sessionID, ev.Type)
		}
	}
}

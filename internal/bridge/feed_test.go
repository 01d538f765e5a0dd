package bridge

import (
	"testing"
	"time"

	"github.com/relayops/chatbridge/internal/models"
)

func TestFeed_DeliversToSessionSubscribers(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe("s1")
	defer sub.Close()
	other := feed.Subscribe("s2")
	defer other.Close()

	feed.PublishMessage(&models.ChatMessage{ID: 1, SessionID: "s1", Text: "hi"})

	select {
	case ev := <-sub.Events():
		if ev.Type != EventMessage || ev.Message.ID != 1 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case ev := <-other.Events():
		t.Errorf("other session received %+v", ev)
	default:
	}
}

func TestFeed_FanOut(t *testing.T) {
	feed := NewFeed()
	subs := []*Subscription{feed.Subscribe("s1"), feed.Subscribe("s1"), feed.Subscribe("s1")}
	for _, sub := range subs {
		defer sub.Close()
	}

	feed.PublishStatus(&models.ChatThread{SessionID: "s1", Status: models.StatusResolved})

	for i, sub := range subs {
		select {
		case ev := <-sub.Events():
			if ev.Type != EventStatus {
				t.Errorf("sub %d: event type = %s", i, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no event", i)
		}
	}
}

func TestFeed_PublishWithoutSubscribers(t *testing.T) {
	feed := NewFeed()
	// Must not panic or block.
	feed.PublishMessage(&models.ChatMessage{ID: 1, SessionID: "nobody"})
}

func TestFeed_CloseDetaches(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe("s1")
	sub.Close()

	// Channel is closed.
	if _, ok := <-sub.Events(); ok {
		t.Error("Events channel should be closed")
	}

	// Publishing after close must not panic (subscription is detached).
	feed.PublishMessage(&models.ChatMessage{ID: 2, SessionID: "s1"})

	// Double close is safe.
	sub.Close()
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe("s1")
	defer sub.Close()

	// Overfill the buffer; publish must return every time.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subBuffer*2; i++ {
			feed.PublishMessage(&models.ChatMessage{ID: uint(i + 1), SessionID: "s1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The subscriber still sees a full buffer of events in order.
	first := <-sub.Events()
	if first.Message.ID != 1 {
		t.Errorf("first event ID = %d, want 1", first.Message.ID)
	}
}

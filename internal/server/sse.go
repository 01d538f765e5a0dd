package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relayops/chatbridge/internal/bridge"
)

// heartbeatInterval keeps intermediaries from timing out idle streams.
const heartbeatInterval = 15 * time.Second

// feedEvent is the SSE data payload for a live update.
type feedEvent struct {
	Type    string       `json:"type"`
	Message *messageJSON `json:"message,omitempty"`
	Thread  *threadJSON  `json:"thread,omitempty"`
}

// handleEvents streams a session's live feed over SSE. The subscription is
// released when the client disconnects. Delivery may duplicate what the
// producing request already returned; clients dedupe by message id.
func handleEvents(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		sub := d.feed.Subscribe(sessionID)
		defer sub.Close()

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				writeSSE(c.Writer, string(ev.Type), toFeedEvent(ev))
				c.Writer.Flush()
			}
		}
	}
}

// toFeedEvent converts a feed event to its SSE payload.
func toFeedEvent(ev bridge.Event) feedEvent {
	out := feedEvent{Type: string(ev.Type)}
	if ev.Message != nil {
		m := toMessageJSON(ev.Message)
		out.Message = &m
	}
	if ev.Thread != nil {
		t := toThreadJSON(ev.Thread)
		out.Thread = &t
	}
	return out
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}

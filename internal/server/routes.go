package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	slackapi "github.com/slack-go/slack"

	"github.com/relayops/chatbridge/internal/bridge"
	"github.com/relayops/chatbridge/internal/models"
)

// deps holds the bridge components the handlers call into.
type deps struct {
	relay *bridge.Relay
	sync  *bridge.StatusSynchronizer
	feed  *bridge.Feed
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, d deps) {
	router.POST("/api/chat/messages", handlePostMessage(d))
	router.GET("/api/chat/messages", handleHistory(d))
	router.GET("/api/chat/thread", handleThread(d))
	router.POST("/api/chat/resolve", handleResolve(d))
	router.POST("/api/slack/interactive", handleSlackInteractive(d))
	router.GET("/api/chat/events", handleEvents(d))
}

// messageJSON is the wire shape of a chat message.
type messageJSON struct {
	ID        uint      `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// threadJSON is the wire shape of a chat thread.
type threadJSON struct {
	SessionID  string  `json:"session_id"`
	ChannelID  string  `json:"channel_id"`
	ThreadRef  string  `json:"thread_ref"`
	Status     string  `json:"status"`
	ResolvedBy *string `json:"resolved_by"`
	JobID      uint    `json:"job_id"`
}

func toMessageJSON(m *models.ChatMessage) messageJSON {
	return messageJSON{ID: m.ID, SessionID: m.SessionID, UserID: m.UserID, Text: m.Text, CreatedAt: m.CreatedAt}
}

func toThreadJSON(t *models.ChatThread) threadJSON {
	return threadJSON{
		SessionID:  t.SessionID,
		ChannelID:  t.ChannelID,
		ThreadRef:  t.ThreadRef,
		Status:     t.Status,
		ResolvedBy: t.ResolvedBy,
		JobID:      t.JobID,
	}
}

// postMessageRequest is the validated boundary shape for inbound messages.
type postMessageRequest struct {
	SessionID string            `json:"session_id" binding:"required"`
	UserID    string            `json:"user_id" binding:"required"`
	Text      string            `json:"text" binding:"required"`
	Job       bridge.JobSummary `json:"job"`
}

func handlePostMessage(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req postMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing session_id, user_id, text or job"})
			return
		}

		msg, err := d.relay.Relay(c.Request.Context(), req.SessionID, req.UserID, req.Text, req.Job)
		mirrored := err == nil
		if err != nil && !bridge.IsMirrorError(err) {
			writeBridgeError(c, err)
			return
		}

		thread, terr := d.sync.Thread(c.Request.Context(), req.SessionID)
		if terr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": terr.Error()})
			return
		}

		resp := gin.H{
			"message":  toMessageJSON(msg),
			"thread":   toThreadJSON(thread),
			"mirrored": mirrored,
		}
		if !mirrored {
			// The message is stored; only the team-side mirror is missing.
			resp["warning"] = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleHistory(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}
		msgs, err := d.relay.History(c.Request.Context(), sessionID)
		if err != nil {
			writeBridgeError(c, err)
			return
		}
		out := make([]messageJSON, len(msgs))
		for i := range msgs {
			out[i] = toMessageJSON(&msgs[i])
		}
		c.JSON(http.StatusOK, gin.H{"messages": out})
	}
}

func handleThread(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}
		thread, err := d.sync.Thread(c.Request.Context(), sessionID)
		if err != nil {
			writeBridgeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"thread": toThreadJSON(thread)})
	}
}

// resolveRequest is the internal resolve action shape.
type resolveRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	ResolvedBy string `json:"resolved_by" binding:"required"`
}

func handleResolve(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing session_id or resolved_by"})
			return
		}
		applyStatusChange(c, d, req.SessionID, req.ResolvedBy, bridge.ActionResolve)
	}
}

// handleSlackInteractive receives Slack interactivity payloads: a form
// field "payload" carrying the interaction callback JSON. The action's
// value round-trips the session id; the action id selects the transition.
func handleSlackInteractive(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := c.PostForm("payload")
		if payload == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing payload"})
			return
		}
		var cb slackapi.InteractionCallback
		if err := json.Unmarshal([]byte(payload), &cb); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
			return
		}
		if len(cb.ActionCallback.BlockActions) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no action"})
			return
		}
		action := cb.ActionCallback.BlockActions[0]
		applyStatusChange(c, d, action.Value, cb.User.ID, action.ActionID)
	}
}

// applyStatusChange runs the synchronizer and maps its outcome onto HTTP.
// A mirror failure is still a 200: the authoritative status changed.
func applyStatusChange(c *gin.Context, d deps, sessionID, actorID, actionID string) {
	thread, err := d.sync.ApplyStatusChange(c.Request.Context(), sessionID, actorID, actionID)
	if err != nil && !bridge.IsMirrorError(err) {
		writeBridgeError(c, err)
		return
	}
	resp := gin.H{"thread": toThreadJSON(thread), "mirrored": err == nil}
	if err != nil {
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// writeBridgeError maps bridge error types onto HTTP statuses.
func writeBridgeError(c *gin.Context, err error) {
	var ve *bridge.ValidationError
	var ge *bridge.GatewayError
	switch {
	case errors.As(err, &ve), errors.Is(err, bridge.ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, bridge.ErrThreadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ge):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

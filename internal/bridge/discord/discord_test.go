package discord

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/relayops/chatbridge/internal/bridge"
)

// mockSession records API calls and lets tests fire interactions.
type mockSession struct {
	opened      bool
	closed      bool
	handler     func(*discordgo.Session, *discordgo.InteractionCreate)
	sends       []struct{ Channel, Content string }
	complexes   []struct {
		Channel string
		Data    *discordgo.MessageSend
	}
	edits       []*discordgo.MessageEdit
	threads     []struct{ Channel, Message string }
	responds    []*discordgo.InteractionResponse
	sendErr     error
	complexErr  error
	editErr     error
	threadErr   error
	nextID      int
}

func (m *mockSession) Open() error  { m.opened = true; return nil }
func (m *mockSession) Close() error { m.closed = true; return nil }

func (m *mockSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sends = append(m.sends, struct{ Channel, Content string }{channelID, content})
	m.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", m.nextID)}, nil
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.complexErr != nil {
		return nil, m.complexErr
	}
	m.complexes = append(m.complexes, struct {
		Channel string
		Data    *discordgo.MessageSend
	}{channelID, data})
	m.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", m.nextID)}, nil
}

func (m *mockSession) ChannelMessageEditComplex(edit *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.editErr != nil {
		return nil, m.editErr
	}
	m.edits = append(m.edits, edit)
	return &discordgo.Message{ID: edit.ID}, nil
}

func (m *mockSession) MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart) (*discordgo.Channel, error) {
	if m.threadErr != nil {
		return nil, m.threadErr
	}
	m.threads = append(m.threads, struct{ Channel, Message string }{channelID, messageID})
	return &discordgo.Channel{ID: "thread-" + messageID}, nil
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.responds = append(m.responds, resp)
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.handler = handler.(func(*discordgo.Session, *discordgo.InteractionCreate))
	return func() { m.handler = nil }
}

var testHeader = bridge.Header{
	SessionID:    "42-1000",
	JobID:        42,
	CustomerName: "A",
	Email:        "a@x.com",
	Phone:        "555",
	Status:       "unresolved",
}

func newTestGateway(t *testing.T) (*Gateway, *mockSession) {
	t.Helper()
	sess := &mockSession{}
	g, err := New(GatewayOpts{Session: sess, ChannelID: "parent"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, sess
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(GatewayOpts{ChannelID: "c"}); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := New(GatewayOpts{Session: &mockSession{}}); err == nil {
		t.Error("expected error for missing channel")
	}
}

func TestNew_OpensAndRegisters(t *testing.T) {
	g, sess := newTestGateway(t)
	defer g.Close()
	if !sess.opened {
		t.Error("session not opened")
	}
	if sess.handler == nil {
		t.Error("interaction handler not registered")
	}
}

func TestPostThread(t *testing.T) {
	g, sess := newTestGateway(t)
	defer g.Close()

	ref, err := g.PostThread(context.Background(), testHeader)
	if err != nil {
		t.Fatalf("PostThread: %v", err)
	}

	if len(sess.complexes) != 1 {
		t.Fatalf("header sends = %d, want 1", len(sess.complexes))
	}
	if sess.complexes[0].Channel != "parent" {
		t.Errorf("header posted to %q", sess.complexes[0].Channel)
	}
	if len(sess.threads) != 1 {
		t.Fatalf("thread starts = %d, want 1", len(sess.threads))
	}
	// Replies target the spawned thread channel; edits target the header
	// message in the parent channel.
	if ref.ChannelID != "thread-msg-1" || ref.MessageTS != "msg-1" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestPostThread_HeaderFailureAborts(t *testing.T) {
	g, sess := newTestGateway(t)
	defer g.Close()
	sess.complexErr = fmt.Errorf("missing access")

	if _, err := g.PostThread(context.Background(), testHeader); err == nil {
		t.Fatal("expected error")
	}
	if len(sess.threads) != 0 {
		t.Error("thread must not start when the header post fails")
	}
}

func TestPostReply(t *testing.T) {
	g, sess := newTestGateway(t)
	defer g.Close()

	ref := bridge.ThreadRef{ChannelID: "thread-1", MessageTS: "msg-1"}
	if err := g.PostReply(context.Background(), ref, "cust", "hello"); err != nil {
		t.Fatalf("PostReply: %v", err)
	}
	if len(sess.sends) != 1 || sess.sends[0].Channel != "thread-1" {
		t.Errorf("sends = %+v", sess.sends)
	}
	if sess.sends[0].Content != "**cust**: hello" {
		t.Errorf("content = %q", sess.sends[0].Content)
	}
}

func TestUpdateHeader(t *testing.T) {
	g, sess := newTestGateway(t)
	defer g.Close()

	resolved := testHeader
	resolved.Status = "resolved"
	ref := bridge.ThreadRef{ChannelID: "thread-1", MessageTS: "msg-1"}
	if err := g.UpdateHeader(context.Background(), ref, resolved); err != nil {
		t.Fatalf("UpdateHeader: %v", err)
	}

	if len(sess.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(sess.edits))
	}
	edit := sess.edits[0]
	if edit.Channel != "parent" || edit.ID != "msg-1" {
		t.Errorf("edit addressed at %s/%s, want parent/msg-1", edit.Channel, edit.ID)
	}
	if edit.Embeds == nil || len(*edit.Embeds) != 1 {
		t.Fatal("edit missing embed")
	}
	if (*edit.Embeds)[0].Color != colorResolved {
		t.Errorf("embed color = %#x, want resolved color", (*edit.Embeds)[0].Color)
	}
}

func TestHeaderComponents_InverseAction(t *testing.T) {
	tests := []struct {
		status     string
		wantCustom string
		wantStyle  discordgo.ButtonStyle
	}{
		{"unresolved", "resolve_thread:42-1000", discordgo.PrimaryButton},
		{"resolved", "unresolve_thread:42-1000", discordgo.DangerButton},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			h := testHeader
			h.Status = tt.status
			comps := headerComponents(h)
			row, ok := comps[0].(discordgo.ActionsRow)
			if !ok {
				t.Fatalf("component type = %T", comps[0])
			}
			button, ok := row.Components[0].(discordgo.Button)
			if !ok {
				t.Fatalf("row component type = %T", row.Components[0])
			}
			if button.CustomID != tt.wantCustom {
				t.Errorf("CustomID = %q, want %q", button.CustomID, tt.wantCustom)
			}
			if button.Style != tt.wantStyle {
				t.Errorf("Style = %v, want %v", button.Style, tt.wantStyle)
			}
		})
	}
}

func TestHandleInteraction_DeliversAction(t *testing.T) {
	g, sess := newTestGateway(t)
	defer g.Close()

	sess.handler(nil, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{
				CustomID: "resolve_thread:42-1000",
			},
			Member: &discordgo.Member{User: &discordgo.User{ID: "U1"}},
		},
	})

	select {
	case action := <-g.Actions():
		if action.SessionID != "42-1000" || action.ActorID != "U1" || action.ActionID != bridge.ActionResolve {
			t.Errorf("action = %+v", action)
		}
	case <-time.After(time.Second):
		t.Fatal("no action delivered")
	}

	// Interaction was acked.
	if len(sess.responds) != 1 || sess.responds[0].Type != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Errorf("responds = %+v", sess.responds)
	}
}

func TestHandleInteraction_IgnoresUnknownCustomID(t *testing.T) {
	g, sess := newTestGateway(t)
	defer g.Close()

	sess.handler(nil, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{CustomID: "ban_user:42"},
		},
	})

	select {
	case action := <-g.Actions():
		t.Errorf("unexpected action %+v", action)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		in        string
		actionID  string
		sessionID string
		ok        bool
	}{
		{"resolve_thread:42-1000", bridge.ActionResolve, "42-1000", true},
		{"unresolve_thread:s", bridge.ActionUnresolve, "s", true},
		{"resolve_thread:", "", "", false},
		{"noseparator", "", "", false},
		{"other_action:42", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			actionID, sessionID, ok := parseCustomID(tt.in)
			if actionID != tt.actionID || sessionID != tt.sessionID || ok != tt.ok {
				t.Errorf("parseCustomID(%q) = %q, %q, %v", tt.in, actionID, sessionID, ok)
			}
		})
	}
}

func TestClose_Idempotent(t *testing.T) {
	g, sess := newTestGateway(t)
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
	if err := g.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	// Actions channel is closed.
	if _, ok := <-g.Actions(); ok {
		t.Error("actions channel should be closed")
	}
}

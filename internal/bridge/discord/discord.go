// Package discord implements the bridge Gateway for Discord. Thread headers
// are embeds with a button component; status actions come back over the
// Gateway WebSocket as component interactions.
package discord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/relayops/chatbridge/internal/bridge"
)

// Embed sidebar colors by thread status.
const (
	colorUnresolved = 0xE8912D
	colorResolved   = 0x36A64F
)

// actionBuffer is the inbound status action channel depth.
const actionBuffer = 100

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart) (*discordgo.Channel, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageEditComplex(m, options...)
}
func (r *realSession) MessageThreadStartComplex(channelID, messageID string, data *discordgo.ThreadStart) (*discordgo.Channel, error) {
	return r.s.MessageThreadStartComplex(channelID, messageID, data)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}

// Gateway implements bridge.Gateway and bridge.ActionSource for Discord.
//
// The header message lives in the configured parent channel; replies go to
// the thread channel spawned from it. A ThreadRef therefore carries the
// thread channel ID for replies while header edits are addressed at the
// parent channel via the header message ID.
type Gateway struct {
	sess          session
	channelID     string
	mu            sync.Mutex
	closed        bool
	actions       chan bridge.StatusAction
	removeHandler func()
}

// GatewayOpts holds parameters for creating a Discord Gateway.
type GatewayOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // parent channel all threads are posted to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Gateway, registers the interaction handler, and
// opens the Gateway WebSocket (needed to receive component interactions).
func New(opts GatewayOpts) (*Gateway, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}

	g := &Gateway{
		channelID: opts.ChannelID,
		actions:   make(chan bridge.StatusAction, actionBuffer),
	}

	if opts.Session != nil {
		g.sess = opts.Session
	} else {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		s.Identify.Intents = discordgo.IntentsGuildMessages
		g.sess = &realSession{s: s}
	}

	g.removeHandler = g.sess.AddHandler(g.handleInteraction)
	if err := g.sess.Open(); err != nil {
		g.removeHandler()
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}
	return g, nil
}

// PostThread posts a header message with a status button and spawns a
// thread from it.
func (g *Gateway) PostThread(ctx context.Context, h bridge.Header) (bridge.ThreadRef, error) {
	msg, err := g.sess.ChannelMessageSendComplex(g.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{headerEmbed(h)},
		Components: headerComponents(h),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return bridge.ThreadRef{}, fmt.Errorf("discord: post header: %w", err)
	}

	thread, err := g.sess.MessageThreadStartComplex(g.channelID, msg.ID, &discordgo.ThreadStart{
		Name:                fmt.Sprintf("Order #%d — %s", h.JobID, h.CustomerName),
		AutoArchiveDuration: 1440,
	})
	if err != nil {
		return bridge.ThreadRef{}, fmt.Errorf("discord: start thread: %w", err)
	}

	return bridge.ThreadRef{ChannelID: thread.ID, MessageTS: msg.ID}, nil
}

// PostReply sends a message into the thread channel.
func (g *Gateway) PostReply(ctx context.Context, ref bridge.ThreadRef, userID, text string) error {
	content := fmt.Sprintf("**%s**: %s", userID, text)
	if _, err := g.sess.ChannelMessageSend(ref.ChannelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: post reply: %w", err)
	}
	return nil
}

// UpdateHeader replaces the header message's embed and button.
func (g *Gateway) UpdateHeader(ctx context.Context, ref bridge.ThreadRef, h bridge.Header) error {
	embeds := []*discordgo.MessageEmbed{headerEmbed(h)}
	components := headerComponents(h)
	_, err := g.sess.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    g.channelID,
		ID:         ref.MessageTS,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: update header: %w", err)
	}
	return nil
}

// PostNotice posts a plain message to the parent channel.
func (g *Gateway) PostNotice(ctx context.Context, text string) error {
	if _, err := g.sess.ChannelMessageSend(g.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: post notice: %w", err)
	}
	return nil
}

// Actions returns the status actions received as component interactions.
func (g *Gateway) Actions() <-chan bridge.StatusAction { return g.actions }

// Close shuts down the WebSocket and closes the actions channel.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.removeHandler != nil {
		g.removeHandler()
	}
	err := g.sess.Close()
	close(g.actions)
	return err
}

// handleInteraction converts a button press on a header into a StatusAction.
func (g *Gateway) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}

	actionID, sessionID, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	actorID := ""
	if i.Member != nil && i.Member.User != nil {
		actorID = i.Member.User.ID
	} else if i.User != nil {
		actorID = i.User.ID
	}

	// Ack the interaction; the header edit follows from the synchronizer.
	if err := g.sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		log.Printf("discord: ack interaction: %v", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	select {
	case g.actions <- bridge.StatusAction{SessionID: sessionID, ActorID: actorID, ActionID: actionID}:
	default:
		log.Printf("discord: action buffer full, dropping %s for %s", actionID, sessionID)
	}
}

// parseCustomID splits "<action_id>:<session_id>" as embedded by
// headerComponents.
func parseCustomID(customID string) (actionID, sessionID string, ok bool) {
	actionID, sessionID, found := strings.Cut(customID, ":")
	if !found || actionID == "" || sessionID == "" {
		return "", "", false
	}
	switch actionID {
	case bridge.ActionResolve, bridge.ActionUnresolve:
		return actionID, sessionID, true
	}
	return "", "", false
}

// headerEmbed renders the thread header as an embed.
func headerEmbed(h bridge.Header) *discordgo.MessageEmbed {
	color := colorUnresolved
	if h.Status == "resolved" {
		color = colorResolved
	}
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Chat for Order #%d", h.JobID),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: strings.ToUpper(h.Status), Inline: true},
			{Name: "Customer", Value: h.CustomerName, Inline: true},
			{Name: "Email", Value: h.Email, Inline: true},
			{Name: "Phone1", Value: h.Phone, Inline: true},
		},
	}
}

// headerComponents renders the inverse-action button. The session id rides
// in the custom id so the interaction round-trips it.
func headerComponents(h bridge.Header) []discordgo.MessageComponent {
	style := discordgo.PrimaryButton
	if h.Status == "resolved" {
		style = discordgo.DangerButton
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    h.ActionLabel(),
					Style:    style,
					CustomID: h.ActionID() + ":" + h.SessionID,
				},
			},
		},
	}
}

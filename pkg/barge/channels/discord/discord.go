// Package discord implements the Discord adapter for the attention daemon
// using discordgo. Guild messages become message-arrival events; the bot's
// own guild messages become reply-sent events. The adapter also implements
// attention.Outbound for follow-up replies and proactive interjections.
//
// Origins are "discord:<channelID>"; a Discord channel is the scheduler's
// group.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/barge/pkg/barge/attention"
	"github.com/jholhewres/barge/pkg/barge/channels"
)

// originPrefix namespaces Discord conversation identifiers.
const originPrefix = "discord:"

// Config holds Discord adapter configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// AllowedGuilds restricts which guild (server) IDs the bot observes.
	// Empty means all guilds.
	AllowedGuilds []string `yaml:"allowed_guilds"`

	// AllowedChannels restricts which channel IDs the bot observes.
	// Empty means all channels.
	AllowedChannels []string `yaml:"allowed_channels"`
}

// Discord implements channels.Channel and attention.Outbound.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// events forwards scheduler-relevant occurrences to the daemon loop.
	events chan channels.Event

	connected atomic.Bool
}

// New creates a Discord adapter.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:    cfg,
		logger: logger.With("component", "discord"),
		events: make(chan channels.Event, 256),
	}
}

// Origin builds the unified origin for a Discord channel ID.
func Origin(channelID string) string { return originPrefix + channelID }

// ---------- channels.Channel ----------

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the gateway connection. The event channel is left open
// because a handler dispatched by discordgo may still be in flight; emit
// drops events once the adapter is disconnected.
func (d *Discord) Disconnect() error {
	if d.session != nil {
		d.session.Close()
	}
	if d.connected.CompareAndSwap(true, false) {
		d.logger.Info("discord: disconnected")
	}
	return nil
}

// Events returns the event stream.
func (d *Discord) Events() <-chan channels.Event { return d.events }

// IsConnected reports connection state.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// ---------- attention.Outbound ----------

// SendReply sends a plain message on the conversation behind origin.
func (d *Discord) SendReply(_ context.Context, origin, content string) error {
	return d.send(origin, content)
}

// SendUnprompted sends a proactive message, mentioning mentionUserID when
// set.
func (d *Discord) SendUnprompted(_ context.Context, origin, mentionUserID, content string) error {
	if mentionUserID != "" {
		content = fmt.Sprintf("<@%s> %s", mentionUserID, content)
	}
	return d.send(origin, content)
}

func (d *Discord) send(origin, content string) error {
	if d.session == nil || !d.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	channelID := strings.TrimPrefix(origin, originPrefix)

	// Discord caps messages at 2000 characters.
	for _, chunk := range splitMessage(content, 2000) {
		if _, err := d.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("discord: send to %s: %w", channelID, err)
		}
	}
	return nil
}

// ---------- Gateway handlers ----------

// onMessageCreate translates gateway messages into scheduler events. The
// bot's own messages become reply-sent events so the scheduler can arm
// sessions and restart timers; everything else becomes a message event.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// DMs carry no guild id; the scheduler only watches groups.
	if m.GuildID == "" {
		return
	}
	if !d.allowed(m.GuildID, m.ChannelID) {
		return
	}

	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}

	if m.Author != nil && m.Author.ID == selfID {
		d.emit(channels.Event{
			Kind: channels.EventReplySent,
			Reply: attention.ReplyEvent{
				Origin:  Origin(m.ChannelID),
				GroupID: m.ChannelID,
				UserID:  repliedUser(m),
			},
		})
		return
	}

	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}

	name := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	}

	d.emit(channels.Event{
		Kind: channels.EventMessage,
		Message: attention.MessageEvent{
			Origin:     Origin(m.ChannelID),
			GroupID:    m.ChannelID,
			SenderID:   m.Author.ID,
			SenderName: name,
			SelfID:     selfID,
			Text:       m.Content,
		},
	})
}

func (d *Discord) emit(evt channels.Event) {
	if !d.connected.Load() {
		return
	}
	select {
	case d.events <- evt:
	default:
		d.logger.Warn("discord: event buffer full, dropping event")
	}
}

// repliedUser finds the user the bot's message was directed at: the author
// of the referenced message first, then the first mention.
func repliedUser(m *discordgo.MessageCreate) string {
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		return m.ReferencedMessage.Author.ID
	}
	if len(m.Mentions) > 0 {
		return m.Mentions[0].ID
	}
	return ""
}

func (d *Discord) allowed(guildID, channelID string) bool {
	if len(d.cfg.AllowedGuilds) > 0 && !contains(d.cfg.AllowedGuilds, guildID) {
		return false
	}
	if len(d.cfg.AllowedChannels) > 0 && !contains(d.cfg.AllowedChannels, channelID) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// splitMessage breaks content into chunks of at most limit bytes,
// preferring newline boundaries.
func splitMessage(content string, limit int) []string {
	if len(content) <= limit {
		return []string{content}
	}

	var chunks []string
	for len(content) > limit {
		cut := strings.LastIndex(content[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, content[:cut])
		content = strings.TrimLeft(content[cut:], "\n")
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

var (
	_ channels.Channel   = (*Discord)(nil)
	_ attention.Outbound = (*Discord)(nil)
)

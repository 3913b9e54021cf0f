package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sipeed/picopost/pkg/bus"
	"github.com/sipeed/picopost/pkg/config"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/utils"
)

const sendTimeout = 10 * time.Second

// discordSession is the subset of *discordgo.Session the channel uses.
type discordSession interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordChannel relays generation commands to a Discord channel and turns
// replies carrying image attachments into bus messages.
type DiscordChannel struct {
	*BaseChannel
	session       discordSession
	config        config.DiscordConfig
	selfID        string
	removeHandler func()
}

func NewDiscordChannel(cfg config.DiscordConfig, msgBus *bus.MessageBus, allowFrom []string) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return newDiscordChannel(cfg, msgBus, allowFrom, session), nil
}

func newDiscordChannel(cfg config.DiscordConfig, msgBus *bus.MessageBus, allowFrom []string, session discordSession) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", msgBus, allowFrom),
		session:     session,
		config:      cfg,
	}
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord relay")

	// selfID must be set before any gateway event can reach handleMessage.
	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	c.selfID = botUser.ID

	c.removeHandler = c.session.AddHandler(c.onMessageCreate)

	if err := c.session.Open(); err != nil {
		c.removeHandler()
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	c.setRunning(true)

	logger.InfoCF("discord", "Discord relay connected", map[string]any{
		"username":   botUser.Username,
		"user_id":    botUser.ID,
		"channel_id": c.config.ChannelID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord relay")
	c.setRunning(false)
	if c.removeHandler != nil {
		c.removeHandler()
	}

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord relay not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		channelID = c.config.ChannelID
	}
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, msg.Content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		logger.DebugCF("discord", "Relay command sent", map[string]any{
			"channel_id": channelID,
			"request_id": msg.RequestID,
			"preview":    utils.Truncate(msg.Content, 50),
		})
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

// Command renders the relay command for an image prompt.
func (c *DiscordChannel) Command(prompt string) string {
	prefix := strings.TrimSpace(c.config.CommandPrefix)
	if prefix == "" {
		return prompt
	}
	return prefix + " " + prompt
}

func (c *DiscordChannel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	c.handleMessage(m)
}

func (c *DiscordChannel) handleMessage(m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}

	if m.Author.ID == c.selfID {
		return
	}

	if c.config.ChannelID != "" && m.ChannelID != c.config.ChannelID {
		return
	}

	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	media := imageRefs(m.Message)
	if m.Content == "" && len(media) == 0 {
		return
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_id": m.Author.ID,
		"media":     len(media),
		"preview":   utils.Truncate(m.Content, 50),
	})

	metadata := map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
		"channel_id": m.ChannelID,
	}

	c.HandleMessage(m.Author.ID, m.ChannelID, m.Content, media, metadata)
}

// imageRefs collects image URLs from attachments and, failing that, embeds.
func imageRefs(m *discordgo.Message) []string {
	refs := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if a == nil || a.URL == "" {
			continue
		}
		if utils.IsImageFile(a.Filename, a.ContentType) {
			refs = append(refs, a.URL)
		}
	}
	if len(refs) > 0 {
		return refs
	}
	for _, e := range m.Embeds {
		if e != nil && e.Image != nil && e.Image.URL != "" {
			refs = append(refs, e.Image.URL)
		}
	}
	return refs
}

// Package discord delivers Discord channels through a gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"

	"github.com/bwmarrin/discordgo"
)

const maxMessageLength = 2000

// Transport is a Discord bot session.
type Transport struct {
	cfg     config.DiscordConfig
	session *discordgo.Session
	log     *slog.Logger

	mu     sync.Mutex
	opened bool
}

func New(cfg config.DiscordConfig, log *slog.Logger) (*Transport, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("transport.discord.token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return &Transport{
		cfg:     cfg,
		session: session,
		log:     log.With("component", "channel.discord"),
	}, nil
}

func (t *Transport) Name() string {
	return config.TransportDiscord
}

// Subscribe opens the gateway connection. The session closes when ctx is
// cancelled.
func (t *Transport) Subscribe(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	remove := t.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}

		msg, ok := fromMessageCreate(m, selfID, t.cfg.GuildID)
		if !ok {
			return
		}

		t.log.Info("Received message", "chat_id", msg.Destination, "user", msg.User, "chars", len(msg.Text))
		if err := handler(ctx, msg); err != nil {
			t.log.Error("Failed to process inbound message", "chat_id", msg.Destination, "error", err)
		}
	})

	if err := t.session.Open(); err != nil {
		remove()
		return fmt.Errorf("discord connect: %w", err)
	}
	t.mu.Lock()
	t.opened = true
	t.mu.Unlock()

	t.log.Info("Discord transport connected")

	go func() {
		<-ctx.Done()
		remove()
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.opened {
			t.opened = false
			if err := t.session.Close(); err != nil {
				t.log.Warn("Discord session close failed", "error", err)
			}
		}
	}()

	return nil
}

// Send posts msg to the Discord channel named by its destination.
func (t *Transport) Send(_ context.Context, msg chat.Message) error {
	channelID := strings.TrimSpace(msg.Destination)
	if channelID == "" {
		return errors.New("discord channel id is required")
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	for _, chunk := range channel.SplitText(text, maxMessageLength) {
		if _, err := t.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}

	return nil
}

// fromMessageCreate converts a gateway message, skipping our own posts,
// other bots and guilds outside the configured one.
func fromMessageCreate(m *discordgo.MessageCreate, selfID string, guildID string) (chat.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return chat.Message{}, false
	}
	if m.Author.Bot || (selfID != "" && m.Author.ID == selfID) {
		return chat.Message{}, false
	}
	if guildID != "" && m.GuildID != guildID {
		return chat.Message{}, false
	}

	text := strings.TrimSpace(m.Content)
	if text == "" {
		return chat.Message{}, false
	}

	user := m.Author.Username
	if user == "" {
		user = m.Author.ID
	}

	return chat.Message{
		ID:          m.ID,
		Destination: m.ChannelID,
		Text:        text,
		User:        user,
		CreatedAt:   m.Timestamp.UTC(),
	}, true
}

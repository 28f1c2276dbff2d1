// Package telegram delivers Telegram chats through long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const transportName = config.TransportTelegram
const messagePreviewLimit = 240
const maxMessageLength = 4000
const typingRefreshInterval = 4 * time.Second

// Transport bridges Telegram updates into chat messages.
type Transport struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger

	mu  sync.Mutex
	bot *telego.Bot
}

// New validates Telegram configuration and constructs a transport.
func New(cfg config.TelegramConfig, log *slog.Logger) (*Transport, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("transport.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

func (t *Transport) Name() string {
	return transportName
}

func (t *Transport) client() (*telego.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}

	bot, err := telego.NewBot(strings.TrimSpace(t.cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}
	t.bot = bot

	return bot, nil
}

// Subscribe starts long polling and forwards text messages to handler until
// ctx is cancelled.
func (t *Transport) Subscribe(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := t.client()
	if err != nil {
		return err
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	t.log.Info("Telegram transport started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					if ctx.Err() == nil {
						t.log.Error("Telegram updates channel closed")
					}
					return
				}
				t.handleUpdate(ctx, bot, update, handler)
			}
		}
	}()

	return nil
}

func (t *Transport) handleUpdate(ctx context.Context, bot *telego.Bot, update telego.Update, handler channel.Handler) {
	message := update.Message
	if message == nil {
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return
	}
	if message.From == nil {
		t.log.Debug("Ignoring message without sender")
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !t.senderAllowed(senderID) {
		t.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	msg := toChatMessage(message, content)
	t.log.Info("Received message", "chat_id", msg.Destination, "user", msg.User, "content", previewText(content))

	stopTyping := t.startTypingIndicator(ctx, bot, message.Chat.ID)
	err := handler(ctx, msg)
	stopTyping()
	if err != nil {
		t.log.Error("Failed to process inbound message", "chat_id", msg.Destination, "error", err)
	}
}

// Send delivers msg to the chat named by its destination, split into
// Telegram-sized chunks.
func (t *Transport) Send(ctx context.Context, msg chat.Message) error {
	chatID, err := parseChatID(msg.Destination)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	bot, err := t.client()
	if err != nil {
		return err
	}

	t.log.Info("Sending message", "chat_id", chatID, "content", previewText(text))
	for _, chunk := range channel.SplitText(text, maxMessageLength) {
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}

	return nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (t *Transport) senderAllowed(senderID string) bool {
	if len(t.allowFrom) == 0 {
		return true
	}

	_, ok := t.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func toChatMessage(message *telego.Message, content string) chat.Message {
	user := strconv.FormatInt(message.From.ID, 10)
	if name := strings.TrimSpace(message.From.Username); name != "" {
		user = name
	}

	return chat.Message{
		ID:          strconv.Itoa(message.MessageID),
		Destination: strconv.FormatInt(message.Chat.ID, 10),
		Text:        content,
		User:        user,
		CreatedAt:   time.Unix(message.Date, 0).UTC(),
	}
}

func parseChatID(destination string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", destination, err)
	}

	return chatID, nil
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (t *Transport) startTypingIndicator(ctx context.Context, bot *telego.Bot, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			t.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}

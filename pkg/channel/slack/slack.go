// Package slack delivers Slack channels through Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const maxMessageLength = 4000

// Transport is a Socket Mode Slack app.
type Transport struct {
	cfg    config.SlackConfig
	client *slack.Client
	log    *slog.Logger

	mu     sync.RWMutex
	botUID string
}

func New(cfg config.SlackConfig, log *slog.Logger) (*Transport, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("transport.slack.bot_token is required")
	}
	if strings.TrimSpace(cfg.AppToken) == "" {
		return nil, errors.New("transport.slack.app_token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		cfg:    cfg,
		client: slack.New(strings.TrimSpace(cfg.BotToken), slack.OptionAppLevelToken(strings.TrimSpace(cfg.AppToken))),
		log:    log.With("component", "channel.slack"),
	}, nil
}

func (t *Transport) Name() string {
	return config.TransportSlack
}

// Subscribe authenticates, then runs the socket mode client in the
// background until ctx is cancelled.
func (t *Transport) Subscribe(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	auth, err := t.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	t.mu.Lock()
	t.botUID = auth.UserID
	t.mu.Unlock()
	t.log.Info("Slack transport connected", "user", auth.User, "user_id", auth.UserID)

	socket := socketmode.New(t.client)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-socket.Events:
				if !ok {
					return
				}
				t.handleSocketEvent(ctx, socket, evt, handler)
			}
		}
	}()

	go func() {
		if err := socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			t.log.Error("Slack socket mode stopped", "error", err)
		}
	}()

	return nil
}

func (t *Transport) handleSocketEvent(ctx context.Context, socket *socketmode.Client, evt socketmode.Event, handler channel.Handler) {
	if evt.Request != nil {
		socket.Ack(*evt.Request)
	}
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}

	apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok || apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	t.mu.RLock()
	botUID := t.botUID
	t.mu.RUnlock()

	var msg chat.Message
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		msg, ok = fromMessageEvent(ev, botUID)
	case *slackevents.AppMentionEvent:
		msg, ok = fromMentionEvent(ev, botUID)
	default:
		ok = false
	}
	if !ok {
		return
	}

	t.log.Info("Received message", "chat_id", msg.Destination, "user", msg.User, "chars", len(msg.Text))
	if err := handler(ctx, msg); err != nil {
		t.log.Error("Failed to process inbound message", "chat_id", msg.Destination, "error", err)
	}
}

// Send posts msg to the Slack channel named by its destination.
func (t *Transport) Send(ctx context.Context, msg chat.Message) error {
	channelID := strings.TrimSpace(msg.Destination)
	if channelID == "" {
		return errors.New("slack channel id is required")
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	for _, chunk := range channel.SplitText(text, maxMessageLength) {
		if _, _, err := t.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(chunk, false)); err != nil {
			return fmt.Errorf("post slack message: %w", err)
		}
	}

	return nil
}

// fromMessageEvent converts plain channel messages, skipping the bot's own
// posts and edited or system subtypes.
func fromMessageEvent(ev *slackevents.MessageEvent, botUID string) (chat.Message, bool) {
	if ev == nil || ev.User == "" || ev.User == botUID || ev.SubType != "" || ev.BotID != "" {
		return chat.Message{}, false
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return chat.Message{}, false
	}

	return chat.Message{
		ID:          ev.TimeStamp,
		Destination: ev.Channel,
		Text:        text,
		User:        ev.User,
		CreatedAt:   time.Now().UTC(),
	}, true
}

func fromMentionEvent(ev *slackevents.AppMentionEvent, botUID string) (chat.Message, bool) {
	if ev == nil || ev.User == "" || ev.User == botUID {
		return chat.Message{}, false
	}
	text := stripMention(ev.Text)
	if text == "" {
		return chat.Message{}, false
	}

	return chat.Message{
		ID:          ev.TimeStamp,
		Destination: ev.Channel,
		Text:        text,
		User:        ev.User,
		CreatedAt:   time.Now().UTC(),
	}, true
}

// stripMention drops a leading <@U123> mention.
func stripMention(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<@") {
		if idx := strings.Index(text, ">"); idx >= 0 {
			text = text[idx+1:]
		}
	}

	return strings.TrimSpace(text)
}

// Package bus is the in-process transport: inbound messages come from the
// message bus queue and replies go back out on it.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	msgbus "chatpoll/pkg/bus"
	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"

	"github.com/google/uuid"
)

// Transport reads inbound messages from a MessageBus.
type Transport struct {
	bus *msgbus.MessageBus
	log *slog.Logger
}

func New(mb *msgbus.MessageBus, log *slog.Logger) (*Transport, error) {
	if mb == nil {
		return nil, errors.New("message bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Transport{bus: mb, log: log.With("component", "channel.bus")}, nil
}

func (t *Transport) Name() string {
	return config.TransportBus
}

func (t *Transport) Subscribe(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	go func() {
		for {
			msg, ok := t.bus.ConsumeInbound(ctx)
			if !ok {
				return
			}

			msg = stamp(msg)
			if err := handler(ctx, msg); err != nil {
				t.log.Error("Failed to process inbound message", "chat_id", msg.Destination, "error", err)
			}
		}
	}()

	return nil
}

func (t *Transport) Send(ctx context.Context, msg chat.Message) error {
	if !t.bus.PublishOutbound(ctx, stamp(msg)) {
		return errors.New("message bus is closed")
	}

	return nil
}

func stamp(msg chat.Message) chat.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	return msg
}

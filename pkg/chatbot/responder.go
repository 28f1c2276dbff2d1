package chatbot

import (
	"context"
	"fmt"
	"strings"

	"chatpoll/pkg/chat"
)

// Responder is the bot logic: it turns an inbound message into reply text.
// An empty reply means nothing is sent.
type Responder interface {
	Respond(ctx context.Context, conv chat.Conversation, msg chat.Message) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, conv chat.Conversation, msg chat.Message) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, conv chat.Conversation, msg chat.Message) (string, error) {
	return f(ctx, conv, msg)
}

// EchoResponder repeats the message text behind Prefix.
type EchoResponder struct {
	Prefix string
}

func (r EchoResponder) Respond(_ context.Context, _ chat.Conversation, msg chat.Message) (string, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return "", nil
	}

	return r.Prefix + text, nil
}

// NewResponder returns the built-in responder named by name.
func NewResponder(name string, prefix string) (Responder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "echo":
		return EchoResponder{Prefix: prefix}, nil
	default:
		return nil, fmt.Errorf("unknown responder %q", name)
	}
}

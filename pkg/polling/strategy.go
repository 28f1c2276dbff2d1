// Package polling detects new inbound chat messages and hands them to a
// dispatcher. Two strategies exist: periodic message-count diffing against a
// tabular source and push delivery from a realtime transport.
package polling

import (
	"context"

	"chatpoll/pkg/chat"
)

// Strategy is one way of detecting inbound messages and relaying replies.
type Strategy interface {
	Name() string
	// Start blocks until Stop is called or ctx is done.
	Start(ctx context.Context) error
	// Stop requests termination. Safe from any goroutine and idempotent.
	Stop()
	SendMessage(ctx context.Context, msg chat.Message) error
}

// Dispatcher receives every detected message.
type Dispatcher interface {
	OnMessage(ctx context.Context, conv chat.Conversation, msg chat.Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, conv chat.Conversation, msg chat.Message) error

func (f DispatcherFunc) OnMessage(ctx context.Context, conv chat.Conversation, msg chat.Message) error {
	return f(ctx, conv, msg)
}

// Unimplemented can be embedded by partial strategies.
type Unimplemented struct{}

func (Unimplemented) Name() string { return "unimplemented" }

func (Unimplemented) Start(context.Context) error {
	return newError("start", ErrNotImplemented)
}

func (Unimplemented) Stop() {}

func (Unimplemented) SendMessage(context.Context, chat.Message) error {
	return newError("send", ErrNotImplemented)
}

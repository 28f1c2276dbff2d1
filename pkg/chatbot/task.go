// Package chatbot owns the dispatch side: it receives detected messages,
// asks a Responder for a reply and relays it through the active strategy.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chatpoll/pkg/bus"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/polling"
)

// Task is the dispatcher handed to a polling strategy.
type Task struct {
	responder Responder
	botName   string
	bus       *bus.MessageBus
	logger    *slog.Logger

	mu       sync.RWMutex
	strategy polling.Strategy
}

// Options wires a Task. Bus is optional.
type Options struct {
	Responder   Responder
	BotUsername string
	Bus         *bus.MessageBus
	Logger      *slog.Logger
}

func NewTask(opts Options) (*Task, error) {
	if opts.Responder == nil {
		return nil, errors.New("responder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Task{
		responder: opts.Responder,
		botName:   strings.TrimSpace(opts.BotUsername),
		bus:       opts.Bus,
		logger:    logger.With("component", "chatbot"),
	}, nil
}

// Attach sets the strategy used for replies and for Run. Strategies need
// the task as their dispatcher, so the two are wired in two steps.
func (t *Task) Attach(strategy polling.Strategy) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.strategy = strategy
}

// Strategy returns the attached strategy, or nil.
func (t *Task) Strategy() polling.Strategy {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.strategy
}

// OnMessage asks the responder for a reply and sends it back to the same
// conversation. Send failures are returned to the caller.
func (t *Task) OnMessage(ctx context.Context, conv chat.Conversation, msg chat.Message) error {
	strategy := t.Strategy()
	if strategy == nil {
		return errors.New("no strategy attached")
	}

	t.publish(ctx, bus.Event{Type: bus.EventMessageReceived, Strategy: strategy.Name(), ChatID: msg.Destination, User: msg.User, MessageID: msg.ID})
	t.logger.Info("message received", "conversation", msg.Destination, "user", msg.User, "chars", len(msg.Text))

	reply, err := t.responder.Respond(ctx, conv, msg)
	if err != nil {
		t.fail(ctx, strategy.Name(), msg, err)
		return fmt.Errorf("respond to %s: %w", msg.Destination, err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil
	}

	out := chat.Message{Destination: msg.Destination, Text: reply, User: t.botName}
	if err := strategy.SendMessage(ctx, out); err != nil {
		t.fail(ctx, strategy.Name(), msg, err)
		return fmt.Errorf("send reply to %s: %w", msg.Destination, err)
	}

	t.publish(ctx, bus.Event{Type: bus.EventReplySent, Strategy: strategy.Name(), ChatID: msg.Destination, User: t.botName, MessageID: msg.ID})
	t.logger.Info("reply sent", "conversation", msg.Destination, "chars", len(reply))
	return nil
}

// Run starts the attached strategy and blocks until it stops.
func (t *Task) Run(ctx context.Context) error {
	strategy := t.Strategy()
	if strategy == nil {
		return errors.New("no strategy attached")
	}

	t.publish(ctx, bus.Event{Type: bus.EventTaskStarted, Strategy: strategy.Name()})
	err := strategy.Start(ctx)
	t.publish(context.Background(), bus.Event{Type: bus.EventTaskStopped, Strategy: strategy.Name(), Error: errorText(err)})

	return err
}

// Stop asks the attached strategy to stop.
func (t *Task) Stop() {
	if strategy := t.Strategy(); strategy != nil {
		strategy.Stop()
	}
}

func (t *Task) fail(ctx context.Context, strategy string, msg chat.Message, err error) {
	t.logger.Error("reply failed", "conversation", msg.Destination, "error", err)
	t.publish(ctx, bus.Event{Type: bus.EventReplyFailed, Strategy: strategy, ChatID: msg.Destination, MessageID: msg.ID, Error: err.Error()})
}

func (t *Task) publish(ctx context.Context, event bus.Event) {
	if t.bus == nil {
		return
	}

	t.bus.PublishEvent(ctx, event)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

// Package bus is the in-process message bus: one inbound queue, one
// outbound queue and a fan-out stream of lifecycle events.
package bus

import (
	"context"
	"sync"

	"chatpoll/pkg/chat"
)

const defaultBufferSize = 100

type MessageBus struct {
	inbound  chan chat.Message
	outbound chan chat.Message

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:          make(chan chat.Message, defaultBufferSize),
		outbound:         make(chan chat.Message, defaultBufferSize),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishInbound queues a message written by a chat participant.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg chat.Message) bool {
	return mb.publish(ctx, mb.inbound, msg)
}

// ConsumeInbound blocks for the next inbound message.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (chat.Message, bool) {
	return mb.consume(ctx, mb.inbound)
}

// PublishOutbound queues a reply for delivery.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg chat.Message) bool {
	return mb.publish(ctx, mb.outbound, msg)
}

// SubscribeOutbound blocks for the next outbound reply.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (chat.Message, bool) {
	return mb.consume(ctx, mb.outbound)
}

func (mb *MessageBus) publish(ctx context.Context, queue chan chat.Message, msg chat.Message) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case queue <- msg:
		return true
	}
}

func (mb *MessageBus) consume(ctx context.Context, queue chan chat.Message) (chat.Message, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return chat.Message{}, false
	case <-mb.done:
		return chat.Message{}, false
	case msg := <-queue:
		return msg, true
	}
}

// Done is closed when the bus is closed.
func (mb *MessageBus) Done() <-chan struct{} {
	return mb.done
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}

package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"
)

// RealtimeStrategy receives messages pushed by a transport.
type RealtimeStrategy struct {
	transport  channel.Transport
	memory     chat.MemoryStore
	dispatcher Dispatcher
	logger     *slog.Logger

	stopOnce sync.Once
	done     chan struct{}

	mu    sync.Mutex
	state State
}

// NewRealtimeStrategy wires a realtime strategy. All collaborators are required.
func NewRealtimeStrategy(transport channel.Transport, memory chat.MemoryStore, dispatcher Dispatcher, logger *slog.Logger) (*RealtimeStrategy, error) {
	if transport == nil {
		return nil, errors.New("realtime transport is required")
	}
	if memory == nil {
		return nil, errors.New("memory store is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RealtimeStrategy{
		transport:  transport,
		memory:     memory,
		dispatcher: dispatcher,
		logger:     logger.With("component", "polling", "strategy", config.PollingRealtime, "transport", transport.Name()),
		done:       make(chan struct{}),
		state:      StateIdle,
	}, nil
}

func (s *RealtimeStrategy) Name() string {
	return config.PollingRealtime
}

// Start subscribes to the transport and blocks until Stop or ctx is done.
// The subscription is cancelled on return.
func (s *RealtimeStrategy) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return newError("start", fmt.Errorf("strategy is %s", state))
	}
	s.state = StateRunning
	s.mu.Unlock()

	defer s.setState(StateStopped)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.transport.Subscribe(subCtx, s.receive); err != nil {
		return newError("subscribe", err)
	}

	s.logger.Info("realtime subscription started")

	select {
	case <-s.done:
	case <-ctx.Done():
	}

	s.logger.Info("realtime subscription stopped")
	return nil
}

// receive hands msg to the dispatcher. Errors, panics included, go back to
// the transport, which reports them.
func (s *RealtimeStrategy) receive(ctx context.Context, msg chat.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch %s: panic: %v", msg.Destination, r)
		}
	}()

	conv := s.memory.Conversation(msg.Destination)
	return s.dispatcher.OnMessage(ctx, conv, msg)
}

// Stop releases Start. Safe to call more than once.
func (s *RealtimeStrategy) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateStopping
	}
	s.mu.Unlock()
}

// SendMessage forwards msg to the transport.
func (s *RealtimeStrategy) SendMessage(ctx context.Context, msg chat.Message) error {
	if err := s.transport.Send(ctx, msg); err != nil {
		return newError("send", err)
	}

	return nil
}

// State reports the lifecycle position.
func (s *RealtimeStrategy) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *RealtimeStrategy) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

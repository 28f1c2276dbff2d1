package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"
	"chatpoll/pkg/query"
)

// State is the lifecycle position of a strategy.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// CycleStats summarizes one polling cycle.
type CycleStats struct {
	Changed    int       `json:"changed"`
	Dispatched int       `json:"dispatched"`
	Suppressed int       `json:"suppressed"`
	Errors     int       `json:"errors"`
	At         time.Time `json:"at"`
}

// CountStrategy polls a count table on a fixed interval and dispatches the
// newest message of every conversation whose count moved.
type CountStrategy struct {
	cfg        config.PollingConfig
	exec       query.Executor
	memory     chat.MemoryStore
	dispatcher Dispatcher
	interval   time.Duration
	logger     *slog.Logger

	stopRequested atomic.Bool
	stopOnce      sync.Once
	stopCh        chan struct{}

	mu          sync.Mutex
	state       State
	prev        Snapshot
	initialized bool
	last        CycleStats
}

// NewCountStrategy wires a count strategy. All collaborators are required.
func NewCountStrategy(cfg config.PollingConfig, exec query.Executor, memory chat.MemoryStore, dispatcher Dispatcher, logger *slog.Logger) (*CountStrategy, error) {
	if exec == nil {
		return nil, errors.New("query executor is required")
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

	return &CountStrategy{
		cfg:        cfg,
		exec:       exec,
		memory:     memory,
		dispatcher: dispatcher,
		interval:   cfg.IntervalDuration(),
		logger:     logger.With("component", "polling", "strategy", config.PollingMessageCount),
		stopCh:     make(chan struct{}),
		state:      StateIdle,
	}, nil
}

func (s *CountStrategy) Name() string {
	return config.PollingMessageCount
}

// Start runs polling cycles until Stop is called or ctx is done. Cycle
// failures are logged and never end the loop.
func (s *CountStrategy) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return newError("start", fmt.Errorf("strategy is %s", state))
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("polling started", "table", s.cfg.Table, "interval", s.interval.String())

	defer func() {
		s.setState(StateStopped)
		s.logger.Info("polling stopped")
	}()

	for {
		s.RunCycle(ctx)

		if s.stopRequested.Load() || ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.stopCh:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop asks the loop to exit after the current cycle.
func (s *CountStrategy) Stop() {
	s.stopRequested.Store(true)
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateStopping
	}
	s.mu.Unlock()
}

// SendMessage inserts msg into the chat table. When a user column is
// configured the sender (the bot identity by default) is written too.
func (s *CountStrategy) SendMessage(ctx context.Context, msg chat.Message) error {
	if strings.TrimSpace(msg.Destination) == "" {
		return newError("send", errors.New("message destination is required"))
	}

	table := s.cfg.ChatTable
	columns := []string{table.ChatIDCol, table.TextCol}
	values := []any{msg.Destination, msg.Text}
	if table.UserCol != "" {
		user := strings.TrimSpace(msg.User)
		if user == "" {
			user = s.cfg.BotUsername
		}
		columns = append(columns, table.UserCol)
		values = append(values, user)
	}

	_, err := s.exec.Execute(ctx, query.Insert{
		Table:   table.Name,
		Columns: columns,
		Values:  [][]any{values},
	})
	if err != nil {
		return newError("send", err)
	}

	s.logger.Debug("message sent", "conversation", msg.Destination, "chars", len(msg.Text))
	return nil
}

// CheckMessageCount fetches the current counts and returns the ids that
// changed since the previous call. The first successful call only records
// a baseline.
func (s *CountStrategy) CheckMessageCount(ctx context.Context) ([]string, error) {
	chats, err := FetchSnapshot(ctx, s.exec, s.cfg)
	if err != nil {
		return nil, newError("snapshot", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.prev = chats
		s.initialized = true
		return []string{}, nil
	}

	changed := Diff(s.prev, chats)
	s.prev = chats
	return changed, nil
}

// RunCycle performs one detection pass. It never returns an error; failures
// are logged and counted in the returned stats.
func (s *CountStrategy) RunCycle(ctx context.Context) (stats CycleStats) {
	stats.At = time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			stats.Errors++
			s.logger.Error("polling cycle panicked", "panic", fmt.Sprint(r))
		}
		s.mu.Lock()
		s.last = stats
		s.mu.Unlock()
	}()

	changed, err := s.CheckMessageCount(ctx)
	if err != nil {
		stats.Errors++
		s.logger.Error("polling cycle failed", "error", err)
		return stats
	}
	stats.Changed = len(changed)

	for _, id := range changed {
		if ctx.Err() != nil {
			break
		}

		dispatched, err := s.handleConversation(ctx, id)
		switch {
		case err != nil:
			stats.Errors++
			s.logger.Error("conversation dispatch failed", "conversation", id, "error", err)
		case dispatched:
			stats.Dispatched++
		default:
			stats.Suppressed++
		}
	}

	if stats.Changed > 0 {
		s.logger.Debug("polling cycle done",
			"changed", stats.Changed,
			"dispatched", stats.Dispatched,
			"suppressed", stats.Suppressed,
			"errors", stats.Errors,
		)
	}

	return stats
}

// handleConversation dispatches the newest message of id unless the bot
// wrote it. A panic is reported as an error for this conversation only.
func (s *CountStrategy) handleConversation(ctx context.Context, id string) (dispatched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			dispatched = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	conv := s.memory.Conversation(id)
	if conv == nil {
		return false, fmt.Errorf("no memory for conversation %s", id)
	}

	history, err := conv.History(ctx, false)
	if err != nil {
		return false, err
	}

	last, ok := chat.Last(history)
	if !ok {
		return false, nil
	}
	if last.FromUser(s.cfg.BotUsername) {
		return false, nil
	}
	if last.Destination == "" {
		last.Destination = id
	}

	if err := s.dispatcher.OnMessage(ctx, conv, last); err != nil {
		return false, err
	}

	return true, nil
}

// State reports the lifecycle position.
func (s *CountStrategy) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Snapshot returns a copy of the current baseline.
func (s *CountStrategy) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.prev.Clone()
}

// LastCycle returns the stats of the most recent cycle.
func (s *CountStrategy) LastCycle() CycleStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

func (s *CountStrategy) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

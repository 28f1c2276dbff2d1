// Package memory keeps per-conversation chat history read back from the
// chat table through a query executor.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"
	"chatpoll/pkg/query"
)

// Store hands out one conversation handle per id. A nil executor keeps
// history in the cache only.
type Store struct {
	exec   query.Executor
	table  config.ChatTableConfig
	limit  int
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// Options tunes a Store.
type Options struct {
	HistoryLimit int
	CacheTTL     time.Duration
	Logger       *slog.Logger
}

func NewStore(exec query.Executor, table config.ChatTableConfig, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		exec:          exec,
		table:         table,
		limit:         opts.HistoryLimit,
		ttl:           opts.CacheTTL,
		logger:        logger.With("component", "memory"),
		now:           time.Now,
		conversations: make(map[string]*Conversation),
	}
}

// Conversation returns the handle for id, creating it on first use.
func (s *Store) Conversation(id string) chat.Conversation {
	return s.conversation(id)
}

func (s *Store) conversation(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		conv = &Conversation{id: id, store: s}
		s.conversations[id] = conv
	}

	return conv
}

// Append records msg into the cached history of its destination.
func (s *Store) Append(msg chat.Message) {
	if strings.TrimSpace(msg.Destination) == "" {
		return
	}

	s.conversation(msg.Destination).append(msg)
}

// Len reports how many conversations have been handed out.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conversations)
}

// Conversation is the memory of one chat thread.
type Conversation struct {
	id    string
	store *Store

	mu       sync.RWMutex
	entries  []chat.Message
	loadedAt time.Time
}

func (c *Conversation) ID() string {
	return c.id
}

// History returns the thread oldest first. With cached set, a copy younger
// than the store TTL is returned without touching the executor.
func (c *Conversation) History(ctx context.Context, cached bool) ([]chat.Message, error) {
	if cached || c.store.exec == nil {
		c.mu.RLock()
		fresh := c.store.exec == nil || (!c.loadedAt.IsZero() && c.store.now().Sub(c.loadedAt) < c.store.ttl)
		if fresh {
			out := c.copyEntries()
			c.mu.RUnlock()
			return out, nil
		}
		c.mu.RUnlock()
	}

	history, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries = history
	c.loadedAt = c.store.now()
	out := c.copyEntries()
	c.mu.Unlock()

	return out, nil
}

func (c *Conversation) load(ctx context.Context) ([]chat.Message, error) {
	table := c.store.table
	columns := []string{table.ChatIDCol, table.TextCol}
	if table.UserCol != "" {
		columns = append(columns, table.UserCol)
	}

	res, err := c.store.exec.Execute(ctx, query.Select{
		Table:   table.Name,
		Columns: columns,
		Where:   []query.Condition{{Column: table.ChatIDCol, Value: c.id}},
		OrderBy: table.OrderCol,
	})
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", c.id, err)
	}
	if res == nil {
		return nil, fmt.Errorf("load history of %s: empty result", c.id)
	}

	rows := res.Rows
	if limit := c.store.limit; limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	history := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msg := chat.Message{
			Destination: c.id,
			Text:        stringValue(row[table.TextCol]),
		}
		if table.UserCol != "" {
			msg.User = stringValue(row[table.UserCol])
		}
		history = append(history, msg)
	}

	c.store.logger.Debug("history loaded", "conversation", c.id, "messages", len(history))

	return history, nil
}

func (c *Conversation) append(msg chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, msg)
	if limit := c.store.limit; limit > 0 && len(c.entries) > limit {
		c.entries = append([]chat.Message(nil), c.entries[len(c.entries)-limit:]...)
	}
}

func (c *Conversation) copyEntries() []chat.Message {
	if len(c.entries) == 0 {
		return nil
	}

	out := make([]chat.Message, len(c.entries))
	copy(out, c.entries)
	return out
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(typed)
	}
}

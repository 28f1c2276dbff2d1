package polling

import (
	"context"
	"path/filepath"
	"testing"

	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"
	"chatpoll/pkg/memory"
	"chatpoll/pkg/query"

	"github.com/stretchr/testify/require"
)

// TestCountStrategyAgainstSQLite drives the full detect, dispatch, reply and
// echo suppression round trip on a real database.
func TestCountStrategyAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testPollingConfig()

	db, err := query.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, query.EnsureChatSchema(ctx, db, cfg))

	exec := query.NewSQLExecutor(db)
	store := memory.NewStore(exec, cfg.ChatTable, memory.Options{HistoryLimit: 10})

	var strategy *CountStrategy
	var received []chat.Message
	dispatcher := DispatcherFunc(func(ctx context.Context, conv chat.Conversation, msg chat.Message) error {
		received = append(received, msg)
		return strategy.SendMessage(ctx, chat.Message{Destination: conv.ID(), Text: "echo: " + msg.Text})
	})

	strategy, err = NewCountStrategy(cfg, exec, store, dispatcher, nil)
	require.NoError(t, err)

	inject := func(chatID, user, text string) {
		t.Helper()
		_, err := exec.Execute(ctx, query.Insert{
			Table:   cfg.ChatTable.Name,
			Columns: []string{cfg.ChatTable.ChatIDCol, cfg.ChatTable.TextCol, cfg.ChatTable.UserCol},
			Values:  [][]any{{chatID, text, user}},
		})
		require.NoError(t, err)
	}

	inject("c1", "alice", "before start")
	stats := strategy.RunCycle(ctx)
	require.Equal(t, 0, stats.Changed)

	inject("c1", "alice", "hello")
	stats = strategy.RunCycle(ctx)
	require.Equal(t, 1, stats.Dispatched)
	require.Len(t, received, 1)
	require.Equal(t, "hello", received[0].Text)
	require.Equal(t, "alice", received[0].User)

	// The reply bumped the count; the next cycle sees the bot as author.
	stats = strategy.RunCycle(ctx)
	require.Equal(t, 1, stats.Changed)
	require.Equal(t, 1, stats.Suppressed)
	require.Len(t, received, 1)

	history, err := store.Conversation("c1").History(ctx, false)
	require.NoError(t, err)
	last, ok := chat.Last(history)
	require.True(t, ok)
	require.Equal(t, "echo: hello", last.Text)
	require.Equal(t, "bot", last.User)
}

// TestBotRepliesAreNotRedispatched keeps a replying bot running for several
// cycles and checks that one user message yields exactly one dispatch.
func TestBotRepliesAreNotRedispatched(t *testing.T) {
	ctx := context.Background()
	cfg := testPollingConfig()

	db, err := query.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, query.EnsureChatSchema(ctx, db, cfg))

	exec := query.NewSQLExecutor(db)
	store := memory.NewStore(exec, cfg.ChatTable, memory.Options{HistoryLimit: 10})

	var strategy *CountStrategy
	dispatches := 0
	dispatcher := DispatcherFunc(func(ctx context.Context, conv chat.Conversation, msg chat.Message) error {
		dispatches++
		return strategy.SendMessage(ctx, chat.Message{Destination: conv.ID(), Text: "echo: " + msg.Text})
	})
	strategy, err = NewCountStrategy(cfg, exec, store, dispatcher, nil)
	require.NoError(t, err)

	strategy.RunCycle(ctx)
	_, err = exec.Execute(ctx, query.Insert{
		Table:   cfg.ChatTable.Name,
		Columns: []string{cfg.ChatTable.ChatIDCol, cfg.ChatTable.TextCol, cfg.ChatTable.UserCol},
		Values:  [][]any{{"c1", "ping", "alice"}},
	})
	require.NoError(t, err)

	for range 5 {
		strategy.RunCycle(ctx)
	}
	require.Equal(t, 1, dispatches)
}

// TestConfigWithoutUserColumnIsRejected covers the layout where replies
// carry no author: echo suppression could never match, so the config is
// refused before a strategy is built.
func TestConfigWithoutUserColumnIsRejected(t *testing.T) {
	cfg := config.Defaults()
	cfg.Polling.ChatTable.UserCol = ""

	err := config.Validate(cfg)
	require.ErrorContains(t, err, "user_col")
}

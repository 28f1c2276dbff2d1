package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"chatpoll/pkg/config"

	"github.com/stretchr/testify/require"
)

func testExecutor(t *testing.T) (*SQLExecutor, config.PollingConfig) {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults().Polling
	require.NoError(t, EnsureChatSchema(context.Background(), db, cfg))

	return NewSQLExecutor(db), cfg
}

func TestBuildSelect(t *testing.T) {
	statement, args := buildSelect(Select{
		Table:   "messages",
		Columns: []string{"chat_id", "text"},
		Where:   []Condition{{Column: "chat_id", Value: "c1"}},
		OrderBy: "id",
		Desc:    true,
		Limit:   5,
	})

	require.Equal(t, `SELECT "chat_id", "text" FROM "messages" WHERE "chat_id" = ? ORDER BY "id" DESC LIMIT ?`, statement)
	require.Equal(t, []any{"c1", 5}, args)
}

func TestBuildInsert(t *testing.T) {
	statement, args := buildInsert(Insert{
		Table:   "messages",
		Columns: []string{"chat_id", "text"},
		Values:  [][]any{{"c1", "hi"}, {"c2", "yo"}},
	})

	require.Equal(t, `INSERT INTO "messages" ("chat_id", "text") VALUES (?, ?), (?, ?)`, statement)
	require.Equal(t, []any{"c1", "hi", "c2", "yo"}, args)
}

func TestValidateRejectsBadIdentifiers(t *testing.T) {
	err := Select{Table: "messages; DROP TABLE chats", Columns: []string{"a"}}.Validate()
	require.True(t, errors.Is(err, ErrInvalidQuery))

	err = Select{Table: "messages"}.Validate()
	require.ErrorIs(t, err, ErrInvalidQuery)

	err = Insert{Table: "messages", Columns: []string{"a", "b"}, Values: [][]any{{"only-one"}}}.Validate()
	require.ErrorIs(t, err, ErrInvalidQuery)

	err = Insert{Table: "messages", Columns: []string{"a"}}.Validate()
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestInsertBumpsCountThroughTrigger(t *testing.T) {
	exec, cfg := testExecutor(t)
	ctx := context.Background()

	_, err := exec.Execute(ctx, Insert{
		Table:   cfg.ChatTable.Name,
		Columns: []string{cfg.ChatTable.ChatIDCol, cfg.ChatTable.TextCol, cfg.ChatTable.UserCol},
		Values:  [][]any{{"c1", "hello", "alice"}, {"c1", "again", "alice"}, {"c2", "hey", "bob"}},
	})
	require.NoError(t, err)

	res, err := exec.Execute(ctx, Select{Table: cfg.Table, Columns: []string{cfg.ChatIDCol, cfg.CountCol}, OrderBy: cfg.ChatIDCol})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "c1", res.Rows[0][cfg.ChatIDCol])
	require.EqualValues(t, 2, res.Rows[0][cfg.CountCol])
	require.Equal(t, "c2", res.Rows[1][cfg.ChatIDCol])
	require.EqualValues(t, 1, res.Rows[1][cfg.CountCol])
}

func TestSelectWithWhereAndLimit(t *testing.T) {
	exec, cfg := testExecutor(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := exec.Execute(ctx, Insert{
			Table:   cfg.ChatTable.Name,
			Columns: []string{cfg.ChatTable.ChatIDCol, cfg.ChatTable.TextCol},
			Values:  [][]any{{"c1", text}},
		})
		require.NoError(t, err)
	}

	res, err := exec.Execute(ctx, &Select{
		Table:   cfg.ChatTable.Name,
		Columns: []string{cfg.ChatTable.TextCol},
		Where:   []Condition{{Column: cfg.ChatTable.ChatIDCol, Value: "c1"}},
		OrderBy: cfg.ChatTable.OrderCol,
		Desc:    true,
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "three", res.Rows[0][cfg.ChatTable.TextCol])
	require.Equal(t, "two", res.Rows[1][cfg.ChatTable.TextCol])
}

func TestExecuteRejectsInvalidQuery(t *testing.T) {
	exec, _ := testExecutor(t)

	_, err := exec.Execute(context.Background(), Select{Table: "", Columns: []string{"a"}})
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = exec.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestEnsureChatSchemaIdempotent(t *testing.T) {
	exec, cfg := testExecutor(t)
	require.NoError(t, EnsureChatSchema(context.Background(), exec.DB(), cfg))
}

func TestNormalizeValue(t *testing.T) {
	require.Equal(t, "abc", normalizeValue([]byte("abc")))
	require.Equal(t, int64(3), normalizeValue(int64(3)))
	require.Nil(t, normalizeValue(nil))
}

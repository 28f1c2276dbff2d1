package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"chatpoll/pkg/bus"
	"chatpoll/pkg/config"
	"chatpoll/pkg/polling"
	"chatpoll/pkg/query"

	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "chat.db")
	cfgPath := filepath.Join(dir, "chatpoll.yaml")
	content := fmt.Sprintf(`database:
  path: %s
logging:
  format: json
  level: error
`, dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return cfgPath, dbPath
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestInjectSendSnapshotFlow(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t)

	out, err := executeCLI(t, "init-db", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, dbPath)

	_, err = executeCLI(t, "inject", "--config", cfgPath, "--chat", "c1", "--user", "alice", "hello", "there")
	require.NoError(t, err)
	_, err = executeCLI(t, "inject", "--config", cfgPath, "--chat", "c2", "--user", "bob", "hi")
	require.NoError(t, err)

	out, err = executeCLI(t, "send", "--config", cfgPath, "--chat", "c1", "welcome")
	require.NoError(t, err)
	require.Contains(t, out, "via message_count")

	db, err := query.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer db.Close()

	snap, err := polling.FetchSnapshot(context.Background(), query.NewSQLExecutor(db), config.Defaults().Polling)
	require.NoError(t, err)
	require.Equal(t, polling.Snapshot{"c1": int64(2), "c2": int64(1)}, snap)

	res, err := query.NewSQLExecutor(db).Execute(context.Background(), query.Select{
		Table:   "messages",
		Columns: []string{"text", "sender"},
		Where:   []query.Condition{{Column: "chat_id", Value: "c1"}},
		OrderBy: "id",
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "hello there", res.Rows[0]["text"])
	require.Equal(t, "alice", res.Rows[0]["sender"])
	require.Equal(t, "welcome", res.Rows[1]["text"])
	require.Equal(t, "chatpoll-bot", res.Rows[1]["sender"])

	out, err = executeCLI(t, "snapshot", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "CONVERSATION")
	require.Contains(t, out, "c1")
	require.Contains(t, out, "c2")
}

func TestSendRequiresChat(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	sendChatID = ""

	_, err := executeCLI(t, "send", "--config", cfgPath, "text")
	require.ErrorContains(t, err, "--chat is required")
}

func TestInitDBWritesConfig(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	target := filepath.Join(t.TempDir(), "saved.json")
	t.Cleanup(func() { initConfigPath = "" })

	_, err := executeCLI(t, "init-db", "--config", cfgPath, "--write-config", target)
	require.NoError(t, err)

	saved, err := config.Load(target)
	require.NoError(t, err)
	require.Equal(t, "json", saved.Logging.Format)
	require.Equal(t, "messages", saved.Polling.ChatTable.Name)
}

func TestBuildTransport(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	cfg := config.Defaults()
	transport, err := buildTransport(cfg, mb, nil)
	require.NoError(t, err)
	require.Nil(t, transport)
	require.Equal(t, "none", transportName(transport))

	cfg.Polling.Type = config.PollingRealtime
	for _, name := range []string{config.TransportBus, config.TransportWebSocket, config.TransportConsole} {
		cfg.Transport.Type = name
		transport, err := buildTransport(cfg, mb, nil)
		require.NoError(t, err)
		require.Equal(t, name, transport.Name())
	}

	cfg.Transport.Type = config.TransportTelegram
	_, err = buildTransport(cfg, mb, nil)
	require.Error(t, err)

	cfg.Transport.Type = "carrier-pigeon"
	_, err = buildTransport(cfg, mb, nil)
	require.ErrorContains(t, err, "unsupported transport")
}

func TestSnapshotRowsSorted(t *testing.T) {
	rows := snapshotRows(polling.Snapshot{"b": int64(2), "a": int64(7)})
	require.Equal(t, [][]string{{"a", "7"}, {"b", "2"}}, rows)

	var out bytes.Buffer
	renderSnapshot(&out, nil)
	require.Equal(t, "no conversations\n", out.String())
}

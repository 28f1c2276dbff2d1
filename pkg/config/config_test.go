package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadJSONFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatpoll.json")
	content := `{
	  "polling": {"type": "message_count", "table": "threads", "chat_id_col": "tid", "count_col": "n", "interval": 3,
	              "chat_table": {"name": "lines", "chat_id_col": "tid", "text_col": "body"}, "bot_username": "helper"},
	  "database": {"path": "data.db"},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv(envConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "threads", cfg.Polling.Table)
	require.Equal(t, "tid", cfg.Polling.ChatIDCol)
	require.Equal(t, "n", cfg.Polling.CountCol)
	require.Equal(t, 3*time.Second, cfg.Polling.IntervalDuration())
	require.Equal(t, "lines", cfg.Polling.ChatTable.Name)
	require.Equal(t, "body", cfg.Polling.ChatTable.TextCol)
	require.Equal(t, "helper", cfg.Polling.BotUsername)
	require.Equal(t, "data.db", cfg.Database.Path)
	require.Equal(t, "json", cfg.Logging.Format)
	require.True(t, cfg.Logging.AddSource)

	// Untouched sections keep their defaults.
	require.Equal(t, 18790, cfg.Gateway.Port)
	require.Equal(t, TransportBus, cfg.Transport.Type)
}

func TestLoadYAMLExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatpoll.yaml")
	content := `
polling:
  type: realtime
  bot_username: helper
transport:
  type: websocket
  websocket:
    port: 9999
memory:
  history_limit: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, PollingRealtime, cfg.Polling.Type)
	require.Equal(t, TransportWebSocket, cfg.Transport.Type)
	require.Equal(t, 9999, cfg.Transport.WebSocket.Port)
	require.Equal(t, "/ws", cfg.Transport.WebSocket.Path)
	require.Equal(t, 10, cfg.Memory.HistoryLimit)
}

func TestLoadInvalidEnvPath(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "missing.json"))

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsUnknownPollingType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatpoll.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"polling": {"type": "webhook"}}`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "polling.type")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(envDBPath, "/tmp/other.db")
	t.Setenv(envBotUsername, "overridden")
	t.Setenv(envTelegramBotToken, "tg-token")
	t.Setenv(envTelegramAllowFrom, " 1, ,2 ")
	t.Setenv(envSlackBotToken, "xoxb")
	t.Setenv(envSlackAppToken, "xapp")
	t.Setenv(envDiscordBotToken, "discord")

	cfg := Defaults()
	applyEnvOverrides(cfg)

	require.Equal(t, "/tmp/other.db", cfg.Database.Path)
	require.Equal(t, "overridden", cfg.Polling.BotUsername)
	require.Equal(t, "tg-token", cfg.Transport.Telegram.Token)
	require.Equal(t, []string{"1", "2"}, cfg.Transport.Telegram.AllowFrom)
	require.Equal(t, "xoxb", cfg.Transport.Slack.BotToken)
	require.Equal(t, "xapp", cfg.Transport.Slack.AppToken)
	require.Equal(t, "discord", cfg.Transport.Discord.Token)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
	require.Error(t, Validate(nil))

	cfg := Defaults()
	cfg.Polling.CountCol = ""
	require.ErrorContains(t, Validate(cfg), "polling.count_col")

	cfg = Defaults()
	cfg.Polling.Type = PollingRealtime
	cfg.Transport.Type = "carrier-pigeon"
	require.ErrorContains(t, Validate(cfg), "transport.type")

	cfg = Defaults()
	cfg.Polling.ChatTable.UserCol = ""
	require.ErrorContains(t, Validate(cfg), "polling.chat_table.user_col")

	cfg = Defaults()
	cfg.Polling.BotUsername = " "
	require.ErrorContains(t, Validate(cfg), "polling.bot_username")

	cfg = Defaults()
	cfg.Polling.ChatTable.OrderCol = ""
	require.ErrorContains(t, Validate(cfg), "polling.chat_table.order_col")

	cfg = Defaults()
	cfg.Polling.Type = PollingRealtime
	cfg.Polling.ChatTable = ChatTableConfig{}
	require.NoError(t, Validate(cfg))

	cfg = Defaults()
	cfg.Gateway.Port = 70000
	require.ErrorContains(t, Validate(cfg), "gateway.port")
}

func TestIntervalDefaultsToSevenSeconds(t *testing.T) {
	require.Equal(t, 7*time.Second, PollingConfig{}.IntervalDuration())
}

func TestSaveRoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chatpoll.yml")
	cfg := Defaults()
	cfg.Polling.BotUsername = "saved"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "saved", loaded.Polling.BotUsername)
}

func TestLoadOrDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envConfigPath, "")
	t.Setenv(envBotUsername, "night-bot")

	_, err := Load("")
	require.ErrorIs(t, err, ErrNotFound)

	cfg, err := LoadOrDefaults("")
	require.NoError(t, err)
	require.Equal(t, PollingMessageCount, cfg.Polling.Type)
	require.Equal(t, "night-bot", cfg.Polling.BotUsername)

	_, err = LoadOrDefaults(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

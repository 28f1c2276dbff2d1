package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath        = "CHATPOLL_CONFIG"
	envDBPath            = "CHATPOLL_DB_PATH"
	envBotUsername       = "CHATPOLL_BOT_USERNAME"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envSlackBotToken     = "SLACK_BOT_TOKEN"
	envSlackAppToken     = "SLACK_APP_TOKEN"
	envDiscordBotToken   = "DISCORD_BOT_TOKEN"
)

// Polling strategy names.
const (
	PollingMessageCount = "message_count"
	PollingRealtime     = "realtime"
)

// Transport names.
const (
	TransportBus       = "bus"
	TransportTelegram  = "telegram"
	TransportSlack     = "slack"
	TransportDiscord   = "discord"
	TransportWebSocket = "websocket"
	TransportConsole   = "console"
)

// Config is the root runtime configuration loaded from chatpoll.json or chatpoll.yaml.
type Config struct {
	Polling   PollingConfig   `json:"polling" yaml:"polling"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Bot       BotConfig       `json:"bot" yaml:"bot"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// PollingConfig selects the detection strategy and names the columns it reads and writes.
type PollingConfig struct {
	Type        string          `json:"type" yaml:"type"`
	Table       string          `json:"table" yaml:"table"`
	ChatIDCol   string          `json:"chat_id_col" yaml:"chat_id_col"`
	CountCol    string          `json:"count_col" yaml:"count_col"`
	Interval    int             `json:"interval" yaml:"interval"`
	ChatTable   ChatTableConfig `json:"chat_table" yaml:"chat_table"`
	BotUsername string          `json:"bot_username" yaml:"bot_username"`
}

// ChatTableConfig describes the table holding individual chat lines. Replies
// are inserted into it and history is read back from it.
type ChatTableConfig struct {
	Name      string `json:"name" yaml:"name"`
	ChatIDCol string `json:"chat_id_col" yaml:"chat_id_col"`
	TextCol   string `json:"text_col" yaml:"text_col"`
	UserCol   string `json:"user_col,omitempty" yaml:"user_col,omitempty"`
	OrderCol  string `json:"order_col,omitempty" yaml:"order_col,omitempty"`
}

// IntervalDuration returns the delay between polling cycles.
func (p PollingConfig) IntervalDuration() time.Duration {
	if p.Interval <= 0 {
		return defaultPollingInterval * time.Second
	}

	return time.Duration(p.Interval) * time.Second
}

// DatabaseConfig points at the SQLite file backing the chat tables.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// TransportConfig configures the realtime transport used by the realtime strategy.
type TransportConfig struct {
	Type      string          `json:"type" yaml:"type"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Slack     SlackConfig     `json:"slack" yaml:"slack"`
	Discord   DiscordConfig   `json:"discord" yaml:"discord"`
	WebSocket WebSocketConfig `json:"websocket" yaml:"websocket"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allow_from" yaml:"allow_from"`
}

// SlackConfig configures a Socket Mode Slack app.
type SlackConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	AppToken string `json:"app_token" yaml:"app_token"`
}

// DiscordConfig configures a Discord bot session.
type DiscordConfig struct {
	Token   string `json:"token" yaml:"token"`
	GuildID string `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`
}

// WebSocketConfig configures the built-in websocket endpoint.
type WebSocketConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`
}

// BotConfig configures the built-in responder.
type BotConfig struct {
	Responder   string `json:"responder" yaml:"responder"`
	ReplyPrefix string `json:"reply_prefix" yaml:"reply_prefix"`
}

// MemoryConfig bounds the conversation history cache.
type MemoryConfig struct {
	HistoryLimit    int `json:"history_limit" yaml:"history_limit"`
	CacheTTLSeconds int `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
}

// CacheTTL returns how long a cached history stays fresh.
func (m MemoryConfig) CacheTTL() time.Duration {
	if m.CacheTTLSeconds <= 0 {
		return 0
	}

	return time.Duration(m.CacheTTLSeconds) * time.Second
}

// GatewayConfig configures HTTP status bind settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// ErrNotFound reports that no config file exists at any candidate path.
var ErrNotFound = errors.New("config not found")

// LoadOrDefaults is Load, except that a missing config file yields Defaults
// with environment overrides applied. An explicit path must still exist.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return cfg, err
	}

	cfg = Defaults()
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load resolves the config file, decodes it over Defaults, applies
// environment overrides and validates the result. An empty path falls back
// to CHATPOLL_CONFIG and then to cwd-local candidates.
func Load(path string) (*Config, error) {
	configPath, err := findConfigPath(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Defaults()
	if err := decode(configPath, content, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	default:
		return json.Unmarshal(content, cfg)
	}
}

// Save writes cfg to path, picking the encoding from the file extension.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv(envDBPath)); value != "" {
		cfg.Database.Path = value
	}
	if value := strings.TrimSpace(os.Getenv(envBotUsername)); value != "" {
		cfg.Polling.BotUsername = value
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Transport.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Transport.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if token := strings.TrimSpace(os.Getenv(envSlackBotToken)); token != "" {
		cfg.Transport.Slack.BotToken = token
	}
	if token := strings.TrimSpace(os.Getenv(envSlackAppToken)); token != "" {
		cfg.Transport.Slack.AppToken = token
	}
	if token := strings.TrimSpace(os.Getenv(envDiscordBotToken)); token != "" {
		cfg.Transport.Discord.Token = token
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is the explicit path, then CHATPOLL_CONFIG, then cwd-local fallback paths.
func findConfigPath(explicit string) (string, error) {
	if value := strings.TrimSpace(explicit); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("config path does not point to a file: %s", value)
	}

	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "chatpoll.json"),
		filepath.Join(cwd, "chatpoll.yaml"),
		filepath.Join(cwd, "config", "chatpoll.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s)", ErrNotFound, strings.Join(candidates, ", "))
}

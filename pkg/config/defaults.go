package config

import (
	"errors"
	"fmt"
	"strings"
)

const defaultPollingInterval = 7

// Defaults returns a configuration that runs the message-count strategy
// against a local SQLite file with the bundled chats/messages layout.
func Defaults() *Config {
	return &Config{
		Polling: PollingConfig{
			Type:      PollingMessageCount,
			Table:     "chats",
			ChatIDCol: "chat_id",
			CountCol:  "message_count",
			Interval:  defaultPollingInterval,
			ChatTable: ChatTableConfig{
				Name:      "messages",
				ChatIDCol: "chat_id",
				TextCol:   "text",
				UserCol:   "sender",
				OrderCol:  "id",
			},
			BotUsername: "chatpoll-bot",
		},
		Database: DatabaseConfig{
			Path: "chatpoll.db",
		},
		Transport: TransportConfig{
			Type: TransportBus,
			WebSocket: WebSocketConfig{
				Host: "127.0.0.1",
				Port: 18791,
				Path: "/ws",
			},
		},
		Bot: BotConfig{
			Responder:   "echo",
			ReplyPrefix: "echo: ",
		},
		Memory: MemoryConfig{
			HistoryLimit:    50,
			CacheTTLSeconds: 30,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Validate checks the settings every strategy depends on.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	var problems []string
	p := cfg.Polling

	switch strings.TrimSpace(p.Type) {
	case PollingMessageCount:
		if strings.TrimSpace(p.Table) == "" {
			problems = append(problems, "polling.table is required")
		}
		if strings.TrimSpace(p.ChatIDCol) == "" {
			problems = append(problems, "polling.chat_id_col is required")
		}
		if strings.TrimSpace(p.CountCol) == "" {
			problems = append(problems, "polling.count_col is required")
		}
		if strings.TrimSpace(p.ChatTable.Name) == "" {
			problems = append(problems, "polling.chat_table.name is required")
		}
		if strings.TrimSpace(p.ChatTable.ChatIDCol) == "" {
			problems = append(problems, "polling.chat_table.chat_id_col is required")
		}
		if strings.TrimSpace(p.ChatTable.TextCol) == "" {
			problems = append(problems, "polling.chat_table.text_col is required")
		}
		if strings.TrimSpace(p.ChatTable.OrderCol) == "" {
			problems = append(problems, "polling.chat_table.order_col is required to find the latest message")
		}
		// Echo suppression compares the latest author with the bot name;
		// without both, every reply is detected as a new message.
		if strings.TrimSpace(p.BotUsername) == "" {
			problems = append(problems, "polling.bot_username is required")
		}
		if strings.TrimSpace(p.ChatTable.UserCol) == "" {
			problems = append(problems, "polling.chat_table.user_col is required to recognize bot replies")
		}
	case PollingRealtime:
		switch strings.TrimSpace(cfg.Transport.Type) {
		case TransportBus, TransportTelegram, TransportSlack, TransportDiscord, TransportWebSocket, TransportConsole:
		default:
			problems = append(problems, fmt.Sprintf("transport.type %q is not supported", cfg.Transport.Type))
		}
	default:
		problems = append(problems, fmt.Sprintf("polling.type %q is not supported", p.Type))
	}

	if p.Interval < 0 {
		problems = append(problems, "polling.interval must not be negative")
	}
	if cfg.Memory.HistoryLimit < 0 {
		problems = append(problems, "memory.history_limit must not be negative")
	}
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		problems = append(problems, fmt.Sprintf("gateway.port %d is out of range", cfg.Gateway.Port))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	return nil
}

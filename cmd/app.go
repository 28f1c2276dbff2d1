package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chatpoll/pkg/bus"
	"chatpoll/pkg/channel"
	channelbus "chatpoll/pkg/channel/bus"
	"chatpoll/pkg/channel/console"
	"chatpoll/pkg/channel/discord"
	"chatpoll/pkg/channel/slack"
	"chatpoll/pkg/channel/telegram"
	"chatpoll/pkg/channel/websocket"
	"chatpoll/pkg/chatbot"
	"chatpoll/pkg/config"
	"chatpoll/pkg/logger"
	"chatpoll/pkg/memory"
	"chatpoll/pkg/polling"
	"chatpoll/pkg/query"
)

// app holds what every subcommand needs: configuration, a logger and, once
// opened, the chat database.
type app struct {
	cfg  *config.Config
	log  *slog.Logger
	db   *sql.DB
	exec *query.SQLExecutor
}

func loadApp(component string) (*app, error) {
	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return &app{cfg: cfg, log: appLogger.With("component", component)}, nil
}

// openSource opens the SQLite file and makes sure the chat tables exist.
func (a *app) openSource(ctx context.Context) error {
	db, err := query.OpenSQLite(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	if err := query.EnsureChatSchema(ctx, db, a.cfg.Polling); err != nil {
		db.Close()
		return err
	}

	a.db = db
	a.exec = query.NewSQLExecutor(db)
	return nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("Failed to close database", "error", err)
	}
}

func (a *app) probe(ctx context.Context) error {
	if a.db == nil {
		return errors.New("database is not open")
	}

	return a.db.PingContext(ctx)
}

// buildTransport returns the realtime transport named by the config. The
// count strategy needs none, so nil is returned for it.
func buildTransport(cfg *config.Config, mb *bus.MessageBus, log *slog.Logger) (channel.Transport, error) {
	if strings.TrimSpace(cfg.Polling.Type) != config.PollingRealtime {
		return nil, nil
	}

	switch strings.TrimSpace(cfg.Transport.Type) {
	case config.TransportBus, "":
		return channelbus.New(mb, log)
	case config.TransportTelegram:
		return telegram.New(cfg.Transport.Telegram, log)
	case config.TransportSlack:
		return slack.New(cfg.Transport.Slack, log)
	case config.TransportDiscord:
		return discord.New(cfg.Transport.Discord, log)
	case config.TransportWebSocket:
		return websocket.New(cfg.Transport.WebSocket, log), nil
	case config.TransportConsole:
		return console.New(console.Options{User: "operator", Logger: log}), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport.Type)
	}
}

// buildTask wires memory, responder, task and strategy together. The task
// is the strategy's dispatcher and the strategy is the task's reply path.
func (a *app) buildTask(mb *bus.MessageBus, transport channel.Transport) (*chatbot.Task, error) {
	var exec query.Executor
	if a.exec != nil {
		exec = a.exec
	}

	store := memory.NewStore(exec, a.cfg.Polling.ChatTable, memory.Options{
		HistoryLimit: a.cfg.Memory.HistoryLimit,
		CacheTTL:     a.cfg.Memory.CacheTTL(),
		Logger:       a.log,
	})

	responder, err := chatbot.NewResponder(a.cfg.Bot.Responder, a.cfg.Bot.ReplyPrefix)
	if err != nil {
		return nil, err
	}

	task, err := chatbot.NewTask(chatbot.Options{
		Responder:   responder,
		BotUsername: a.cfg.Polling.BotUsername,
		Bus:         mb,
		Logger:      a.log,
	})
	if err != nil {
		return nil, err
	}

	strategy, err := polling.New(a.cfg.Polling, polling.Deps{
		Executor:   exec,
		Memory:     store,
		Dispatcher: task,
		Transport:  transport,
		Logger:     a.log,
	})
	if err != nil {
		return nil, err
	}
	task.Attach(strategy)

	return task, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// Package console is a terminal chat transport. Lines typed by the operator
// are inbound messages; replies are rendered as they arrive.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	defaultChatID = "console"
	defaultUser   = "operator"
)

// Options tunes the console transport. Input and Output default to the
// process terminal.
type Options struct {
	ChatID string
	User   string
	Input  io.Reader
	Output io.Writer
	Logger *slog.Logger
}

type Transport struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

func New(opts Options) *Transport {
	if strings.TrimSpace(opts.ChatID) == "" {
		opts.ChatID = defaultChatID
	}
	if strings.TrimSpace(opts.User) == "" {
		opts.User = defaultUser
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		opts: opts,
		log:  log.With("component", "channel.console"),
		done: make(chan struct{}),
	}
}

func (t *Transport) Name() string {
	return config.TransportConsole
}

// Subscribe starts the terminal program in the background.
func (t *Transport) Subscribe(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	t.mu.Lock()
	if t.program != nil {
		t.mu.Unlock()
		return errors.New("console already subscribed")
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if t.opts.Input != nil {
		opts = append(opts, tea.WithInput(t.opts.Input))
	}
	if t.opts.Output != nil {
		opts = append(opts, tea.WithOutput(t.opts.Output))
	} else {
		opts = append(opts, tea.WithAltScreen())
	}

	program := tea.NewProgram(newModel(ctx, handler, t.opts.ChatID, t.opts.User), opts...)
	t.program = program
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) && ctx.Err() == nil {
			t.log.Error("Console program stopped", "error", err)
		}
	}()

	return nil
}

// Done is closed when the operator quits the console.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Send renders msg if it targets the console chat.
func (t *Transport) Send(_ context.Context, msg chat.Message) error {
	if msg.Destination != t.opts.ChatID {
		return fmt.Errorf("console only serves chat %q", t.opts.ChatID)
	}

	t.mu.Lock()
	program := t.program
	t.mu.Unlock()
	if program == nil {
		return errors.New("console is not running")
	}

	program.Send(replyMsg{msg: msg})
	return nil
}

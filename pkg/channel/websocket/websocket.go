// Package websocket serves chats to browser or CLI clients over a
// websocket endpoint.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types.
const (
	FrameMessage = "message"
	FrameStatus  = "status"
	FrameError   = "error"
)

// Frame is the JSON protocol spoken on the socket.
type Frame struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
	User   string `json:"user,omitempty"`
	Text   string `json:"text,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn   *websocket.Conn
	chatID string
	mu     sync.Mutex
}

func (c *client) write(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Transport is a websocket server. Each connection joins one chat, named
// by the chat_id query parameter.
type Transport struct {
	cfg config.WebSocketConfig
	log *slog.Logger

	mu       sync.RWMutex
	handler  channel.Handler
	ctx      context.Context
	clients  map[*client]struct{}
	listener net.Listener
}

func New(cfg config.WebSocketConfig, log *slog.Logger) *Transport {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		cfg:     cfg,
		log:     log.With("component", "channel.websocket"),
		clients: make(map[*client]struct{}),
	}
}

func (t *Transport) Name() string {
	return config.TransportWebSocket
}

// Subscribe binds the listener and serves connections until ctx is
// cancelled.
func (t *Transport) Subscribe(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	t.mu.Lock()
	t.handler = handler
	t.ctx = ctx
	t.listener = listener
	t.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(t.cfg.Path, t)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("WebSocket server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		t.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	t.log.Info("WebSocket transport listening", "addr", listener.Addr().String(), "path", t.cfg.Path)
	return nil
}

// Addr is the bound listener address, empty before Subscribe.
func (t *Transport) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// ServeHTTP upgrades one connection and reads its frames.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	handler, ctx := t.handler, t.ctx
	t.mu.RUnlock()
	if handler == nil {
		http.Error(w, "transport not subscribed", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	chatID := strings.TrimSpace(r.URL.Query().Get("chat_id"))
	if chatID == "" {
		chatID = "ws-" + uuid.NewString()
	}

	c := &client{conn: conn, chatID: chatID}
	t.mu.Lock()
	t.clients[c] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.clients, c)
		t.mu.Unlock()
		conn.Close()
		t.log.Debug("WebSocket client disconnected", "chat_id", chatID)
	}()

	t.log.Debug("WebSocket client connected", "chat_id", chatID)
	_ = c.write(Frame{Type: FrameStatus, ChatID: chatID, Text: "connected"})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warn("WebSocket read failed", "chat_id", chatID, "error", err)
			}
			return
		}

		msg, err := decodeFrame(data, chatID)
		if err != nil {
			_ = c.write(Frame{Type: FrameError, ChatID: chatID, Text: err.Error()})
			continue
		}

		if err := handler(ctx, msg); err != nil {
			t.log.Error("Failed to process inbound message", "chat_id", chatID, "error", err)
			_ = c.write(Frame{Type: FrameError, ChatID: chatID, Text: err.Error()})
		}
	}
}

// Send writes msg to every client joined to its destination.
func (t *Transport) Send(_ context.Context, msg chat.Message) error {
	frame := Frame{
		Type:   FrameMessage,
		ID:     msg.ID,
		ChatID: msg.Destination,
		User:   msg.User,
		Text:   msg.Text,
	}
	if frame.ID == "" {
		frame.ID = uuid.NewString()
	}

	t.mu.RLock()
	targets := make([]*client, 0, len(t.clients))
	for c := range t.clients {
		if c.chatID == msg.Destination {
			targets = append(targets, c)
		}
	}
	t.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("no websocket client joined chat %q", msg.Destination)
	}

	var errs []error
	for _, c := range targets {
		if err := c.write(frame); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *Transport) closeAllClients() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for c := range t.clients {
		c.conn.Close()
		delete(t.clients, c)
	}
}

// decodeFrame parses an inbound message frame for the connection's chat.
func decodeFrame(data []byte, chatID string) (chat.Message, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return chat.Message{}, fmt.Errorf("invalid frame: %w", err)
	}
	if frame.Type != FrameMessage {
		return chat.Message{}, fmt.Errorf("unsupported frame type %q", frame.Type)
	}

	text := strings.TrimSpace(frame.Text)
	if text == "" {
		return chat.Message{}, errors.New("message text is required")
	}

	id := frame.ID
	if id == "" {
		id = uuid.NewString()
	}

	return chat.Message{
		ID:          id,
		Destination: chatID,
		Text:        text,
		User:        strings.TrimSpace(frame.User),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

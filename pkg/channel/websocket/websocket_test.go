package websocket

import (
	"context"
	"net/url"
	"testing"
	"time"

	"chatpoll/pkg/chat"
	"chatpoll/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, addr, chatID string) *websocket.Conn {
	t.Helper()

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: "chat_id=" + chatID}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var status Frame
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, FrameStatus, status.Type)
	require.Equal(t, chatID, status.ChatID)

	return conn
}

func TestRoundTripOverSocket(t *testing.T) {
	transport := New(config.WebSocketConfig{Host: "127.0.0.1", Port: 0}, nil)
	require.Equal(t, "websocket", transport.Name())

	received := make(chan chat.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, transport.Subscribe(ctx, func(_ context.Context, msg chat.Message) error {
		received <- msg
		return nil
	}))
	require.NotEmpty(t, transport.Addr())

	conn := dial(t, transport.Addr(), "room1")
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameMessage, User: "alice", Text: "hello"}))

	select {
	case msg := <-received:
		require.Equal(t, "room1", msg.Destination)
		require.Equal(t, "alice", msg.User)
		require.Equal(t, "hello", msg.Text)
		require.NotEmpty(t, msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not receive message")
	}

	require.NoError(t, transport.Send(context.Background(), chat.Message{Destination: "room1", Text: "echo: hello", User: "bot"}))

	var reply Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, FrameMessage, reply.Type)
	require.Equal(t, "echo: hello", reply.Text)
	require.Equal(t, "bot", reply.User)
}

func TestInvalidFrameGetsErrorReply(t *testing.T) {
	transport := New(config.WebSocketConfig{Host: "127.0.0.1", Port: 0}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, transport.Subscribe(ctx, func(context.Context, chat.Message) error { return nil }))

	conn := dial(t, transport.Addr(), "room2")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var reply Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, FrameError, reply.Type)
}

func TestSendWithoutClientFails(t *testing.T) {
	transport := New(config.WebSocketConfig{}, nil)
	require.Error(t, transport.Send(context.Background(), chat.Message{Destination: "nobody", Text: "hi"}))
}

func TestDecodeFrame(t *testing.T) {
	msg, err := decodeFrame([]byte(`{"type":"message","id":"x1","user":" bob ","text":" hi "}`), "c1")
	require.NoError(t, err)
	require.Equal(t, chat.Message{ID: "x1", Destination: "c1", User: "bob", Text: "hi", CreatedAt: msg.CreatedAt}, msg)

	_, err = decodeFrame([]byte(`{"type":"typing"}`), "c1")
	require.ErrorContains(t, err, "typing")

	_, err = decodeFrame([]byte(`{"type":"message","text":"  "}`), "c1")
	require.Error(t, err)
}

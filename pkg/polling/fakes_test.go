package polling

import (
	"context"
	"sync"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"
	"chatpoll/pkg/query"
)

type selectResponse struct {
	result *query.Result
	err    error
}

// fakeExecutor answers selects from a script, repeating the last entry, and
// records inserts.
type fakeExecutor struct {
	mu       sync.Mutex
	selects  []selectResponse
	selected int
	inserts  []query.Insert
	sendErr  error
}

func (f *fakeExecutor) Execute(_ context.Context, q query.Query) (*query.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch typed := q.(type) {
	case query.Insert:
		f.inserts = append(f.inserts, typed)
		if f.sendErr != nil {
			return nil, f.sendErr
		}
		return &query.Result{Affected: int64(len(typed.Values))}, nil
	default:
		if len(f.selects) == 0 {
			return &query.Result{}, nil
		}
		idx := f.selected
		if idx >= len(f.selects) {
			idx = len(f.selects) - 1
		}
		f.selected++
		resp := f.selects[idx]
		return resp.result, resp.err
	}
}

func (f *fakeExecutor) selectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.selected
}

func (f *fakeExecutor) recordedInserts() []query.Insert {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]query.Insert(nil), f.inserts...)
}

func counts(pairs ...any) selectResponse {
	rows := make([]query.Row, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		rows = append(rows, query.Row{"chat_id": pairs[i], "message_count": pairs[i+1]})
	}
	return selectResponse{result: &query.Result{Rows: rows}}
}

type fakeConversation struct {
	id      string
	history []chat.Message
	err     error
	panics  bool
}

func (c *fakeConversation) ID() string { return c.id }

func (c *fakeConversation) History(context.Context, bool) ([]chat.Message, error) {
	if c.panics {
		panic("history exploded")
	}
	return c.history, c.err
}

type fakeMemory struct {
	mu    sync.Mutex
	convs map[string]*fakeConversation
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{convs: make(map[string]*fakeConversation)}
}

func (m *fakeMemory) set(conv *fakeConversation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.convs[conv.id] = conv
}

func (m *fakeMemory) Conversation(id string) chat.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.convs[id]
	if !ok {
		conv = &fakeConversation{id: id}
		m.convs[id] = conv
	}
	return conv
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []chat.Message
	convIDs  []string
	err      error
}

func (d *recordingDispatcher) OnMessage(_ context.Context, conv chat.Conversation, msg chat.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.messages = append(d.messages, msg)
	d.convIDs = append(d.convIDs, conv.ID())
	return d.err
}

func (d *recordingDispatcher) received() []chat.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]chat.Message(nil), d.messages...)
}

type fakeTransport struct {
	mu           sync.Mutex
	handler      channel.Handler
	subscribeErr error
	sent         []chat.Message
	sendErr      error
	subCtx       context.Context
	subscribed   chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribed: make(chan struct{})}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Subscribe(ctx context.Context, handler channel.Handler) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}

	f.mu.Lock()
	f.handler = handler
	f.subCtx = ctx
	f.mu.Unlock()
	close(f.subscribed)
	return nil
}

func (f *fakeTransport) Send(_ context.Context, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, msg)
	return f.sendErr
}

func (f *fakeTransport) deliver(ctx context.Context, msg chat.Message) error {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()

	return handler(ctx, msg)
}

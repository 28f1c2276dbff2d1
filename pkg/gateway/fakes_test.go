package gateway

import (
	"context"

	"chatpoll/pkg/chat"
	"chatpoll/pkg/query"
)

type executorFunc func(ctx context.Context) []map[string]any

func (f executorFunc) Execute(ctx context.Context, _ query.Query) (*query.Result, error) {
	raw := f(ctx)
	rows := make([]query.Row, len(raw))
	for i, row := range raw {
		rows[i] = row
	}
	return &query.Result{Rows: rows}, nil
}

type emptyMemory struct{}

func (emptyMemory) Conversation(id string) chat.Conversation { return emptyConversation(id) }

type emptyConversation string

func (c emptyConversation) ID() string { return string(c) }

func (emptyConversation) History(context.Context, bool) ([]chat.Message, error) { return nil, nil }

// Package chat holds the message model shared by polling strategies,
// transports and the dispatcher.
package chat

import (
	"context"
	"strings"
	"time"
)

// Message is one chat line. Destination is the conversation id the
// message belongs to; User identifies who wrote it.
type Message struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	Destination string    `json:"destination" yaml:"destination"`
	Text        string    `json:"text" yaml:"text"`
	User        string    `json:"user" yaml:"user"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// FromUser reports whether the message was written by user, ignoring
// surrounding whitespace.
func (m Message) FromUser(user string) bool {
	user = strings.TrimSpace(user)
	if user == "" {
		return false
	}

	return strings.TrimSpace(m.User) == user
}

// Conversation is the memory of one chat thread.
type Conversation interface {
	ID() string
	// History returns the thread oldest first. cached=false forces a
	// fresh read from the backing source.
	History(ctx context.Context, cached bool) ([]Message, error)
}

// MemoryStore hands out conversation memories by id.
type MemoryStore interface {
	Conversation(id string) Conversation
}

// Last returns the newest message of history.
func Last(history []Message) (Message, bool) {
	if len(history) == 0 {
		return Message{}, false
	}

	return history[len(history)-1], true
}

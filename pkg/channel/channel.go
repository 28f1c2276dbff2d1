// Package channel defines the realtime transport contract and helpers shared
// by the concrete transports.
package channel

import (
	"context"
	"strings"
	"unicode/utf8"

	"chatpoll/pkg/chat"
)

// Handler processes one inbound chat message.
type Handler func(context.Context, chat.Message) error

// Transport bridges one external realtime chat service into chatpoll.
type Transport interface {
	Name() string
	// Subscribe starts delivering inbound messages to handler in the
	// background and returns. Delivery ends when ctx is cancelled.
	Subscribe(ctx context.Context, handler Handler) error
	Send(ctx context.Context, msg chat.Message) error
}

// SplitText chunks text into pieces no longer than max bytes, preferring to
// break on newlines and then spaces. Hard cuts never split a UTF-8 sequence;
// a single rune wider than max becomes its own chunk.
func SplitText(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > max {
		cut := strings.LastIndex(remaining[:max], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(remaining[:max], " ")
		}
		if cut <= 0 {
			cut = runeCut(remaining, max)
		}

		chunks = append(chunks, remaining[:cut])
		remaining = strings.TrimLeft(remaining[cut:], "\n ")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}

	return chunks
}

// runeCut returns the largest offset <= max that starts a rune, or the end
// of the first rune when none fits.
func runeCut(text string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(text)
		cut = size
	}

	return cut
}

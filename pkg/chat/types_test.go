package chat

import "testing"

func TestFromUser(t *testing.T) {
	msg := Message{User: " bot "}
	if !msg.FromUser("bot") {
		t.Fatal("expected trimmed user to match")
	}
	if msg.FromUser("alice") {
		t.Fatal("expected different user not to match")
	}
	if (Message{}).FromUser("") {
		t.Fatal("expected empty identity never to match")
	}
}

func TestLast(t *testing.T) {
	if _, ok := Last(nil); ok {
		t.Fatal("expected no last message for empty history")
	}

	got, ok := Last([]Message{{Text: "a"}, {Text: "b"}})
	if !ok {
		t.Fatal("expected last message")
	}
	if got.Text != "b" {
		t.Fatalf("last text = %q, want %q", got.Text, "b")
	}
}

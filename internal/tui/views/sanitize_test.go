package views

import (
	"testing"

	"github.com/matheus3301/chatsync/internal/api"
)

func TestTermText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"a\u200db", "ab"},
		{"\u2764\ufe0f", "\u2764"},
		{"two\nlines", "two\nlines"},
	}
	for _, tt := range tests {
		if got := termText(tt.in); got != tt.want {
			t.Errorf("termText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("see\nyou\tsoon\u200d"); got != "see you soon" {
		t.Errorf("oneLine = %q", got)
	}
}

func TestChatTitle(t *testing.T) {
	tests := []struct {
		chat api.Chat
		want string
	}{
		{api.Chat{ID: "c1", Title: "Team", UserID: "u2"}, "Team"},
		{api.Chat{ID: "c1", UserID: "u2"}, "u2"},
		{api.Chat{ID: "c1"}, "c1"},
	}
	for _, tt := range tests {
		if got := ChatTitle(tt.chat); got != tt.want {
			t.Errorf("ChatTitle(%+v) = %q, want %q", tt.chat, got, tt.want)
		}
	}
}

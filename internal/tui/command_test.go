package tui

import (
	"slices"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs string
		fields   []string
	}{
		{"quit", "quit", "", nil},
		{"Q", "quit", "", nil},
		{"  Group  team   alice bob ", "group", "team   alice bob", []string{"team", "alice", "bob"}},
		{"wifi on", "wifi", "on", []string{"on"}},
		{"f", "search", "", nil},
		{"filter new york", "search", "new york", []string{"new", "york"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd, err := ParseCommand(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if cmd.Name != tt.wantName || cmd.Args != tt.wantArgs {
				t.Errorf("ParseCommand(%q) = %+v", tt.in, cmd)
			}
			if got := cmd.Fields(); !slices.Equal(got, tt.fields) {
				t.Errorf("Fields() = %q, want %q", got, tt.fields)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "unknown command: "},
		{"dance", "unknown command: dance"},
		{"single", "usage: single <user-id>"},
		{"single a b", "usage: single <user-id>"},
		{"group", "usage: group <name> [user-id...]"},
		{"wifi maybe", "usage: wifi on|off"},
		{"logout now", "usage: logout"},
	}
	for _, tt := range tests {
		_, err := ParseCommand(tt.in)
		if err == nil || err.Error() != tt.want {
			t.Errorf("ParseCommand(%q) error = %v, want %q", tt.in, err, tt.want)
		}
	}
}

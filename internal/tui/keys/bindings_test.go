package keys

import (
	"slices"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	var fired []string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true,
		Handler: func() { fired = append(fired, "global") }})
	r.AddGlobal("help", &Action{Key: tcell.KeyRune, Rune: '?', Description: "?:help", Visible: true,
		Handler: func() {}})
	r.AddView("chat", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:back", Visible: true,
		Handler: func() { fired = append(fired, "view") }})
	r.AddView("chat", "details", &Action{Key: tcell.KeyRune, Rune: 'd', Description: "d:details", Visible: true,
		Handler: func() {}})

	q := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if !r.HandleEvent("chat", q) || !r.HandleEvent("chats", q) {
		t.Fatal("q not handled")
	}
	if !slices.Equal(fired, []string{"view", "global"}) {
		t.Errorf("fired = %v, want page binding first", fired)
	}
	if r.HandleEvent("chats", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key handled")
	}
	if r.HandleEvent("chats", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModAlt)) {
		t.Error("alt-q handled as q")
	}

	if got := r.Hints("chat"); !slices.Equal(got, []string{"q:back", "d:details", "?:help"}) {
		t.Errorf("Hints(chat) = %v", got)
	}
	if got := r.Hints("chats"); !slices.Equal(got, []string{"q:quit", "?:help"}) {
		t.Errorf("Hints(chats) = %v", got)
	}
}

func TestAddReplacesByName(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("help", &Action{Key: tcell.KeyRune, Rune: '?', Description: "old", Visible: true, Handler: func() {}})
	r.AddGlobal("help", &Action{Key: tcell.KeyF1, Description: "F1:help", Visible: true, Handler: func() {}})
	if got := r.Hints(""); !slices.Equal(got, []string{"F1:help"}) {
		t.Errorf("Hints = %v", got)
	}
	if r.HandleEvent("", tcell.NewEventKey(tcell.KeyRune, '?', tcell.ModNone)) {
		t.Error("replaced binding still fires")
	}
}

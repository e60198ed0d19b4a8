package keys

import "github.com/gdamore/tcell/v2"

// Action is one key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches reports whether ev triggers the action. Rune bindings ignore
// modifiers other than shift, which tcell already folds into the rune.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune && ev.Modifiers()&(tcell.ModCtrl|tcell.ModAlt) == 0
}

type binding struct {
	name   string
	action *Action
}

// Registry holds bindings per page, plus global ones. Page bindings shadow
// global bindings on the same key.
type Registry struct {
	global []binding
	views  map[string][]binding
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]binding)}
}

// AddGlobal registers or replaces a global binding.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = put(r.global, name, action)
}

// AddView registers or replaces a binding of one page.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = put(r.views[view], name, action)
}

func put(list []binding, name string, action *Action) []binding {
	for i := range list {
		if list[i].name == name {
			list[i].action = action
			return list
		}
	}
	return append(list, binding{name: name, action: action})
}

// Hints lists the visible bindings active on view: page bindings first,
// then globals not shadowed by them, each in registration order.
func (r *Registry) Hints(view string) []string {
	var hints []string
	for _, b := range r.active(view) {
		if b.action.Visible {
			hints = append(hints, b.action.Description)
		}
	}
	return hints
}

func (r *Registry) active(view string) []binding {
	local := r.views[view]
	out := append([]binding(nil), local...)
	for _, g := range r.global {
		shadowed := false
		for _, l := range local {
			if sameKey(g.action, l.action) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, g)
		}
	}
	return out
}

func sameKey(a, b *Action) bool {
	return a.Key == b.Key && (a.Key != tcell.KeyRune || a.Rune == b.Rune)
}

// HandleEvent runs the first binding of view matching ev and reports
// whether one did.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, b := range r.active(view) {
		if b.action.Matches(ev) {
			b.action.Handler()
			return true
		}
	}
	return false
}

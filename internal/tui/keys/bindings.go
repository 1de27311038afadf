package keys

import "github.com/gdamore/tcell/v2"

// Global is the scope whose bindings apply on every page.
const Global = ""

// Action represents a keybinding action.
type Action struct {
	Name        string
	Key         tcell.Key
	Rune        rune
	Label       string
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings organized by page. Bindings keep their
// registration order so hints render stably.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(action *Action) {
	r.AddView(Global, action)
}

// AddView registers a page-specific binding. A binding with the same name
// in the same scope is replaced.
func (r *Registry) AddView(view string, action *Action) {
	actions := r.scopes[view]
	for i, a := range actions {
		if a.Name == action.Name {
			actions[i] = action
			return
		}
	}
	r.scopes[view] = append(actions, action)
}

// Visible returns the visible bindings of a page followed by the global
// ones.
func (r *Registry) Visible(view string) []*Action {
	var out []*Action
	for _, scope := range scopes(view) {
		for _, a := range r.scopes[scope] {
			if a.Visible {
				out = append(out, a)
			}
		}
	}
	return out
}

// HandleEvent dispatches a key event to the matching action of the page,
// falling back to global bindings. Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, scope := range scopes(view) {
		for _, a := range r.scopes[scope] {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}

func scopes(view string) []string {
	if view == Global {
		return []string{Global}
	}
	return []string{view, Global}
}

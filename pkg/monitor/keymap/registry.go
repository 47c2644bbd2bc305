// Package keymap maps key presses to monitor commands per UI context.
package keymap

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Context represents a UI context for keybindings
type Context string

const (
	ContextGlobal  Context = "global"
	ContextMain    Context = "main"
	ContextConfirm Context = "confirm" // a destructive action awaits y/n
	ContextHelp    Context = "help"
)

// Command represents a named command that can be triggered by key bindings
type Command string

const (
	CmdQuit       Command = "quit"
	CmdToggleHelp Command = "toggle-help"
	CmdPoll       Command = "poll"

	CmdCursorDown Command = "cursor-down"
	CmdCursorUp   Command = "cursor-up"

	CmdForceOnline  Command = "force-online"
	CmdForceOffline Command = "force-offline"
	CmdRelease      Command = "release"
	CmdReplay       Command = "replay"
	CmdRefresh      Command = "refresh"
	CmdClearQueue   Command = "clear-queue"

	CmdConfirm Command = "confirm"
	CmdCancel  Command = "cancel"
)

// Binding maps a key to a command in a specific context
type Binding struct {
	Key         string  // as reported by tea.KeyMsg.String(), e.g. "ctrl+c"
	Command     Command // Command ID
	Context     Context
	Description string // Human-readable description for help text
}

// Registry manages key bindings and command dispatch
type Registry struct {
	mu        sync.RWMutex
	bindings  map[Context][]Binding
	overrides map[string]Command // "context:key" -> command
}

// NewRegistry creates a registry loaded with DefaultBindings.
func NewRegistry() *Registry {
	r := &Registry{
		bindings:  make(map[Context][]Binding),
		overrides: make(map[string]Command),
	}
	for _, b := range DefaultBindings() {
		r.bindings[b.Context] = append(r.bindings[b.Context], b)
	}
	return r
}

// SetUserOverride binds key to cmd in context ahead of the defaults.
func (r *Registry) SetUserOverride(context Context, key string, cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[string(context)+":"+key] = cmd
}

// Lookup finds the command for key in the active context.
// Checks: user overrides -> context bindings -> global bindings
func (r *Registry) Lookup(key tea.KeyMsg, active Context) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k := key.String()
	for _, ctx := range []Context{active, ContextGlobal} {
		if cmd, ok := r.overrides[string(ctx)+":"+k]; ok {
			return cmd, true
		}
	}
	// Confirm swallows everything except its own keys.
	if active == ContextConfirm {
		return r.find(k, ContextConfirm)
	}
	if cmd, ok := r.find(k, active); ok {
		return cmd, true
	}
	return r.find(k, ContextGlobal)
}

func (r *Registry) find(key string, context Context) (Command, bool) {
	for _, b := range r.bindings[context] {
		if b.Key == key {
			return b.Command, true
		}
	}
	return "", false
}

// BindingsForContext returns the bindings for context followed by the
// global ones.
func (r *Registry) BindingsForContext(context Context) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := append([]Binding(nil), r.bindings[context]...)
	if context != ContextGlobal {
		result = append(result, r.bindings[ContextGlobal]...)
	}
	return result
}

package keymap

// DefaultBindings returns the default key bindings for the monitor TUI.
func DefaultBindings() []Binding {
	return []Binding{
		{Key: "q", Command: CmdQuit, Context: ContextGlobal, Description: "Quit"},
		{Key: "ctrl+c", Command: CmdQuit, Context: ContextGlobal, Description: "Quit"},
		{Key: "?", Command: CmdToggleHelp, Context: ContextGlobal, Description: "Toggle help"},

		{Key: "j", Command: CmdCursorDown, Context: ContextMain, Description: "Next queued action"},
		{Key: "down", Command: CmdCursorDown, Context: ContextMain, Description: "Next queued action"},
		{Key: "k", Command: CmdCursorUp, Context: ContextMain, Description: "Previous queued action"},
		{Key: "up", Command: CmdCursorUp, Context: ContextMain, Description: "Previous queued action"},

		{Key: "p", Command: CmdPoll, Context: ContextMain, Description: "Poll status now"},
		{Key: "o", Command: CmdForceOnline, Context: ContextMain, Description: "Force online"},
		{Key: "f", Command: CmdForceOffline, Context: ContextMain, Description: "Force offline"},
		{Key: "a", Command: CmdRelease, Context: ContextMain, Description: "Automatic connectivity"},
		{Key: "r", Command: CmdReplay, Context: ContextMain, Description: "Replay queue"},
		{Key: "R", Command: CmdRefresh, Context: ContextMain, Description: "Reload from remote"},
		{Key: "X", Command: CmdClearQueue, Context: ContextMain, Description: "Clear queue"},

		{Key: "y", Command: CmdConfirm, Context: ContextConfirm, Description: "Confirm"},
		{Key: "enter", Command: CmdConfirm, Context: ContextConfirm, Description: "Confirm"},
		{Key: "n", Command: CmdCancel, Context: ContextConfirm, Description: "Cancel"},
		{Key: "esc", Command: CmdCancel, Context: ContextConfirm, Description: "Cancel"},

		{Key: "esc", Command: CmdToggleHelp, Context: ContextHelp, Description: "Close help"},
	}
}

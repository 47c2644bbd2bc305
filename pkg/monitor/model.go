// Package monitor is a terminal dashboard for a running agencysync
// instance: connectivity, the offline queue and replay progress.
package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/agencysync/internal/api"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/version"
	"github.com/marcus/agencysync/pkg/monitor/keymap"
)

// Model is the Bubble Tea model for the monitor.
type Model struct {
	src             Source
	keys            *keymap.Registry
	RefreshInterval time.Duration
	Version         string

	Status   *orchestrator.Status
	Queue    []api.QueueEntry
	Err      error
	LastPoll time.Time
	Cursor   int

	// Busy names the action in flight; empty when idle.
	Busy    string
	spinner spinner.Model
	Flash   string

	Confirming  bool
	ShowHelp    bool
	UpdateAvail *version.UpdateAvailableMsg

	Width  int
	Height int
}

// New creates a monitor polling src every interval.
func New(src Source, interval time.Duration, ver string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	return Model{
		src:             src,
		keys:            keymap.NewRegistry(),
		RefreshInterval: interval,
		Version:         ver,
		spinner:         sp,
	}
}

// Run starts the monitor on the alternate screen and blocks until quit.
func Run(src Source, interval time.Duration, ver string) error {
	p := tea.NewProgram(New(src, interval, ver), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(fetch(m.src, true), version.CheckAsync(m.Version))
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) context() keymap.Context {
	switch {
	case m.Confirming:
		return keymap.ContextConfirm
	case m.ShowHelp:
		return keymap.ContextHelp
	}
	return keymap.ContextMain
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		return m, nil

	case TickMsg:
		return m, fetch(m.src, true)

	case DataMsg:
		m.LastPoll = msg.At
		m.Err = msg.Err
		if msg.Err == nil {
			m.Status = msg.Status
			m.Queue = msg.Queue
			m.clampCursor()
		}
		if !msg.Chained {
			return m, nil
		}
		return m, m.scheduleTick()

	case ActionDoneMsg:
		m.Busy = ""
		if msg.Err != nil {
			m.Flash = ""
			m.Err = msg.Err
		} else {
			m.Err = nil
			m.Flash = msg.Label + " done"
			if msg.Detail != "" {
				m.Flash += ": " + msg.Detail
			}
		}
		// Show the effect without waiting for the next tick.
		return m, fetch(m.src, false)

	case spinner.TickMsg:
		if m.Busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case version.UpdateAvailableMsg:
		m.UpdateAvail = &msg
		return m, nil

	case tea.KeyMsg:
		cmd, ok := m.keys.Lookup(msg, m.context())
		if !ok {
			return m, nil
		}
		return m.execute(cmd)
	}
	return m, nil
}

func (m Model) execute(cmd keymap.Command) (tea.Model, tea.Cmd) {
	switch cmd {
	case keymap.CmdQuit:
		return m, tea.Quit
	case keymap.CmdToggleHelp:
		m.ShowHelp = !m.ShowHelp
		return m, nil
	case keymap.CmdCursorDown:
		m.Cursor++
		m.clampCursor()
		return m, nil
	case keymap.CmdCursorUp:
		m.Cursor--
		m.clampCursor()
		return m, nil
	case keymap.CmdPoll:
		return m, fetch(m.src, false)
	case keymap.CmdConfirm:
		m.Confirming = false
		return m.start("clear queue", clearQueue(m.src))
	case keymap.CmdCancel:
		m.Confirming = false
		return m, nil
	}

	if m.Busy != "" {
		// One action at a time.
		return m, nil
	}
	switch cmd {
	case keymap.CmdForceOnline:
		return m.start("force online", forceNetwork(m.src, true))
	case keymap.CmdForceOffline:
		return m.start("force offline", forceNetwork(m.src, false))
	case keymap.CmdRelease:
		return m.start("automatic connectivity", releaseNetwork(m.src))
	case keymap.CmdReplay:
		return m.start("replay", replay(m.src))
	case keymap.CmdRefresh:
		return m.start("reload", refresh(m.src))
	case keymap.CmdClearQueue:
		if len(m.Queue) > 0 {
			m.Confirming = true
		}
		return m, nil
	}
	return m, nil
}

func (m Model) start(label string, action tea.Cmd) (tea.Model, tea.Cmd) {
	m.Busy = label
	m.Flash = ""
	return m, tea.Batch(action, m.spinner.Tick)
}

func (m *Model) clampCursor() {
	if m.Cursor >= len(m.Queue) {
		m.Cursor = len(m.Queue) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

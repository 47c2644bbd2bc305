package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/agencysync/internal/api"
	"github.com/marcus/agencysync/internal/output"
	"github.com/marcus/agencysync/pkg/monitor/keymap"
)

const defaultWidth = 80

func (m Model) View() string {
	width := m.Width
	if width <= 0 {
		width = defaultWidth
	}

	var sections []string
	sections = append(sections, m.renderHeader(width))
	if m.ShowHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, m.renderStatus(), m.renderQueue(width))
	}
	sections = append(sections, m.renderFooter(width))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader(width int) string {
	left := titleStyle.Render("agencysync monitor")
	if m.Status != nil {
		badge := onlineStyle.Render("● online")
		if !m.Status.Online {
			badge = offlineStyle.Render("○ offline")
		}
		if m.Status.Forced {
			badge += subtleStyle.Render(" (forced)")
		}
		left += "  " + subtleStyle.Render(m.Status.SourceID) + "  " + badge
		if m.Status.Replaying {
			left += "  " + offlineStyle.Render("replaying")
		}
	}
	if m.UpdateAvail != nil {
		left += "  " + updateStyle.Render("update "+m.UpdateAvail.LatestVersion+" available")
	}
	return ansi.Truncate(left, width, "…")
}

func (m Model) renderStatus() string {
	if m.Status == nil {
		if m.Err != nil {
			return panelStyle.Render(errorStyle.Render("instance unreachable: " + m.Err.Error()))
		}
		return panelStyle.Render(subtleStyle.Render("connecting…"))
	}
	st := m.Status

	row := func(label string, value any) string {
		return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
	}
	lastReplay := "never"
	if st.LastReplayAt != nil {
		lastReplay = output.FormatTimeAgo(*st.LastReplayAt)
	}
	lines := []string{
		panelTitleStyle.Render("Status"),
		row("queue depth", st.QueueDepth),
		row("last replayed seq", st.LastReplayed),
		row("last replay", lastReplay),
		row("records", output.FormatCounts(st.Counts)),
		row("dispatched", st.Stats.Dispatched),
		row("enqueued", st.Stats.Enqueued),
		row("replayed", st.Stats.ReplayedTotal),
		row("persisted", fmt.Sprintf("%d (%d failed)", st.Stats.Persisted, st.Stats.PersistFailed)),
		row("from siblings", st.Stats.Relayed),
		row("from remote", st.Stats.Realtime),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderQueue(width int) string {
	title := panelTitleStyle.Render(fmt.Sprintf("Queue (%d)", len(m.Queue)))
	if len(m.Queue) == 0 {
		return panelStyle.Render(title + "\n" + subtleStyle.Render("nothing waiting for replay"))
	}

	// Border and padding take four columns.
	inner := max(width-4, 20)
	rows := []string{title}
	for i, e := range m.visibleQueue() {
		idx := m.queueOffset() + i
		line := fmt.Sprintf("#%-5d %-22s %s  %s",
			e.Seq, e.Type, timestampStyle.Render(output.FormatTimeAgo(e.EnqueuedAt)), subtleStyle.Render(string(e.Action)))
		line = ansi.Truncate(line, inner, "…")
		if idx == m.Cursor {
			line = selectedRowStyle.Render(ansi.Strip(line))
		}
		rows = append(rows, line)
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

// queueRows is how many queue lines fit below the status panel.
func (m Model) queueRows() int {
	if m.Height <= 0 {
		return 10
	}
	// Header, status panel, queue chrome and footer.
	return max(m.Height-20, 3)
}

func (m Model) queueOffset() int {
	rows := m.queueRows()
	if m.Cursor < rows {
		return 0
	}
	return m.Cursor - rows + 1
}

func (m Model) visibleQueue() []api.QueueEntry {
	off := m.queueOffset()
	end := min(off+m.queueRows(), len(m.Queue))
	return m.Queue[off:end]
}

func (m Model) renderFooter(width int) string {
	var line string
	switch {
	case m.Confirming:
		line = confirmStyle.Render(fmt.Sprintf("Drop %d queued actions without replaying them? y/n", len(m.Queue)))
	case m.Busy != "":
		line = m.spinner.View() + " " + m.Busy + "…"
	case m.Err != nil && m.Status != nil:
		line = errorStyle.Render(m.Err.Error())
	case m.Flash != "":
		line = flashStyle.Render(m.Flash)
	default:
		line = helpStyle.Render("o online · f offline · a auto · r replay · R reload · X clear · ? help · q quit")
	}
	if !m.LastPoll.IsZero() && !m.Confirming {
		line += "  " + timestampStyle.Render("polled "+m.LastPoll.Format("15:04:05"))
	}
	return ansi.Truncate(line, width, "…")
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Keys") + "\n")
	seen := make(map[string]bool)
	for _, bind := range m.keys.BindingsForContext(keymap.ContextMain) {
		if seen[bind.Description] {
			continue
		}
		seen[bind.Description] = true
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(bind.Key), bind.Description)
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

package monitor

import "github.com/charmbracelet/lipgloss"

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	flashStyle     = lipgloss.NewStyle().Foreground(successColor)
	onlineStyle    = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle   = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(mutedColor).Width(18)
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	updateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	confirmStyle   = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	// Selected row style - inverted colors for visibility
	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("237")).
				Foreground(lipgloss.Color("255"))
)

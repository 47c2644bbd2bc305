// Package output provides styled terminal output helpers (success, error,
// warning, status badges) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/agencysync/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	policyStyles = map[models.PolicyStatus]lipgloss.Style{
		models.PolicyActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.PolicyPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.PolicySuspended: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PolicyCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	requestStyles = map[models.RequestStatus]lipgloss.Style{
		models.RequestPending:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.RequestApproved: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.RequestRejected: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeQueueError   = "queue_error"
	ErrCodeReplayFailed = "replay_failed"
	ErrCodeInternal     = "internal"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatPolicyStatus formats a policy status with color
func FormatPolicyStatus(s models.PolicyStatus) string {
	style, ok := policyStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// FormatRequestStatus formats a request status with color
func FormatRequestStatus(s models.RequestStatus) string {
	style, ok := requestStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// OnlineBadge renders the connectivity flag, marking a manual override.
func OnlineBadge(online, forced bool) string {
	badge := successStyle.Render("● online")
	if !online {
		badge = warningStyle.Render("○ offline")
	}
	if forced {
		badge += subtleStyle.Render(" (forced)")
	}
	return badge
}

// Title renders s bold.
func Title(s string) string { return titleStyle.Render(s) }

// Subtle renders s dimmed.
func Subtle(s string) string { return subtleStyle.Render(s) }

// FormatCounts renders collection sizes as "customers=3 requests=1 ..." in
// the canonical collection order.
func FormatCounts(counts map[models.Collection]int) string {
	parts := make([]string, 0, len(counts))
	for _, c := range models.Collections {
		if n, ok := counts[c]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", c, n))
		}
	}
	// Names this build does not know go last, sorted.
	var extra []string
	for c, n := range counts {
		if !c.Valid() {
			extra = append(extra, fmt.Sprintf("%s=%d", c, n))
		}
	}
	slices.Sort(extra)
	return strings.Join(append(parts, extra...), " ")
}

// FormatTimeAgo returns a human-readable relative time
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nQUEUE:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

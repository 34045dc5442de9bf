// Package tui provides Bubble Tea views for the strata CLI.
//
// TUI mode is opt-in (--tui). Views render the same payloads as the plain
// renderers and add nothing of their own.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles shared by the views.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// FileStyle for file names in the search view.
	FileStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// CountStyle for per-file match counts.
	CountStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// OffsetStyle right-aligns byte offsets under a file.
	OffsetStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12).
			Align(lipgloss.Right)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(18).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// OutcomeStyle returns a style for a session outcome or failure count.
func OutcomeStyle(failed bool) lipgloss.Style {
	if failed {
		return ErrorStyle
	}
	return SuccessStyle
}

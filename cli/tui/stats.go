package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/strata/journal"
)

// StatsModel shows per-command journal aggregates as stat boxes.
type StatsModel struct {
	stats    []journal.CommandStats
	quitting bool
}

// NewStatsModel creates a stats view.
func NewStatsModel(stats []journal.CommandStats) StatsModel {
	return StatsModel{stats: stats}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Statistics"))
	b.WriteString("\n")
	if len(m.stats) == 0 {
		b.WriteString(HelpStyle.Render("No sessions recorded"))
		b.WriteString("\n")
	}
	for i, s := range m.stats {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FileStyle.Render(s.Command))
		b.WriteString("\n")

		boxes := []string{
			renderStatBox("Sessions", fmt.Sprint(s.Sessions), highlightColor),
			renderStatBox("Failures", fmt.Sprint(s.Failures), OutcomeStyle(s.Failures > 0).GetForeground()),
			renderStatBox("Avg ms", fmt.Sprintf("%.1f", s.AvgDurationMs), mutedColor),
		}
		switch s.Command {
		case "search":
			boxes = append(boxes,
				renderStatBox("Matches", fmt.Sprint(s.Matches), warningColor),
				renderStatBox("Scanned", formatBytes(s.Bytes), primaryColor))
		case "upload", "delete":
			boxes = append(boxes, renderStatBox("Bytes", formatBytes(s.Bytes), primaryColor))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

func renderStatBox(label, value string, color lipgloss.TerminalColor) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatValueStyle.Foreground(color).Render(value),
		StatLabelStyle.Render(label))
	return StatBoxStyle.BorderForeground(color).Render(content)
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RunStats runs the stats view in the alternate screen.
func RunStats(stats []journal.CommandStats) error {
	_, err := tea.NewProgram(NewStatsModel(stats), tea.WithAltScreen()).Run()
	return err
}

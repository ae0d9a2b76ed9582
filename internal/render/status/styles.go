package status

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	section  lipgloss.Style
	empty    lipgloss.Style
	agent    lipgloss.Style
	audience lipgloss.Style
	text     lipgloss.Style
	table    table.Styles
}

func newStyles() styles {
	tableStyles := table.DefaultStyles()
	tableStyles.Header = tableStyles.Header.Bold(true).Foreground(lipgloss.Color("241"))
	tableStyles.Cell = tableStyles.Cell.Foreground(lipgloss.Color("252"))
	// Nothing is selectable in a report.
	tableStyles.Selected = lipgloss.NewStyle()

	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		section:  lipgloss.NewStyle().MarginTop(1),
		empty:    lipgloss.NewStyle().Faint(true),
		agent:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		audience: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		text:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		table:    tableStyles,
	}
}

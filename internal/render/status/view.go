package status

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/turns"
	"github.com/muesli/reflow/wordwrap"
)

const (
	defaultTitle = "Panel Statistics"
	defaultWidth = 80
)

type RenderOptions struct {
	Title string
	Now   time.Time
	// Since is when the session started. The elapsed time is left out when
	// it is zero.
	Since time.Time
}

func renderView(stats turns.Statistics, roster []agents.Agent, opts RenderOptions, s styles) string {
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}

	summary := fmt.Sprintf("turns: %d  agents: %d  audience: %d  average: %s",
		stats.TotalTurns, stats.AgentTurns, stats.AudienceTurns, formatDuration(stats.AverageDuration))
	if !opts.Since.IsZero() && !opts.Now.IsZero() {
		summary += "  elapsed: " + formatDuration(opts.Now.Sub(opts.Since))
	}

	lines := []string{
		s.title.Render(title),
		s.header.Render(summary),
	}

	if len(roster) == 0 {
		lines = append(lines, s.empty.Render("No agents on the panel."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, s.section.Render(renderTable(stats, roster, s)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderTable(stats turns.Statistics, roster []agents.Agent, s styles) string {
	nameWidth := len("Agent")
	rows := make([]table.Row, 0, len(roster))
	for _, agent := range roster {
		name := agent.DisplayName()
		nameWidth = max(nameWidth, lipgloss.Width(name))

		count := stats.PerAgent[agent.ID]
		rows = append(rows, table.Row{name, strconv.Itoa(count), share(count, stats.AgentTurns)})
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Agent", Width: nameWidth},
			{Title: "Turns", Width: 5},
			{Title: "Share", Width: 6},
		}),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
		table.WithFocused(false),
		table.WithStyles(s.table),
	)
	return t.View()
}

func share(count, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", float64(count)*100/float64(total))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Round(100 * time.Millisecond).String()
}

// TranscriptLine formats one utterance for the console, wrapped to width
// columns with continuation lines indented under the text.
func TranscriptLine(speaker, text string, isAudience bool, width int) string {
	if width <= 0 {
		width = defaultWidth
	}

	s := newStyles()
	label := s.agent.Render(speaker + ":")
	if isAudience {
		label = s.audience.Render(speaker + ":")
	}

	indent := strings.Repeat(" ", lipgloss.Width(speaker)+2)
	wrapped := wordwrap.String(strings.TrimSpace(text), max(width-len(indent), 20))

	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		if i == 0 {
			lines[i] = label + " " + s.text.Render(line)
			continue
		}
		lines[i] = indent + s.text.Render(line)
	}
	return strings.Join(lines, "\n")
}

package status

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/turns"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

type model struct {
	stats  turns.Statistics
	roster []agents.Agent
	opts   RenderOptions
	styles styles
	output string
}

func newModel(stats turns.Statistics, roster []agents.Agent, opts RenderOptions) model {
	return model{
		stats:  stats,
		roster: roster,
		opts:   opts,
		styles: newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = renderView(m.stats, m.roster, m.opts, m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// Render renders the statistics report of a session. roster decides the
// order and display names of the agent rows.
func Render(stats turns.Statistics, roster []agents.Agent, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newModel(stats, roster, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}

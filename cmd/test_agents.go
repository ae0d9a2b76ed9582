package cmd

import (
	"fmt"
	"strings"

	orchestration "github.com/koscakluka/ema-panel/core"
	"github.com/koscakluka/ema-panel/core/history"
	"github.com/koscakluka/ema-panel/core/llms"
	"github.com/spf13/cobra"
)

const introductionRequest = "Please introduce yourself and your expertise."

// introductionPrompts asks every agent to introduce itself instead of
// continuing the conversation.
type introductionPrompts struct {
	history *history.Conversation
}

func (p introductionPrompts) Prompt(agentID string) (llms.Prompt, error) {
	return p.history.PromptFor(agentID, introductionRequest)
}

func newTestAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test-agents",
		Short: "Let every agent introduce itself, text only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			orchestrator := orchestration.NewOrchestrator(app.registry,
				orchestration.WithResponseGenerator(app.llm),
				orchestration.WithPromptSource(introductionPrompts{history: app.history}),
				orchestration.WithMaxTurnDuration(app.cfg.TurnTaking.MaxTurnDuration),
			)
			defer orchestrator.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Language models: %s\n", strings.Join(app.llm.Providers(), " > "))
			failed := 0
			for _, agent := range app.registry.Agents() {
				fmt.Fprintf(out, "\nTesting agent: %s (%s)\n", agent.DisplayName(), agent.ID)

				result := orchestrator.Speak(cmd.Context(), agent.ID)
				if !result.OK() {
					failed++
					fmt.Fprintf(out, "Failed (%s): %v\n", result.Kind, result.Err)
					continue
				}
				fmt.Fprintf(out, "Response: %s\n", result.Response)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d agents failed to respond", failed, app.registry.Len())
			}
			return nil
		},
	}
}

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the agents taking part",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			registry, err := loadRoster(cmd, cfg, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, agent := range registry.Agents() {
				line := fmt.Sprintf("%s (%s)", agent.DisplayName(), agent.ID)
				if agent.Role != "" {
					line += " - " + agent.Role
				}
				fmt.Fprintln(out, line)
				if len(agent.Keywords) > 0 {
					fmt.Fprintf(out, "  keywords: %s\n", joinKeywords(agent.Keywords))
				}
			}
			return nil
		},
	}
}

func joinKeywords(keywords []agents.Keyword) string {
	parts := make([]string, len(keywords))
	for i, keyword := range keywords {
		parts[i] = keyword.String()
	}
	return strings.Join(parts, ", ")
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the roster configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(agents.RosterSchema())
		},
	}
}

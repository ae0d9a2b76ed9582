// Package cmd implements the ema-panel command line.
package cmd

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-panel/cmd"

var logger = otelslog.NewLogger(scopeName)

type rootOptions struct {
	configPath string
	envFile    string

	agent     string
	agents    []string
	allAgents bool
}

// activeAgents turns the agent flags into a filter. nil leaves the choice to
// the configuration file.
func (o rootOptions) activeAgents() []string {
	switch {
	case o.agent != "":
		return []string{o.agent}
	case len(o.agents) > 0:
		return o.agents
	default:
		return nil
	}
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "ema-panel",
		Short:         "Voice panel of AI agents taking turns with a live audience",
		Long:          "ema-panel listens to a live audience, picks which agent of the panel answers and lets the agents carry the conversation, one speaker at a time.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPanel(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "panel configuration file (default panel.{yaml,json,toml} in . or ./config)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "file with provider API keys, skipped when missing")
	flags.StringVar(&opts.agent, "agent", "", "run with a single agent (agent id)")
	flags.StringSliceVar(&opts.agents, "agents", nil, "run with specific agents (comma-separated ids)")
	flags.BoolVar(&opts.allAgents, "all-agents", false, "run with every configured agent, ignoring activeAgents")
	rootCmd.MarkFlagsMutuallyExclusive("agent", "agents", "all-agents")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newTestAgentsCmd(opts),
		newTestAudioCmd(),
		newAgentsCmd(opts),
		newSchemaCmd(),
	)

	return rootCmd
}

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scttfrdmn/agenkit/research-go/config"
)

// cliState is shared by all subcommands. The config is loaded once flags are
// parsed, before any subcommand runs.
type cliState struct {
	configFile string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	rootCmd := &cobra.Command{
		Use:           "research",
		Short:         "Multi-agent research orchestrator",
		Long:          "research answers research questions with a researcher agent that calls tools, a reviewer agent that critiques drafts and a guardrail that checks inputs and answers. Sessions are checkpointed between questions.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), state.configFile)
			if err != nil {
				return err
			}
			state.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&state.configFile, "config", "", "config file (YAML, TOML or JSON)")

	rootCmd.AddCommand(
		newServeCmd(state),
		newAskCmd(state),
		newHistoryCmd(state),
	)
	return rootCmd
}

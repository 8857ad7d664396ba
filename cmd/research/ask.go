package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newAskCmd(state *cliState) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Run one research question against a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := wireApp(ctx, state.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			result, err := a.orchestrator.Run(ctx, sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintln(out, result.Answer)
			fmt.Fprintf(out, "\noutcome: %s (tool calls: %d, review rounds: %d)\n",
				result.Outcome, len(result.ToolCalls), len(result.Verdicts))
			if result.Warning != "" {
				fmt.Fprintf(out, "warning: %s\n", result.Warning)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "session id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

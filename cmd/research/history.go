package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/agenkit/research-go/session"
)

func newHistoryCmd(state *cliState) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history [SESSION]",
		Short: "Show the checkpointed turns and scratch notes of a session, or list sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := wireApp(ctx, state.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if len(args) == 0 {
				return listSessions(cmd, a)
			}

			sess, err := a.store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			notes, err := a.scratch.All(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"session_id": sess.ID,
					"turns":      sess.Turns,
					"scratch":    notes,
				})
			}

			fmt.Fprintf(out, "session %s: %d turns\n", sess.ID, len(sess.Turns))
			for i, turn := range sess.Turns {
				fmt.Fprintf(out, "\n[%d] %s  %s\n", i+1, turn.Timestamp.Format("2006-01-02 15:04:05"), turn.Outcome)
				fmt.Fprintf(out, "Q: %s\n", turn.Question)
				fmt.Fprintf(out, "A: %s\n", turn.Answer)
			}
			if len(notes) > 0 {
				keys := make([]string, 0, len(notes))
				for k := range notes {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Fprintln(out, "\nscratch:")
				for _, k := range keys {
					fmt.Fprintf(out, "  %s = %s\n", k, notes[k].Value)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func listSessions(cmd *cobra.Command, a *app) error {
	lister, ok := a.store.(session.Lister)
	if !ok {
		return fmt.Errorf("the %s store cannot list sessions", a.cfg.Store)
	}
	ids, err := lister.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

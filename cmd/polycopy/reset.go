package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the follower portfolio and start a new epoch at the current end of the trade log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset deletes positions, fills and snapshots: re-run with --yes")
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.engine(nil).Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paper portfolio reset: cash $%s, cursor %d, epoch %s\n",
				st.Cash.StringFixed(2), st.LastTradeID, st.EpochStart.UTC().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

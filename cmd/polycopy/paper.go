package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newPaperCmd(opts *rootOptions) *cobra.Command {
	var skipIngest bool
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Sync leader trades once and apply the pending batch to the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireWallets(); err != nil {
				return err
			}

			if !skipIngest {
				n, err := a.ingester(nil).PollOnce(ctx)
				if err != nil {
					// con trades parciales el ledger igual puede avanzar
					slog.Warn("ingest finished with errors", "err", err)
				}
				slog.Info("ingest done", "new_trades", n)
			}

			exec, err := a.executor()
			if err != nil {
				return err
			}
			_, err = a.engine(exec).RunOnce(ctx)
			return err
		},
	}
	cmd.Flags().BoolVar(&skipIngest, "no-ingest", false, "only apply trades already in the trade log")
	return cmd
}

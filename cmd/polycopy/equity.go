package main

import (
	"errors"

	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/spf13/cobra"
)

func newEquityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "equity",
		Short: "Show MY_WALLET's portfolio value and the allocation each leader would get",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.MyWallet == "" {
				return errors.New("MY_WALLET is not set")
			}

			value, err := a.client.LeaderEquity(cmd.Context(), a.cfg.MyWallet)
			if err != nil {
				return err
			}
			a.console.PrintEquity(notify.EquityInput{
				Wallet:    a.cfg.MyWallet,
				Value:     value,
				Leaders:   a.cfg.Wallets,
				PerLeader: domain.PerLeaderAllocation(value, len(a.cfg.Wallets)),
			})
			return nil
		},
	}
}

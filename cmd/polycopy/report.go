package main

import (
	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/application/report"
	"github.com/spf13/cobra"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		fills       int
		intervalSec int64
		points      int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print portfolio, positions, recent fills and the equity curve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := report.Build(ctx, a.store)
			if err != nil {
				return err
			}
			recent, err := a.store.Fills(ctx, "", fills)
			if err != nil {
				return err
			}
			liveFills, err := a.store.LiveFills(ctx, fills)
			if err != nil {
				return err
			}
			rejections, err := a.store.Rejections(ctx, 10)
			if err != nil {
				return err
			}
			series, err := a.store.EquitySeries(ctx, intervalSec, points)
			if err != nil {
				return err
			}

			a.console.PrintReport(notify.ReportInput{
				Initialized: p.Initialized,
				State:       p.State,
				Valuation:   p.Valuation,
				StartEquity: a.cfg.StartEquity(),
				Backlog:     p.Backlog(),
				Positions:   p.Positions,
				Leaders:     p.Leaders,
				Fills:       recent,
				LiveFills:   liveFills,
				Rejections:  rejections,
				Series:      series,
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&fills, "fills", 15, "number of recent fills to show")
	cmd.Flags().Int64Var(&intervalSec, "interval", 3600, "equity curve bucket in seconds")
	cmd.Flags().IntVar(&points, "points", 24, "equity curve points")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/spf13/cobra"
)

func newTrackerCmd(opts *rootOptions) *cobra.Command {
	var (
		once   bool
		show   bool
		review string
	)
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Track the open positions of SPORTS_LEADERS in one market category",
		Long: `tracker polls the Data API /positions endpoint for every wallet in
tracker.leaders (SPORTS_LEADERS), keeps the positions in the configured
category and flags the ones that appeared after the first poll as unread.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			svc := a.tracker()

			if review != "" {
				key, err := parseMarkKey(review)
				if err != nil {
					return err
				}
				if err := svc.Review(ctx, key); err != nil {
					return err
				}
				show = true
			}
			var pollErr error
			if !show {
				if len(a.cfg.Tracker.Leaders) == 0 {
					return errors.New("no tracker leaders configured: set SPORTS_LEADERS or tracker.leaders")
				}
				if !once {
					return svc.Run(ctx)
				}
				// un fallo parcial no impide imprimir lo que sí se guardó
				_, pollErr = svc.PollOnce(ctx)
			}

			view, err := svc.View(ctx)
			if err != nil {
				return errors.Join(pollErr, err)
			}
			a.console.PrintTracked(view)
			return pollErr
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "poll once, print and exit")
	cmd.Flags().BoolVar(&show, "show", false, "print the stored positions without polling")
	cmd.Flags().StringVar(&review, "review", "", "mark conditionId:outcome as reviewed and print")
	return cmd
}

// parseMarkKey acepta "conditionId:outcome".
func parseMarkKey(s string) (domain.MarkKey, error) {
	cond, outcome, ok := strings.Cut(s, ":")
	cond, outcome = strings.TrimSpace(cond), strings.TrimSpace(outcome)
	if !ok || cond == "" || outcome == "" {
		return domain.MarkKey{}, fmt.Errorf("--review wants conditionId:outcome, got %q", s)
	}
	return domain.MarkKey{ConditionID: cond, Outcome: outcome}, nil
}

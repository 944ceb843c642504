package main

import (
	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/application/intents"
	"github.com/spf13/cobra"
)

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		rulesPath string
		show      int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply follow rules to the trade log and store the resulting copy intents",
		Long: `simulate reads a list of follow rules (follow-rules.json by default) and
records, for every ingested leader trade a rule matches, the order that rule
would have sent. It never touches the paper ledger.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if rulesPath == "" {
				rulesPath = a.cfg.Intents.RulesPath
			}
			rules, err := config.LoadFollowRules(rulesPath)
			if err != nil {
				return err
			}
			gen, err := intents.NewGenerator(rules, a.store, a.store)
			if err != nil {
				return err
			}
			n, err := gen.Generate(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Generated %d simulated copy order intents.\n", n)

			if show > 0 {
				recent, err := a.store.Intents(ctx, "", show)
				if err != nil {
					return err
				}
				a.console.PrintIntents(recent)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to the follow rules file (overrides FOLLOW_RULES_PATH)")
	cmd.Flags().IntVar(&show, "show", 20, "print the most recent intents (0 = none)")
	return cmd
}

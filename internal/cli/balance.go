package cli

import (
	"errors"

	"github.com/eshaffer321/ledger-recon/internal/adapters/linefile"
	"github.com/spf13/cobra"
)

func newBalanceCommand(a *app) *cobra.Command {
	var (
		flags  RunFlags
		inputs []string
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Replay running balances and report inconsistencies",
		Long: `Balance normalizes the input and replays every segment's running
balance, reporting each transition whose arithmetic does not hold and the
direction the balance implies for every record.

Example:
  recon balance --input statement.txt --year 2012`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(inputs) == 0 {
				return errors.New("at least one --input is required")
			}

			if flags.Profile == "" {
				flags.Profile = a.cfg.Matching.DefaultProfile
			}

			lines, err := linefile.ReadFiles(inputs, linefile.Options{YearHint: flags.YearHint})
			if err != nil {
				return err
			}

			repo, closeRepo, err := a.repository(cmd, flags.Save)
			if err != nil {
				return err
			}
			defer closeRepo()

			orch, err := NewOrchestrator(a.cfg, flags.YearHint, repo, a.logger)
			if err != nil {
				return err
			}

			report, err := orch.Balance(cmd.Context(), lines, flags.ToOptions(inputs, nil))
			if err != nil {
				return err
			}

			PrintBalanceReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	flags.Register(cmd.Flags(), false)
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Statement file; repeatable")

	return cmd
}

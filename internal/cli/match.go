package cli

import (
	"errors"

	"github.com/eshaffer321/ledger-recon/internal/adapters/linefile"
	"github.com/eshaffer321/ledger-recon/internal/application/reconcile"
	"github.com/spf13/cobra"
)

func newMatchCommand(a *app) *cobra.Command {
	var (
		flags   RunFlags
		sources []string
		targets []string
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match statement records against ledger records",
		Long: `Match normalizes both sides, replays running balances and pairs every
source record with at most one target record. The report lists matches,
amount mismatches, duplicates and orphans, with the score breakdown of
every flagged item.

Example:
  recon match --source statement.txt --target ledger.csv --profile statement
  recon match --source payroll.txt --target cash.txt --profile payroll --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(sources) == 0 || len(targets) == 0 {
				return errors.New("at least one --source and one --target are required")
			}

			if flags.Profile == "" {
				flags.Profile = a.cfg.Matching.DefaultProfile
			}

			read := linefile.Options{YearHint: flags.YearHint}
			srcLines, err := linefile.ReadFiles(sources, read)
			if err != nil {
				return err
			}
			tgtLines, err := linefile.ReadFiles(targets, read)
			if err != nil {
				return err
			}

			repo, closeRepo, err := a.repository(cmd, flags.Save || flags.IncludeKnown)
			if err != nil {
				return err
			}
			defer closeRepo()

			orch, err := NewOrchestrator(a.cfg, flags.YearHint, repo, a.logger)
			if err != nil {
				return err
			}

			report, err := orch.Run(cmd.Context(), reconcile.Input{Sources: srcLines, Targets: tgtLines}, flags.ToOptions(sources, targets))
			if err != nil {
				return err
			}

			PrintMatchReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	flags.Register(cmd.Flags(), true)
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Source file (statement text or CSV); repeatable")
	cmd.Flags().StringArrayVarP(&targets, "target", "t", nil, "Target file (ledger text or CSV); repeatable")

	return cmd
}

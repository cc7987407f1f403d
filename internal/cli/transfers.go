package cli

import (
	"errors"

	"github.com/eshaffer321/ledger-recon/internal/adapters/linefile"
	"github.com/spf13/cobra"
)

func newTransfersCommand(a *app) *cobra.Command {
	var (
		flags  RunFlags
		inputs []string
	)

	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "Detect transfers between own accounts",
		Long: `Transfers categorizes every record and pairs debits on one own account
with equal credits on another. Each input file is one account; its source
ID is the file name without extension.

Example:
  recon transfers --input chequing.txt --input savings.txt --own chequing,savings`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(inputs) < 2 {
				return errors.New("transfers need at least two --input files")
			}
			if len(flags.OwnAccounts) == 0 {
				flags.OwnAccounts = a.cfg.OwnAccounts
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

			report, err := orch.Transfers(cmd.Context(), lines, flags.ToOptions(inputs, nil))
			if err != nil {
				return err
			}

			PrintTransferReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	flags.Register(cmd.Flags(), false)
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Account file; repeatable")
	cmd.Flags().StringSliceVar(&flags.OwnAccounts, "own", nil, "Own account source IDs (default from config own_accounts)")

	return cmd
}

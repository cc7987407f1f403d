package cli

import (
	"github.com/spf13/cobra"
)

func newRunsCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		Long: `Runs lists reconciliations saved with --save, newest first.

Example:
  recon runs --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeRepo, err := a.repository(cmd, true)
			if err != nil {
				return err
			}
			defer closeRepo()

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			PrintRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}

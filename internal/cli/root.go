// Package cli provides the recon command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/ledger-recon/internal/infrastructure/config"
	"github.com/eshaffer321/ledger-recon/internal/infrastructure/logging"
	"github.com/eshaffer321/ledger-recon/internal/infrastructure/storage"
	"github.com/spf13/cobra"
)

// app holds state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the recon command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "recon",
		Short: "Reconcile bank statements against ledgers",
		Long: `recon matches transactions extracted from statements against the
books, checks running balances and detects transfers between own accounts.

Example:
  recon match --source statement.txt --target ledger.csv
  recon balance --input statement.txt
  recon transfers --input chequing.txt --input savings.txt
  recon runs`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is config.yaml, then environment)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(newMatchCommand(a))
	root.AddCommand(newBalanceCommand(a))
	root.AddCommand(newTransfersCommand(a))
	root.AddCommand(newRunsCommand(a))

	return root
}

// Execute runs the command tree and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var cfg *config.Config
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv()
	}

	if a.logLevel != "" {
		cfg.Observability.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	if cfg.Observability.Logging.Output == "stdout" {
		out = cmd.OutOrStdout()
	}

	a.cfg = cfg
	a.logger = logging.NewLoggerTo(out, cfg.Observability.Logging)
	return nil
}

// repository opens the archive when a command needs it. The returned close
// function is always safe to call.
func (a *app) repository(cmd *cobra.Command, needed bool) (storage.Repository, func(), error) {
	if !needed {
		return nil, func() {}, nil
	}
	store, err := OpenStorage(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		return nil, func() {}, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close storage", "error", err)
		}
	}, nil
}

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/ledger-recon/internal/application/reconcile"
	"github.com/eshaffer321/ledger-recon/internal/domain/categorizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/normalizer"
	"github.com/eshaffer321/ledger-recon/internal/infrastructure/config"
	"github.com/eshaffer321/ledger-recon/internal/infrastructure/storage"
)

// NewNormalizer creates the normalizer from config, applying a year override
func NewNormalizer(cfg *config.Config, yearHint int) (*normalizer.Normalizer, error) {
	normCfg, err := cfg.NormalizerConfig()
	if err != nil {
		return nil, fmt.Errorf("normalizer config: %w", err)
	}
	if yearHint != 0 {
		normCfg.YearHint = yearHint
	}
	return normalizer.New(normCfg), nil
}

// NewCategorizer creates the categorizer from the configured rule table
func NewCategorizer(cfg *config.Config) (*categorizer.Categorizer, error) {
	rules, err := cfg.CategoryRules()
	if err != nil {
		return nil, fmt.Errorf("category rules: %w", err)
	}
	return categorizer.NewCategorizer(rules, categorizer.NewMemoryCache()), nil
}

// OpenStorage opens the run archive
func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Storage, error) {
	store, err := storage.NewStorage(ctx, cfg.Storage.DatabasePath, storage.WithLogger(logger.With("system", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Storage.DatabasePath, err)
	}
	return store, nil
}

// NewOrchestrator wires the orchestrator. store may be nil when the command
// neither saves nor reads the archive.
func NewOrchestrator(cfg *config.Config, yearHint int, store storage.Repository, logger *slog.Logger) (*reconcile.Orchestrator, error) {
	norm, err := NewNormalizer(cfg, yearHint)
	if err != nil {
		return nil, err
	}
	cat, err := NewCategorizer(cfg)
	if err != nil {
		return nil, err
	}
	return reconcile.NewOrchestrator(norm, cat, cfg, store, logger), nil
}

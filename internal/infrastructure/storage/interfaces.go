package storage

import (
	"context"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations and makes testing with
// mocks straightforward.
type Repository interface {
	RunRepository
	AcceptedRepository
	Close() error
}

// RunRepository tracks reconciliation runs
type RunRepository interface {
	// StartRun records the start of a run
	StartRun(ctx context.Context, run *Run) error

	// CompleteRun records the outcome of a run
	CompleteRun(ctx context.Context, runID string, stats RunStats) error

	// FailRun marks a run as failed with the error that stopped it
	FailRun(ctx context.Context, runID string, cause error) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// AcceptedRepository holds the previously-accepted set
type AcceptedRepository interface {
	// SaveAccepted stores the accepted matches of a run
	SaveAccepted(ctx context.Context, runID string, matches []AcceptedMatch) error

	// IsKnown reports whether a record with this fingerprint was accepted before
	IsKnown(ctx context.Context, fingerprint string) (bool, error)

	// KnownTransactions rebuilds every accepted source record so it can be
	// passed to the matcher as an extra target set
	KnownTransactions(ctx context.Context) ([]txn.Transaction, error)

	// KnownPairs lists accepted source/target fingerprint pairings so a
	// re-run can settle them before matching
	KnownPairs(ctx context.Context) ([]KnownPair, error)
}

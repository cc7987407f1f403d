package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It is safe for concurrent use.
type MockRepository struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	accepted []AcceptedMatch

	// Error injection for testing error paths
	StartRunErr     error
	SaveAcceptedErr error
	KnownErr        error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{runs: make(map[string]*Run)}
}

// Close is a no-op for the mock
func (m *MockRepository) Close() error {
	return nil
}

// StartRun records a run in memory
func (m *MockRepository) StartRun(_ context.Context, run *Run) error {
	if m.StartRunErr != nil {
		return m.StartRunErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunStatusRunning
	stored := *run
	m.runs[run.ID] = &stored
	return nil
}

// CompleteRun records the outcome of a run
func (m *MockRepository) CompleteRun(_ context.Context, runID string, stats RunStats) error {
	return m.finish(runID, RunStatusCompleted, stats, "")
}

// FailRun marks a run as failed
func (m *MockRepository) FailRun(_ context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return m.finish(runID, RunStatusFailed, RunStats{}, msg)
}

func (m *MockRepository) finish(runID, status string, stats RunStats, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = status
	run.RunStats = stats
	run.Error = msg
	return nil
}

// GetRun retrieves a run by ID
func (m *MockRepository) GetRun(_ context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	out := *run
	return &out, nil
}

// ListRuns returns runs newest first
func (m *MockRepository) ListRuns(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit <= 0 {
		limit = 20
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// SaveAccepted stores accepted matches in memory
func (m *MockRepository) SaveAccepted(_ context.Context, runID string, matches []AcceptedMatch) error {
	if m.SaveAcceptedErr != nil {
		return m.SaveAcceptedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range matches {
		a.RunID = runID
		m.accepted = append(m.accepted, a)
	}
	return nil
}

// IsKnown reports whether the fingerprint was saved
func (m *MockRepository) IsKnown(_ context.Context, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accepted {
		if a.Fingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

// KnownTransactions rebuilds saved records, one per fingerprint
func (m *MockRepository) KnownTransactions(_ context.Context) ([]txn.Transaction, error) {
	if m.KnownErr != nil {
		return nil, m.KnownErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []txn.Transaction
	for _, a := range m.accepted {
		if seen[a.Fingerprint] {
			continue
		}
		seen[a.Fingerprint] = true
		t, err := knownTransaction(a.Fingerprint, a.ExtractedRef, a.BusinessKey,
			a.OccurredOn.Format(txn.DateLayout), string(a.Direction), a.Magnitude.String(), a.Description)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredOn.Equal(out[j].OccurredOn) {
			return out[i].OccurredOn.Before(out[j].OccurredOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// KnownPairs counts saved pairings per run and keeps the largest count
func (m *MockRepository) KnownPairs(_ context.Context) ([]KnownPair, error) {
	if m.KnownErr != nil {
		return nil, m.KnownErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct{ run, source, target string }
	perRun := make(map[key]int)
	for _, a := range m.accepted {
		if a.TargetPrint == "" {
			continue
		}
		perRun[key{a.RunID, a.Fingerprint, a.TargetPrint}]++
	}
	best := make(map[[2]string]int)
	for k, n := range perRun {
		pk := [2]string{k.source, k.target}
		if n > best[pk] {
			best[pk] = n
		}
	}
	out := make([]KnownPair, 0, len(best))
	for pk, n := range best {
		out = append(out, KnownPair{SourcePrint: pk[0], TargetPrint: pk[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourcePrint != out[j].SourcePrint {
			return out[i].SourcePrint < out[j].SourcePrint
		}
		return out[i].TargetPrint < out[j].TargetPrint
	})
	return out, nil
}

// Accepted returns a copy of everything saved (test helper)
func (m *MockRepository) Accepted() []AcceptedMatch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]AcceptedMatch(nil), m.accepted...)
}

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(context.Background(), filepath.Join(t.TempDir(), "recon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sourceRecord(id string, day int, amount, desc string) txn.Transaction {
	return txn.Transaction{
		ID:           id,
		OccurredOn:   txn.Date(2012, time.June, day),
		Direction:    txn.Debit,
		Magnitude:    decimal.RequireFromString(amount),
		Description:  desc,
		SourceID:     "chequing",
		SegmentID:    "chequing#1",
		ExtractedRef: "1042",
	}
}

func TestStorage_Migrations(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM goose_db_version WHERE is_applied = 1").Scan(&count))
	assert.Equal(t, 4, count, "three migrations plus goose's version 0 entry")
}

func TestStorage_MigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "recon.db")

	first, err := NewStorage(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewStorage(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	version, err := second.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
}

func TestStorage_RunLifecycle(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newTestStorage(t)
	run := &Run{ID: "run-1", Profile: "statement", Sources: "bank.txt", Targets: "ledger.txt"}

	// Act
	require.NoError(t, store.StartRun(ctx, run))
	require.NoError(t, store.CompleteRun(ctx, "run-1", RunStats{Matched: 4, Flagged: 2, Rejected: 1}))

	// Assert
	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, "match", got.Kind)
	assert.Equal(t, "statement", got.Profile)
	assert.Equal(t, 4, got.Matched)
	assert.Equal(t, 2, got.Flagged)
	assert.Equal(t, 1, got.Rejected)
	require.NotNil(t, got.CompletedAt)
}

func TestStorage_FailRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.StartRun(ctx, &Run{ID: "run-1", Profile: "statement"}))

	require.NoError(t, store.FailRun(ctx, "run-1", errors.New("bad config")))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "bad config", got.Error)
}

func TestStorage_UnknownRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = store.CompleteRun(ctx, "missing", RunStats{})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStorage_ListRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	base := time.Date(2012, time.June, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.StartRun(ctx, &Run{ID: id, Profile: "statement", StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := store.ListRuns(ctx, 2)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestStorage_AcceptedAndKnown(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.StartRun(ctx, &Run{ID: "run-1", Profile: "statement"}))

	src := sourceRecord("bank:1:3", 3, "125.50", "cheque 1042 acme supplies")
	dup := sourceRecord("bank:2:7", 3, "125.50", "cheque 1042 acme supplies")
	other := sourceRecord("bank:1:4", 2, "40.00", "hydro")
	target := sourceRecord("ledger:1:1", 3, "125.50", "acme supplies")

	matches := []AcceptedMatch{
		NewAcceptedMatch(src, target, 158),
		NewAcceptedMatch(dup, target, 150),
		NewAcceptedMatch(other, target, 100),
	}

	// Act
	require.NoError(t, store.SaveAccepted(ctx, "run-1", matches))
	known, err := store.KnownTransactions(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, known, 2, "one per fingerprint")
	assert.Equal(t, "hydro", known[0].Description, "ordered by date")
	k := known[1]
	assert.Equal(t, KnownSource, k.SourceID)
	assert.Equal(t, txn.Debit, k.Direction)
	assert.True(t, decimal.RequireFromString("125.50").Equal(k.Magnitude))
	assert.Equal(t, "1042", k.ExtractedRef)
	assert.Equal(t, txn.Date(2012, time.June, 3), k.OccurredOn)
	assert.Equal(t, txn.FromGiven, k.DirectionSource)
	assert.NoError(t, k.Validate())

	isKnown, err := store.IsKnown(ctx, src.Fingerprint())
	require.NoError(t, err)
	assert.True(t, isKnown)

	isKnown, err = store.IsKnown(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, isKnown)
}

func TestStorage_KnownPairs(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.StartRun(ctx, &Run{ID: "run-1", Profile: "statement"}))
	require.NoError(t, store.StartRun(ctx, &Run{ID: "run-2", Profile: "statement"}))

	fee := sourceRecord("bank:1:3", 5, "12.00", "monthly fee")
	fee2 := sourceRecord("bank:1:4", 5, "12.00", "monthly fee")
	ledgerFee := sourceRecord("books:1:9", 5, "12.00", "bank charges")
	rent := sourceRecord("bank:1:5", 20, "900.00", "rent")
	ledgerRent := sourceRecord("books:1:2", 20, "900.00", "rent payment")

	// Act
	require.NoError(t, store.SaveAccepted(ctx, "run-1", []AcceptedMatch{
		NewAcceptedMatch(fee, ledgerFee, 100),
		NewAcceptedMatch(fee2, ledgerFee, 100),
	}))
	require.NoError(t, store.SaveAccepted(ctx, "run-2", []AcceptedMatch{
		NewAcceptedMatch(fee, ledgerFee, 100),
		NewAcceptedMatch(rent, ledgerRent, 100),
	}))
	pairs, err := store.KnownPairs(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	counts := make(map[string]int)
	for _, p := range pairs {
		counts[p.SourcePrint+">"+p.TargetPrint] = p.Count
	}
	assert.Equal(t, 2, counts[fee.Fingerprint()+">"+ledgerFee.Fingerprint()], "largest count within one run")
	assert.Equal(t, 1, counts[rent.Fingerprint()+">"+ledgerRent.Fingerprint()])

	mock := NewMockRepository()
	require.NoError(t, mock.SaveAccepted(ctx, "run-1", []AcceptedMatch{
		NewAcceptedMatch(fee, ledgerFee, 100),
		NewAcceptedMatch(fee2, ledgerFee, 100),
	}))
	require.NoError(t, mock.SaveAccepted(ctx, "run-2", []AcceptedMatch{NewAcceptedMatch(fee, ledgerFee, 100)}))
	mockPairs, err := mock.KnownPairs(ctx)
	require.NoError(t, err)
	require.Len(t, mockPairs, 1)
	assert.Equal(t, 2, mockPairs[0].Count)
}

func TestStorage_SaveAccepted_RejectsIncomplete(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.StartRun(ctx, &Run{ID: "run-1", Profile: "statement"}))

	err := store.SaveAccepted(ctx, "run-1", []AcceptedMatch{{SourceRecordID: "x"}, {Fingerprint: "f"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepted match 0")
	assert.Contains(t, err.Error(), "accepted match 1")

	known, err := store.KnownTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestStorage_SaveAccepted_UnknownRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	src := sourceRecord("bank:1:3", 3, "10.00", "x")
	err := store.SaveAccepted(ctx, "missing", []AcceptedMatch{NewAcceptedMatch(src, src, 100)})

	assert.Error(t, err, "foreign key to recon_runs")
}

func TestMockRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	require.NoError(t, repo.StartRun(ctx, &Run{ID: "run-1"}))

	src := sourceRecord("bank:1:3", 3, "10.00", "x")
	require.NoError(t, repo.SaveAccepted(ctx, "run-1", []AcceptedMatch{NewAcceptedMatch(src, src, 100)}))
	require.NoError(t, repo.CompleteRun(ctx, "run-1", RunStats{Matched: 1}))

	known, err := repo.KnownTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.Equal(t, KnownSource, known[0].SourceID)

	run, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, "run-1", repo.Accepted()[0].RunID)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Storage provides SQLite database access for the run archive and the
// previously-accepted set. It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// Option configures a Storage
type Option func(*Storage)

// WithLogger sets the logger used for migration output
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		s.logger = logger
	}
}

// NewStorage opens (or creates) the SQLite database and applies migrations
func NewStorage(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	// Enable foreign key constraints on every pooled connection (SQLite-specific)
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", dbPath, err)
	}

	s := &Storage{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartRun records the start of a run
func (s *Storage) StartRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Kind == "" {
		run.Kind = "match"
	}
	run.Status = RunStatusRunning

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO recon_runs (id, kind, profile, sources, targets, started_at, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.Profile, run.Sources, run.Targets, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun records the outcome of a run
func (s *Storage) CompleteRun(ctx context.Context, runID string, stats RunStats) error {
	return s.finish(ctx, runID, RunStatusCompleted, stats, "")
}

// FailRun marks a run as failed
func (s *Storage) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, runID, RunStatusFailed, RunStats{}, msg)
}

func (s *Storage) finish(ctx context.Context, runID, status string, stats RunStats, msg string) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE recon_runs
	SET completed_at = ?, status = ?, matched = ?, flagged = ?, rejected = ?,
	    inconsistencies = ?, error_message = ?
	WHERE id = ?
	`, time.Now().UTC(), status, stats.Matched, stats.Flagged, stats.Rejected,
		stats.Inconsistencies, msg, runID)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, kind, profile, sources, targets, started_at, completed_at, status,
	matched, flagged, rejected, inconsistencies, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var completed sql.NullTime
	err := row.Scan(&run.ID, &run.Kind, &run.Profile, &run.Sources, &run.Targets,
		&run.StartedAt, &completed, &run.Status,
		&run.Matched, &run.Flagged, &run.Rejected, &run.Inconsistencies, &run.Error)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM recon_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListRuns returns recent runs, newest first. A limit of zero means 20.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT `+runColumns+`
	FROM recon_runs
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveAccepted stores the accepted matches of a run in one transaction,
// rejecting the whole batch if any entry is incomplete.
func (s *Storage) SaveAccepted(ctx context.Context, runID string, matches []AcceptedMatch) error {
	var problems *multierror.Error
	for i, m := range matches {
		if m.SourceRecordID == "" || m.Fingerprint == "" || !m.Direction.Valid() {
			problems = multierror.Append(problems, fmt.Errorf("accepted match %d: incomplete record %q", i, m.SourceRecordID))
		}
	}
	if err := problems.ErrorOrNil(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO accepted_matches
	(run_id, source_record_id, target_record_id, fingerprint, target_fingerprint,
	 extracted_ref, business_key, occurred_on, direction, magnitude, description, score)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range matches {
		_, err := stmt.ExecContext(ctx,
			runID,
			m.SourceRecordID,
			m.TargetRecordID,
			m.Fingerprint,
			m.TargetPrint,
			m.ExtractedRef,
			m.BusinessKey,
			m.OccurredOn.Format(txn.DateLayout),
			string(m.Direction),
			m.Magnitude.String(),
			m.Description,
			m.Score,
		)
		if err != nil {
			return fmt.Errorf("save accepted %s: %w", m.SourceRecordID, err)
		}
	}

	return tx.Commit()
}

// IsKnown reports whether a record with this fingerprint was accepted before
func (s *Storage) IsKnown(ctx context.Context, fingerprint string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accepted_matches WHERE fingerprint = ?`, fingerprint).Scan(&count)
	return count > 0, err
}

// KnownTransactions rebuilds accepted source records, one per fingerprint,
// ordered by date then fingerprint.
func (s *Storage) KnownTransactions(ctx context.Context) ([]txn.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT fingerprint, extracted_ref, business_key, occurred_on, direction, magnitude, description
	FROM accepted_matches
	WHERE id IN (SELECT MIN(id) FROM accepted_matches GROUP BY fingerprint)
	ORDER BY occurred_on, fingerprint
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []txn.Transaction
	for rows.Next() {
		var fingerprint, ref, key, occurred, direction, magnitude, desc string
		if err := rows.Scan(&fingerprint, &ref, &key, &occurred, &direction, &magnitude, &desc); err != nil {
			return nil, err
		}
		t, err := knownTransaction(fingerprint, ref, key, occurred, direction, magnitude, desc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// KnownPairs lists accepted pairings that recorded a target fingerprint,
// ordered by source then target fingerprint.
func (s *Storage) KnownPairs(ctx context.Context) ([]KnownPair, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT fingerprint, target_fingerprint, MAX(n)
	FROM (
		SELECT run_id, fingerprint, target_fingerprint, COUNT(*) AS n
		FROM accepted_matches
		WHERE target_fingerprint != ''
		GROUP BY run_id, fingerprint, target_fingerprint
	)
	GROUP BY fingerprint, target_fingerprint
	ORDER BY fingerprint, target_fingerprint
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []KnownPair
	for rows.Next() {
		var p KnownPair
		if err := rows.Scan(&p.SourcePrint, &p.TargetPrint, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func knownTransaction(fingerprint, ref, key, occurred, direction, magnitude, desc string) (txn.Transaction, error) {
	day, err := time.Parse(txn.DateLayout, occurred)
	if err != nil {
		return txn.Transaction{}, fmt.Errorf("known %s: date: %w", fingerprint, err)
	}
	amount, err := decimal.NewFromString(magnitude)
	if err != nil {
		return txn.Transaction{}, fmt.Errorf("known %s: magnitude: %w", fingerprint, err)
	}
	id := fingerprint
	if len(id) > 16 {
		id = id[:16]
	}
	return txn.Transaction{
		ID:              KnownSource + ":" + id,
		OccurredOn:      day,
		Direction:       txn.Direction(direction),
		Magnitude:       amount,
		Description:     desc,
		SourceID:        KnownSource,
		SegmentID:       KnownSource,
		ExtractedRef:    ref,
		BusinessKey:     key,
		DirectionSource: txn.FromGiven,
	}, nil
}

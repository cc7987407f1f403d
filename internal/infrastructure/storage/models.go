package storage

import (
	"errors"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// ErrRunNotFound is returned for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// KnownSource is the SourceID given to records rebuilt from the accepted set
const KnownSource = "known"

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run represents one reconciliation run
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"` // match, balance, transfers
	Profile     string     `json:"profile"`
	Sources     string     `json:"sources"`
	Targets     string     `json:"targets"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	RunStats
}

// RunStats are the counters recorded when a run completes
type RunStats struct {
	Matched         int `json:"matched"`
	Flagged         int `json:"flagged"`
	Rejected        int `json:"rejected"`
	Inconsistencies int `json:"inconsistencies"`
}

// AcceptedMatch is one accepted pair, keyed by the source record
type AcceptedMatch struct {
	RunID          string          `json:"run_id"`
	SourceRecordID string          `json:"source_record_id"`
	TargetRecordID string          `json:"target_record_id"`
	Fingerprint    string          `json:"fingerprint"`
	TargetPrint    string          `json:"target_fingerprint,omitempty"`
	ExtractedRef   string          `json:"extracted_ref,omitempty"`
	BusinessKey    string          `json:"business_key,omitempty"`
	OccurredOn     time.Time       `json:"occurred_on"`
	Direction      txn.Direction   `json:"direction"`
	Magnitude      decimal.Decimal `json:"magnitude"`
	Description    string          `json:"description"`
	Score          float64         `json:"score"`
}

// KnownPair is an accepted pairing by fingerprint. Count is the most times
// the same pairing was accepted within a single run.
type KnownPair struct {
	SourcePrint string
	TargetPrint string
	Count       int
}

// NewAcceptedMatch captures the source side of an accepted pair and the
// fingerprint of the target it was matched to
func NewAcceptedMatch(source, target txn.Transaction, score float64) AcceptedMatch {
	return AcceptedMatch{
		SourceRecordID: source.ID,
		TargetRecordID: target.ID,
		Fingerprint:    source.Fingerprint(),
		TargetPrint:    target.Fingerprint(),
		ExtractedRef:   source.ExtractedRef,
		BusinessKey:    source.BusinessKey,
		OccurredOn:     source.OccurredOn,
		Direction:      source.Direction,
		Magnitude:      source.Magnitude,
		Description:    source.Description,
		Score:          score,
	}
}

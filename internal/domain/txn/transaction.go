// Package txn defines the normalized transaction record shared by every
// reconciliation pass.
//
// A Transaction is created once per run by the normalizer (or by a caller that
// already has structured data) and is treated as immutable afterwards. Passes
// that want to "correct" a record return a modified copy.
package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedRecord is returned when a record is missing a required field.
// It signals an upstream bug, not dirty data.
var ErrMalformedRecord = errors.New("malformed transaction record")

// Direction captures the sign semantics of a transaction.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Valid reports whether d is one of the known directions
func (d Direction) Valid() bool {
	return d == Debit || d == Credit
}

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// DirectionSource records which evidence decided a record's direction.
type DirectionSource string

const (
	FromKeyword  DirectionSource = "keyword"
	FromPosition DirectionSource = "position"
	FromSign     DirectionSource = "sign"
	FromDefault  DirectionSource = "default"
	FromBalance  DirectionSource = "balance"
	FromGiven    DirectionSource = "given"
)

// Transaction is the normalized unit of work.
type Transaction struct {
	// ID is a stable key for the record within a run (source:page:line for
	// normalized lines). It is the final tie-breaker everywhere ordering matters.
	ID string

	OccurredOn time.Time
	Direction  Direction
	Magnitude  decimal.Decimal

	Description    string
	RunningBalance decimal.NullDecimal

	SourceID  string
	SegmentID string

	ExtractedRef string
	BusinessKey  string

	Page int
	Line int
	Raw  string

	DirectionSource DirectionSource
}

// Validate checks the record invariants
func (t *Transaction) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: empty id", ErrMalformedRecord)
	case t.OccurredOn.IsZero():
		return fmt.Errorf("%w: %s has no date", ErrMalformedRecord, t.ID)
	case !t.Direction.Valid():
		return fmt.Errorf("%w: %s has direction %q", ErrMalformedRecord, t.ID, t.Direction)
	case t.Magnitude.IsNegative():
		return fmt.Errorf("%w: %s has negative magnitude %s", ErrMalformedRecord, t.ID, t.Magnitude)
	case t.SegmentID == "":
		return fmt.Errorf("%w: %s has no segment", ErrMalformedRecord, t.ID)
	}
	return nil
}

// Signed returns the magnitude with debits negative. Used for display only.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Direction == Debit {
		return t.Magnitude.Neg()
	}
	return t.Magnitude
}

// Location describes where the record came from, for reviewers.
func (t *Transaction) Location() string {
	if t.Page > 0 {
		return fmt.Sprintf("%s p%d l%d", t.SourceID, t.Page, t.Line)
	}
	if t.Line > 0 {
		return fmt.Sprintf("%s l%d", t.SourceID, t.Line)
	}
	return t.SourceID
}

// Fingerprint hashes the fields that identify the same real-world movement
// of money regardless of which system reported it.
func (t *Transaction) Fingerprint() string {
	parts := []string{
		t.OccurredOn.Format(DateLayout),
		string(t.Direction),
		t.Magnitude.StringFixed(2),
		strings.ToLower(strings.TrimSpace(t.Description)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// DateLayout is the canonical date format used in IDs, reports and storage.
const DateLayout = "2006-01-02"

// Date builds a calendar date at UTC midnight
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of whole days between two dates
func DaysBetween(a, b time.Time) int {
	a = Date(a.Date())
	b = Date(b.Date())
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

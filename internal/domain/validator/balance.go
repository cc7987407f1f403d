// Package validator replays one account's running balances and checks that
// the arithmetic holds.
//
// Each segment (a contiguous run sharing one balance baseline) is validated
// on its own by a small state machine:
//
//	AwaitingFirstBalance -> Validating -> (Valid | Inconsistent)
//
// The first observed balance becomes the baseline unless the segment announced
// an opening balance. For every later record both previous+magnitude and
// previous-magnitude are tried; the one that matches decides the record's
// direction. A record that matches neither produces a Finding, and the
// baseline still moves to the observed balance so one bad line does not fail
// the rest of the segment.
package validator

import (
	"fmt"
	"sort"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// State of a segment's balance replay.
type State string

const (
	AwaitingFirstBalance State = "awaiting_first_balance"
	Validating           State = "validating"
	Valid                State = "valid"
	Inconsistent         State = "inconsistent"
)

// Finding is one transition whose arithmetic does not hold.
type Finding struct {
	SegmentID string
	RecordID  string
	Location  string

	PreviousBalance  decimal.Decimal
	Magnitude        decimal.Decimal
	ObservedBalance  decimal.Decimal
	ExpectedIfCredit decimal.Decimal
	ExpectedIfDebit  decimal.Decimal

	SourceLine string

	// Reason explains the finding for a reviewer
	Reason string
}

// Inference is the direction the arithmetic implies for one record.
type Inference struct {
	RecordID  string
	Direction txn.Direction

	// Overrode is true when the inferred direction differs from the one the
	// record was normalized with.
	Overrode bool
}

// SegmentReport is the outcome of replaying one segment.
type SegmentReport struct {
	SegmentID string
	State     State

	OpeningBalance decimal.NullDecimal
	ClosingBalance decimal.NullDecimal

	// Checked counts transitions that were verified, Unchecked counts
	// records that carried no running balance.
	Checked   int
	Unchecked int

	Findings   []Finding
	Inferences []Inference
}

// Segment is the state machine for one segment. Feed records in order.
type Segment struct {
	epsilon decimal.Decimal
	state   State
	prev    decimal.Decimal
	report  SegmentReport
}

// NewSegment starts a segment. opening, when non-nil, is the balance the
// segment announced before its first record.
func NewSegment(id string, epsilon decimal.Decimal, opening *decimal.Decimal) *Segment {
	s := &Segment{
		epsilon: epsilon,
		state:   AwaitingFirstBalance,
		report:  SegmentReport{SegmentID: id},
	}
	if opening != nil {
		s.prev = *opening
		s.state = Validating
		s.report.OpeningBalance = decimal.NewNullDecimal(*opening)
	}
	return s
}

// State returns the current state
func (s *Segment) State() State {
	return s.state
}

// Feed applies one record.
func (s *Segment) Feed(t txn.Transaction) {
	if !t.RunningBalance.Valid {
		s.report.Unchecked++
		return
	}
	observed := t.RunningBalance.Decimal

	if s.state == AwaitingFirstBalance {
		s.prev = observed
		s.state = Validating
		s.report.OpeningBalance = decimal.NewNullDecimal(observed)
		s.report.ClosingBalance = decimal.NewNullDecimal(observed)
		return
	}

	s.report.Checked++
	ifCredit := s.prev.Add(t.Magnitude)
	ifDebit := s.prev.Sub(t.Magnitude)
	creditOK := observed.Sub(ifCredit).Abs().LessThanOrEqual(s.epsilon)
	debitOK := observed.Sub(ifDebit).Abs().LessThanOrEqual(s.epsilon)

	switch {
	case creditOK || debitOK:
		dir := txn.Credit
		if debitOK && (!creditOK || t.Direction == txn.Debit) {
			dir = txn.Debit
		}
		s.report.Inferences = append(s.report.Inferences, Inference{
			RecordID:  t.ID,
			Direction: dir,
			Overrode:  dir != t.Direction,
		})
	default:
		s.report.Findings = append(s.report.Findings, Finding{
			SegmentID:        s.report.SegmentID,
			RecordID:         t.ID,
			Location:         t.Location(),
			PreviousBalance:  s.prev,
			Magnitude:        t.Magnitude,
			ObservedBalance:  observed,
			ExpectedIfCredit: ifCredit,
			ExpectedIfDebit:  ifDebit,
			SourceLine:       t.Raw,
			Reason: fmt.Sprintf("balance %s after %s from %s, expected %s (credit) or %s (debit)",
				observed.StringFixed(2), t.Magnitude.StringFixed(2), s.prev.StringFixed(2),
				ifCredit.StringFixed(2), ifDebit.StringFixed(2)),
		})
	}

	s.prev = observed
	s.report.ClosingBalance = decimal.NewNullDecimal(observed)
}

// Report finishes the segment and returns its report
func (s *Segment) Report() SegmentReport {
	r := s.report
	switch {
	case s.state == AwaitingFirstBalance:
		r.State = AwaitingFirstBalance
	case len(r.Findings) > 0:
		r.State = Inconsistent
	default:
		r.State = Valid
	}
	return r
}

// Validator replays every segment in a batch.
type Validator struct {
	epsilon decimal.Decimal
}

// New creates a validator with the given currency tolerance
func New(epsilon decimal.Decimal) *Validator {
	return &Validator{epsilon: epsilon}
}

// ValidateSegment replays records in the order given.
func (v *Validator) ValidateSegment(id string, records []txn.Transaction, opening *decimal.Decimal) SegmentReport {
	seg := NewSegment(id, v.epsilon, opening)
	for _, t := range records {
		seg.Feed(t)
	}
	return seg.Report()
}

// ValidateAll groups records by segment, orders each segment by date then
// page and line, and returns one report per segment sorted by segment ID.
// Segments are independent; one inconsistent segment does not affect others.
func (v *Validator) ValidateAll(records []txn.Transaction, openings map[string]decimal.Decimal) []SegmentReport {
	groups := make(map[string][]txn.Transaction)
	for _, t := range records {
		groups[t.SegmentID] = append(groups[t.SegmentID], t)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reports := make([]SegmentReport, 0, len(ids))
	for _, id := range ids {
		seg := groups[id]
		sort.SliceStable(seg, func(i, j int) bool {
			a, b := seg[i], seg[j]
			if !a.OccurredOn.Equal(b.OccurredOn) {
				return a.OccurredOn.Before(b.OccurredOn)
			}
			if a.Page != b.Page {
				return a.Page < b.Page
			}
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.ID < b.ID
		})

		var opening *decimal.Decimal
		if bal, ok := openings[id]; ok {
			opening = &bal
		}
		reports = append(reports, v.ValidateSegment(id, seg, opening))
	}
	return reports
}

// Findings flattens the findings of every report
func Findings(reports []SegmentReport) []Finding {
	var out []Finding
	for _, r := range reports {
		out = append(out, r.Findings...)
	}
	return out
}

// ApplyInferences returns copies of records whose direction is replaced by
// the balance-inferred one. Records are never modified in place.
func ApplyInferences(records []txn.Transaction, reports []SegmentReport) []txn.Transaction {
	inferred := make(map[string]txn.Direction)
	for _, r := range reports {
		for _, inf := range r.Inferences {
			inferred[inf.RecordID] = inf.Direction
		}
	}

	out := make([]txn.Transaction, len(records))
	for i, t := range records {
		if dir, ok := inferred[t.ID]; ok && dir != t.Direction {
			t.Direction = dir
			t.DirectionSource = txn.FromBalance
		}
		out[i] = t
	}
	return out
}

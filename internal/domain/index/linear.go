package index

import (
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// Linear answers the same queries as Index by scanning every target.
// It exists for small batches and to check that the index changes nothing.
type Linear struct {
	records []txn.Transaction
}

var _ Candidates = (*Linear)(nil)

// NewLinear wraps a private copy of targets sorted by (date, ID)
func NewLinear(targets []txn.Transaction) *Linear {
	l := &Linear{records: append([]txn.Transaction(nil), targets...)}
	ptrs := make([]*txn.Transaction, len(l.records))
	for i := range l.records {
		ptrs[i] = &l.records[i]
	}
	sortByDate(ptrs)
	sorted := make([]txn.Transaction, len(ptrs))
	for i, p := range ptrs {
		sorted[i] = *p
	}
	l.records = sorted
	return l
}

func (l *Linear) Len() int {
	return len(l.records)
}

func (l *Linear) Lookup(q Query) []*txn.Transaction {
	var out []*txn.Transaction
	for i := range l.records {
		t := &l.records[i]
		if t.Direction != q.Direction {
			continue
		}
		if AmountWithin(t.Magnitude, q.Amount, q.Epsilon) && InWindow(t.OccurredOn, q.Date, q.WindowDays) {
			out = append(out, t)
		}
	}
	return out
}

func (l *Linear) LookupRef(ref string, q Query) []*txn.Transaction {
	ref = strings.ToUpper(ref)
	var out []*txn.Transaction
	for i := range l.records {
		t := &l.records[i]
		if t.Direction != q.Direction || !InWindow(t.OccurredOn, q.Date, q.WindowDays) {
			continue
		}
		for _, k := range RefKeys(*t) {
			if k == ref {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Package index provides candidate lookup over the target side of a
// reconciliation so the matching engine does not compare every pair.
//
// The index is an optimization only. Linear implements the same interface by
// scanning and must return exactly the same records in the same order.
package index

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// Query describes a windowed lookup around one source record.
type Query struct {
	Amount     decimal.Decimal
	Epsilon    decimal.Decimal
	Direction  txn.Direction
	Date       time.Time
	WindowDays int
}

// Candidates returns target records for a query. Results are ordered by
// (date, ID) and never contain the same record twice.
type Candidates interface {
	Lookup(q Query) []*txn.Transaction
	LookupRef(ref string, q Query) []*txn.Transaction
	Len() int
}

var hundred = decimal.NewFromInt(100)

type side struct {
	keys    []int64 // sorted cents keys
	buckets map[int64][]*txn.Transaction
}

// Index buckets targets by (cents, direction) with a secondary reference map.
type Index struct {
	records []txn.Transaction
	sides   map[txn.Direction]*side
	refs    map[string][]*txn.Transaction
}

var _ Candidates = (*Index)(nil)

// New builds an index over a private copy of targets.
func New(targets []txn.Transaction) *Index {
	idx := &Index{
		records: append([]txn.Transaction(nil), targets...),
		sides:   make(map[txn.Direction]*side),
		refs:    make(map[string][]*txn.Transaction),
	}

	for i := range idx.records {
		t := &idx.records[i]
		s, ok := idx.sides[t.Direction]
		if !ok {
			s = &side{buckets: make(map[int64][]*txn.Transaction)}
			idx.sides[t.Direction] = s
		}
		key := cents(t.Magnitude)
		if _, seen := s.buckets[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.buckets[key] = append(s.buckets[key], t)

		for _, ref := range RefKeys(*t) {
			idx.refs[ref] = append(idx.refs[ref], t)
		}
	}

	for _, s := range idx.sides {
		sort.Slice(s.keys, func(i, j int) bool { return s.keys[i] < s.keys[j] })
		for _, bucket := range s.buckets {
			sortByDate(bucket)
		}
	}
	for _, list := range idx.refs {
		sortByDate(list)
	}
	return idx
}

// Len returns the number of indexed targets
func (idx *Index) Len() int {
	return len(idx.records)
}

// Lookup returns targets of the query direction whose magnitude is within
// epsilon of the amount and whose date is within the window.
func (idx *Index) Lookup(q Query) []*txn.Transaction {
	s, ok := idx.sides[q.Direction]
	if !ok {
		return nil
	}

	lo := q.Amount.Sub(q.Epsilon).Mul(hundred).Floor().IntPart()
	hi := q.Amount.Add(q.Epsilon).Mul(hundred).Ceil().IntPart()

	var out []*txn.Transaction
	start := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= lo })
	for i := start; i < len(s.keys) && s.keys[i] <= hi; i++ {
		for _, t := range s.buckets[s.keys[i]] {
			if AmountWithin(t.Magnitude, q.Amount, q.Epsilon) && InWindow(t.OccurredOn, q.Date, q.WindowDays) {
				out = append(out, t)
			}
		}
	}
	sortByDate(out)
	return out
}

// LookupRef returns targets of the query direction that carry ref among their
// reference keys, within the date window, regardless of amount.
func (idx *Index) LookupRef(ref string, q Query) []*txn.Transaction {
	var out []*txn.Transaction
	for _, t := range idx.refs[strings.ToUpper(ref)] {
		if t.Direction == q.Direction && InWindow(t.OccurredOn, q.Date, q.WindowDays) {
			out = append(out, t)
		}
	}
	return out
}

// AmountWithin reports whether |a-b| <= epsilon. It is symmetric in a and b.
func AmountWithin(a, b, epsilon decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(epsilon)
}

// InWindow reports whether two dates are at most window days apart
func InWindow(a, b time.Time, window int) bool {
	return txn.DaysBetween(a, b) <= window
}

// RefKeys returns the upper-cased reference tokens of a record: its extracted
// reference, its business key and any digit-bearing description word of at
// least three characters.
func RefKeys(t txn.Transaction) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	add(t.ExtractedRef)
	add(t.BusinessKey)
	for _, word := range strings.Fields(t.Description) {
		if len(word) >= 3 && strings.IndexFunc(word, unicode.IsDigit) >= 0 {
			add(word)
		}
	}
	return keys
}

func cents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func sortByDate(list []*txn.Transaction) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].OccurredOn.Equal(list[j].OccurredOn) {
			return list[i].OccurredOn.Before(list[j].OccurredOn)
		}
		return list[i].ID < list[j].ID
	})
}

// Package discrepancy turns a matcher Outcome into reviewer-facing results:
// matched pairs, amount mismatches, duplicates on either side and records
// missing from the other side. Every flagged result carries the score
// breakdown that led to it.
package discrepancy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/domain/index"
	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// Kind is the category of a result.
type Kind string

const (
	Matched           Kind = "matched"
	AmountMismatch    Kind = "amount_mismatch"
	DuplicateInSource Kind = "duplicate_in_source"
	DuplicateInTarget Kind = "duplicate_in_target"
	MissingInTarget   Kind = "missing_in_target"
	MissingInSource   Kind = "missing_in_source"
)

// Kinds lists every kind in report order.
var Kinds = []Kind{Matched, AmountMismatch, DuplicateInSource, DuplicateInTarget, MissingInTarget, MissingInSource}

func (k Kind) order() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}
	return len(Kinds)
}

// Flagged reports whether a kind needs a human to look at it
func (k Kind) Flagged() bool {
	return k != Matched
}

// Result is one durable reconciliation finding.
type Result struct {
	Kind Kind

	Source *txn.Transaction
	Target *txn.Transaction

	// Group holds the other members of a duplicate group: the source that
	// won the contested target, or the matched target this one duplicates.
	Group []txn.Transaction

	Score     float64
	Breakdown []matcher.Contribution

	// Delta is the absolute amount difference for pairs.
	Delta decimal.Decimal

	Reason string
}

// Classify partitions an outcome. Results are sorted by kind, then source ID,
// then target ID.
func Classify(outcome *matcher.Outcome, epsilon decimal.Decimal) []Result {
	if outcome == nil {
		return nil
	}
	var results []Result

	matchedTargets := make([]matcher.Pair, 0, len(outcome.Pairs))
	for _, p := range outcome.Pairs {
		r := Result{
			Kind:      Matched,
			Source:    &p.Source,
			Target:    &p.Target,
			Score:     p.Score,
			Breakdown: p.Breakdown,
			Delta:     p.AmountDiff,
			Reason:    fmt.Sprintf("score %.2f", p.Score),
		}
		if p.AmountDiff.GreaterThan(epsilon) {
			r.Kind = AmountMismatch
			r.Reason = fmt.Sprintf("matched on %s but amounts differ by %s", evidence(p.Breakdown), p.AmountDiff.StringFixed(2))
		}
		if p.Contested {
			r.Reason += "; best candidate was taken by a larger record"
		}
		results = append(results, r)
		matchedTargets = append(matchedTargets, p)
	}

	for _, c := range outcome.Contenders {
		winner := pairFor(outcome.Pairs, c.Best.Target.ID)
		r := Result{
			Kind:      DuplicateInSource,
			Source:    &c.Source,
			Target:    &c.Best.Target,
			Score:     c.Best.Score,
			Breakdown: c.Best.Breakdown,
			Delta:     c.Best.AmountDiff,
			Reason:    fmt.Sprintf("best candidate %s already matched to %s", c.Best.Target.ID, c.ClaimedBy),
		}
		if winner != nil {
			r.Group = []txn.Transaction{winner.Source}
		}
		results = append(results, r)
	}

	for _, u := range outcome.Unmatched {
		r := Result{
			Kind:   MissingInTarget,
			Source: &u.Source,
			Reason: "no candidate in window",
		}
		if u.Best != nil {
			r.Score = u.Best.Score
			r.Breakdown = u.Best.Breakdown
			r.Delta = u.Best.AmountDiff
			r.Reason = fmt.Sprintf("best candidate %s scored %.2f, below threshold", u.Best.Target.ID, u.Best.Score)
			if u.ClaimedBy != "" {
				r.Reason = fmt.Sprintf("best candidate %s differs in amount and is already matched to %s", u.Best.Target.ID, u.ClaimedBy)
			}
		}
		results = append(results, r)
	}

	for _, t := range outcome.Unclaimed {
		r := Result{
			Kind:   MissingInSource,
			Target: &t,
			Reason: "no source record claimed this target",
		}
		if twin := identicalTarget(matchedTargets, t, epsilon); twin != nil {
			r.Kind = DuplicateInTarget
			r.Group = []txn.Transaction{twin.Target}
			r.Source = &twin.Source
			r.Reason = fmt.Sprintf("identical to %s, already matched to %s", twin.Target.ID, twin.Source.ID)
		}
		results = append(results, r)
	}

	Sort(results)
	return results
}

// Sort orders results by kind, then source ID, then target ID
func Sort(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Kind != b.Kind {
			return a.Kind.order() < b.Kind.order()
		}
		if sa, sb := id(a.Source), id(b.Source); sa != sb {
			return sa < sb
		}
		return id(a.Target) < id(b.Target)
	})
}

func id(t *txn.Transaction) string {
	if t == nil {
		return ""
	}
	return t.ID
}

func pairFor(pairs []matcher.Pair, targetID string) *matcher.Pair {
	for i := range pairs {
		if pairs[i].Target.ID == targetID {
			return &pairs[i]
		}
	}
	return nil
}

// identicalTarget finds an accepted pair whose target looks like the same
// real-world record as t.
func identicalTarget(pairs []matcher.Pair, t txn.Transaction, epsilon decimal.Decimal) *matcher.Pair {
	for i := range pairs {
		m := pairs[i].Target
		if m.OccurredOn.Equal(t.OccurredOn) &&
			m.Direction == t.Direction &&
			index.AmountWithin(m.Magnitude, t.Magnitude, epsilon) &&
			strings.EqualFold(strings.TrimSpace(m.Description), strings.TrimSpace(t.Description)) {
			return &pairs[i]
		}
	}
	return nil
}

// evidence names the non-amount criteria that carried a pair.
func evidence(breakdown []matcher.Contribution) string {
	var names []string
	for _, c := range breakdown {
		if c.Criterion == matcher.CriterionAmount || c.Criterion == matcher.CriterionDate || c.Points <= 0 {
			continue
		}
		names = append(names, string(c.Criterion))
	}
	if len(names) == 0 {
		return "score"
	}
	return strings.Join(names, "+")
}

// Summary counts results per kind.
type Summary struct {
	Counts  map[Kind]int
	Total   int
	Flagged int
}

// Summarize counts results
func Summarize(results []Result) Summary {
	s := Summary{Counts: make(map[Kind]int, len(Kinds))}
	for _, r := range results {
		s.Counts[r.Kind]++
		s.Total++
		if r.Kind.Flagged() {
			s.Flagged++
		}
	}
	return s
}

// Accepted returns the results whose pair was accepted as the same record,
// which is what a run archive stores as previously known.
func Accepted(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Kind == Matched && r.Source != nil && r.Target != nil {
			out = append(out, r)
		}
	}
	return out
}

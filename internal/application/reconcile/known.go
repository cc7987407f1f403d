package reconcile

import (
	"sort"

	"github.com/eshaffer321/ledger-recon/internal/domain/discrepancy"
	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/eshaffer321/ledger-recon/internal/infrastructure/storage"
)

// settledReason marks pairs that were accepted in an earlier run and found
// again on both sides of this one.
const settledReason = "accepted in an earlier run"

// settlement is what remains for the matcher once previously accepted
// pairings present on both sides have been taken out.
type settlement struct {
	results []discrepancy.Result
	sources []txn.Transaction
	targets []txn.Transaction
	known   []txn.Transaction
}

// settleKnown pairs sources and targets whose fingerprints were accepted
// together before, up to the number of times that pairing was accepted in one
// run. The known records for settled source fingerprints are withdrawn so a
// source cannot match its own archived copy while its real target sits
// unclaimed.
func settleKnown(m *matcher.Matcher, sources, targets, known []txn.Transaction, pairs []storage.KnownPair) settlement {
	if len(pairs) == 0 {
		return settlement{sources: sources, targets: targets, known: known}
	}

	bySource := groupByFingerprint(sources)
	byTarget := groupByFingerprint(targets)

	usedSource := make(map[string]bool)
	usedTarget := make(map[string]bool)
	settledPrints := make(map[string]bool)

	var out settlement
	for _, p := range pairs {
		srcs, tgts := bySource[p.SourcePrint], byTarget[p.TargetPrint]
		for n := 0; n < p.Count; n++ {
			s := nextUnused(srcs, usedSource)
			t := nextUnused(tgts, usedTarget)
			if s < 0 || t < 0 {
				break
			}
			source, target := srcs[s], tgts[t]
			usedSource[source.ID] = true
			usedTarget[target.ID] = true
			settledPrints[p.SourcePrint] = true

			c := m.Score(source, target)
			out.results = append(out.results, discrepancy.Result{
				Kind:      discrepancy.Matched,
				Source:    &source,
				Target:    &target,
				Score:     c.Score,
				Breakdown: c.Breakdown,
				Delta:     c.AmountDiff,
				Reason:    settledReason,
			})
		}
	}

	for _, s := range sources {
		if !usedSource[s.ID] {
			out.sources = append(out.sources, s)
		}
	}
	for _, t := range targets {
		if !usedTarget[t.ID] {
			out.targets = append(out.targets, t)
		}
	}
	for _, k := range known {
		if !settledPrints[k.Fingerprint()] {
			out.known = append(out.known, k)
		}
	}
	return out
}

// groupByFingerprint buckets records by fingerprint, each bucket in ID order
func groupByFingerprint(records []txn.Transaction) map[string][]txn.Transaction {
	out := make(map[string][]txn.Transaction)
	for _, r := range records {
		fp := r.Fingerprint()
		out[fp] = append(out[fp], r)
	}
	for _, bucket := range out {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ID < bucket[j].ID })
	}
	return out
}

func nextUnused(records []txn.Transaction, used map[string]bool) int {
	for i := range records {
		if !used[records[i].ID] {
			return i
		}
	}
	return -1
}

// dropStaleKnown removes previously accepted records that nothing in this
// run matched; they were reconciled in an earlier run.
func dropStaleKnown(results []discrepancy.Result) []discrepancy.Result {
	out := results[:0:0]
	for _, r := range results {
		if r.Kind == discrepancy.MissingInSource && r.Target != nil && r.Target.SourceID == storage.KnownSource {
			continue
		}
		out = append(out, r)
	}
	return out
}

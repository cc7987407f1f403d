// Package matcher pairs records from a source set with records from a target
// set that never share a primary key.
//
// Each candidate pair gets an additive weighted score (amount, date distance,
// shared references, business keys, description words and optional bonuses).
// Sources are processed largest first and each target is consumed by at most
// one source. Pairs whose amounts agree are assigned before any pair that
// rests on a reference alone. The same inputs always produce the same Outcome.
//
// Example usage:
//
//	m, err := matcher.NewMatcher(matcher.StatementVsLedger())
//	if err != nil {
//		return err
//	}
//	outcome, err := m.Match(statement, ledger)
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/domain/index"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// Matcher scores and assigns candidate pairs
type Matcher struct {
	config    Config
	tagger    Tagger
	stopWords map[string]bool
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithTagger enables the CategoryAgreement weight.
func WithTagger(t Tagger) Option {
	return func(m *Matcher) {
		m.tagger = t
	}
}

// NewMatcher creates a new matcher with the given config. An invalid config
// fails here, before any records are looked at.
func NewMatcher(config Config, opts ...Option) (*Matcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Matcher{
		config:    config,
		stopWords: make(map[string]bool, len(config.StopWords)),
	}
	for _, w := range config.StopWords {
		m.stopWords[strings.ToLower(w)] = true
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the matcher's configuration
func (m *Matcher) Config() Config {
	return m.config
}

// Match assigns targets to sources one-to-one. "No match" is a normal
// outcome; an error means a malformed record was passed in.
func (m *Matcher) Match(sources, targets []txn.Transaction) (*Outcome, error) {
	if err := checkRecords("source", sources); err != nil {
		return nil, err
	}
	if err := checkRecords("target", targets); err != nil {
		return nil, err
	}
	if err := checkDisjoint(sources, targets); err != nil {
		return nil, err
	}

	var candidates index.Candidates
	if m.config.DisableIndex {
		candidates = index.NewLinear(targets)
	} else {
		candidates = index.New(targets)
	}

	ordered := append([]txn.Transaction(nil), sources...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if c := a.Magnitude.Cmp(b.Magnitude); c != 0 {
			return c > 0
		}
		if !a.OccurredOn.Equal(b.OccurredOn) {
			return a.OccurredOn.Before(b.OccurredOn)
		}
		return a.ID < b.ID
	})

	out := &Outcome{}
	claimed := make(map[string]string) // target ID -> source ID

	// Amount-matched candidates are assigned first, largest source first.
	// Sources left without one compete afterwards for the remaining targets
	// on reference and business-key evidence alone.
	type deferred struct {
		source  txn.Transaction
		scored  []Candidate
		matches []Candidate
	}
	var rest []deferred

	for _, source := range ordered {
		scored := m.candidatesFor(candidates, source)

		var exact, other []Candidate
		for _, c := range scored {
			if c.Score < m.config.MinScore-scoreTolerance {
				continue
			}
			if c.AmountMatch {
				exact = append(exact, c)
			} else {
				other = append(other, c)
			}
		}

		if len(exact) == 0 {
			rest = append(rest, deferred{source: source, scored: scored, matches: other})
			continue
		}

		rank(exact, claimed)
		winner := firstUnclaimed(exact, claimed)
		if winner < 0 {
			out.Contenders = append(out.Contenders, Contender{
				Source:    source,
				Best:      exact[0],
				ClaimedBy: claimed[exact[0].Target.ID],
			})
			continue
		}

		chosen := exact[winner]
		claimed[chosen.Target.ID] = source.ID
		out.Pairs = append(out.Pairs, Pair{Candidate: chosen, Contested: winner > 0})
	}

	for _, d := range rest {
		if len(d.matches) == 0 {
			u := Unmatched{Source: d.source}
			if len(d.scored) > 0 {
				rank(d.scored, claimed)
				best := d.scored[0]
				u.Best = &best
			}
			out.Unmatched = append(out.Unmatched, u)
			continue
		}

		rank(d.matches, claimed)
		winner := firstUnclaimed(d.matches, claimed)
		if winner < 0 {
			best := d.matches[0]
			out.Unmatched = append(out.Unmatched, Unmatched{
				Source:    d.source,
				Best:      &best,
				ClaimedBy: claimed[best.Target.ID],
			})
			continue
		}

		chosen := d.matches[winner]
		claimed[chosen.Target.ID] = d.source.ID
		out.Pairs = append(out.Pairs, Pair{Candidate: chosen, Contested: winner > 0})
	}

	for _, t := range targets {
		if _, ok := claimed[t.ID]; !ok {
			out.Unclaimed = append(out.Unclaimed, t)
		}
	}
	sort.Slice(out.Unclaimed, func(i, j int) bool {
		a, b := out.Unclaimed[i], out.Unclaimed[j]
		if !a.OccurredOn.Equal(b.OccurredOn) {
			return a.OccurredOn.Before(b.OccurredOn)
		}
		return a.ID < b.ID
	})

	return out, nil
}

// candidatesFor gathers targets by amount and by shared reference key, then
// scores each one once.
func (m *Matcher) candidatesFor(candidates index.Candidates, source txn.Transaction) []Candidate {
	q := index.Query{
		Amount:     source.Magnitude,
		Epsilon:    m.config.Epsilon,
		Direction:  m.config.targetDirection(source.Direction),
		Date:       source.OccurredOn,
		WindowDays: m.config.WindowDays,
	}

	seen := make(map[string]bool)
	var out []Candidate
	consider := func(list []*txn.Transaction) {
		for _, t := range list {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			if m.config.DistinctSources && t.SourceID == source.SourceID {
				continue
			}
			out = append(out, m.Score(source, *t))
		}
	}

	consider(candidates.Lookup(q))
	for _, ref := range index.RefKeys(source) {
		consider(candidates.LookupRef(ref, q))
	}
	return out
}

func firstUnclaimed(list []Candidate, claimed map[string]string) int {
	for i, c := range list {
		if _, taken := claimed[c.Target.ID]; !taken {
			return i
		}
	}
	return -1
}

// rank orders candidates by score, then date distance, then unclaimed
// targets first, then target ID.
func rank(list []Candidate, claimed map[string]string) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if d := a.Score - b.Score; d > scoreTolerance || d < -scoreTolerance {
			return d > 0
		}
		if a.DateDiff != b.DateDiff {
			return a.DateDiff < b.DateDiff
		}
		_, aTaken := claimed[a.Target.ID]
		_, bTaken := claimed[b.Target.ID]
		if aTaken != bTaken {
			return !aTaken
		}
		return a.Target.ID < b.Target.ID
	})
}

func checkRecords(side string, records []txn.Transaction) error {
	seen := make(map[string]bool, len(records))
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("%s record %d: %w", side, i, err)
		}
		if seen[records[i].ID] {
			return fmt.Errorf("%s record %d: %w: duplicate id %s", side, i, txn.ErrMalformedRecord, records[i].ID)
		}
		seen[records[i].ID] = true
	}
	return nil
}

// checkDisjoint rejects a record ID that appears on both sides, since
// results could not tell the two records apart.
func checkDisjoint(sources, targets []txn.Transaction) error {
	ids := make(map[string]bool, len(sources))
	for i := range sources {
		ids[sources[i].ID] = true
	}
	for i := range targets {
		if ids[targets[i].ID] {
			return fmt.Errorf("target record %d: %w: id %s is also a source id", i, txn.ErrMalformedRecord, targets[i].ID)
		}
	}
	return nil
}

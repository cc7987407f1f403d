package matcher

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/eshaffer321/ledger-recon/internal/domain/index"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// scoreTolerance absorbs float noise when comparing additive scores.
const scoreTolerance = 1e-9

// Score computes the weighted score of one (source, target) pair. The
// breakdown always starts with the amount and date contributions.
func (m *Matcher) Score(source, target txn.Transaction) Candidate {
	w := m.config.Weights
	c := Candidate{
		Source:     source,
		Target:     target,
		AmountDiff: source.Magnitude.Sub(target.Magnitude).Abs(),
		DateDiff:   txn.DaysBetween(source.OccurredOn, target.OccurredOn),
	}
	c.AmountMatch = index.AmountWithin(source.Magnitude, target.Magnitude, m.config.Epsilon)

	add := func(crit Criterion, points float64, detail string) {
		c.Breakdown = append(c.Breakdown, Contribution{Criterion: crit, Points: points, Detail: detail})
		c.Score += points
	}

	if c.AmountMatch {
		add(CriterionAmount, w.AmountExact, fmt.Sprintf("%s matches %s", source.Magnitude.StringFixed(2), target.Magnitude.StringFixed(2)))
	} else {
		add(CriterionAmount, 0, fmt.Sprintf("%s vs %s, differs by %s", source.Magnitude.StringFixed(2), target.Magnitude.StringFixed(2), c.AmountDiff.StringFixed(2)))
	}

	add(CriterionDate, -float64(c.DateDiff)*w.DatePenaltyPerDay, plural(c.DateDiff, "day")+" apart")

	key := sharedBusinessKey(source, target)
	if key != "" && w.BusinessKey > 0 {
		add(CriterionBusinessKey, w.BusinessKey, key)
	}

	if refs := sharedRefs(source, target, key); len(refs) > 0 && w.ReferenceOverlap > 0 {
		add(CriterionReference, w.ReferenceOverlap, strings.Join(refs, ","))
	}

	if words := m.sharedWords(source, target); len(words) >= m.config.MinSharedWords && w.DescriptionOverlap > 0 {
		add(CriterionDescription, w.DescriptionOverlap, strings.Join(words, ","))
	}

	if w.TransferKeyword > 0 {
		if kw := m.transferKeyword(source, target); kw != "" {
			add(CriterionTransfer, w.TransferKeyword, kw)
		}
	}

	unit := m.config.RoundAmountUnit
	if w.RoundAmount > 0 && unit.IsPositive() && c.AmountMatch && source.Magnitude.IsPositive() && source.Magnitude.Mod(unit).IsZero() {
		add(CriterionRound, w.RoundAmount, "multiple of "+unit.String())
	}

	if w.CategoryAgreement > 0 && m.tagger != nil {
		st, sok := m.tagger.Tag(source)
		tt, tok := m.tagger.Tag(target)
		if sok && tok && st == tt {
			add(CriterionCategory, w.CategoryAgreement, st)
		}
	}

	return c
}

func sharedBusinessKey(s, t txn.Transaction) string {
	if s.BusinessKey != "" && contains(index.RefKeys(t), strings.ToUpper(s.BusinessKey)) {
		return strings.ToUpper(s.BusinessKey)
	}
	if t.BusinessKey != "" && contains(index.RefKeys(s), strings.ToUpper(t.BusinessKey)) {
		return strings.ToUpper(t.BusinessKey)
	}
	return ""
}

// sharedRefs returns reference tokens present on both sides, excluding the
// business key which is scored on its own.
func sharedRefs(s, t txn.Transaction, businessKey string) []string {
	theirs := index.RefKeys(t)
	var out []string
	for _, k := range index.RefKeys(s) {
		if k != businessKey && contains(theirs, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Matcher) sharedWords(s, t txn.Transaction) []string {
	theirs := m.significantWords(t.Description)
	var out []string
	for w := range m.significantWords(s.Description) {
		if theirs[w] {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// significantWords are description words of three or more letters that are
// neither stop words nor digit-bearing (those count as references).
func (m *Matcher) significantWords(desc string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(desc)) {
		if len(w) < 3 || m.stopWords[w] || strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			continue
		}
		out[w] = true
	}
	return out
}

func (m *Matcher) transferKeyword(s, t txn.Transaction) string {
	for _, desc := range []string{s.Description, t.Description} {
		padded := " " + strings.ToLower(desc) + " "
		for _, kw := range m.config.TransferKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(padded, " "+kw+" ") {
				return kw
			}
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

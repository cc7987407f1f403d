// Package categorizer tags normalized records with a category using an
// ordered rule table, and detects transfers between the business's own
// accounts by reusing the matching engine.
//
// The rule table is data: an ordered list of (predicate, tag) pairs supplied
// by configuration, evaluated first-match-wins.
package categorizer

import (
	"fmt"

	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// Uncategorized is the tag for records no rule matched.
const Uncategorized = "uncategorized"

// Classification is the outcome for one record.
type Classification struct {
	RecordID string
	Tag      string
	Rule     string // empty when no rule matched

	IsProbableTransfer bool

	// Counterpart is the other half of a detected transfer pair.
	Counterpart string
}

// Cache interface for rule decisions
type Cache interface {
	Get(key string) (string, bool)
	Set(key string, value string)
}

// Categorizer applies an ordered rule table.
type Categorizer struct {
	rules  []Rule
	byName map[string]int
	cache  Cache
}

var _ matcher.Tagger = (*Categorizer)(nil)

// NewCategorizer creates a categorizer. A nil cache gets a MemoryCache.
func NewCategorizer(rules []Rule, cache Cache) *Categorizer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	c := &Categorizer{
		rules:  rules,
		byName: make(map[string]int, len(rules)),
		cache:  cache,
	}
	for i, r := range rules {
		c.byName[r.Name] = i
	}
	return c
}

// Rules returns the rule table in evaluation order
func (c *Categorizer) Rules() []Rule {
	return c.rules
}

// Classify returns the first matching rule's tag, or Uncategorized.
func (c *Categorizer) Classify(t txn.Transaction) Classification {
	out := Classification{RecordID: t.ID, Tag: Uncategorized}

	rule, ok := c.lookup(t)
	if !ok {
		return out
	}
	out.Tag = rule.Tag
	out.Rule = rule.Name
	out.IsProbableTransfer = rule.Transfer
	return out
}

// ClassifyAll classifies records in order
func (c *Categorizer) ClassifyAll(records []txn.Transaction) []Classification {
	out := make([]Classification, 0, len(records))
	for _, t := range records {
		out = append(out, c.Classify(t))
	}
	return out
}

// Tag implements matcher.Tagger. ok is false for uncategorized records.
func (c *Categorizer) Tag(t txn.Transaction) (string, bool) {
	rule, ok := c.lookup(t)
	if !ok {
		return Uncategorized, false
	}
	return rule.Tag, true
}

// lookup evaluates the rules, remembering the decision for identical records.
// Rules only look at these fields, so the key fully determines the result.
func (c *Categorizer) lookup(t txn.Transaction) (Rule, bool) {
	key := cacheKey(t)
	if name, found := c.cache.Get(key); found {
		if i, ok := c.byName[name]; ok {
			return c.rules[i], true
		}
		return Rule{}, false
	}

	for _, r := range c.rules {
		if r.When != nil && r.When.Match(t) {
			c.cache.Set(key, r.Name)
			return r, true
		}
	}
	c.cache.Set(key, "")
	return Rule{}, false
}

func cacheKey(t txn.Transaction) string {
	return fmt.Sprintf("%s|%s|%s|%s", t.SourceID, t.Direction, t.Magnitude.String(), pad(t.Description))
}

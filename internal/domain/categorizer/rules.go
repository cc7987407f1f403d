package categorizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

// ErrInvalidRule is returned when a rule table cannot be compiled.
var ErrInvalidRule = errors.New("invalid category rule")

// Predicate decides whether a rule applies to a record. String describes the
// predicate for reports and debugging.
type Predicate interface {
	Match(t txn.Transaction) bool
	String() string
}

// Rule is one (predicate, tag) entry. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Name     string
	Tag      string
	Transfer bool
	When     Predicate
}

type keywordAny []string

// KeywordAny matches when any keyword or phrase appears as whole words in
// the description.
func KeywordAny(words ...string) Predicate {
	return keywordAny(foldAll(words))
}

func (k keywordAny) Match(t txn.Transaction) bool {
	padded := pad(t.Description)
	for _, w := range k {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

func (k keywordAny) String() string { return "any(" + strings.Join(k, ", ") + ")" }

type keywordAll []string

// KeywordAll matches when every keyword appears as whole words.
func KeywordAll(words ...string) Predicate {
	return keywordAll(foldAll(words))
}

func (k keywordAll) Match(t txn.Transaction) bool {
	padded := pad(t.Description)
	for _, w := range k {
		if !strings.Contains(padded, " "+w+" ") {
			return false
		}
	}
	return len(k) > 0
}

func (k keywordAll) String() string { return "all(" + strings.Join(k, ", ") + ")" }

type pattern struct{ re *regexp.Regexp }

// Pattern matches the description against a regular expression
func Pattern(re *regexp.Regexp) Predicate {
	return pattern{re: re}
}

func (p pattern) Match(t txn.Transaction) bool { return p.re.MatchString(t.Description) }
func (p pattern) String() string               { return "pattern(" + p.re.String() + ")" }

type directionIs txn.Direction

// DirectionIs matches records with the given direction
func DirectionIs(d txn.Direction) Predicate {
	return directionIs(d)
}

func (d directionIs) Match(t txn.Transaction) bool { return t.Direction == txn.Direction(d) }
func (d directionIs) String() string               { return "direction(" + string(d) + ")" }

type amountRange struct {
	min, max decimal.NullDecimal
}

// AmountRange matches magnitudes within [min, max]. An invalid bound is open.
func AmountRange(min, max decimal.NullDecimal) Predicate {
	return amountRange{min: min, max: max}
}

func (a amountRange) Match(t txn.Transaction) bool {
	if a.min.Valid && t.Magnitude.LessThan(a.min.Decimal) {
		return false
	}
	if a.max.Valid && t.Magnitude.GreaterThan(a.max.Decimal) {
		return false
	}
	return true
}

func (a amountRange) String() string {
	lo, hi := "-", "-"
	if a.min.Valid {
		lo = a.min.Decimal.String()
	}
	if a.max.Valid {
		hi = a.max.Decimal.String()
	}
	return "amount(" + lo + ".." + hi + ")"
}

type sourceIs []string

// SourceIs matches records from any of the given sources
func SourceIs(ids ...string) Predicate {
	return sourceIs(ids)
}

func (s sourceIs) Match(t txn.Transaction) bool {
	for _, id := range s {
		if t.SourceID == id {
			return true
		}
	}
	return false
}

func (s sourceIs) String() string { return "source(" + strings.Join(s, ", ") + ")" }

type and []Predicate

// And matches when every predicate matches
func And(preds ...Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return and(preds)
}

func (a and) Match(t txn.Transaction) bool {
	for _, p := range a {
		if !p.Match(t) {
			return false
		}
	}
	return len(a) > 0
}

func (a and) String() string {
	parts := make([]string, len(a))
	for i, p := range a {
		parts[i] = p.String()
	}
	return strings.Join(parts, " & ")
}

// RuleSpec is the configuration shape of a rule. All conditions present are
// combined with And.
type RuleSpec struct {
	Name      string   `yaml:"name"`
	Tag       string   `yaml:"tag"`
	Transfer  bool     `yaml:"transfer"`
	Any       []string `yaml:"any"`
	All       []string `yaml:"all"`
	Pattern   string   `yaml:"pattern"`
	Direction string   `yaml:"direction"`
	MinAmount string   `yaml:"min_amount"`
	MaxAmount string   `yaml:"max_amount"`
	Sources   []string `yaml:"sources"`
}

// Compile turns specs into rules, reporting every bad spec at once.
func Compile(specs []RuleSpec) ([]Rule, error) {
	var result *multierror.Error
	rules := make([]Rule, 0, len(specs))
	names := make(map[string]bool, len(specs))

	for i, spec := range specs {
		rule, err := compileOne(spec)
		if err == nil && names[rule.Name] {
			err = fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: rule %d: %v", ErrInvalidRule, i, err))
			continue
		}
		names[rule.Name] = true
		rules = append(rules, rule)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rules, nil
}

func compileOne(spec RuleSpec) (Rule, error) {
	if strings.TrimSpace(spec.Tag) == "" {
		return Rule{}, errors.New("empty tag")
	}
	name := spec.Name
	if name == "" {
		name = spec.Tag
	}

	var preds []Predicate
	if len(spec.Any) > 0 {
		preds = append(preds, KeywordAny(spec.Any...))
	}
	if len(spec.All) > 0 {
		preds = append(preds, KeywordAll(spec.All...))
	}
	if spec.Pattern != "" {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("pattern %q: %v", spec.Pattern, err)
		}
		preds = append(preds, Pattern(re))
	}
	if spec.Direction != "" {
		d := txn.Direction(strings.ToLower(spec.Direction))
		if !d.Valid() {
			return Rule{}, fmt.Errorf("direction %q", spec.Direction)
		}
		preds = append(preds, DirectionIs(d))
	}
	if spec.MinAmount != "" || spec.MaxAmount != "" {
		lo, err := bound(spec.MinAmount)
		if err != nil {
			return Rule{}, fmt.Errorf("min_amount: %v", err)
		}
		hi, err := bound(spec.MaxAmount)
		if err != nil {
			return Rule{}, fmt.Errorf("max_amount: %v", err)
		}
		preds = append(preds, AmountRange(lo, hi))
	}
	if len(spec.Sources) > 0 {
		preds = append(preds, SourceIs(spec.Sources...))
	}
	if len(preds) == 0 {
		return Rule{}, fmt.Errorf("rule %q has no conditions", name)
	}

	return Rule{Name: name, Tag: spec.Tag, Transfer: spec.Transfer, When: And(preds...)}, nil
}

func bound(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// DefaultRules is a small starter table for a small business's books.
func DefaultRules() []RuleSpec {
	return []RuleSpec{
		{Name: "own-transfer", Tag: "transfer", Transfer: true, Any: []string{"transfer to", "transfer from", "xfer", "tfr", "between accounts"}},
		{Name: "bank-fees", Tag: "bank_fees", Any: []string{"service charge", "nsf", "monthly fee", "overdraft", "fee"}, Direction: "debit"},
		{Name: "interest", Tag: "interest_income", Any: []string{"interest"}, Direction: "credit"},
		{Name: "payroll", Tag: "payroll", Any: []string{"payroll", "wages", "salary"}},
		{Name: "rent", Tag: "rent", Any: []string{"rent", "lease"}},
		{Name: "utilities", Tag: "utilities", Any: []string{"hydro", "electric", "gas", "water", "telephone", "internet"}},
		{Name: "sales", Tag: "sales", Any: []string{"deposit", "reservation", "booking"}, Direction: "credit"},
	}
}

func pad(desc string) string {
	return " " + strings.Join(strings.Fields(strings.ToLower(desc)), " ") + " "
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Join(strings.Fields(strings.ToLower(w)), " ")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

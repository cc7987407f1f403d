package normalizer

import (
	"fmt"
	"regexp"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// Config holds the tables and policies the normalizer applies to every line.
type Config struct {
	// YearHint is used for year-less date formats (Mon DD, MM/DD) when the
	// line itself does not carry a hint. Zero means "no hint".
	YearHint int

	// AmountCeiling is the sanity ceiling for a single transaction amount.
	// Tokens above it can only be a running balance. Zero disables the check.
	AmountCeiling decimal.Decimal

	// DefaultDirection is applied when neither keywords nor position nor sign
	// say anything. Several legacy scripts preferred debit here; it is kept as
	// an explicit, overridable policy.
	DefaultDirection txn.Direction

	CreditKeywords []string
	DebitKeywords  []string

	NoisePatterns       []*regexp.Regexp
	ReferencePatterns   []*regexp.Regexp // first capture group is the reference
	BusinessKeyPatterns []*regexp.Regexp // first capture group is the key
	SegmentMarkers      []*regexp.Regexp
	SkipPatterns        []*regexp.Regexp
}

var (
	defaultCreditKeywords = []string{
		"deposit", "deposited", "credit", "cr", "refund", "interest", "received",
		"rebate", "reversal", "transfer from", "payment received", "e-transfer received",
		"cash in", "cheque deposit", "chq deposit", "deposit cheque", "deposit chq",
	}
	defaultDebitKeywords = []string{
		"withdrawal", "withdraw", "debit", "dr", "fee", "fees", "charge", "purchase",
		"payment", "chq", "cheque", "check", "pos", "atm", "transfer to",
		"service charge", "nsf", "bill payment", "cash out",
	}

	defaultNoise = []string{
		`(?i)(?:(?:x{4}|\*{4})[\s-]?){1,3}\d{4}\b`,
		`(?i)\bcard\s*(?:ending|no\.?|#)?\s*(?:in\s*)?\d{4}\b`,
		`[─━│┃═║╔╗╚╝┌┐└┘├┤┬┴┼_=~\-]{3,}`,
		`[✓✔☑✗✘√]`,
		`[|¦]`,
		`(?i)\bpage\s+\d+\s*(?:of|/)\s*\d+\b`,
		`(?i)\b(?:continued on next page|continued from previous page|statement of account|account statement)\b`,
	}
	defaultReferences = []string{
		`(?i)\b(?:chq|cheque|check|chk)\.?\s*(?:no\.?|#)?\s*(\d{3,})\b`,
		`(?i)\b(?:txn|trans(?:action)?)\s*(?:id|no\.?|#)\s*[:#]?\s*([a-z0-9]{4,})\b`,
		`(?i)\b(?:ref(?:erence)?|conf(?:irmation)?)\s*(?:no\.?|#)?\s*[:#]?\s*([a-z]*\d[a-z0-9]{2,})\b`,
	}
	defaultBusinessKeys = []string{
		`(?i)\b(?:res(?:ervation)?|booking|bkg)\s*(?:no\.?|#)?\s*[:#]?\s*(\d{4,})\b`,
	}
	defaultSegmentMarkers = []string{
		`(?i)\b(?:opening|beginning|previous)\s+balance\b`,
		`(?i)\bbalance\s+(?:brought|carried)\s+forward\b`,
		`(?i)\bpending\s+transactions\b`,
	}
	defaultSkip = []string{
		`(?i)\b(?:closing|ending)\s+balance\b`,
		`(?i)^\s*(?:total|subtotal)s?\b`,
	}
)

// DefaultConfig returns the built-in tables with a debit default and a
// 100,000 ceiling.
func DefaultConfig() Config {
	return Config{
		AmountCeiling:       decimal.NewFromInt(100000),
		DefaultDirection:    txn.Debit,
		CreditKeywords:      append([]string(nil), defaultCreditKeywords...),
		DebitKeywords:       append([]string(nil), defaultDebitKeywords...),
		NoisePatterns:       MustCompile(defaultNoise),
		ReferencePatterns:   MustCompile(defaultReferences),
		BusinessKeyPatterns: MustCompile(defaultBusinessKeys),
		SegmentMarkers:      MustCompile(defaultSegmentMarkers),
		SkipPatterns:        MustCompile(defaultSkip),
	}
}

// Compile compiles a pattern table, reporting the first bad expression.
func Compile(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for i, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %d %q: %w", i, expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// MustCompile is Compile for built-in tables
func MustCompile(exprs []string) []*regexp.Regexp {
	out, err := Compile(exprs)
	if err != nil {
		panic(err)
	}
	return out
}

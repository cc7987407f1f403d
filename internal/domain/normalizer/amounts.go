package normalizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// Groups: 1 "(", 2 "-", 3 number, 4 cents, 5 ")", 6 cr/dr suffix.
var moneyToken = regexp.MustCompile(`(?i)(\()?([-−])?\$?((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{1,2}))?)(\))?(?:\s?(cr|dr)\b)?`)

// moneyCandidate is one numeric token that could be an amount or a balance.
type moneyCandidate struct {
	value    decimal.Decimal // magnitude, never negative
	negative bool
	suffix   txn.Direction // from a CR/DR suffix, empty when absent
	decimal  bool
	span     []int
}

// findMoney returns the numeric tokens in text that are not glued to letters.
func findMoney(text string) []moneyCandidate {
	var out []moneyCandidate
	for _, m := range moneyToken.FindAllStringSubmatchIndex(text, -1) {
		if !standalone(text, m[0], m[1]) {
			continue
		}
		num := strings.ReplaceAll(text[m[6]:m[7]], ",", "")
		value, err := decimal.NewFromString(num)
		if err != nil {
			continue
		}
		c := moneyCandidate{
			value:   value,
			decimal: m[8] >= 0,
			span:    []int{m[0], m[1]},
		}
		if (m[2] >= 0 && m[10] >= 0) || m[4] >= 0 {
			c.negative = true
		}
		if m[12] >= 0 {
			if strings.EqualFold(text[m[12]:m[13]], "cr") {
				c.suffix = txn.Credit
			} else {
				c.suffix = txn.Debit
			}
		}
		out = append(out, c)
	}
	return out
}

// standalone rejects tokens that are part of a word, such as store numbers
// glued to letters or fragments of identifiers.
func standalone(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/' || r == '.' || r == '#' {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/' || r == '#' {
			return false
		}
	}
	return true
}

// pickAmounts applies the extraction policy: prefer tokens with cents, the
// smallest token under the ceiling is the amount, the largest remaining token
// is the running balance.
func pickAmounts(cands []moneyCandidate, ceiling decimal.Decimal) (amount moneyCandidate, balance *moneyCandidate, pool []moneyCandidate, err error) {
	pool = make([]moneyCandidate, 0, len(cands))
	for _, c := range cands {
		if c.decimal {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = cands
	}
	if len(pool) == 0 {
		return moneyCandidate{}, nil, nil, ErrNoAmount
	}

	amountIdx := -1
	for i, c := range pool {
		if ceiling.IsPositive() && c.value.GreaterThan(ceiling) {
			continue
		}
		if amountIdx < 0 || c.value.LessThan(pool[amountIdx].value) {
			amountIdx = i
		}
	}
	if amountIdx < 0 {
		return moneyCandidate{}, nil, pool, ErrAmountAboveCeiling
	}
	amount = pool[amountIdx]

	balanceIdx := -1
	for i, c := range pool {
		if i == amountIdx {
			continue
		}
		if balanceIdx < 0 || !c.value.LessThan(pool[balanceIdx].value) {
			balanceIdx = i
		}
	}
	if balanceIdx >= 0 {
		b := pool[balanceIdx]
		balance = &b
	}
	return amount, balance, pool, nil
}

// signedBalance applies the token's sign markers to a running balance.
func signedBalance(c moneyCandidate) decimal.Decimal {
	if c.negative || c.suffix == txn.Debit {
		return c.value.Neg()
	}
	return c.value
}

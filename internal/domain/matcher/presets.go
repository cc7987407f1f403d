package matcher

import "github.com/shopspring/decimal"

var defaultStopWords = []string{
	"the", "and", "for", "from", "with", "inc", "ltd", "llc", "co",
	"payment", "deposit", "debit", "credit", "transfer", "purchase", "pos",
	"online", "bank", "account", "acct",
}

var defaultTransferKeywords = []string{
	"transfer", "xfer", "tfr", "trf", "to savings", "from savings",
	"to chequing", "from chequing", "to checking", "from checking",
	"internal", "between accounts",
}

// DefaultConfig returns the statement-vs-ledger preset
func DefaultConfig() Config {
	return StatementVsLedger()
}

// StatementVsLedger pairs a bank statement with the books for the same
// account. Dates rarely drift more than a few days.
func StatementVsLedger() Config {
	return Config{
		WindowDays: 3,
		Epsilon:    decimal.RequireFromString("0.01"),
		MinScore:   55,
		Weights: Weights{
			AmountExact:        100,
			DatePenaltyPerDay:  2,
			ReferenceOverlap:   60,
			DescriptionOverlap: 5,
			BusinessKey:        500,
			CategoryAgreement:  3,
		},
		Direction:      SameDirection,
		MinSharedWords: 2,
		StopWords:      append([]string(nil), defaultStopWords...),
	}
}

// PayrollVsCash pairs payroll records with the cash payments that settled
// them, which can trail by weeks.
func PayrollVsCash() Config {
	c := StatementVsLedger()
	c.WindowDays = 30
	c.Weights.DatePenaltyPerDay = 1
	c.MinScore = 60
	return c
}

// Transfers pairs a debit on one of the business's accounts with the
// matching credit on another.
func Transfers() Config {
	return Config{
		WindowDays: 5,
		Epsilon:    decimal.RequireFromString("0.01"),
		MinScore:   80,
		Weights: Weights{
			AmountExact:        100,
			DatePenaltyPerDay:  4,
			ReferenceOverlap:   40,
			DescriptionOverlap: 5,
			TransferKeyword:    20,
			RoundAmount:        10,
		},
		Direction:        OppositeDirection,
		MinSharedWords:   2,
		StopWords:        append([]string(nil), defaultStopWords...),
		TransferKeywords: append([]string(nil), defaultTransferKeywords...),
		RoundAmountUnit:  decimal.NewFromInt(100),
		DistinctSources:  true,
	}
}

// Preset returns a named preset.
func Preset(name string) (Config, bool) {
	switch name {
	case "statement", "statement_vs_ledger", "":
		return StatementVsLedger(), true
	case "payroll", "payroll_vs_cash":
		return PayrollVsCash(), true
	case "transfers":
		return Transfers(), true
	}
	return Config{}, false
}

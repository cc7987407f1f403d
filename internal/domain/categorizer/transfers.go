package categorizer

import (
	"fmt"

	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// TransferPair is a debit on one own account and an equal credit on another.
type TransferPair struct {
	Debit     txn.Transaction
	Credit    txn.Transaction
	Score     float64
	Breakdown []matcher.Contribution
}

// DetectTransfers pairs debits with credits across the business's own
// accounts using the matching engine. When ownAccounts is empty every
// source in records counts as an own account. The config is forced to the
// opposite-direction, distinct-source shape a transfer needs.
func DetectTransfers(records []txn.Transaction, cfg matcher.Config, ownAccounts []string) ([]TransferPair, error) {
	cfg.Direction = matcher.OppositeDirection
	cfg.DistinctSources = true

	m, err := matcher.NewMatcher(cfg)
	if err != nil {
		return nil, err
	}

	own := make(map[string]bool, len(ownAccounts))
	for _, a := range ownAccounts {
		own[a] = true
	}

	var debits, credits []txn.Transaction
	for _, t := range records {
		if len(own) > 0 && !own[t.SourceID] {
			continue
		}
		if t.Direction == txn.Debit {
			debits = append(debits, t)
		} else {
			credits = append(credits, t)
		}
	}

	outcome, err := m.Match(debits, credits)
	if err != nil {
		return nil, fmt.Errorf("transfer detection: %w", err)
	}

	var pairs []TransferPair
	for _, p := range outcome.Pairs {
		if !p.AmountMatch {
			continue
		}
		pairs = append(pairs, TransferPair{
			Debit:     p.Source,
			Credit:    p.Target,
			Score:     p.Score,
			Breakdown: p.Breakdown,
		})
	}
	return pairs, nil
}

// MarkTransfers returns copies of classifications with both halves of every
// pair flagged as probable transfers.
func MarkTransfers(classes []Classification, pairs []TransferPair) []Classification {
	counterpart := make(map[string]string, len(pairs)*2)
	for _, p := range pairs {
		counterpart[p.Debit.ID] = p.Credit.ID
		counterpart[p.Credit.ID] = p.Debit.ID
	}

	out := make([]Classification, len(classes))
	for i, c := range classes {
		if other, ok := counterpart[c.RecordID]; ok {
			c.IsProbableTransfer = true
			c.Counterpart = other
		}
		out[i] = c
	}
	return out
}

package matcher

import (
	"errors"
	"fmt"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// ErrInvalidConfig is returned before any matching starts when the
// configuration cannot produce meaningful scores.
var ErrInvalidConfig = errors.New("invalid matcher config")

// DirectionRule says which target direction a source may pair with.
type DirectionRule string

const (
	SameDirection     DirectionRule = "same"
	OppositeDirection DirectionRule = "opposite"
)

// Weights are the additive scoring constants. Higher score is better.
type Weights struct {
	AmountExact        float64 // amount within epsilon; dominant
	DatePenaltyPerDay  float64 // subtracted per day of distance
	ReferenceOverlap   float64 // shared cheque/transaction/settlement token
	DescriptionOverlap float64 // enough shared significant words; tie-breaker
	BusinessKey        float64 // reservation/reference number in both records
	TransferKeyword    float64 // either side mentions a transfer
	RoundAmount        float64 // amount is a multiple of RoundAmountUnit
	CategoryAgreement  float64 // both records carry the same category tag
}

// Config holds matcher configuration
type Config struct {
	WindowDays int
	Epsilon    decimal.Decimal // Default: 0.01
	MinScore   float64
	Weights    Weights

	Direction DirectionRule

	// MinSharedWords is how many significant description words must be
	// shared before DescriptionOverlap applies.
	MinSharedWords int
	StopWords      []string

	TransferKeywords []string
	RoundAmountUnit  decimal.Decimal

	// DistinctSources forbids pairing two records from the same source,
	// used when both sides come from the business's own accounts.
	DistinctSources bool

	// DisableIndex makes the engine scan targets linearly. Results are
	// identical either way.
	DisableIndex bool
}

// Validate checks the config, returning the first problem found
func (c Config) Validate() error {
	w := c.Weights
	switch {
	case c.WindowDays < 0:
		return fmt.Errorf("%w: negative window %d", ErrInvalidConfig, c.WindowDays)
	case c.Epsilon.IsNegative():
		return fmt.Errorf("%w: negative epsilon %s", ErrInvalidConfig, c.Epsilon)
	case w.AmountExact <= 0:
		return fmt.Errorf("%w: amount weight must be positive", ErrInvalidConfig)
	case w.DatePenaltyPerDay < 0, w.ReferenceOverlap < 0, w.DescriptionOverlap < 0,
		w.BusinessKey < 0, w.TransferKeyword < 0, w.RoundAmount < 0, w.CategoryAgreement < 0:
		return fmt.Errorf("%w: weights must not be negative: %+v", ErrInvalidConfig, w)
	case c.Direction != SameDirection && c.Direction != OppositeDirection:
		return fmt.Errorf("%w: direction rule %q", ErrInvalidConfig, c.Direction)
	case c.MinSharedWords < 1:
		return fmt.Errorf("%w: min shared words must be at least 1", ErrInvalidConfig)
	case c.RoundAmountUnit.IsNegative():
		return fmt.Errorf("%w: negative round amount unit %s", ErrInvalidConfig, c.RoundAmountUnit)
	}
	return nil
}

func (c Config) targetDirection(source txn.Direction) txn.Direction {
	if c.Direction == OppositeDirection {
		return source.Opposite()
	}
	return source
}

// Criterion names one scoring rule in a breakdown.
type Criterion string

const (
	CriterionAmount      Criterion = "amount"
	CriterionDate        Criterion = "date"
	CriterionReference   Criterion = "reference"
	CriterionBusinessKey Criterion = "business_key"
	CriterionDescription Criterion = "description"
	CriterionTransfer    Criterion = "transfer_keyword"
	CriterionRound       Criterion = "round_amount"
	CriterionCategory    Criterion = "category"
)

// Contribution is one line of a score breakdown.
type Contribution struct {
	Criterion Criterion
	Points    float64
	Detail    string
}

// Candidate is a scored (source, target) pair. Candidates are produced and
// discarded during matching; only the ones that end up in an Outcome survive.
type Candidate struct {
	Source txn.Transaction
	Target txn.Transaction

	Score     float64
	Breakdown []Contribution

	DateDiff    int             // days
	AmountDiff  decimal.Decimal // absolute
	AmountMatch bool            // AmountDiff <= epsilon
}

// Pair is an accepted one-to-one match.
type Pair struct {
	Candidate

	// Contested is set when the source's best candidate had already been
	// claimed and it settled for the next one.
	Contested bool
}

// Contender is a source whose above-threshold candidates were all claimed by
// earlier sources. Best is its top candidate; ClaimedBy is the source ID
// holding that target.
type Contender struct {
	Source    txn.Transaction
	Best      Candidate
	ClaimedBy string
}

// Unmatched is a source with no candidate it could keep. Best is the highest
// candidate, if any, kept for review. ClaimedBy is set when Best passed the
// threshold on reference evidence but its target went to that source.
type Unmatched struct {
	Source    txn.Transaction
	Best      *Candidate
	ClaimedBy string
}

// Outcome is the raw partition produced by Match. Slices are in processing
// order (Pairs, Contenders, Unmatched) or (date, ID) order (Unclaimed).
type Outcome struct {
	Pairs      []Pair
	Contenders []Contender
	Unmatched  []Unmatched
	Unclaimed  []txn.Transaction
}

// Tagger supplies category tags for the CategoryAgreement weight. ok is false
// for records that fell through to a fallback tag.
type Tagger interface {
	Tag(t txn.Transaction) (tag string, ok bool)
}

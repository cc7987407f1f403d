package reconcile

import (
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/categorizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/discrepancy"
	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/normalizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/validator"
)

// ProfileResolver turns a profile name into a matcher configuration.
// *config.Config implements it.
type ProfileResolver interface {
	MatcherConfig(profile string) (matcher.Config, error)
}

// Options holds run configuration
type Options struct {
	Profile string

	// ApplyBalanceDirections replaces keyword/position directions with the
	// ones the running balance implies before matching.
	ApplyBalanceDirections bool

	// IncludeKnown adds previously accepted records as extra targets.
	IncludeKnown bool

	// Save archives the run and its accepted matches.
	Save bool

	// OwnAccounts limits transfer detection to these sources.
	OwnAccounts []string

	// SourceName and TargetName label the run in the archive.
	SourceName string
	TargetName string
}

// Input is the raw material for one run
type Input struct {
	Sources []normalizer.RawLine
	Targets []normalizer.RawLine
}

// Report is everything a run found, merged from the independent passes.
type Report struct {
	RunID     string
	Kind      string
	Profile   string
	StartedAt time.Time

	Results []discrepancy.Result
	Summary discrepancy.Summary

	Rejected []normalizer.Rejection
	Segments []validator.SegmentReport

	Classifications []categorizer.Classification
	Transfers       []categorizer.TransferPair

	// KnownTargets is how many previously accepted records were offered as
	// extra targets.
	KnownTargets int

	// Settled is how many pairs accepted in an earlier run were found again
	// on both sides and taken out before matching.
	Settled int

	// Records counts normalized records per side
	SourceRecords int
	TargetRecords int
}

// Inconsistencies counts balance findings across all segments
func (r *Report) Inconsistencies() int {
	return len(validator.Findings(r.Segments))
}

// Run kinds
const (
	KindMatch     = "match"
	KindBalance   = "balance"
	KindTransfers = "transfers"
)

package cli

import (
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/application/reconcile"
	"github.com/spf13/pflag"
)

// RunFlags are common flags for the commands that run a reconciliation pass
type RunFlags struct {
	Profile      string
	YearHint     int
	Save         bool
	UseBalance   bool
	IncludeKnown bool
	OwnAccounts  []string
}

// Register adds the flags to a command's flag set
func (f *RunFlags) Register(fs *pflag.FlagSet, withKnown bool) {
	fs.StringVarP(&f.Profile, "profile", "p", "", "Matching profile (statement, payroll, transfers or a configured name)")
	fs.IntVar(&f.YearHint, "year", 0, "Year for dates printed without one")
	fs.BoolVar(&f.Save, "save", false, "Archive the run in the database")
	fs.BoolVar(&f.UseBalance, "balance-directions", false, "Use directions implied by running balances")
	if withKnown {
		fs.BoolVar(&f.IncludeKnown, "known", false, "Offer previously accepted records as extra targets")
	}
}

// ToOptions converts RunFlags to reconcile.Options
func (f RunFlags) ToOptions(sources, targets []string) reconcile.Options {
	return reconcile.Options{
		Profile:                f.Profile,
		ApplyBalanceDirections: f.UseBalance,
		IncludeKnown:           f.IncludeKnown,
		Save:                   f.Save,
		OwnAccounts:            f.OwnAccounts,
		SourceName:             strings.Join(sources, ","),
		TargetName:             strings.Join(targets, ","),
	}
}

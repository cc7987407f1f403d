package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/application/reconcile"
	"github.com/eshaffer321/ledger-recon/internal/domain/categorizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/discrepancy"
	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/eshaffer321/ledger-recon/internal/domain/validator"
	"github.com/eshaffer321/ledger-recon/internal/infrastructure/storage"
)

// PrintHeader prints the run header
func PrintHeader(w io.Writer, r *reconcile.Report) {
	fmt.Fprintf(w, "recon %s: run %s (profile %s)\n", r.Kind, r.RunID, r.Profile)
}

// PrintMatchReport prints a reconciliation report grouped by kind, with the
// score breakdown of every flagged item.
func PrintMatchReport(w io.Writer, r *reconcile.Report) {
	PrintHeader(w, r)
	fmt.Fprintf(w, "Sources: %d records | Targets: %d records | Known: %d | Settled: %d | Rejected: %d\n\n",
		r.SourceRecords, r.TargetRecords, r.KnownTargets, r.Settled, len(r.Rejected))

	groups := make(map[discrepancy.Kind][]discrepancy.Result)
	for _, res := range r.Results {
		groups[res.Kind] = append(groups[res.Kind], res)
	}

	for _, kind := range discrepancy.Kinds {
		results := groups[kind]
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s (%d)\n", strings.ToUpper(string(kind)), len(results))
		for _, res := range results {
			printResult(w, res)
		}
		fmt.Fprintln(w)
	}

	printSegments(w, r.Segments)
	printRejections(w, r)
	printSummary(w, r)
}

func printResult(w io.Writer, res discrepancy.Result) {
	switch {
	case res.Source != nil && res.Target != nil:
		fmt.Fprintf(w, "  %s\n    <-> %s  score %.1f\n", formatRecord(*res.Source), formatRecord(*res.Target), res.Score)
	case res.Source != nil:
		fmt.Fprintf(w, "  %s\n", formatRecord(*res.Source))
	case res.Target != nil:
		fmt.Fprintf(w, "  %s\n", formatRecord(*res.Target))
	}
	for _, g := range res.Group {
		fmt.Fprintf(w, "    group: %s\n", formatRecord(g))
	}
	if !res.Kind.Flagged() {
		return
	}
	if res.Reason != "" {
		fmt.Fprintf(w, "    reason: %s\n", res.Reason)
	}
	printBreakdown(w, res.Breakdown)
}

func printBreakdown(w io.Writer, breakdown []matcher.Contribution) {
	for _, c := range breakdown {
		fmt.Fprintf(w, "      %-16s %+7.1f  %s\n", c.Criterion, c.Points, c.Detail)
	}
}

func formatRecord(t txn.Transaction) string {
	return fmt.Sprintf("%s  %-6s %12s  %-40s [%s]",
		t.OccurredOn.Format(txn.DateLayout),
		t.Direction,
		t.Magnitude.StringFixed(2),
		truncate(t.Description, 40),
		t.Location())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printSegments(w io.Writer, segments []validator.SegmentReport) {
	var findings int
	for _, s := range segments {
		findings += len(s.Findings)
	}
	if findings == 0 {
		return
	}

	fmt.Fprintf(w, "BALANCE INCONSISTENCIES (%d)\n", findings)
	for _, s := range segments {
		for _, f := range s.Findings {
			fmt.Fprintf(w, "  %s %s: previous %s, amount %s, observed %s (credit gives %s, debit gives %s)\n",
				f.SegmentID, f.Location,
				f.PreviousBalance.StringFixed(2), f.Magnitude.StringFixed(2), f.ObservedBalance.StringFixed(2),
				f.ExpectedIfCredit.StringFixed(2), f.ExpectedIfDebit.StringFixed(2))
			if f.SourceLine != "" {
				fmt.Fprintf(w, "    line: %s\n", f.SourceLine)
			}
		}
	}
	fmt.Fprintln(w)
}

func printRejections(w io.Writer, r *reconcile.Report) {
	if len(r.Rejected) == 0 {
		return
	}
	fmt.Fprintf(w, "REJECTED LINES (%d)\n", len(r.Rejected))
	for _, rej := range r.Rejected {
		fmt.Fprintf(w, "  %s p%d l%d: %v: %q\n", rej.Line.SourceID, rej.Line.Page, rej.Line.Line, rej.Reason, rej.Line.Text)
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, r *reconcile.Report) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	var parts []string
	for _, kind := range discrepancy.Kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, r.Summary.Counts[kind]))
	}
	fmt.Fprintf(w, "Summary: %s\n", strings.Join(parts, " "))
	fmt.Fprintf(w, "Flagged: %d | Inconsistencies: %d\n", r.Summary.Flagged, r.Inconsistencies())
}

// PrintBalanceReport prints per-segment replay results
func PrintBalanceReport(w io.Writer, r *reconcile.Report) {
	PrintHeader(w, r)
	fmt.Fprintf(w, "Records: %d | Segments: %d | Rejected: %d\n\n", r.SourceRecords, len(r.Segments), len(r.Rejected))

	for _, s := range r.Segments {
		opening, closing := "-", "-"
		if s.OpeningBalance.Valid {
			opening = s.OpeningBalance.Decimal.StringFixed(2)
		}
		if s.ClosingBalance.Valid {
			closing = s.ClosingBalance.Decimal.StringFixed(2)
		}
		overrides := 0
		for _, inf := range s.Inferences {
			if inf.Overrode {
				overrides++
			}
		}
		fmt.Fprintf(w, "  %-20s %-22s opening %12s closing %12s checked %d unchecked %d corrected %d\n",
			s.SegmentID, s.State, opening, closing, s.Checked, s.Unchecked, overrides)
	}
	fmt.Fprintln(w)

	printSegments(w, r.Segments)
	printRejections(w, r)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Inconsistencies: %d\n", r.Inconsistencies())
}

// PrintTransferReport prints detected transfer pairs and the category of
// every record
func PrintTransferReport(w io.Writer, r *reconcile.Report) {
	PrintHeader(w, r)
	fmt.Fprintf(w, "Records: %d | Rejected: %d\n\n", r.SourceRecords, len(r.Rejected))

	fmt.Fprintf(w, "TRANSFERS (%d)\n", len(r.Transfers))
	for _, p := range r.Transfers {
		fmt.Fprintf(w, "  %s\n    --> %s  score %.1f\n", formatRecord(p.Debit), formatRecord(p.Credit), p.Score)
		printBreakdown(w, p.Breakdown)
	}
	fmt.Fprintln(w)

	if len(r.Classifications) > 0 {
		fmt.Fprintln(w, "CATEGORIES")
		for _, line := range categoryCounts(r.Classifications) {
			fmt.Fprintf(w, "  %s\n", line)
		}
		fmt.Fprintln(w)
	}

	printRejections(w, r)
}

func categoryCounts(classes []categorizer.Classification) []string {
	counts := make(map[string]int)
	var order []string
	for _, c := range classes {
		if counts[c.Tag] == 0 {
			order = append(order, c.Tag)
		}
		counts[c.Tag]++
	}
	out := make([]string, len(order))
	for i, tag := range order {
		out[i] = fmt.Sprintf("%-20s %d", tag, counts[tag])
	}
	return out
}

// PrintRuns prints archived runs
func PrintRuns(w io.Writer, runs []storage.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  %-9s %-10s %-9s matched=%d flagged=%d rejected=%d inconsistencies=%d",
			run.StartedAt.Format("2006-01-02 15:04:05"), run.ID, run.Kind, run.Profile, run.Status,
			run.Matched, run.Flagged, run.Rejected, run.Inconsistencies)
		if run.Error != "" {
			fmt.Fprintf(w, " error=%q", run.Error)
		}
		fmt.Fprintln(w)
	}
}

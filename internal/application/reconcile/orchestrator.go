// Package reconcile runs the reconciliation passes over raw lines and merges
// their findings into one report. It is the only layer that logs and talks
// to storage; the domain packages it drives are pure.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/categorizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/discrepancy"
	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/normalizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/eshaffer321/ledger-recon/internal/domain/validator"
	"github.com/eshaffer321/ledger-recon/internal/infrastructure/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrNoStorage is returned when a run asks for the archive but none is configured
var ErrNoStorage = errors.New("storage not configured")

// Orchestrator runs reconciliations
type Orchestrator struct {
	normalizer  *normalizer.Normalizer
	categorizer *categorizer.Categorizer
	profiles    ProfileResolver
	storage     storage.Repository
	logger      *slog.Logger
	now         func() time.Time
}

// NewOrchestrator creates a new orchestrator. categorizer and storage may be
// nil; a nil logger discards output.
func NewOrchestrator(
	norm *normalizer.Normalizer,
	cat *categorizer.Categorizer,
	profiles ProfileResolver,
	store storage.Repository,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		normalizer:  norm,
		categorizer: cat,
		profiles:    profiles,
		storage:     store,
		logger:      logger.With("system", "reconcile"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// side is one normalized input plus its balance replay
type side struct {
	batch    normalizer.Batch
	records  []txn.Transaction
	segments []validator.SegmentReport
	classes  []categorizer.Classification
}

// Run reconciles sources against targets.
func (o *Orchestrator) Run(ctx context.Context, in Input, opts Options) (*Report, error) {
	cfg, err := o.profiles.MatcherConfig(opts.Profile)
	if err != nil {
		return nil, err
	}
	if (opts.Save || opts.IncludeKnown) && o.storage == nil {
		return nil, ErrNoStorage
	}

	report := o.newReport(KindMatch, opts.Profile)
	logger := o.logger.With("run_id", report.RunID)
	if err := o.begin(ctx, report, opts); err != nil {
		return nil, err
	}

	targetLines := o.separateTargets(logger, in.Sources, in.Targets)

	var src, tgt side
	var known []txn.Transaction
	var pairs []storage.KnownPair

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		src, err = o.prepare(gctx, logger, "source", in.Sources, cfg.Epsilon, opts)
		return err
	})
	g.Go(func() error {
		var err error
		tgt, err = o.prepare(gctx, logger, "target", targetLines, cfg.Epsilon, opts)
		return err
	})
	if opts.IncludeKnown {
		g.Go(func() error {
			var err error
			known, err = o.storage.KnownTransactions(gctx)
			if err != nil {
				return fmt.Errorf("load known transactions: %w", err)
			}
			pairs, err = o.storage.KnownPairs(gctx)
			if err != nil {
				return fmt.Errorf("load known pairs: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, o.fail(ctx, report, opts, err)
	}

	report.Rejected = append(append(report.Rejected, src.batch.Rejected...), tgt.batch.Rejected...)
	report.Segments = append(append(report.Segments, src.segments...), tgt.segments...)
	report.Classifications = append(append(report.Classifications, src.classes...), tgt.classes...)
	report.SourceRecords = len(src.records)
	report.TargetRecords = len(tgt.records)

	var matchOpts []matcher.Option
	if o.categorizer != nil {
		matchOpts = append(matchOpts, matcher.WithTagger(o.categorizer))
	}

	m, err := matcher.NewMatcher(cfg, matchOpts...)
	if err != nil {
		return nil, o.fail(ctx, report, opts, err)
	}

	settled := settleKnown(m, src.records, tgt.records, known, pairs)
	report.Settled = len(settled.results)
	report.KnownTargets = len(settled.known)

	targets := append(append([]txn.Transaction(nil), settled.targets...), settled.known...)
	outcome, err := m.Match(settled.sources, targets)
	if err != nil {
		return nil, o.fail(ctx, report, opts, err)
	}

	report.Results = append(dropStaleKnown(discrepancy.Classify(outcome, cfg.Epsilon)), settled.results...)
	discrepancy.Sort(report.Results)
	report.Summary = discrepancy.Summarize(report.Results)

	logger.Info("Reconciliation complete",
		"profile", report.Profile,
		"sources", report.SourceRecords,
		"targets", report.TargetRecords,
		"known", report.KnownTargets,
		"settled", report.Settled,
		"matched", report.Summary.Counts[discrepancy.Matched],
		"flagged", report.Summary.Flagged,
		"rejected", len(report.Rejected),
		"inconsistencies", report.Inconsistencies(),
	)

	if opts.Save {
		if err := o.saveAccepted(ctx, report); err != nil {
			return nil, o.fail(ctx, report, opts, err)
		}
	}
	if err := o.complete(ctx, report, opts); err != nil {
		return nil, err
	}
	return report, nil
}

// Balance normalizes lines and replays their running balances.
func (o *Orchestrator) Balance(ctx context.Context, lines []normalizer.RawLine, opts Options) (*Report, error) {
	cfg, err := o.profiles.MatcherConfig(opts.Profile)
	if err != nil {
		return nil, err
	}
	if opts.Save && o.storage == nil {
		return nil, ErrNoStorage
	}

	report := o.newReport(KindBalance, opts.Profile)
	logger := o.logger.With("run_id", report.RunID)
	if err := o.begin(ctx, report, opts); err != nil {
		return nil, err
	}

	s, err := o.prepare(ctx, logger, "input", lines, cfg.Epsilon, opts)
	if err != nil {
		return nil, o.fail(ctx, report, opts, err)
	}
	report.Rejected = s.batch.Rejected
	report.Segments = s.segments
	report.SourceRecords = len(s.records)

	logger.Info("Balance check complete",
		"records", report.SourceRecords,
		"segments", len(report.Segments),
		"inconsistencies", report.Inconsistencies(),
	)

	if err := o.complete(ctx, report, opts); err != nil {
		return nil, err
	}
	return report, nil
}

// Transfers detects movements between the business's own accounts. The
// profile defaults to the transfers preset.
func (o *Orchestrator) Transfers(ctx context.Context, lines []normalizer.RawLine, opts Options) (*Report, error) {
	if opts.Profile == "" {
		opts.Profile = KindTransfers
	}
	cfg, err := o.profiles.MatcherConfig(opts.Profile)
	if err != nil {
		return nil, err
	}
	if opts.Save && o.storage == nil {
		return nil, ErrNoStorage
	}

	report := o.newReport(KindTransfers, opts.Profile)
	logger := o.logger.With("run_id", report.RunID)
	if err := o.begin(ctx, report, opts); err != nil {
		return nil, err
	}

	s, err := o.prepare(ctx, logger, "input", lines, cfg.Epsilon, opts)
	if err != nil {
		return nil, o.fail(ctx, report, opts, err)
	}
	report.Rejected = s.batch.Rejected
	report.Segments = s.segments
	report.SourceRecords = len(s.records)

	pairs, err := categorizer.DetectTransfers(s.records, cfg, opts.OwnAccounts)
	if err != nil {
		return nil, o.fail(ctx, report, opts, err)
	}
	report.Transfers = pairs

	if o.categorizer != nil {
		report.Classifications = categorizer.MarkTransfers(s.classes, pairs)
	}

	logger.Info("Transfer detection complete",
		"records", report.SourceRecords,
		"pairs", len(pairs),
		"own_accounts", len(opts.OwnAccounts),
	)

	if err := o.complete(ctx, report, opts); err != nil {
		return nil, err
	}
	return report, nil
}

// separateTargets renames target inputs whose source ID is also used on the
// source side. Record IDs are built from the source ID, so a statement and a
// ledger sharing a file name would otherwise produce the same IDs.
func (o *Orchestrator) separateTargets(logger *slog.Logger, sources, targets []normalizer.RawLine) []normalizer.RawLine {
	used := make(map[string]bool)
	for _, l := range sources {
		used[l.SourceID] = true
	}
	var out []normalizer.RawLine
	renamed := make(map[string]bool)
	for i, l := range targets {
		if !used[l.SourceID] {
			continue
		}
		if out == nil {
			out = append([]normalizer.RawLine(nil), targets...)
		}
		if !renamed[l.SourceID] {
			renamed[l.SourceID] = true
			logger.Info("Target source renamed to keep record IDs distinct",
				"source_id", l.SourceID,
				"renamed", l.SourceID+targetSuffix,
			)
		}
		out[i].SourceID = l.SourceID + targetSuffix
	}
	if out == nil {
		return targets
	}
	return out
}

// targetSuffix is appended to a target source ID that collides with a source
const targetSuffix = "@target"

// prepare normalizes one side and replays its balances, optionally applying
// the inferred directions.
func (o *Orchestrator) prepare(ctx context.Context, logger *slog.Logger, label string, lines []normalizer.RawLine, epsilon decimal.Decimal, opts Options) (side, error) {
	if err := ctx.Err(); err != nil {
		return side{}, err
	}

	batch := o.normalizer.NormalizeAll(lines)
	for _, rej := range batch.Rejected {
		logger.Debug("Line rejected",
			"side", label,
			"location", fmt.Sprintf("%s p%d l%d", rej.Line.SourceID, rej.Line.Page, rej.Line.Line),
			"reason", rej.Reason,
			"text", rej.Line.Text,
		)
	}

	segments := validator.New(epsilon).ValidateAll(batch.Records, batch.OpeningBalances)
	records := batch.Records
	if opts.ApplyBalanceDirections {
		records = validator.ApplyInferences(records, segments)
	}

	for _, seg := range segments {
		if seg.State == validator.Inconsistent {
			logger.Warn("Running balance inconsistent",
				"side", label,
				"segment", seg.SegmentID,
				"findings", len(seg.Findings),
			)
		}
	}

	var classes []categorizer.Classification
	if o.categorizer != nil {
		classes = o.categorizer.ClassifyAll(records)
	}

	logger.Debug("Normalized",
		"side", label,
		"lines", len(lines),
		"records", len(batch.Records),
		"rejected", len(batch.Rejected),
		"markers", batch.Markers,
		"skipped", batch.Skipped,
	)

	return side{batch: batch, records: records, segments: segments, classes: classes}, nil
}

func (o *Orchestrator) newReport(kind, profile string) *Report {
	if profile == "" {
		profile = "default"
	}
	return &Report{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Profile:   profile,
		StartedAt: o.now(),
	}
}

func (o *Orchestrator) begin(ctx context.Context, report *Report, opts Options) error {
	if !opts.Save {
		return nil
	}
	run := &storage.Run{
		ID:        report.RunID,
		Kind:      report.Kind,
		Profile:   report.Profile,
		Sources:   opts.SourceName,
		Targets:   opts.TargetName,
		StartedAt: report.StartedAt,
	}
	if err := o.storage.StartRun(ctx, run); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, report *Report, opts Options) error {
	if !opts.Save {
		return nil
	}
	stats := storage.RunStats{
		Matched:         report.Summary.Counts[discrepancy.Matched],
		Flagged:         report.Summary.Flagged,
		Rejected:        len(report.Rejected),
		Inconsistencies: report.Inconsistencies(),
	}
	if report.Kind == KindTransfers {
		stats.Matched = len(report.Transfers)
	}
	if err := o.storage.CompleteRun(ctx, report.RunID, stats); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, report *Report, opts Options, cause error) error {
	o.logger.Error("Run failed", "run_id", report.RunID, "kind", report.Kind, "error", cause)
	if !opts.Save {
		return cause
	}
	if err := o.storage.FailRun(context.WithoutCancel(ctx), report.RunID, cause); err != nil {
		o.logger.Error("Failed to record run failure", "run_id", report.RunID, "error", err)
	}
	return cause
}

// saveAccepted archives matched pairs, skipping pairs whose target is itself
// a previously accepted record and pairs settled from an earlier run.
func (o *Orchestrator) saveAccepted(ctx context.Context, report *Report) error {
	var accepted []storage.AcceptedMatch
	for _, r := range discrepancy.Accepted(report.Results) {
		if r.Target.SourceID == storage.KnownSource || r.Reason == settledReason {
			continue
		}
		accepted = append(accepted, storage.NewAcceptedMatch(*r.Source, *r.Target, r.Score))
	}
	if len(accepted) == 0 {
		return nil
	}
	if err := o.storage.SaveAccepted(ctx, report.RunID, accepted); err != nil {
		return fmt.Errorf("save accepted: %w", err)
	}
	o.logger.Debug("Archived accepted matches", "run_id", report.RunID, "count", len(accepted))
	return nil
}

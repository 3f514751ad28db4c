// Package pipeline runs the weekly report and history backfill flows of both lines: read the
// newest export, reconcile it with the ledger, render the report, then commit and deliver.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/config"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/fileutils"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ledger"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/mailer"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/report"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/sentiment"
)

// Report lines.
const (
	LineSurveys = "surveys"
	LineReviews = "reviews"
)

// Run modes recorded in the run log.
const (
	ModeWeekly   = "weekly"
	ModeBackfill = "backfill"
)

// ScorerFactory builds the primary sentiment scorer and an optional fallback.
type ScorerFactory func(ctx context.Context, o sentiment.Options, vocabulary string) (sentiment.Scorer, sentiment.Scorer, error)

// Runner executes runs against one ledger.
type Runner struct {
	Config  config.Config
	History *ledger.History
	// Sender delivers reports; nil archives without mailing.
	Sender mailer.Sender
	// NewScorer defaults to sentiment.New.
	NewScorer ScorerFactory
	// Now defaults to time.Now.
	Now func() time.Time
	Log *zap.Logger

	// PreviewWidth wraps the dry-run report preview.
	PreviewWidth int
}

// Options selects what one run does.
type Options struct {
	// WeekKey is the anchor week; empty means the last completed ISO week.
	WeekKey string
	// Input names an export file directly instead of picking from the configured directory.
	Input  string
	DryRun bool
	// Rescore makes a review backfill annotate every review again instead of reusing stored
	// annotations.
	Rescore bool
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Line    string
	Mode    string
	WeekKey string
	Inputs  []string

	Accepted int
	Rejected int
	Written  int
	Skipped  int

	// Report is nil for backfill runs.
	Report    *report.Report
	Archived  []string
	Delivered bool
	DryRun    bool
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *Runner) begin(line, mode string, opts Options) (Result, *zap.Logger) {
	res := Result{RunID: uuid.NewString(), Line: line, Mode: mode, DryRun: opts.DryRun}
	log := r.logger().With(
		zap.String("run_id", res.RunID),
		zap.String("line", line),
		zap.String("mode", mode),
		zap.Bool("dry_run", opts.DryRun),
	)
	return res, log
}

// anchorWeek validates an explicit week key or derives the default one.
func (r *Runner) anchorWeek(key string) (string, error) {
	if key == "" {
		return pulse.LastCompletedWeek(r.now()), nil
	}
	if !pulse.ValidWeekKey(key) {
		cerr := &pulse.ConfigurationError{}
		cerr.AddInvalid("week", fmt.Sprintf("%q is not a YYYY-W## ISO week", key))
		return "", cerr
	}
	return key, nil
}

// inputs resolves the export files of a run: the explicit file, the newest match, or every match
// oldest first.
func inputs(in config.Input, explicit string, all bool) ([]string, error) {
	if explicit != "" {
		return []string{explicit}, nil
	}
	if !all {
		a, err := fileutils.LatestArtifact(in.Dir, in.Pattern)
		if err != nil {
			return nil, err
		}
		return []string{a.Path}, nil
	}
	arts, err := fileutils.MatchingArtifacts(in.Dir, in.Pattern)
	if err != nil {
		return nil, err
	}
	if len(arts) == 0 {
		return nil, fmt.Errorf("no %q exports in %s", in.Pattern, in.Dir)
	}
	paths := make([]string, len(arts))
	for i, a := range arts {
		paths[i] = a.Path
	}
	return paths, nil
}

// withLock runs fn under the ledger lock. Dry runs take no lock.
func (r *Runner) withLock(ctx context.Context, dryRun bool, fn func(ctx context.Context) error) (err error) {
	if dryRun {
		return fn(ctx)
	}
	release, err := r.History.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			err = multierr.Append(err, pulse.LedgerUnavailable("*", "unlock", rerr))
		}
	}()
	return fn(ctx)
}

func (r *Runner) recordRun(ctx context.Context, res Result, started time.Time) error {
	return r.History.RecordRun(ctx, ledger.RunRecord{
		RunID:       res.RunID,
		Line:        res.Line,
		Mode:        res.Mode,
		WeekKey:     res.WeekKey,
		StartedAt:   started,
		FinishedAt:  r.now(),
		RowsWritten: res.Written,
		RowsSkipped: res.Skipped,
	})
}

func (r *Runner) assembler() *report.Assembler {
	return report.NewAssembler(r.Config.Mail.SubjectPrefix, r.Config.SampleSize)
}

// preview logs the rendered report of a dry run.
func (r *Runner) preview(log *zap.Logger, rep report.Report) {
	text, err := report.Preview(rep.Markdown, r.PreviewWidth)
	if err != nil {
		log.Warn("report preview failed", zap.Error(err))
		text = rep.Markdown
	}
	log.Info("dry run: report not delivered", zap.String("subject", rep.Subject), zap.String("report", text))
}

// publish archives the report and mails it when a sender is configured.
func (r *Runner) publish(ctx context.Context, log *zap.Logger, rep report.Report, res *Result) error {
	dir := filepath.Join(r.Config.OutputDir, res.WeekKey)
	paths, err := report.Archive(dir, rep)
	if err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	res.Archived = paths
	log.Info("report archived", zap.String("dir", dir), zap.Int("files", len(paths)))

	if r.Sender == nil {
		log.Info("no sender configured, report not mailed")
		return nil
	}
	msg := mailer.Message{Subject: rep.Subject, HTML: rep.HTML}
	for _, a := range rep.Attachments {
		msg.Attachments = append(msg.Attachments, mailer.Attachment{Name: a.Name, Data: a.Data})
	}
	if err := r.Sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	res.Delivered = true
	log.Info("report delivered", zap.String("subject", rep.Subject))
	return nil
}

func logCollisions(log *zap.Logger, collisions []*pulse.IdentityCollision) {
	for _, c := range collisions {
		log.Warn("identity collision suspected, later row wins",
			zap.String("key", c.Key.String()),
			zap.String("first", c.First),
			zap.String("second", c.Second),
		)
	}
}

// logRejections summarizes per-row rejections; the individual reasons go to debug.
func logRejections(log *zap.Logger, name string, rejected int, errs error) {
	if rejected == 0 {
		return
	}
	for _, e := range multierr.Errors(errs) {
		log.Debug("row rejected", zap.String("input", name), zap.Error(e))
	}
	log.Warn("rows rejected", zap.String("input", name), zap.Int("rejected", rejected))
}

func noUsableRows(paths []string) error {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return &pulse.SourceDataError{Source: fmt.Sprint(names), Reason: "no usable rows"}
}

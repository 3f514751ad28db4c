package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ingest"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/report"
)

// readSurveys parses every export in order and dedupes the responses by survey key.
func (r *Runner) readSurveys(ctx context.Context, log *zap.Logger, paths []string) ([]pulse.SurveyResponse, int, error) {
	var all []pulse.SurveyResponse
	var rejected int
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, 0, fmt.Errorf("open surveys export: %w", err)
		}
		batch, err := ingest.ReadSurveys(f, ingest.Options{Name: filepath.Base(p), Now: r.now(), MaxFutureDays: r.Config.MaxFutureDays})
		_ = f.Close()
		if err != nil {
			return nil, 0, err
		}
		logRejections(log, filepath.Base(p), batch.Rejected, batch.Errors)
		if batch.OverallDerived {
			log.Info("overall score derived from thematic answers", zap.String("input", filepath.Base(p)))
		}
		all = append(all, batch.Responses...)
		rejected += batch.Rejected
	}
	if len(all) == 0 {
		return nil, rejected, noUsableRows(paths)
	}
	deduped, collisions := pulse.DedupeSurveys(all)
	logCollisions(log, collisions)
	return deduped, rejected, nil
}

// WeeklySurveys aggregates the anchor week from the newest export, reports it against the
// ledger history and upserts the week's rows.
func (r *Runner) WeeklySurveys(ctx context.Context, opts Options) (Result, error) {
	res, log := r.begin(LineSurveys, ModeWeekly, opts)
	started := r.now()

	week, err := r.anchorWeek(opts.WeekKey)
	if err != nil {
		return res, err
	}
	res.WeekKey = week
	log = log.With(zap.String("week_key", week))

	paths, err := inputs(r.Config.Surveys, opts.Input, false)
	if err != nil {
		return res, err
	}
	res.Inputs = paths
	responses, rejected, err := r.readSurveys(ctx, log, paths)
	res.Rejected = rejected
	if err != nil {
		return res, err
	}
	res.Accepted = len(responses)

	fresh := pulse.AggregateWeek(responses, week)
	log.Info("surveys aggregated", zap.Int("responses", len(responses)), zap.Int("rows", len(fresh)))

	var rep report.Report
	err = r.withLock(ctx, opts.DryRun, func(ctx context.Context) error {
		history, err := r.History.Surveys(ctx)
		if err != nil {
			return err
		}
		merged := pulse.MergeSurveyRows(history, fresh)
		ranges, err := pulse.PeriodRangesForWeek(week, pulse.SurveyDataSpan(merged))
		if err != nil {
			return err
		}
		rep, err = r.assembler().Surveys(report.SurveyData{
			Hotel:    r.Config.Hotel,
			Ranges:   ranges,
			Slices:   pulse.SlicePeriods(merged, ranges),
			PrevWeek: pulse.SummarizeSurveys(merged, ranges.PrevWeek),
			Rejected: rejected,
		})
		if err != nil {
			return err
		}
		if opts.DryRun {
			return nil
		}

		stats, err := r.History.UpsertSurveys(ctx, fresh)
		if err != nil {
			return err
		}
		res.Written, res.Skipped = stats.Inserted+stats.Replaced, stats.Skipped
		log.Info("surveys history updated",
			zap.Int("inserted", stats.Inserted),
			zap.Int("replaced", stats.Replaced),
			zap.Int("preserved", stats.Preserved),
		)
		return r.recordRun(ctx, res, started)
	})
	if err != nil {
		return res, err
	}
	res.Report = &rep

	if opts.DryRun {
		r.preview(log, rep)
		return res, nil
	}
	if err := r.publish(ctx, log, rep, &res); err != nil {
		return res, err
	}
	return res, nil
}

// BackfillSurveys rebuilds surveys_history from every matching export.
func (r *Runner) BackfillSurveys(ctx context.Context, opts Options) (Result, error) {
	res, log := r.begin(LineSurveys, ModeBackfill, opts)
	started := r.now()

	paths, err := inputs(r.Config.Surveys, opts.Input, true)
	if err != nil {
		return res, err
	}
	res.Inputs = paths
	responses, rejected, err := r.readSurveys(ctx, log, paths)
	res.Rejected = rejected
	if err != nil {
		return res, err
	}
	res.Accepted = len(responses)

	rows := pulse.AggregateAllWeeks(responses)
	if len(rows) > 0 {
		res.WeekKey = rows[len(rows)-1].WeekKey
	}
	res.Written = len(rows)
	log.Info("surveys backfill aggregated", zap.Int("responses", len(responses)), zap.Int("rows", len(rows)))
	if opts.DryRun {
		return res, nil
	}

	err = r.withLock(ctx, false, func(ctx context.Context) error {
		if err := r.History.ReplaceSurveys(ctx, rows); err != nil {
			return err
		}
		return r.recordRun(ctx, res, started)
	})
	if err != nil {
		return res, err
	}
	log.Info("surveys history rebuilt", zap.Int("rows", len(rows)))
	return res, nil
}

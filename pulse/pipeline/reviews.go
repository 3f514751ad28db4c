package pipeline

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ingest"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ledger"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/report"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/sentiment"
)

func (r *Runner) readReviews(ctx context.Context, log *zap.Logger, paths []string) ([]pulse.Review, int, error) {
	var all []pulse.Review
	var rejected int
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, 0, fmt.Errorf("open reviews export: %w", err)
		}
		batch, err := ingest.ReadReviews(f, ingest.Options{Name: filepath.Base(p), Now: r.now(), MaxFutureDays: r.Config.MaxFutureDays})
		_ = f.Close()
		if err != nil {
			return nil, 0, err
		}
		logRejections(log, filepath.Base(p), batch.Rejected, batch.Errors)
		all = append(all, batch.Reviews...)
		rejected += batch.Rejected
	}
	if len(all) == 0 {
		return nil, rejected, noUsableRows(paths)
	}
	deduped, collisions := pulse.DedupeReviews(all)
	logCollisions(log, collisions)
	return deduped, rejected, nil
}

func (r *Runner) vocabulary() (pulse.AspectVocabulary, error) {
	if r.Config.VocabularyPath == "" {
		return pulse.AspectVocabulary{Version: 1}, nil
	}
	return pulse.LoadVocabulary(r.Config.VocabularyPath)
}

func (r *Runner) saveVocabulary(log *zap.Logger, v pulse.AspectVocabulary) error {
	if r.Config.VocabularyPath == "" {
		return nil
	}
	if err := pulse.SaveVocabulary(r.Config.VocabularyPath, v); err != nil {
		return err
	}
	log.Debug("aspect vocabulary saved", zap.String("path", r.Config.VocabularyPath), zap.Int("terms", len(v.Entries)))
	return nil
}

func storedIndex(history []pulse.ReviewHistoryRow) map[pulse.Identity]pulse.ReviewHistoryRow {
	out := make(map[pulse.Identity]pulse.ReviewHistoryRow, len(history))
	for _, h := range history {
		out[h.ReviewKey] = h
	}
	return out
}

// annotate turns reviews into ledger rows, in input order. A review already stored keeps its
// stored annotation and ingestion time unless rescore is set; only the rest reach the scorer.
// Aspects of newly scored reviews are counted into vocab.
func (r *Runner) annotate(ctx context.Context, log *zap.Logger, reviews []pulse.Review, stored map[pulse.Identity]pulse.ReviewHistoryRow, vocab *pulse.AspectVocabulary, rescore bool) ([]pulse.ReviewHistoryRow, error) {
	rows := make([]pulse.ReviewHistoryRow, len(reviews))
	var pending []pulse.Review
	var slots []int
	for i, rv := range reviews {
		if old, ok := stored[rv.Key]; ok && !rescore {
			rows[i] = pulse.NewReviewHistoryRow(rv, pulse.Annotation{
				SentimentScore:   old.SentimentScore,
				SentimentOverall: old.SentimentOverall,
				Aspects:          old.Aspects,
				Topics:           old.Topics,
			}, old.IngestedAt)
			continue
		}
		pending = append(pending, rv)
		slots = append(slots, i)
	}
	if len(pending) == 0 {
		return rows, nil
	}

	factory := r.NewScorer
	if factory == nil {
		factory = sentiment.New
	}
	opts := r.Config.SentimentOptions()
	scorer, fallback, err := factory(ctx, opts, vocab.PromptBlock(opts.VocabularyTerms))
	if err != nil {
		return nil, fmt.Errorf("sentiment scorer: %w", err)
	}
	log.Info("scoring reviews", zap.Int("reviews", len(pending)), zap.String("provider", opts.Provider))
	anns, err := sentiment.Annotator{
		Scorer:      scorer,
		Fallback:    fallback,
		Concurrency: opts.Concurrency,
		Log:         log,
	}.Annotate(ctx, pending)
	if err != nil {
		return nil, err
	}

	ingestedAt := r.now()
	for j, rv := range pending {
		row := pulse.NewReviewHistoryRow(rv, anns[j], ingestedAt)
		pulse.MergeVocabulary(vocab, row.Aspects, row.WeekKey)
		rows[slots[j]] = row
	}
	return rows, nil
}

// changedRows counts fresh rows that would alter an already stored row.
func changedRows(fresh []pulse.ReviewHistoryRow, stored map[pulse.Identity]pulse.ReviewHistoryRow) int {
	var n int
	for _, f := range fresh {
		old, ok := stored[f.ReviewKey]
		if ok && !maps.Equal(ledger.EncodeReviewRow(old), ledger.EncodeReviewRow(f)) {
			n++
		}
	}
	return n
}

// reviewReport renders the review report of the anchor week from the merged history.
func (r *Runner) reviewReport(merged []pulse.ReviewHistoryRow, week string, rejected int) (report.Report, error) {
	ranges, err := pulse.PeriodRangesForWeek(week, pulse.ReviewDataSpan(merged))
	if err != nil {
		return report.Report{}, err
	}
	visible := pulse.FilterReviews(merged, ranges.All)
	current := pulse.FilterReviews(merged, ranges.Week)
	baseline, err := pulse.ReviewWeeks(merged, week, r.Config.BaselineWeeks)
	if err != nil {
		return report.Report{}, err
	}
	impacts := pulse.ComputeAspectImpacts(current, baseline, r.Config.Impact)
	worse, better := pulse.TopImpacts(impacts, r.Config.TopAspects)

	return r.assembler().Reviews(report.ReviewData{
		Hotel:          r.Config.Hotel,
		Ranges:         ranges,
		Slices:         pulse.SliceReviews(merged, ranges),
		PrevWeek:       pulse.SummarizeReviews(pulse.FilterReviews(merged, ranges.PrevWeek)),
		Worsening:      worse,
		Improving:      better,
		Impacts:        impacts,
		Sample:         report.SampleReviews(current),
		History:        pulse.BuildHistory(visible),
		SourcesHistory: pulse.BuildSourcesHistory(visible),
		BaselineWeeks:  r.Config.BaselineWeeks,
		Rejected:       rejected,
	})
}

// WeeklyReviews annotates the reviews of the newest export that the ledger does not hold yet,
// reports the anchor week and appends the new rows. Stored reviews of closed weeks are left as
// they are; stored reviews of the anchor week take the export's fresh metadata, which rewrites
// the table when any of them changed. The rewrite starts from the stored rows, so rows that do
// not decode survive it.
func (r *Runner) WeeklyReviews(ctx context.Context, opts Options) (Result, error) {
	res, log := r.begin(LineReviews, ModeWeekly, opts)
	started := r.now()

	week, err := r.anchorWeek(opts.WeekKey)
	if err != nil {
		return res, err
	}
	res.WeekKey = week
	log = log.With(zap.String("week_key", week))

	paths, err := inputs(r.Config.Reviews, opts.Input, false)
	if err != nil {
		return res, err
	}
	res.Inputs = paths
	reviews, rejected, err := r.readReviews(ctx, log, paths)
	res.Rejected = rejected
	if err != nil {
		return res, err
	}
	res.Accepted = len(reviews)

	var rep report.Report
	err = r.withLock(ctx, opts.DryRun, func(ctx context.Context) error {
		history, err := r.History.Reviews(ctx)
		if err != nil {
			return err
		}
		stored := storedIndex(history)

		var todo []pulse.Review
		for _, rv := range reviews {
			if _, ok := stored[rv.Key]; ok && pulse.WeekKey(rv.Date) != week {
				res.Skipped++
				continue
			}
			todo = append(todo, rv)
		}

		vocab, err := r.vocabulary()
		if err != nil {
			return err
		}
		fresh, err := r.annotate(ctx, log, todo, stored, &vocab, false)
		if err != nil {
			return err
		}
		merged := pulse.MergeReviewRows(history, fresh, week)
		rep, err = r.reviewReport(merged, week, rejected)
		if err != nil {
			return err
		}
		if opts.DryRun {
			return nil
		}

		if changed := changedRows(fresh, stored); changed > 0 {
			stats, err := r.History.UpsertReviews(ctx, fresh)
			if err != nil {
				return err
			}
			res.Written = stats.Inserted + changed
			log.Info("reviews history rewritten for anchor week updates", zap.Int("changed", changed))
		} else {
			stats, err := r.History.InsertMissingReviews(ctx, fresh)
			if err != nil {
				return err
			}
			res.Written = stats.Inserted
			res.Skipped += stats.Skipped
		}
		log.Info("reviews history updated", zap.Int("written", res.Written), zap.Int("skipped", res.Skipped))
		if err := r.recordRun(ctx, res, started); err != nil {
			return err
		}
		return r.saveVocabulary(log, vocab)
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

// BackfillReviews rebuilds reviews_history from every matching export. Reviews already in the
// ledger keep their annotation unless opts.Rescore is set.
func (r *Runner) BackfillReviews(ctx context.Context, opts Options) (Result, error) {
	res, log := r.begin(LineReviews, ModeBackfill, opts)
	started := r.now()

	paths, err := inputs(r.Config.Reviews, opts.Input, true)
	if err != nil {
		return res, err
	}
	res.Inputs = paths
	reviews, rejected, err := r.readReviews(ctx, log, paths)
	res.Rejected = rejected
	if err != nil {
		return res, err
	}
	res.Accepted = len(reviews)

	err = r.withLock(ctx, opts.DryRun, func(ctx context.Context) error {
		history, err := r.History.Reviews(ctx)
		if err != nil {
			return err
		}
		vocab, err := r.vocabulary()
		if err != nil {
			return err
		}
		rows, err := r.annotate(ctx, log, reviews, storedIndex(history), &vocab, opts.Rescore)
		if err != nil {
			return err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if !rows[i].Date.Equal(rows[j].Date) {
				return rows[i].Date.Before(rows[j].Date)
			}
			return rows[i].ReviewKey < rows[j].ReviewKey
		})
		if len(rows) > 0 {
			res.WeekKey = rows[len(rows)-1].WeekKey
		}
		res.Written = len(rows)
		if opts.DryRun {
			log.Info("reviews backfill prepared", zap.Int("rows", len(rows)), zap.Int("previously_stored", len(history)))
			return nil
		}
		if err := r.History.ReplaceReviews(ctx, rows); err != nil {
			return err
		}
		log.Info("reviews history rebuilt", zap.Int("rows", len(rows)), zap.Int("previously_stored", len(history)))
		if err := r.recordRun(ctx, res, started); err != nil {
			return err
		}
		return r.saveVocabulary(log, vocab)
	})
	if err != nil {
		return res, err
	}
	return res, nil
}

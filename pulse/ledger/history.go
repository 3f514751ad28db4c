package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// History is the typed view of the ledger used by the pipelines.
type History struct {
	store Store
	log   *zap.Logger
}

func NewHistory(store Store, log *zap.Logger) *History {
	if log == nil {
		log = zap.NewNop()
	}
	return &History{store: store, log: log}
}

// Store exposes the underlying table store.
func (h *History) Store() Store { return h.store }

// Lock serializes a run when the store supports it; otherwise it is a no-op.
func (h *History) Lock(ctx context.Context) (func() error, error) {
	l, ok := h.store.(Locker)
	if !ok {
		return func() error { return nil }, nil
	}
	release, err := l.Lock(ctx)
	if err != nil {
		return nil, pulse.LedgerUnavailable("*", "lock", err)
	}
	return release, nil
}

func (h *History) read(ctx context.Context, table string) ([]Row, error) {
	rows, err := h.store.ReadAll(ctx, table)
	if err != nil {
		return nil, pulse.LedgerUnavailable(table, "read", err)
	}
	return rows, nil
}

// Surveys reads surveys_history. Rows that fail to decode are logged and skipped.
func (h *History) Surveys(ctx context.Context) ([]pulse.SurveyMetricRow, error) {
	rows, err := h.read(ctx, SurveysTable)
	if err != nil {
		return nil, err
	}
	out := make([]pulse.SurveyMetricRow, 0, len(rows))
	for i, r := range rows {
		m, err := DecodeSurveyRow(r)
		if err != nil {
			h.log.Warn("skipping malformed ledger row", zap.String("table", SurveysTable), zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Reviews reads reviews_history. Rows that fail to decode are logged and skipped.
func (h *History) Reviews(ctx context.Context) ([]pulse.ReviewHistoryRow, error) {
	rows, err := h.read(ctx, ReviewsTable)
	if err != nil {
		return nil, err
	}
	out := make([]pulse.ReviewHistoryRow, 0, len(rows))
	for i, r := range rows {
		m, err := DecodeReviewRow(r)
		if err != nil {
			h.log.Warn("skipping malformed ledger row", zap.String("table", ReviewsTable), zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func encodeSurveys(rows []pulse.SurveyMetricRow) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = EncodeSurveyRow(r)
	}
	return out
}

func encodeReviews(rows []pulse.ReviewHistoryRow) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = EncodeReviewRow(r)
	}
	return out
}

// UpsertSurveys replaces the stored rows of every (week_key, param) present in rows.
func (h *History) UpsertSurveys(ctx context.Context, rows []pulse.SurveyMetricRow) (pulse.MergeStats, error) {
	return UpsertPartition(ctx, h.store, SurveysSchema, encodeSurveys(rows))
}

// InsertMissingReviews appends reviews whose review_key is not stored yet.
func (h *History) InsertMissingReviews(ctx context.Context, rows []pulse.ReviewHistoryRow) (pulse.MergeStats, error) {
	return InsertMissing(ctx, h.store, ReviewsSchema, encodeReviews(rows))
}

// UpsertReviews replaces the stored rows whose review_key appears in rows and appends the rest.
// Other stored rows are kept as stored, including ones that do not decode.
func (h *History) UpsertReviews(ctx context.Context, rows []pulse.ReviewHistoryRow) (pulse.MergeStats, error) {
	return UpsertPartition(ctx, h.store, ReviewsSchema, encodeReviews(rows))
}

// ReplaceSurveys rewrites surveys_history.
func (h *History) ReplaceSurveys(ctx context.Context, rows []pulse.SurveyMetricRow) error {
	if err := h.store.ReplaceAll(ctx, SurveysTable, encodeSurveys(rows)); err != nil {
		return pulse.LedgerUnavailable(SurveysTable, "replace", err)
	}
	return nil
}

// ReplaceReviews rewrites reviews_history.
func (h *History) ReplaceReviews(ctx context.Context, rows []pulse.ReviewHistoryRow) error {
	if err := h.store.ReplaceAll(ctx, ReviewsTable, encodeReviews(rows)); err != nil {
		return pulse.LedgerUnavailable(ReviewsTable, "replace", err)
	}
	return nil
}

// RecordRun appends one run record.
func (h *History) RecordRun(ctx context.Context, r RunRecord) error {
	if err := h.store.Append(ctx, RunsTable, []Row{EncodeRunRecord(r)}); err != nil {
		return pulse.LedgerUnavailable(RunsTable, "append", err)
	}
	return nil
}

// Runs reads the run log, oldest first.
func (h *History) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := h.read(ctx, RunsTable)
	if err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(rows))
	for i, r := range rows {
		rec, err := DecodeRunRecord(r)
		if err != nil {
			h.log.Warn("skipping malformed ledger row", zap.String("table", RunsTable), zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// CoalesceSurveys collapses duplicate (week_key, param) rows, keeping the most answered one, and
// rewrites the table unless dryRun is set. It returns how many rows were dropped. It works on the
// stored rows as they are: a row that does not decode is kept unless a decodable row shares
// its key.
func (h *History) CoalesceSurveys(ctx context.Context, dryRun bool) (int, error) {
	rows, err := h.read(ctx, SurveysTable)
	if err != nil {
		return 0, err
	}
	kept, dropped := pulse.CoalesceByKey(rows, SurveysSchema.KeyOf, func(c, cur Row) bool {
		return answeredRank(c) >= answeredRank(cur)
	})
	if dropped == 0 || dryRun {
		return dropped, nil
	}
	if err := h.store.ReplaceAll(ctx, SurveysTable, kept); err != nil {
		return 0, pulse.LedgerUnavailable(SurveysTable, "replace", err)
	}
	return dropped, nil
}

// answeredRank is the answered count of a decodable row and -1 otherwise.
func answeredRank(r Row) int {
	m, err := DecodeSurveyRow(r)
	if err != nil {
		return -1
	}
	return m.Answered
}

// Issue is one problem found by Verify.
type Issue struct {
	Table  string
	Key    string
	Detail string
}

func (i Issue) String() string { return fmt.Sprintf("%s %s: %s", i.Table, i.Key, i.Detail) }

// Verify checks key uniqueness and row decodability of both history tables.
func (h *History) Verify(ctx context.Context) ([]Issue, error) {
	var issues []Issue
	for _, sc := range []Schema{SurveysSchema, ReviewsSchema} {
		rows, err := h.read(ctx, sc.Table)
		if err != nil {
			return nil, err
		}
		for _, k := range DuplicateKeys(sc, rows) {
			issues = append(issues, Issue{Table: sc.Table, Key: k, Detail: "duplicate key"})
		}
		for _, r := range rows {
			var derr error
			switch sc.Table {
			case SurveysTable:
				_, derr = DecodeSurveyRow(r)
			case ReviewsTable:
				_, derr = DecodeReviewRow(r)
			}
			if derr != nil {
				issues = append(issues, Issue{Table: sc.Table, Key: sc.KeyOf(r), Detail: derr.Error()})
			}
		}
	}
	return issues, nil
}

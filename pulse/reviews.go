package pulse

import (
	"fmt"
	"sort"
)

// ReviewKPI summarizes a set of reviews.
type ReviewKPI struct {
	Reviews   int      `json:"reviews"`
	Rated     int      `json:"rated"`
	Avg10     *float64 `json:"avg10,omitempty"`
	Positive  int      `json:"pos"`
	Neutral   int      `json:"neu"`
	Negative  int      `json:"neg"`
	Responded int      `json:"responded"`
}

// Share returns the fraction of reviews carrying sentiment s, or 0 for an empty set.
func (k ReviewKPI) Share(s Sentiment) float64 {
	if k.Reviews == 0 {
		return 0
	}
	var n int
	switch s {
	case Positive:
		n = k.Positive
	case Negative:
		n = k.Negative
	default:
		n = k.Neutral
	}
	return float64(n) / float64(k.Reviews)
}

// SummarizeReviews computes review counts, the mean rating over rated reviews and the sentiment
// split.
func SummarizeReviews(rows []ReviewHistoryRow) ReviewKPI {
	var k ReviewKPI
	var sum float64
	for _, r := range rows {
		k.Reviews++
		if r.Rating10 != nil {
			k.Rated++
			sum += *r.Rating10
		}
		switch r.SentimentOverall {
		case Positive:
			k.Positive++
		case Negative:
			k.Negative++
		default:
			k.Neutral++
		}
		if r.HasResponse {
			k.Responded++
		}
	}
	if k.Rated > 0 {
		k.Avg10 = floatPtr(Round(sum/float64(k.Rated), 2))
	}
	return k
}

// FilterReviews returns the rows dated within r.
func FilterReviews(rows []ReviewHistoryRow, r DateRange) []ReviewHistoryRow {
	var out []ReviewHistoryRow
	for _, row := range rows {
		if r.Contains(row.Date) {
			out = append(out, row)
		}
	}
	return out
}

// SourceSummary is the KPI block of one review platform.
type SourceSummary struct {
	Source string `json:"source"`
	ReviewKPI
}

// SummarizeSources groups rows by source, busiest first, ties by name.
func SummarizeSources(rows []ReviewHistoryRow) []SourceSummary {
	bySource := make(map[string][]ReviewHistoryRow)
	for _, r := range rows {
		bySource[r.Source] = append(bySource[r.Source], r)
	}
	out := make([]SourceSummary, 0, len(bySource))
	for src, rs := range bySource {
		out = append(out, SourceSummary{Source: src, ReviewKPI: SummarizeReviews(rs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reviews != out[j].Reviews {
			return out[i].Reviews > out[j].Reviews
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// ReviewSlice is the review view of one report period.
type ReviewSlice struct {
	Period  Period          `json:"period"`
	Range   DateRange       `json:"range"`
	Label   string          `json:"label"`
	KPI     ReviewKPI       `json:"kpi"`
	Sources []SourceSummary `json:"sources"`
}

// SliceReviews summarizes rows for every report period by review date.
func SliceReviews(rows []ReviewHistoryRow, ranges PeriodRanges) map[Period]ReviewSlice {
	out := make(map[Period]ReviewSlice, len(ReportPeriods))
	for _, p := range ReportPeriods {
		r, _ := ranges.Range(p)
		in := FilterReviews(rows, r)
		out[p] = ReviewSlice{
			Period:  p,
			Range:   r,
			Label:   ranges.Label(p),
			KPI:     SummarizeReviews(in),
			Sources: SummarizeSources(in),
		}
	}
	return out
}

// Period types of the review history pivot.
const (
	PeriodTypeWeek    = "week"
	PeriodTypeMonth   = "month"
	PeriodTypeQuarter = "quarter"
	PeriodTypeYear    = "year"
)

var periodTypes = []string{PeriodTypeWeek, PeriodTypeMonth, PeriodTypeQuarter, PeriodTypeYear}

// HistoryRow is the KPI block of one calendar bucket.
type HistoryRow struct {
	PeriodType string `json:"period_type"`
	PeriodKey  string `json:"period_key"`
	ReviewKPI
}

func bucketKey(periodType string, r ReviewHistoryRow) string {
	switch periodType {
	case PeriodTypeWeek:
		if r.WeekKey != "" {
			return r.WeekKey
		}
		return WeekKey(r.Date)
	case PeriodTypeMonth:
		return MonthKey(r.Date)
	case PeriodTypeQuarter:
		return fmt.Sprintf("%d-Q%d", r.Date.Year(), (int(r.Date.Month())-1)/3+1)
	default:
		return fmt.Sprintf("%d", r.Date.Year())
	}
}

// BuildHistory pivots rows into week, month, quarter and year buckets, ordered by type then key.
func BuildHistory(rows []ReviewHistoryRow) []HistoryRow {
	var out []HistoryRow
	for _, pt := range periodTypes {
		buckets := make(map[string][]ReviewHistoryRow)
		for _, r := range rows {
			k := bucketKey(pt, r)
			buckets[k] = append(buckets[k], r)
		}
		keys := make([]string, 0, len(buckets))
		for k := range buckets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, HistoryRow{PeriodType: pt, PeriodKey: k, ReviewKPI: SummarizeReviews(buckets[k])})
		}
	}
	return out
}

// SourceWeekRow is the KPI block of one source in one week.
type SourceWeekRow struct {
	WeekKey string `json:"week_key"`
	Source  string `json:"source"`
	ReviewKPI
}

// BuildSourcesHistory pivots rows per (week, source), ordered by week then source.
func BuildSourcesHistory(rows []ReviewHistoryRow) []SourceWeekRow {
	type key struct{ week, source string }
	buckets := make(map[key][]ReviewHistoryRow)
	for _, r := range rows {
		k := key{week: bucketKey(PeriodTypeWeek, r), source: r.Source}
		buckets[k] = append(buckets[k], r)
	}
	out := make([]SourceWeekRow, 0, len(buckets))
	for k, rs := range buckets {
		out = append(out, SourceWeekRow{WeekKey: k.week, Source: k.source, ReviewKPI: SummarizeReviews(rs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeekKey != out[j].WeekKey {
			return out[i].WeekKey < out[j].WeekKey
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// ReviewWeeks returns the rows of the n weeks immediately before weekKey.
func ReviewWeeks(rows []ReviewHistoryRow, weekKey string, n int) ([]ReviewHistoryRow, error) {
	monday, err := ParseWeekKey(weekKey)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	r := DateRange{Start: monday.AddDate(0, 0, -7*n), End: monday.AddDate(0, 0, -1)}
	return FilterReviews(rows, r), nil
}

// ReviewDataSpan is the range of review dates present in rows.
func ReviewDataSpan(rows []ReviewHistoryRow) DateRange {
	var r DateRange
	for _, row := range rows {
		d := Day(row.Date)
		if r.IsZero() {
			r = DateRange{Start: d, End: d}
			continue
		}
		if d.Before(r.Start) {
			r.Start = d
		}
		if d.After(r.End) {
			r.End = d
		}
	}
	return r
}

// DedupeReviews keeps one review per key at the position of its first occurrence, holding the
// content of the last. Repeats whose content differs are reported as collisions.
func DedupeReviews(in []Review) ([]Review, []*IdentityCollision) {
	pos := make(map[Identity]int, len(in))
	out := make([]Review, 0, len(in))
	var collisions []*IdentityCollision
	for _, r := range in {
		if r.Key == "" {
			r.Key = ReviewKey(r.Source, r.Author, r.Date, r.Text)
		}
		i, ok := pos[r.Key]
		if !ok {
			pos[r.Key] = len(out)
			out = append(out, r)
			continue
		}
		prev := out[i]
		if prev.Text != r.Text || !sameRating(prev.Rating10, r.Rating10) || prev.HasResponse != r.HasResponse {
			collisions = append(collisions, &IdentityCollision{Key: r.Key, First: prev.Text, Second: r.Text})
		}
		out[i] = r
	}
	return out, collisions
}

func sameRating(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

package pulse

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func ip(v int) *int { return &v }

func weekRows(week string, total, answered int, avg float64, p, d, n int) []SurveyMetricRow {
	return []SurveyMetricRow{
		{WeekKey: week, Param: ParamOverall, SurveysTotal: total, Answered: answered, Avg5: f(avg)},
		{WeekKey: week, Param: ParamNPS, SurveysTotal: total, Answered: n, Promoters: ip(p), Detractors: ip(d), NPSAnswers: ip(n), NPSValue: ip(NPSScore(p, d, n))},
	}
}

func TestSummarizeSurveys_WeightsAndRecomputesNPS(t *testing.T) {
	t.Parallel()

	var rows []SurveyMetricRow
	rows = append(rows, weekRows("2025-W05", 4, 4, 4.0, 2, 1, 4)...)
	rows = append(rows, weekRows("2025-W06", 6, 6, 5.0, 3, 0, 3)...)

	r := DateRange{Start: date(2025, time.January, 1), End: date(2025, time.February, 9)}
	got := SummarizeSurveys(rows, r)
	want := []ParamSummary{
		{Param: ParamOverall, Weeks: 2, SurveysTotal: 10, Answered: 10, Avg5: f(4.6)},
		{Param: ParamNPS, Weeks: 2, SurveysTotal: 10, Answered: 7, Promoters: 5, Detractors: 1, NPSAnswers: 7, NPSValue: ip(57)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestSlicePeriods_NestedCounts(t *testing.T) {
	t.Parallel()

	var rows []SurveyMetricRow
	for i, wk := range []string{"2024-W50", "2025-W02", "2025-W05", "2025-W06", "2025-W07"} {
		rows = append(rows, weekRows(wk, i+1, i+1, 4.0, 1, 0, 1)...)
	}
	pr, err := PeriodRangesForWeek("2025-W06", SurveyDataSpan(rows))
	if err != nil {
		t.Fatalf("ranges: %v", err)
	}
	slices := SlicePeriods(rows, pr)

	totals := map[Period]int{}
	for _, p := range ReportPeriods {
		totals[p] = slices[p].SurveysTotal()
	}
	want := map[Period]int{
		PeriodWeek: 4,
		PeriodMTD:  4,
		PeriodQTD:  2 + 3 + 4,
		PeriodYTD:  2 + 3 + 4,
		PeriodAll:  1 + 2 + 3 + 4,
	}
	if diff := cmp.Diff(want, totals); diff != "" {
		t.Fatalf("totals mismatch (-want +got):\n%s", diff)
	}
	for _, p := range []Period{PeriodMTD, PeriodQTD, PeriodYTD, PeriodAll} {
		if slices[p].SurveysTotal() < slices[PeriodWeek].SurveysTotal() {
			t.Fatalf("%s smaller than week", p)
		}
	}
}

func TestMergeSurveyRows_NoDoubleCounting(t *testing.T) {
	t.Parallel()

	history := append(weekRows("2025-W05", 4, 4, 4.0, 1, 1, 2), weekRows("2025-W06", 2, 2, 3.0, 0, 1, 1)...)
	fresh := weekRows("2025-W06", 5, 5, 4.4, 2, 1, 4)

	merged := MergeSurveyRows(history, fresh)
	if len(merged) != 4 {
		t.Fatalf("merged=%d rows", len(merged))
	}
	pr, _ := PeriodRangesForWeek("2025-W06", SurveyDataSpan(merged))
	s := SlicePeriods(merged, pr)
	if got := s[PeriodWeek].SurveysTotal(); got != 5 {
		t.Fatalf("week total=%d, want fresh 5", got)
	}
	if got := s[PeriodAll].SurveysTotal(); got != 9 {
		t.Fatalf("all total=%d, want 9", got)
	}
}

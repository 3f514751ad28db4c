package pulse

import (
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func survey(d time.Time, name string, overall float64, nps *float64) SurveyResponse {
	return SurveyResponse{
		Date:    d,
		Name:    name,
		Answers: map[string]float64{ParamOverall: overall},
		NPS:     nps,
	}
}

func rowFor(t *testing.T, rows []SurveyMetricRow, param string) SurveyMetricRow {
	t.Helper()
	for _, r := range rows {
		if r.Param == param {
			return r
		}
	}
	t.Fatalf("no row for %s in %+v", param, rows)
	return SurveyMetricRow{}
}

func TestAggregateWeek_NPSExample(t *testing.T) {
	t.Parallel()

	d := date(2025, time.February, 4)
	rows := AggregateWeek([]SurveyResponse{
		survey(d, "a", 5, f(10)),
		survey(d, "b", 4, f(3)),
		survey(d, "c", 4, nil),
	}, "2025-W06")

	nps := rowFor(t, rows, ParamNPS)
	if *nps.Promoters != 1 || *nps.Detractors != 1 || *nps.NPSAnswers != 2 || *nps.NPSValue != 0 {
		t.Fatalf("nps row=%+v", nps)
	}
	if nps.SurveysTotal != 3 {
		t.Fatalf("surveys_total=%d, want 3", nps.SurveysTotal)
	}

	overall := rowFor(t, rows, ParamOverall)
	if overall.Answered != 3 || overall.Avg5 == nil || *overall.Avg5 != 4.33 {
		t.Fatalf("overall=%+v", overall)
	}
	if overall.Promoters != nil || overall.NPSValue != nil {
		t.Fatalf("overall carries nps fields: %+v", overall)
	}
}

func TestAggregateWeek_AllNPSNull(t *testing.T) {
	t.Parallel()

	d := date(2025, time.February, 4)
	rows := AggregateWeek([]SurveyResponse{survey(d, "a", 5, nil), survey(d, "b", 3, nil)}, "2025-W06")
	nps := rowFor(t, rows, ParamNPS)
	if *nps.NPSAnswers != 0 || *nps.NPSValue != 0 {
		t.Fatalf("nps row=%+v", nps)
	}
	breakfast := rowFor(t, rows, "breakfast")
	if breakfast.Answered != 0 || breakfast.Avg5 != nil || breakfast.SurveysTotal != 2 {
		t.Fatalf("breakfast=%+v", breakfast)
	}
}

func TestAggregateWeek_IgnoresOtherWeeksAndEmpty(t *testing.T) {
	t.Parallel()

	rows := AggregateWeek([]SurveyResponse{survey(date(2025, time.February, 10), "a", 5, nil)}, "2025-W06")
	if rows != nil {
		t.Fatalf("rows=%+v, want none", rows)
	}
}

func TestAggregateAllWeeks_OrderedByWeek(t *testing.T) {
	t.Parallel()

	rows := AggregateAllWeeks([]SurveyResponse{
		survey(date(2025, time.February, 11), "a", 5, f(9)),
		survey(date(2025, time.February, 4), "b", 4, f(6)),
	})
	if len(rows) != 2*(len(SurveyParams)+1) {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0].WeekKey != "2025-W06" || rows[len(rows)-1].WeekKey != "2025-W07" {
		t.Fatalf("order: first=%s last=%s", rows[0].WeekKey, rows[len(rows)-1].WeekKey)
	}
}

func TestNPSScore_Rounding(t *testing.T) {
	t.Parallel()

	if got := NPSScore(2, 1, 3); got != 33 {
		t.Fatalf("got %d", got)
	}
	if got := NPSScore(0, 1, 2); got != -50 {
		t.Fatalf("got %d", got)
	}
	if got := NPSScore(0, 0, 0); got != 0 {
		t.Fatalf("got %d", got)
	}
}

func TestDedupeSurveys_LaterWinsAndFlagsCollisions(t *testing.T) {
	t.Parallel()

	d := date(2025, time.February, 4)
	a := survey(d, "Anna", 5, f(10))
	a.Booking = "B-1"
	dup := a
	changed := survey(d, "Anna", 3, f(10))
	changed.Booking = "B-1"
	other := survey(d, "Oleg", 4, nil)

	out, collisions := DedupeSurveys([]SurveyResponse{a, other, dup})
	if len(out) != 2 || len(collisions) != 0 {
		t.Fatalf("out=%d collisions=%d", len(out), len(collisions))
	}

	out, collisions = DedupeSurveys([]SurveyResponse{a, changed})
	if len(out) != 1 || len(collisions) != 1 {
		t.Fatalf("out=%d collisions=%d", len(out), len(collisions))
	}
	if out[0].Answers[ParamOverall] != 3 {
		t.Fatalf("later row should win, got %+v", out[0])
	}
	if out[0].Key == "" {
		t.Fatalf("key not assigned")
	}
}

func TestDedupeSurveys_KeepsUnkeyedAnonymousResponses(t *testing.T) {
	t.Parallel()

	d := date(2025, time.February, 3)
	promoter := survey(d, "", 5, f(9))
	detractor := survey(d, "", 5, f(3))
	out, collisions := DedupeSurveys([]SurveyResponse{promoter, detractor, promoter})
	if len(out) != 3 || len(collisions) != 0 {
		t.Fatalf("out=%d collisions=%d", len(out), len(collisions))
	}

	rows := AggregateWeek(out, WeekKey(d))
	nps := rowFor(t, rows, ParamNPS)
	if nps.SurveysTotal != 3 || *nps.Promoters != 2 || *nps.Detractors != 1 || *nps.NPSAnswers != 3 {
		t.Fatalf("nps row=%+v", nps)
	}
}

func TestAnonymousSurveyKey_OrdinalAndAnswersMatter(t *testing.T) {
	t.Parallel()

	d := date(2025, time.February, 3)
	r := survey(d, "", 5, f(9))
	if r.Identified() {
		t.Fatalf("no booking, name or contact")
	}
	sig := r.AnswerSignature()
	if AnonymousSurveyKey(d, "", sig, 1) == AnonymousSurveyKey(d, "", sig, 2) {
		t.Fatalf("ordinal must change the key")
	}
	if AnonymousSurveyKey(d, "", sig, 1) == AnonymousSurveyKey(d, "", survey(d, "", 5, f(3)).AnswerSignature(), 1) {
		t.Fatalf("answers must change the key")
	}
	if AnonymousSurveyKey(d, "", sig, 1) != AnonymousSurveyKey(d, "", sig, 1) {
		t.Fatalf("key must be deterministic")
	}
	r.Email = "guest@example.com"
	if !r.Identified() || r.Contact() != "guest@example.com" {
		t.Fatalf("email identifies the respondent")
	}
}


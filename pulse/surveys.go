package pulse

import (
	"math"
	"sort"
)

// IsPromoter reports whether a 0-10 answer counts as a promoter.
func IsPromoter(v float64) bool { return v >= 9 }

// IsDetractor reports whether a 0-10 answer counts as a detractor.
func IsDetractor(v float64) bool { return v <= 6 }

// NPSScore is round(100*(promoters-detractors)/answers), and 0 when nobody answered.
func NPSScore(promoters, detractors, answers int) int {
	if answers <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(promoters-detractors) / float64(answers)))
}

// AggregateWeek builds the metric rows for weekKey from the responses dated in that week.
// Responses from other weeks are ignored.
func AggregateWeek(responses []SurveyResponse, weekKey string) []SurveyMetricRow {
	var in []SurveyResponse
	for _, r := range responses {
		if WeekKey(r.Date) == weekKey {
			in = append(in, r)
		}
	}
	return aggregateSurveys(weekKey, in)
}

// AggregateAllWeeks builds metric rows for every week present in responses, oldest first.
func AggregateAllWeeks(responses []SurveyResponse) []SurveyMetricRow {
	byWeek := make(map[string][]SurveyResponse)
	for _, r := range responses {
		k := WeekKey(r.Date)
		byWeek[k] = append(byWeek[k], r)
	}
	weeks := make([]string, 0, len(byWeek))
	for k := range byWeek {
		weeks = append(weeks, k)
	}
	sort.Strings(weeks)

	var out []SurveyMetricRow
	for _, k := range weeks {
		out = append(out, aggregateSurveys(k, byWeek[k])...)
	}
	return out
}

// aggregateSurveys emits one row per scored parameter plus the nps row. Every row carries the
// number of questionnaires in the batch; unanswered parameters have a nil avg5.
func aggregateSurveys(weekKey string, rs []SurveyResponse) []SurveyMetricRow {
	if len(rs) == 0 {
		return nil
	}
	total := len(rs)
	out := make([]SurveyMetricRow, 0, len(SurveyParams)+1)
	for _, p := range SurveyParams {
		var sum float64
		var n int
		for _, r := range rs {
			if v, ok := r.Answers[p]; ok {
				sum += v
				n++
			}
		}
		row := SurveyMetricRow{WeekKey: weekKey, Param: p, SurveysTotal: total, Answered: n}
		if n > 0 {
			row.Avg5 = floatPtr(Round(sum/float64(n), 2))
		}
		out = append(out, row)
	}

	var promoters, detractors, answers int
	for _, r := range rs {
		if r.NPS == nil {
			continue
		}
		answers++
		switch {
		case IsPromoter(*r.NPS):
			promoters++
		case IsDetractor(*r.NPS):
			detractors++
		}
	}
	out = append(out, SurveyMetricRow{
		WeekKey:      weekKey,
		Param:        ParamNPS,
		SurveysTotal: total,
		Answered:     answers,
		Promoters:    intPtr(promoters),
		Detractors:   intPtr(detractors),
		NPSAnswers:   intPtr(answers),
		NPSValue:     intPtr(NPSScore(promoters, detractors, answers)),
	})
	return out
}

// DedupeSurveys drops repeated questionnaires, keeping the last occurrence of each key in its
// original position. Repeats whose answers differ are returned as collisions. An anonymous
// response without a key cannot be told apart from another one and is always kept.
func DedupeSurveys(in []SurveyResponse) ([]SurveyResponse, []*IdentityCollision) {
	last := make(map[Identity]int, len(in))
	for i, r := range in {
		if k := surveyKeyOf(r); k != "" {
			last[k] = i
		}
	}
	var collisions []*IdentityCollision
	out := make([]SurveyResponse, 0, len(in))
	for i, r := range in {
		k := surveyKeyOf(r)
		if k == "" {
			out = append(out, r)
			continue
		}
		if j := last[k]; j != i {
			if !sameAnswers(r, in[j]) {
				collisions = append(collisions, &IdentityCollision{Key: k, First: r.Comment, Second: in[j].Comment})
			}
			continue
		}
		r.Key = k
		out = append(out, r)
	}
	return out, collisions
}

func surveyKeyOf(r SurveyResponse) Identity {
	if r.Key != "" {
		return r.Key
	}
	if !r.Identified() {
		return ""
	}
	return SurveyKey(r.Date, r.Booking, r.Name, r.Contact(), r.Comment)
}

func sameAnswers(a, b SurveyResponse) bool {
	if len(a.Answers) != len(b.Answers) {
		return false
	}
	for k, v := range a.Answers {
		if w, ok := b.Answers[k]; !ok || w != v {
			return false
		}
	}
	switch {
	case a.NPS == nil && b.NPS == nil:
		return true
	case a.NPS == nil || b.NPS == nil:
		return false
	}
	return *a.NPS == *b.NPS
}

// SortSurveyRows orders rows by week, then parameter order.
func SortSurveyRows(rows []SurveyMetricRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].WeekKey != rows[j].WeekKey {
			return rows[i].WeekKey < rows[j].WeekKey
		}
		ri, rj := paramRank(rows[i].Param), paramRank(rows[j].Param)
		if ri != rj {
			return ri < rj
		}
		return rows[i].Param < rows[j].Param
	})
}

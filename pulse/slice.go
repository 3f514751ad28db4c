package pulse

import (
	"sort"
	"time"
)

// ParamSummary is one parameter re-aggregated over a range of weeks.
type ParamSummary struct {
	Param        string   `json:"param"`
	Weeks        int      `json:"weeks"`
	SurveysTotal int      `json:"surveys_total"`
	Answered     int      `json:"answered"`
	Avg5         *float64 `json:"avg5,omitempty"`
	Promoters    int      `json:"promoters,omitempty"`
	Detractors   int      `json:"detractors,omitempty"`
	NPSAnswers   int      `json:"nps_answers,omitempty"`
	NPSValue     *int     `json:"nps_value,omitempty"`
}

// SurveySlice is the survey view of one report period.
type SurveySlice struct {
	Period Period         `json:"period"`
	Range  DateRange      `json:"range"`
	Label  string         `json:"label"`
	Params []ParamSummary `json:"params"`
}

// Param looks up one parameter summary.
func (s SurveySlice) Param(code string) (ParamSummary, bool) {
	for _, p := range s.Params {
		if p.Param == code {
			return p, true
		}
	}
	return ParamSummary{}, false
}

// SurveysTotal is the questionnaire count of the slice.
func (s SurveySlice) SurveysTotal() int {
	if p, ok := s.Param(ParamOverall); ok {
		return p.SurveysTotal
	}
	if p, ok := s.Param(ParamNPS); ok {
		return p.SurveysTotal
	}
	return 0
}

// SlicePeriods re-aggregates weekly rows for every report period. A week belongs to a range when
// its Monday does. Rows must already be merged so each (week_key, param) appears once.
func SlicePeriods(rows []SurveyMetricRow, ranges PeriodRanges) map[Period]SurveySlice {
	out := make(map[Period]SurveySlice, len(ReportPeriods))
	for _, p := range ReportPeriods {
		r, _ := ranges.Range(p)
		out[p] = SurveySlice{
			Period: p,
			Range:  r,
			Label:  ranges.Label(p),
			Params: SummarizeSurveys(rows, r),
		}
	}
	return out
}

// SummarizeSurveys sums counts, weights avg5 by answers and recomputes NPS from summed
// promoters, detractors and answers. Rows with malformed week keys are skipped.
func SummarizeSurveys(rows []SurveyMetricRow, r DateRange) []ParamSummary {
	type acc struct {
		ParamSummary
		weighted float64
		weight   int
		nps      bool
	}
	byParam := make(map[string]*acc)
	for _, row := range rows {
		monday, err := ParseWeekKey(row.WeekKey)
		if err != nil || !r.Contains(monday) {
			continue
		}
		a, ok := byParam[row.Param]
		if !ok {
			a = &acc{ParamSummary: ParamSummary{Param: row.Param}}
			byParam[row.Param] = a
		}
		a.Weeks++
		a.SurveysTotal += row.SurveysTotal
		a.Answered += row.Answered
		if row.Avg5 != nil && row.Answered > 0 {
			a.weighted += *row.Avg5 * float64(row.Answered)
			a.weight += row.Answered
		}
		if row.NPSAnswers != nil {
			a.nps = true
			a.NPSAnswers += *row.NPSAnswers
			if row.Promoters != nil {
				a.Promoters += *row.Promoters
			}
			if row.Detractors != nil {
				a.Detractors += *row.Detractors
			}
		}
	}

	out := make([]ParamSummary, 0, len(byParam))
	for _, a := range byParam {
		s := a.ParamSummary
		if a.weight > 0 {
			s.Avg5 = floatPtr(Round(a.weighted/float64(a.weight), 2))
		}
		if a.nps {
			s.NPSValue = intPtr(NPSScore(s.Promoters, s.Detractors, s.NPSAnswers))
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := paramRank(out[i].Param), paramRank(out[j].Param)
		if ri != rj {
			return ri < rj
		}
		return out[i].Param < out[j].Param
	})
	return out
}

// SurveyDataSpan is the range from the first Monday to the last Sunday present in rows.
func SurveyDataSpan(rows []SurveyMetricRow) DateRange {
	var dates []time.Time
	for _, row := range rows {
		if monday, err := ParseWeekKey(row.WeekKey); err == nil {
			dates = append(dates, monday, monday.AddDate(0, 0, 6))
		}
	}
	return DataSpan(dates)
}

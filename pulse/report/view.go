package report

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ingest"
)

const missing = "n/a"

type surveyPeriodRow struct {
	Label, Range, Surveys, Overall, NPS string
}

type surveyParamRow struct {
	Label, Answered, Week, PrevWeek, Delta, MTD, QTD, YTD string
}

type surveyView struct {
	Title    string
	Periods  []surveyPeriodRow
	Params   []surveyParamRow
	Rejected int
	Empty    bool
}

var surveyTemplate = template.Must(template.New("surveys").Parse(`# {{.Title}}

{{if .Empty}}_No questionnaires were recorded this week._

{{end}}| Period | Dates | Surveys | Overall | NPS |
|---|---|---:|---:|---:|
{{range .Periods}}| {{.Label}} | {{.Range}} | {{.Surveys}} | {{.Overall}} | {{.NPS}} |
{{end}}
## Scores by parameter

| Parameter | Answers | Week | Previous week | Change | Month to date | Quarter to date | Year to date |
|---|---:|---:|---:|---:|---:|---:|---:|
{{range .Params}}| {{.Label}} | {{.Answered}} | {{.Week}} | {{.PrevWeek}} | {{.Delta}} | {{.MTD}} | {{.QTD}} | {{.YTD}} |
{{end}}
Scores are means on a 1-5 scale weighted by answers. NPS is the share of promoters (9-10) minus the
share of detractors (0-6) among 0-10 answers.
{{if .Rejected}}
{{.Rejected}} rows of the export were rejected and are not counted.
{{end}}`))

func newSurveyView(d SurveyData) surveyView {
	v := surveyView{
		Title:    title(d.Hotel, "Guest surveys", d.Ranges),
		Rejected: d.Rejected,
	}
	for _, p := range pulse.ReportPeriods {
		s := d.Slices[p]
		overall, _ := s.Param(pulse.ParamOverall)
		nps, _ := s.Param(pulse.ParamNPS)
		v.Periods = append(v.Periods, surveyPeriodRow{
			Label:   d.Ranges.Label(p),
			Range:   s.Range.Label(),
			Surveys: fmt.Sprint(s.SurveysTotal()),
			Overall: fmtAvg5(overall.Avg5),
			NPS:     fmtNPS(nps.NPSValue),
		})
	}
	week := d.Slices[pulse.PeriodWeek]
	v.Empty = week.SurveysTotal() == 0

	prev := map[string]pulse.ParamSummary{}
	for _, p := range d.PrevWeek {
		prev[p.Param] = p
	}
	for _, code := range surveyParamCodes(d.Slices) {
		w, _ := week.Param(code)
		pw := prev[code]
		row := surveyParamRow{
			Label:    pulse.ParamLabel(code),
			Answered: fmt.Sprint(answers(w)),
			Week:     paramValue(w),
			PrevWeek: paramValue(pw),
			Delta:    paramDelta(code, w, pw),
		}
		for _, col := range []struct {
			p   pulse.Period
			dst *string
		}{{pulse.PeriodMTD, &row.MTD}, {pulse.PeriodQTD, &row.QTD}, {pulse.PeriodYTD, &row.YTD}} {
			ps, _ := d.Slices[col.p].Param(code)
			*col.dst = paramValue(ps)
		}
		v.Params = append(v.Params, row)
	}
	return v
}

// surveyParamCodes lists every parameter present in any period, in report order.
func surveyParamCodes(slices map[pulse.Period]pulse.SurveySlice) []string {
	seen := map[string]bool{}
	for _, s := range slices {
		for _, p := range s.Params {
			seen[p.Param] = true
		}
	}
	var out []string
	for _, code := range append(append([]string(nil), pulse.SurveyParams...), pulse.ParamNPS) {
		if seen[code] {
			out = append(out, code)
			delete(seen, code)
		}
	}
	var rest []string
	for code := range seen {
		rest = append(rest, code)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func answers(p pulse.ParamSummary) int {
	if p.Param == pulse.ParamNPS {
		return p.NPSAnswers
	}
	return p.Answered
}

func paramValue(p pulse.ParamSummary) string {
	if p.Param == pulse.ParamNPS {
		return fmtNPS(p.NPSValue)
	}
	return fmtAvg5(p.Avg5)
}

func paramDelta(code string, cur, prev pulse.ParamSummary) string {
	if code == pulse.ParamNPS {
		if cur.NPSValue == nil || prev.NPSValue == nil {
			return ""
		}
		return fmtDelta(float64(*cur.NPSValue-*prev.NPSValue), 0, " pp")
	}
	if cur.Avg5 == nil || prev.Avg5 == nil {
		return ""
	}
	return fmtDelta(*cur.Avg5-*prev.Avg5, 1, "")
}

type reviewPeriodRow struct {
	Label, Range, Reviews, Avg10, Positive, Neutral, Negative, Responded string
}

type reviewSourceRow struct {
	Source, Reviews, Avg10, Positive, Negative string
}

type impactRow struct {
	Aspect, Delta, Mentions, Current, Baseline string
}

type sampleRow struct {
	Header, Text string
}

type reviewView struct {
	Title         string
	Periods       []reviewPeriodRow
	WeekChange    string
	Sources       []reviewSourceRow
	Worsening     []impactRow
	Improving     []impactRow
	Sample        []sampleRow
	BaselineWeeks int
	Rejected      int
	Empty         bool
}

var reviewTemplate = template.Must(template.New("reviews").Parse(`# {{.Title}}

{{if .Empty}}_No reviews were published this week._

{{end}}| Period | Dates | Reviews | Avg /10 | Positive | Neutral | Negative | Responded |
|---|---|---:|---:|---:|---:|---:|---:|
{{range .Periods}}| {{.Label}} | {{.Range}} | {{.Reviews}} | {{.Avg10}} | {{.Positive}} | {{.Neutral}} | {{.Negative}} | {{.Responded}} |
{{end}}
{{if .WeekChange}}Average rating against the previous week: {{.WeekChange}}.
{{end}}
## Sources this week
{{if .Sources}}
| Source | Reviews | Avg /10 | Positive | Negative |
|---|---:|---:|---:|---:|
{{range .Sources}}| {{.Source}} | {{.Reviews}} | {{.Avg10}} | {{.Positive}} | {{.Negative}} |
{{end}}{{else}}
No reviews.
{{end}}
## What moved the score

Mean sentiment of reviews mentioning an aspect this week against the previous {{.BaselineWeeks}} weeks.
{{if .Worsening}}
### Getting worse

| Aspect | Change | Mentions | This week | Baseline |
|---|---:|---:|---:|---:|
{{range .Worsening}}| {{.Aspect}} | {{.Delta}} | {{.Mentions}} | {{.Current}} | {{.Baseline}} |
{{end}}{{end}}{{if .Improving}}
### Getting better

| Aspect | Change | Mentions | This week | Baseline |
|---|---:|---:|---:|---:|
{{range .Improving}}| {{.Aspect}} | {{.Delta}} | {{.Mentions}} | {{.Current}} | {{.Baseline}} |
{{end}}{{end}}{{if not (or .Worsening .Improving)}}
No aspect moved beyond the noise threshold.
{{end}}{{if .Sample}}
## Reviews this week
{{range .Sample}}
**{{.Header}}**

> {{.Text}}
{{end}}{{end}}{{if .Rejected}}
{{.Rejected}} rows of the export were rejected and are not counted.
{{end}}`))

func newReviewView(d ReviewData, sampleSize int) reviewView {
	v := reviewView{
		Title:         title(d.Hotel, "Reviews", d.Ranges),
		BaselineWeeks: d.BaselineWeeks,
		Rejected:      d.Rejected,
	}
	for _, p := range pulse.ReportPeriods {
		s := d.Slices[p]
		k := s.KPI
		v.Periods = append(v.Periods, reviewPeriodRow{
			Label:     d.Ranges.Label(p),
			Range:     s.Range.Label(),
			Reviews:   fmt.Sprint(k.Reviews),
			Avg10:     fmtAvg10(k.Avg10),
			Positive:  fmtShare(k, pulse.Positive),
			Neutral:   fmtShare(k, pulse.Neutral),
			Negative:  fmtShare(k, pulse.Negative),
			Responded: fmt.Sprint(k.Responded),
		})
	}
	week := d.Slices[pulse.PeriodWeek]
	v.Empty = week.KPI.Reviews == 0
	if week.KPI.Avg10 != nil && d.PrevWeek.Avg10 != nil {
		v.WeekChange = fmtDelta(*week.KPI.Avg10-*d.PrevWeek.Avg10, 1, "")
	}
	for _, s := range week.Sources {
		v.Sources = append(v.Sources, reviewSourceRow{
			Source:   cell(ingest.SourceDisplayName(s.Source)),
			Reviews:  fmt.Sprint(s.Reviews),
			Avg10:    fmtAvg10(s.Avg10),
			Positive: fmtShare(s.ReviewKPI, pulse.Positive),
			Negative: fmtShare(s.ReviewKPI, pulse.Negative),
		})
	}
	v.Worsening = impactRows(d.Worsening)
	v.Improving = impactRows(d.Improving)

	for i, r := range d.Sample {
		if i == sampleSize {
			break
		}
		header := []string{ingest.SourceDisplayName(r.Source), r.Date.Format("2 Jan")}
		if r.Rating10 != nil {
			header = append(header, fmt.Sprintf("%g/10", *r.Rating10))
		}
		header = append(header, string(r.SentimentOverall))
		if len(r.Aspects) > 0 {
			header = append(header, strings.Join(r.Aspects, ", "))
		}
		v.Sample = append(v.Sample, sampleRow{
			Header: strings.Join(header, " · "),
			Text:   oneLine(r.TextTrimmed),
		})
	}
	return v
}

func impactRows(in []pulse.AspectImpact) []impactRow {
	out := make([]impactRow, 0, len(in))
	for _, a := range in {
		out = append(out, impactRow{
			Aspect:   cell(strings.ReplaceAll(a.Aspect, "_", " ")),
			Delta:    fmtDelta(a.Delta, 2, ""),
			Mentions: fmt.Sprint(a.SupportingCount),
			Current:  fmt.Sprintf("%+.2f", a.CurrentMean),
			Baseline: fmt.Sprintf("%+.2f", a.BaselineMean),
		})
	}
	return out
}

// SampleReviews orders a week's rows for quoting: most negative first, then newest.
func SampleReviews(rows []pulse.ReviewHistoryRow) []pulse.ReviewHistoryRow {
	out := append([]pulse.ReviewHistoryRow(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentimentScore != out[j].SentimentScore {
			return out[i].SentimentScore < out[j].SentimentScore
		}
		return out[i].Date.After(out[j].Date)
	})
	return out
}

func title(hotel, line string, r pulse.PeriodRanges) string {
	t := fmt.Sprintf("%s: week %s (%s)", line, r.WeekKey, r.Week.Label())
	if hotel != "" {
		t = hotel + ". " + t
	}
	return t
}

func fmtAvg5(v *float64) string {
	if v == nil {
		return missing
	}
	return fmt.Sprintf("%.2f", *v)
}

func fmtAvg10(v *float64) string {
	if v == nil {
		return missing
	}
	return fmt.Sprintf("%.1f", *v)
}

func fmtNPS(v *int) string {
	if v == nil {
		return missing
	}
	return fmt.Sprintf("%d", *v)
}

func fmtShare(k pulse.ReviewKPI, s pulse.Sentiment) string {
	if k.Reviews == 0 {
		return missing
	}
	return fmt.Sprintf("%.0f%%", k.Share(s)*100)
}

// fmtDelta renders a signed change with an arrow; a change that rounds to zero has none.
func fmtDelta(d float64, decimals int, suffix string) string {
	d = pulse.Round(d, decimals)
	switch {
	case d > 0:
		return fmt.Sprintf("▲ +%.*f%s", decimals, d, suffix)
	case d < 0:
		return fmt.Sprintf("▼ %.*f%s", decimals, d, suffix)
	}
	return fmt.Sprintf("%.*f%s", decimals, 0.0, suffix)
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

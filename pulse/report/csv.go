package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ingest"
)

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func kpiCells(k pulse.ReviewKPI) []string {
	return []string{
		strconv.Itoa(k.Reviews), strconv.Itoa(k.Rated), optFloat(k.Avg10),
		strconv.Itoa(k.Positive), strconv.Itoa(k.Neutral), strconv.Itoa(k.Negative),
		strconv.Itoa(k.Responded),
	}
}

var kpiHeader = []string{"reviews", "rated", "avg10", "pos", "neu", "neg", "responded"}

func surveyPeriodsCSV(d SurveyData) ([]byte, error) {
	var rows [][]string
	for _, p := range pulse.ReportPeriods {
		s := d.Slices[p]
		for _, ps := range s.Params {
			rows = append(rows, []string{
				string(p), s.Range.String(), ps.Param, pulse.ParamLabel(ps.Param),
				strconv.Itoa(ps.Weeks), strconv.Itoa(ps.SurveysTotal), strconv.Itoa(ps.Answered),
				optFloat(ps.Avg5), strconv.Itoa(ps.Promoters), strconv.Itoa(ps.Detractors),
				strconv.Itoa(ps.NPSAnswers), optInt(ps.NPSValue),
			})
		}
	}
	return writeCSV([]string{
		"period", "range", "param", "label", "weeks", "surveys_total", "answered",
		"avg5", "promoters", "detractors", "nps_answers", "nps_value",
	}, rows)
}

func reviewSourcesCSV(d ReviewData) ([]byte, error) {
	var rows [][]string
	for _, p := range pulse.ReportPeriods {
		for _, s := range d.Slices[p].Sources {
			rows = append(rows, append([]string{string(p), s.Source, ingest.SourceDisplayName(s.Source)}, kpiCells(s.ReviewKPI)...))
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return writeCSV(append([]string{"period", "source", "source_name"}, kpiHeader...), rows)
}

func reviewAspectsCSV(d ReviewData) ([]byte, error) {
	if len(d.Impacts) == 0 {
		return nil, nil
	}
	rows := make([][]string, 0, len(d.Impacts))
	for _, a := range d.Impacts {
		rows = append(rows, []string{
			a.Aspect, string(a.Direction), fmt.Sprintf("%.4f", a.Delta), strconv.Itoa(a.SupportingCount),
			fmt.Sprintf("%.4f", a.CurrentMean), fmt.Sprintf("%.4f", a.BaselineMean), strconv.Itoa(a.BaselineCount),
		})
	}
	return writeCSV([]string{
		"aspect", "direction", "delta_score", "supporting_count", "current_mean", "baseline_mean", "baseline_count",
	}, rows)
}

func reviewSampleCSV(d ReviewData) ([]byte, error) {
	if len(d.Sample) == 0 {
		return nil, nil
	}
	rows := make([][]string, 0, len(d.Sample))
	for _, r := range d.Sample {
		rows = append(rows, []string{
			pulse.NormalizeDate(r.Date), ingest.SourceDisplayName(r.Source), r.Lang, optFloat(r.Rating10),
			string(r.SentimentOverall), strconv.FormatFloat(r.SentimentScore, 'f', -1, 64),
			strings.Join(r.Aspects, ", "), r.TextTrimmed,
		})
	}
	return writeCSV([]string{"date", "source", "lang", "rating10", "sentiment", "sentiment_score", "aspects", "text"}, rows)
}

func reviewHistoryCSV(d ReviewData) ([]byte, error) {
	if len(d.History) == 0 {
		return nil, nil
	}
	rows := make([][]string, 0, len(d.History))
	for _, h := range d.History {
		rows = append(rows, append([]string{h.PeriodType, h.PeriodKey}, kpiCells(h.ReviewKPI)...))
	}
	return writeCSV(append([]string{"period_type", "period_key"}, kpiHeader...), rows)
}

func reviewSourcesHistoryCSV(d ReviewData) ([]byte, error) {
	if len(d.SourcesHistory) == 0 {
		return nil, nil
	}
	rows := make([][]string, 0, len(d.SourcesHistory))
	for _, h := range d.SourcesHistory {
		rows = append(rows, append([]string{h.WeekKey, h.Source}, kpiCells(h.ReviewKPI)...))
	}
	return writeCSV(append([]string{"week_key", "source"}, kpiHeader...), rows)
}

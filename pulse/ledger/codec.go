package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

const (
	dateLayout = "2006-01-02"
	listSep    = '|'
	listEsc    = '\\'
)

// EncodeList joins values with '|' and backslash-escapes separators, so any list of non-empty
// strings survives a round trip.
func EncodeList(values []string) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(listSep)
		}
		for _, r := range v {
			if r == listSep || r == listEsc {
				b.WriteByte(listEsc)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodeList reverses EncodeList. An empty cell is an empty list.
func DecodeList(cell string) []string {
	if cell == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	escaped := false
	for _, r := range cell {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == listEsc:
			escaped = true
		case r == listSep:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(out, cur.String())
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func parseFloat(cell string) (*float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", "."), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseInt(cell string) (*int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(cell)
	if err != nil {
		// Spreadsheet exports sometimes store counts as 12.0.
		f, ferr := strconv.ParseFloat(cell, 64)
		if ferr != nil {
			return nil, err
		}
		v = int(f)
	}
	return &v, nil
}

func intOr0(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// EncodeSurveyRow renders a metric row in surveys_history column form.
func EncodeSurveyRow(r pulse.SurveyMetricRow) Row {
	return Row{
		"week_key":      r.WeekKey,
		"param":         r.Param,
		"surveys_total": strconv.Itoa(r.SurveysTotal),
		"answered":      strconv.Itoa(r.Answered),
		"avg5":          formatFloat(r.Avg5),
		"promoters":     formatInt(r.Promoters),
		"detractors":    formatInt(r.Detractors),
		"nps_answers":   formatInt(r.NPSAnswers),
		"nps_value":     formatInt(r.NPSValue),
	}
}

// DecodeSurveyRow parses a surveys_history row.
func DecodeSurveyRow(row Row) (pulse.SurveyMetricRow, error) {
	out := pulse.SurveyMetricRow{WeekKey: row["week_key"], Param: row["param"]}
	if !pulse.ValidWeekKey(out.WeekKey) {
		return out, fmt.Errorf("DecodeSurveyRow: bad week_key %q", out.WeekKey)
	}
	if out.Param == "" {
		return out, fmt.Errorf("DecodeSurveyRow: %s: empty param", out.WeekKey)
	}
	var err error
	var total, answered *int
	if total, err = parseInt(row["surveys_total"]); err != nil {
		return out, fmt.Errorf("DecodeSurveyRow: surveys_total: %w", err)
	}
	if answered, err = parseInt(row["answered"]); err != nil {
		return out, fmt.Errorf("DecodeSurveyRow: answered: %w", err)
	}
	out.SurveysTotal, out.Answered = intOr0(total), intOr0(answered)
	if out.Avg5, err = parseFloat(row["avg5"]); err != nil {
		return out, fmt.Errorf("DecodeSurveyRow: avg5: %w", err)
	}
	for _, f := range []struct {
		col string
		dst **int
	}{
		{"promoters", &out.Promoters},
		{"detractors", &out.Detractors},
		{"nps_answers", &out.NPSAnswers},
		{"nps_value", &out.NPSValue},
	} {
		if *f.dst, err = parseInt(row[f.col]); err != nil {
			return out, fmt.Errorf("DecodeSurveyRow: %s: %w", f.col, err)
		}
	}
	return out, nil
}

// EncodeReviewRow renders an annotated review in reviews_history column form.
func EncodeReviewRow(r pulse.ReviewHistoryRow) Row {
	score := pulse.Round(r.SentimentScore, 3)
	ingested := ""
	if !r.IngestedAt.IsZero() {
		ingested = r.IngestedAt.UTC().Format(time.RFC3339)
	}
	return Row{
		"date":              r.Date.Format(dateLayout),
		"week_key":          r.WeekKey,
		"source":            r.Source,
		"lang":              r.Lang,
		"rating10":          formatFloat(r.Rating10),
		"sentiment_score":   formatFloat(&score),
		"sentiment_overall": string(r.SentimentOverall),
		"aspects":           EncodeList(r.Aspects),
		"topics":            EncodeList(r.Topics),
		"has_response":      formatBool(r.HasResponse),
		"review_key":        string(r.ReviewKey),
		"text_trimmed":      r.TextTrimmed,
		"ingested_at":       ingested,
	}
}

// DecodeReviewRow parses a reviews_history row.
func DecodeReviewRow(row Row) (pulse.ReviewHistoryRow, error) {
	out := pulse.ReviewHistoryRow{
		WeekKey:          row["week_key"],
		Source:           row["source"],
		Lang:             row["lang"],
		SentimentOverall: pulse.ParseSentiment(row["sentiment_overall"]),
		Aspects:          DecodeList(row["aspects"]),
		Topics:           DecodeList(row["topics"]),
		HasResponse:      strings.EqualFold(strings.TrimSpace(row["has_response"]), "yes"),
		ReviewKey:        pulse.Identity(row["review_key"]),
		TextTrimmed:      row["text_trimmed"],
	}
	if out.ReviewKey == "" {
		return out, fmt.Errorf("DecodeReviewRow: empty review_key")
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(row["date"]))
	if err != nil {
		return out, fmt.Errorf("DecodeReviewRow: %s: date: %w", out.ReviewKey, err)
	}
	out.Date = d
	if out.WeekKey == "" {
		out.WeekKey = pulse.WeekKey(d)
	}
	if out.Rating10, err = parseFloat(row["rating10"]); err != nil {
		return out, fmt.Errorf("DecodeReviewRow: %s: rating10: %w", out.ReviewKey, err)
	}
	score, err := parseFloat(row["sentiment_score"])
	if err != nil {
		return out, fmt.Errorf("DecodeReviewRow: %s: sentiment_score: %w", out.ReviewKey, err)
	}
	if score != nil {
		out.SentimentScore = *score
	}
	if ts := strings.TrimSpace(row["ingested_at"]); ts != "" {
		if out.IngestedAt, err = time.Parse(time.RFC3339, ts); err != nil {
			return out, fmt.Errorf("DecodeReviewRow: %s: ingested_at: %w", out.ReviewKey, err)
		}
	}
	return out, nil
}

// RunRecord is one committed live run.
type RunRecord struct {
	RunID       string
	Line        string
	Mode        string
	WeekKey     string
	StartedAt   time.Time
	FinishedAt  time.Time
	RowsWritten int
	RowsSkipped int
}

func EncodeRunRecord(r RunRecord) Row {
	return Row{
		"run_id":       r.RunID,
		"line":         r.Line,
		"mode":         r.Mode,
		"week_key":     r.WeekKey,
		"started_at":   r.StartedAt.UTC().Format(time.RFC3339),
		"finished_at":  r.FinishedAt.UTC().Format(time.RFC3339),
		"rows_written": strconv.Itoa(r.RowsWritten),
		"rows_skipped": strconv.Itoa(r.RowsSkipped),
	}
}

func DecodeRunRecord(row Row) (RunRecord, error) {
	out := RunRecord{RunID: row["run_id"], Line: row["line"], Mode: row["mode"], WeekKey: row["week_key"]}
	var err error
	if out.StartedAt, err = time.Parse(time.RFC3339, row["started_at"]); err != nil {
		return out, fmt.Errorf("DecodeRunRecord: started_at: %w", err)
	}
	if out.FinishedAt, err = time.Parse(time.RFC3339, row["finished_at"]); err != nil {
		return out, fmt.Errorf("DecodeRunRecord: finished_at: %w", err)
	}
	written, err := parseInt(row["rows_written"])
	if err != nil {
		return out, fmt.Errorf("DecodeRunRecord: rows_written: %w", err)
	}
	skipped, err := parseInt(row["rows_skipped"])
	if err != nil {
		return out, fmt.Errorf("DecodeRunRecord: rows_skipped: %w", err)
	}
	out.RowsWritten, out.RowsSkipped = intOr0(written), intOr0(skipped)
	return out, nil
}

package ingest

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// SurveyBatch is the usable content of one survey export.
type SurveyBatch struct {
	Responses []pulse.SurveyResponse
	// Rejected counts rows dropped for bad data; Errors describes each of them.
	Rejected int
	Errors   error
	// OverallDerived is set when the export had no overall score and it was averaged from
	// the thematic answers.
	OverallDerived bool
}

// ReadSurveys parses a questionnaire export: one row per completed survey. Rows without a
// usable date, or dated too far in the future, are rejected; an export with no recognizable
// date column is an error.
func ReadSurveys(r io.Reader, opts Options) (SurveyBatch, error) {
	header, records, err := readTable(r)
	if err != nil {
		return SurveyBatch{}, fmt.Errorf("ReadSurveys: %s: %w", opts.Name, err)
	}
	cols := resolveSurveyColumns(header)
	if _, ok := cols["survey_date"]; !ok {
		i := guessDateColumn(header, records, cols)
		if i < 0 {
			return SurveyBatch{}, &pulse.SourceDataError{Source: opts.Name, Field: "survey_date", Reason: "no date column"}
		}
		cols["survey_date"] = i
	}

	latest := opts.latest()
	var batch SurveyBatch
	reject := func(row int, field, reason string) {
		batch.Rejected++
		batch.Errors = multierr.Append(batch.Errors, &pulse.SourceDataError{Source: opts.Name, Row: row, Field: field, Reason: reason})
	}

	for n, rec := range records {
		row := n + 2
		if blank(rec) {
			reject(row, "row", "empty row")
			continue
		}
		raw := cell(rec, cols, "survey_date")
		date, ok := ParseDate(raw)
		if !ok {
			reject(row, "survey_date", fmt.Sprintf("unparseable date %q", raw))
			continue
		}
		if date.After(latest) {
			reject(row, "survey_date", fmt.Sprintf("date %s is in the future", date.Format("2006-01-02")))
			continue
		}

		resp := pulse.SurveyResponse{
			Date:    date,
			Name:    cell(rec, cols, "fio"),
			Booking: cell(rec, cols, "booking"),
			Phone:   cell(rec, cols, "phone"),
			Email:   cell(rec, cols, "email"),
			Comment: cell(rec, cols, "comment"),
			Answers: map[string]float64{},
		}
		for _, p := range pulse.SurveyParams {
			if v, ok := To5Scale(cell(rec, cols, p)); ok {
				resp.Answers[p] = v
			}
		}
		if v, ok := ParseNPS(cell(rec, cols, "nps")); ok {
			resp.NPS = &v
		} else if v, ok := legacyNPS(cell(rec, cols, "nps_1_5")); ok {
			resp.NPS = &v
		}
		batch.Responses = append(batch.Responses, resp)
	}

	batch.OverallDerived = deriveOverall(batch.Responses)
	assignSurveyKeys(batch.Responses)
	return batch, nil
}

// assignSurveyKeys keys every response of one export. Anonymous responses are numbered among
// the identical rows of this export, so none of them collapses into another.
func assignSurveyKeys(rs []pulse.SurveyResponse) {
	seen := make(map[pulse.Identity]int)
	for i := range rs {
		r := &rs[i]
		if r.Identified() {
			r.Key = pulse.SurveyKey(r.Date, r.Booking, r.Name, r.Contact(), r.Comment)
			continue
		}
		sig := r.AnswerSignature()
		base := pulse.AnonymousSurveyKey(r.Date, r.Comment, sig, 0)
		seen[base]++
		r.Key = pulse.AnonymousSurveyKey(r.Date, r.Comment, sig, seen[base])
	}
}

// deriveOverall fills the overall score with the mean of the thematic answers when no response
// carries one.
func deriveOverall(rs []pulse.SurveyResponse) bool {
	for _, r := range rs {
		if _, ok := r.Answers[pulse.ParamOverall]; ok {
			return false
		}
	}
	derived := false
	for _, r := range rs {
		var sum float64
		var n int
		for p, v := range r.Answers {
			if p == pulse.ParamOverall {
				continue
			}
			sum += v
			n++
		}
		if n > 0 {
			r.Answers[pulse.ParamOverall] = pulse.Round(sum/float64(n), 2)
			derived = true
		}
	}
	return derived
}

// guessDateColumn picks the unclaimed column where most rows parse as dates, requiring at
// least half of the rows and at least three of them.
func guessDateColumn(header []string, records [][]string, claimed map[string]int) int {
	taken := map[int]bool{}
	for _, i := range claimed {
		taken[i] = true
	}
	need := max(3, len(records)/2)
	best, bestHits := -1, 0
	for i := range header {
		if taken[i] {
			continue
		}
		hits := 0
		for _, rec := range records {
			if i < len(rec) {
				if _, ok := ParseDate(rec[i]); ok {
					hits++
				}
			}
		}
		if hits > bestHits && hits >= need {
			best, bestHits = i, hits
		}
	}
	return best
}

package ingest

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/multierr"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// ReviewBatch is the usable content of one reviews export.
type ReviewBatch struct {
	Reviews  []pulse.Review
	Rejected int
	Errors   error
}

var requiredReviewColumns = []string{"date", "source", "text"}

// ReadReviews parses a platform reviews export. Sources and languages are normalized to their
// canonical codes and ratings to a ten point scale. Rows with an unusable date, a future date or
// no text are rejected.
func ReadReviews(r io.Reader, opts Options) (ReviewBatch, error) {
	header, records, err := readTable(r)
	if err != nil {
		return ReviewBatch{}, fmt.Errorf("ReadReviews: %s: %w", opts.Name, err)
	}
	cols := resolveReviewColumns(header)
	var missing error
	for _, f := range requiredReviewColumns {
		if _, ok := cols[f]; !ok {
			missing = multierr.Append(missing, &pulse.SourceDataError{Source: opts.Name, Field: f, Reason: "missing column"})
		}
	}
	if missing != nil {
		return ReviewBatch{}, missing
	}

	latest := opts.latest()
	var batch ReviewBatch
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
		raw := cell(rec, cols, "date")
		date, ok := ParseDate(raw)
		if !ok {
			reject(row, "date", fmt.Sprintf("unparseable date %q", raw))
			continue
		}
		if date.After(latest) {
			reject(row, "date", fmt.Sprintf("date %s is in the future", date.Format("2006-01-02")))
			continue
		}
		text := strings.Join(strings.Fields(cell(rec, cols, "text")), " ")
		if text == "" {
			reject(row, "text", "empty review text")
			continue
		}

		rv := pulse.Review{
			Date:   date,
			Source: NormalizeSource(cell(rec, cols, "source")),
			Author: cell(rec, cols, "author"),
			Text:   text,
		}
		rv.Lang = NormalizeLang(cell(rec, cols, "lang"), text)
		if v, ok := RatingTo10(cell(rec, cols, "rating10"), rv.Source); ok {
			rv.Rating10 = &v
		}
		if has, ok := ParseYesNo(cell(rec, cols, "has_response")); ok {
			rv.HasResponse = has
		} else {
			// Some exports put the reply text itself in the column.
			rv.HasResponse = true
		}
		rv.Key = pulse.ReviewKey(rv.Source, rv.Author, rv.Date, rv.Text)
		batch.Reviews = append(batch.Reviews, rv)
	}
	return batch, nil
}

// Package report renders weekly survey and review summaries as markdown, an HTML mail body and CSV
// attachments.
package report

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/fileutils"
)

// Report is one rendered artifact.
type Report struct {
	// Name is the file stem used when the report is archived, e.g. "surveys_2025-W06".
	Name        string
	Subject     string
	Markdown    string
	HTML        string
	Attachments []Attachment
}

// Attachment is a named file sent with the report.
type Attachment struct {
	Name string
	Data []byte
}

// SurveyData is everything the survey report shows.
type SurveyData struct {
	Hotel  string
	Ranges pulse.PeriodRanges
	Slices map[pulse.Period]pulse.SurveySlice
	// PrevWeek summarizes the week before the anchor week, for week-over-week deltas.
	PrevWeek []pulse.ParamSummary
	Rejected int
}

// ReviewData is everything the review report shows.
type ReviewData struct {
	Hotel    string
	Ranges   pulse.PeriodRanges
	Slices   map[pulse.Period]pulse.ReviewSlice
	PrevWeek pulse.ReviewKPI

	Worsening []pulse.AspectImpact
	Improving []pulse.AspectImpact
	// Impacts is the full ranked list exported as CSV.
	Impacts []pulse.AspectImpact

	// Sample holds the anchor week's reviews shown verbatim, most negative first.
	Sample         []pulse.ReviewHistoryRow
	History        []pulse.HistoryRow
	SourcesHistory []pulse.SourceWeekRow
	BaselineWeeks  int
	Rejected       int
}

// Assembler turns aggregation output into reports.
type Assembler struct {
	// SubjectPrefix is prepended to every mail subject.
	SubjectPrefix string
	// SampleSize caps the reviews quoted in the review report.
	SampleSize int

	md goldmark.Markdown
}

func NewAssembler(subjectPrefix string, sampleSize int) *Assembler {
	if sampleSize <= 0 {
		sampleSize = 10
	}
	return &Assembler{
		SubjectPrefix: strings.TrimSpace(subjectPrefix),
		SampleSize:    sampleSize,
		md:            goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Surveys renders the survey report for the anchor week.
func (a *Assembler) Surveys(d SurveyData) (Report, error) {
	v := newSurveyView(d)
	md, err := execute(surveyTemplate, v)
	if err != nil {
		return Report{}, fmt.Errorf("Surveys: render markdown: %w", err)
	}
	body, err := a.html(v.Title, md)
	if err != nil {
		return Report{}, fmt.Errorf("Surveys: render html: %w", err)
	}
	periods, err := surveyPeriodsCSV(d)
	if err != nil {
		return Report{}, fmt.Errorf("Surveys: export csv: %w", err)
	}
	return Report{
		Name:     "surveys_" + d.Ranges.WeekKey,
		Subject:  a.subject(d.Hotel, "Guest surveys", d.Ranges),
		Markdown: md,
		HTML:     body,
		Attachments: []Attachment{
			{Name: "surveys_periods_" + d.Ranges.WeekKey + ".csv", Data: periods},
		},
	}, nil
}

// Reviews renders the review report for the anchor week.
func (a *Assembler) Reviews(d ReviewData) (Report, error) {
	v := newReviewView(d, a.SampleSize)
	md, err := execute(reviewTemplate, v)
	if err != nil {
		return Report{}, fmt.Errorf("Reviews: render markdown: %w", err)
	}
	body, err := a.html(v.Title, md)
	if err != nil {
		return Report{}, fmt.Errorf("Reviews: render html: %w", err)
	}

	week := d.Ranges.WeekKey
	var atts []Attachment
	exports := []struct {
		name string
		fn   func(ReviewData) ([]byte, error)
	}{
		{"reviews_sources_" + week + ".csv", reviewSourcesCSV},
		{"reviews_aspects_" + week + ".csv", reviewAspectsCSV},
		{"reviews_sample_" + week + ".csv", reviewSampleCSV},
		{"reviews_history_" + week + ".csv", reviewHistoryCSV},
		{"reviews_sources_history_" + week + ".csv", reviewSourcesHistoryCSV},
	}
	for _, e := range exports {
		b, err := e.fn(d)
		if err != nil {
			return Report{}, fmt.Errorf("Reviews: export %s: %w", e.name, err)
		}
		if b != nil {
			atts = append(atts, Attachment{Name: e.name, Data: b})
		}
	}
	return Report{
		Name:        "reviews_" + week,
		Subject:     a.subject(d.Hotel, "Reviews", d.Ranges),
		Markdown:    md,
		HTML:        body,
		Attachments: atts,
	}, nil
}

func (a *Assembler) subject(hotel, line string, r pulse.PeriodRanges) string {
	parts := make([]string, 0, 3)
	if a.SubjectPrefix != "" {
		parts = append(parts, a.SubjectPrefix)
	}
	if hotel != "" {
		parts = append(parts, hotel+".")
	}
	parts = append(parts, fmt.Sprintf("%s: week %s", line, r.Week.Label()))
	return strings.Join(parts, " ")
}

const page = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: Arial, Helvetica, sans-serif; color: #262D36; background: #FFFFFF; max-width: 960px; }
h1, h2, h3 { color: #262D36; border-bottom: 1px solid #C49A5F; padding-bottom: 4px; }
table { border-collapse: collapse; margin: 8px 0 16px; background: #FFF6E5; }
th, td { border: 1px solid #C49A5F; padding: 4px 8px; }
th { text-align: left; }
blockquote { border-left: 3px solid #C49A5F; margin: 8px 0; padding-left: 8px; }
</style>
</head>
<body>
%s</body>
</html>
`

func (a *Assembler) html(title, md string) (string, error) {
	var buf bytes.Buffer
	if err := a.md.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return fmt.Sprintf(page, html.EscapeString(title), buf.String()), nil
}

func execute(t *template.Template, v any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Archive writes the markdown, the HTML and every attachment into dir and returns the paths
// written.
func Archive(dir string, r Report) ([]string, error) {
	files := []Attachment{
		{Name: r.Name + ".md", Data: []byte(r.Markdown)},
		{Name: r.Name + ".html", Data: []byte(r.HTML)},
	}
	files = append(files, r.Attachments...)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, filepath.Base(f.Name))
		if err := fileutils.WriteFileAtomic(p, f.Data, 0o644); err != nil {
			return paths, fmt.Errorf("Archive: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

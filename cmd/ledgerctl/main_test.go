package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ledger"
)

func seedLedger(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "ledger")
	store, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	avg := 4.5
	dup := ledger.EncodeSurveyRow(pulse.SurveyMetricRow{WeekKey: "2025-W06", Param: pulse.ParamOverall, SurveysTotal: 2, Answered: 1, Avg5: &avg})
	rows := []ledger.Row{
		ledger.EncodeSurveyRow(pulse.SurveyMetricRow{WeekKey: "2025-W05", Param: pulse.ParamOverall, SurveysTotal: 3, Answered: 3, Avg5: &avg}),
		ledger.EncodeSurveyRow(pulse.SurveyMetricRow{WeekKey: "2025-W06", Param: pulse.ParamOverall, SurveysTotal: 4, Answered: 4, Avg5: &avg}),
		dup,
	}
	require.NoError(t, store.ReplaceAll(ctx, ledger.SurveysTable, rows))

	rating := 9.0
	d := time.Date(2025, time.February, 4, 0, 0, 0, 0, time.UTC)
	h := ledger.NewHistory(store, nil)
	_, err = h.InsertMissingReviews(ctx, []pulse.ReviewHistoryRow{{
		Date: d, WeekKey: pulse.WeekKey(d), Source: "booking", Lang: "en", Rating10: &rating,
		SentimentScore: 0.5, SentimentOverall: pulse.Positive, Aspects: []string{"staff_friendly"},
		HasResponse: true, ReviewKey: pulse.ReviewKey("booking", "Jane", d, "Lovely staff"),
		TextTrimmed: "Lovely staff", IngestedAt: d,
	}})
	require.NoError(t, err)
	require.NoError(t, h.RecordRun(ctx, ledger.RunRecord{
		RunID: "run-1", Line: "reviews", Mode: "weekly", WeekKey: "2025-W06",
		StartedAt: d, FinishedAt: d.Add(time.Minute), RowsWritten: 1,
	}))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&app{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStats(t *testing.T) {
	dir := seedLedger(t)
	out, err := execute(t, "--driver", "file", "--path", dir, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `surveys_history\s+rows 3\s+weeks 2\s+2025-W05\.\.2025-W06`, out)
	assert.Contains(t, out, "Booking.com")
	assert.Contains(t, out, "ingest_runs")
	assert.Contains(t, out, "reviews weekly 2025-W06")
}

func TestDump_CSVUsesSchemaOrder(t *testing.T) {
	dir := seedLedger(t)
	out, err := execute(t, "--driver", "file", "--path", dir, "dump", "reviews_history", "--format", "csv")
	require.NoError(t, err)
	recs, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ledger.ReviewsSchema.Columns, recs[0])
	assert.Equal(t, "2025-02-04", recs[1][0])

	_, err = execute(t, "--driver", "file", "--path", dir, "dump", "guests")
	require.Error(t, err)
}

func TestVerifyAndCoalesce(t *testing.T) {
	dir := seedLedger(t)

	out, err := execute(t, "--driver", "file", "--path", dir, "verify")
	require.Error(t, err)
	assert.Contains(t, out, "surveys_history 2025-W06|overall: duplicate key")

	out, err = execute(t, "--driver", "file", "--path", dir, "coalesce", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would drop 1 duplicate survey rows")

	_, err = execute(t, "--driver", "file", "--path", dir, "coalesce")
	require.NoError(t, err)

	out, err = execute(t, "--driver", "file", "--path", dir, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	store, err := ledger.NewFileStore(dir)
	require.NoError(t, err)
	rows, err := ledger.NewHistory(store, nil).Surveys(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		if r.WeekKey == "2025-W06" {
			assert.Equal(t, 4, r.Answered, "the most answered row survives")
		}
	}
}

func TestRuns(t *testing.T) {
	dir := seedLedger(t)
	out, err := execute(t, "--driver", "file", "--path", dir, "runs", "--limit", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "run-1")
}

func TestVocabulary_Cull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aspect_vocabulary.json")
	v := pulse.AspectVocabulary{Version: 1}
	pulse.MergeVocabulary(&v, []string{"noisy_room", "staff_friendly"}, "2025-W05")
	pulse.MergeVocabulary(&v, []string{"staff_friendly"}, "2025-W06")
	require.NoError(t, pulse.SaveVocabulary(path, v))
	t.Setenv("PULSE_VOCABULARY_PATH", path)

	out, err := execute(t, "--driver", "memory", "vocabulary", "--cull", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "culled 1 terms")
	assert.Contains(t, out, "staff_friendly")
	assert.NotContains(t, out, "noisy_room")

	saved, err := pulse.LoadVocabulary(path)
	require.NoError(t, err)
	require.Len(t, saved.Entries, 1)
}

func TestBadDriverIsConfigurationError(t *testing.T) {
	_, err := execute(t, "--driver", "mongo", "stats")
	require.ErrorIs(t, err, pulse.ErrConfiguration)
}

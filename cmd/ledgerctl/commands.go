package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ingest"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/ledger"
)

func newDumpCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump <table>",
		Short: "Print every row of surveys_history, reviews_history or ingest_runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := ledger.SchemaFor(args[0])
			if err != nil {
				return err
			}
			h, closeFn, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			rows, err := h.Store().ReadAll(cmd.Context(), schema.Table)
			if err != nil {
				return pulse.LedgerUnavailable(schema.Table, "read", err)
			}
			switch format {
			case "jsonl":
				return dumpJSONL(cmd.OutOrStdout(), rows)
			case "csv":
				return dumpCSV(cmd.OutOrStdout(), schema, rows)
			}
			return fmt.Errorf("unknown --format %q (want jsonl or csv)", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format: jsonl or csv")
	return cmd
}

func dumpJSONL(w io.Writer, rows []ledger.Row) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func dumpCSV(w io.Writer, schema ledger.Schema, rows []ledger.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.Columns); err != nil {
		return err
	}
	rec := make([]string, len(schema.Columns))
	for _, r := range rows {
		for i, c := range schema.Columns {
			rec[i] = r[c]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize row counts, week coverage and sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			surveys, err := h.Surveys(cmd.Context())
			if err != nil {
				return err
			}
			reviews, err := h.Reviews(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := h.Runs(cmd.Context())
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), surveys, reviews, runs)
		},
	}
}

func writeStats(out io.Writer, surveys []pulse.SurveyMetricRow, reviews []pulse.ReviewHistoryRow, runs []ledger.RunRecord) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	weeks := make(map[string]bool)
	for _, r := range surveys {
		weeks[r.WeekKey] = true
	}
	first, last := weekBounds(weeks)
	fmt.Fprintf(tw, "%s\trows %d\tweeks %d\t%s..%s\n", ledger.SurveysTable, len(surveys), len(weeks), first, last)

	span := pulse.ReviewDataSpan(reviews)
	kpi := pulse.SummarizeReviews(reviews)
	fmt.Fprintf(tw, "%s\trows %d\tresponded %d\t%s\n", ledger.ReviewsTable, len(reviews), kpi.Responded, spanText(span))
	for _, s := range pulse.SummarizeSources(reviews) {
		avg := "n/a"
		if s.Avg10 != nil {
			avg = fmt.Sprintf("%.1f", *s.Avg10)
		}
		fmt.Fprintf(tw, "  %s\treviews %d\tavg10 %s\tneg %d\n", ingest.SourceDisplayName(s.Source), s.Reviews, avg, s.Negative)
	}

	fmt.Fprintf(tw, "%s\trows %d\n", ledger.RunsTable, len(runs))
	if n := len(runs); n > 0 {
		r := runs[n-1]
		fmt.Fprintf(tw, "  last run\t%s %s %s\t%s\n", r.Line, r.Mode, r.WeekKey, r.FinishedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func weekBounds(weeks map[string]bool) (string, string) {
	if len(weeks) == 0 {
		return "-", "-"
	}
	keys := make([]string, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], keys[len(keys)-1]
}

func spanText(r pulse.DateRange) string {
	if r.IsZero() {
		return "-"
	}
	return r.String()
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check key uniqueness and row decodability of the history tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			issues, err := h.Verify(cmd.Context())
			if err != nil {
				return err
			}
			for _, i := range issues {
				fmt.Fprintln(cmd.OutOrStdout(), i.String())
			}
			if len(issues) > 0 {
				return fmt.Errorf("verify: %d issues found", len(issues))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newCoalesceCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "coalesce",
		Short: "Collapse duplicate (week_key, param) survey rows, keeping the most answered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			release, err := h.Lock(cmd.Context())
			if err != nil {
				return err
			}
			dropped, err := h.CoalesceSurveys(cmd.Context(), dryRun)
			if rerr := release(); rerr != nil && err == nil {
				err = pulse.LedgerUnavailable("*", "unlock", rerr)
			}
			if err != nil {
				return err
			}
			verb := "dropped"
			if dryRun {
				verb = "would drop"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d duplicate survey rows\n", verb, dropped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report duplicates without rewriting the table")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			runs, err := h.Runs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tLINE\tMODE\tWEEK\tWRITTEN\tSKIPPED\tRUN ID")
			for i, shown := len(runs)-1, 0; i >= 0 && (limit <= 0 || shown < limit); i, shown = i-1, shown+1 {
				r := runs[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.FinishedAt.Format(time.RFC3339), r.Line, r.Mode, r.WeekKey, r.RowsWritten, r.RowsSkipped, r.RunID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Show at most N runs (0 = all)")
	return cmd
}

func newVocabularyCmd(a *app) *cobra.Command {
	var limit, cull int
	cmd := &cobra.Command{
		Use:   "vocabulary",
		Short: "List the aspect vocabulary fed to model scorers, optionally culling rare terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.settings.VocabularyPath
			if path == "" {
				return fmt.Errorf("vocabulary_path is not configured")
			}
			v, err := pulse.LoadVocabulary(path)
			if err != nil {
				return err
			}
			if cull > 1 {
				before := len(v.Entries)
				pulse.CullVocabulary(&v, cull)
				if err := pulse.SaveVocabulary(path, v); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "culled %d terms seen fewer than %d times\n", before-len(v.Entries), cull)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TERM\tCOUNT\tFIRST\tLAST")
			for i, e := range v.Entries {
				if limit > 0 && i >= limit {
					break
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Term, e.Count, e.FirstSeen, e.LastSeen)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most N terms (0 = all)")
	cmd.Flags().IntVar(&cull, "cull", 0, "Remove terms seen fewer than N times and save the file")
	return cmd
}

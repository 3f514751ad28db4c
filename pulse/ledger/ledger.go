// Package ledger stores the surveys and reviews history as plain tables of string cells keyed by
// business key, behind a small Store interface with memory, JSONL-file, SQLite and Postgres
// implementations.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// Row is one ledger record, column name to cell value. Absent columns read as "".
type Row map[string]string

// Clone returns an independent copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store is the minimal table API a backend has to provide. ReplaceAll and Append must be atomic:
// after an error the table holds either its previous contents or the complete new contents.
type Store interface {
	ReadAll(ctx context.Context, table string) ([]Row, error)
	ReplaceAll(ctx context.Context, table string, rows []Row) error
	Append(ctx context.Context, table string, rows []Row) error
	Close() error
}

// Locker is implemented by stores that can serialize whole runs.
type Locker interface {
	Lock(ctx context.Context) (release func() error, err error)
}

// Schema fixes a table's column order and business key.
type Schema struct {
	Table   string
	Columns []string
	Key     []string
}

const (
	SurveysTable = "surveys_history"
	ReviewsTable = "reviews_history"
	RunsTable    = "ingest_runs"
)

var (
	SurveysSchema = Schema{
		Table: SurveysTable,
		Columns: []string{
			"week_key", "param", "surveys_total", "answered", "avg5",
			"promoters", "detractors", "nps_answers", "nps_value",
		},
		Key: []string{"week_key", "param"},
	}
	ReviewsSchema = Schema{
		Table: ReviewsTable,
		Columns: []string{
			"date", "week_key", "source", "lang", "rating10",
			"sentiment_score", "sentiment_overall", "aspects", "topics",
			"has_response", "review_key", "text_trimmed", "ingested_at",
		},
		Key: []string{"review_key"},
	}
	RunsSchema = Schema{
		Table: RunsTable,
		Columns: []string{
			"run_id", "line", "mode", "week_key", "started_at", "finished_at",
			"rows_written", "rows_skipped",
		},
		Key: []string{"run_id"},
	}
)

// Schemas lists every table the ledger knows.
var Schemas = []Schema{SurveysSchema, ReviewsSchema, RunsSchema}

// SchemaFor looks up a table's schema.
func SchemaFor(table string) (Schema, error) {
	for _, s := range Schemas {
		if s.Table == table {
			return s, nil
		}
	}
	return Schema{}, fmt.Errorf("unknown ledger table %q", table)
}

// KeyOf joins the key cells of r.
func (s Schema) KeyOf(r Row) string {
	if len(s.Key) == 1 {
		return r[s.Key[0]]
	}
	parts := make([]string, len(s.Key))
	for i, k := range s.Key {
		parts[i] = r[k]
	}
	return strings.Join(parts, "|")
}

// UpsertPartition replaces stored rows whose key matches an incoming row and keeps all others,
// rewriting the table in one atomic step.
func UpsertPartition(ctx context.Context, s Store, schema Schema, rows []Row) (pulse.MergeStats, error) {
	existing, err := s.ReadAll(ctx, schema.Table)
	if err != nil {
		return pulse.MergeStats{}, pulse.LedgerUnavailable(schema.Table, "read", err)
	}
	merged, stats := pulse.UpsertByKey(existing, rows, schema.KeyOf)
	if err := s.ReplaceAll(ctx, schema.Table, merged); err != nil {
		return pulse.MergeStats{}, pulse.LedgerUnavailable(schema.Table, "replace", err)
	}
	return stats, nil
}

// InsertMissing appends only rows whose key is not stored yet. Nothing is written when every
// key already exists.
func InsertMissing(ctx context.Context, s Store, schema Schema, rows []Row) (pulse.MergeStats, error) {
	existing, err := s.ReadAll(ctx, schema.Table)
	if err != nil {
		return pulse.MergeStats{}, pulse.LedgerUnavailable(schema.Table, "read", err)
	}
	added, stats := pulse.AppendMissing(existing, rows, schema.KeyOf)
	if len(added) == 0 {
		return stats, nil
	}
	if err := s.Append(ctx, schema.Table, added); err != nil {
		return pulse.MergeStats{}, pulse.LedgerUnavailable(schema.Table, "append", err)
	}
	return stats, nil
}

// DuplicateKeys returns the keys that occur more than once in rows, sorted.
func DuplicateKeys(schema Schema, rows []Row) []string {
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[schema.KeyOf(r)]++
	}
	var out []string
	for k, n := range counts {
		if n > 1 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

package pulse

// MergeStats counts what a merge did.
type MergeStats struct {
	Replaced  int
	Inserted  int
	Skipped   int
	Preserved int
}

// UpsertByKey replaces existing rows whose key appears in incoming and appends the rest.
// Existing rows keep their positions; a key repeated in existing collapses onto its first
// position. When incoming repeats a key the last occurrence wins.
func UpsertByKey[T any](existing, incoming []T, key func(T) string) ([]T, MergeStats) {
	var stats MergeStats
	latest := make(map[string]T, len(incoming))
	order := make([]string, 0, len(incoming))
	for _, r := range incoming {
		k := key(r)
		if _, ok := latest[k]; !ok {
			order = append(order, k)
		} else {
			stats.Skipped++
		}
		latest[k] = r
	}

	out := make([]T, 0, len(existing)+len(incoming))
	placed := make(map[string]bool, len(incoming))
	for _, r := range existing {
		k := key(r)
		repl, ok := latest[k]
		if !ok {
			out = append(out, r)
			stats.Preserved++
			continue
		}
		if placed[k] {
			continue
		}
		placed[k] = true
		out = append(out, repl)
		stats.Replaced++
	}
	for _, k := range order {
		if placed[k] {
			continue
		}
		out = append(out, latest[k])
		stats.Inserted++
	}
	return out, stats
}

// AppendMissing returns the incoming rows whose key is not in existing. When incoming repeats a
// new key the last occurrence wins, placed where the key first appeared.
func AppendMissing[T any](existing, incoming []T, key func(T) string) ([]T, MergeStats) {
	stored := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		stored[key(r)] = struct{}{}
	}
	stats := MergeStats{Preserved: len(existing)}
	slot := make(map[string]int, len(incoming))
	var added []T
	for _, r := range incoming {
		k := key(r)
		if _, ok := stored[k]; ok {
			stats.Skipped++
			continue
		}
		if i, ok := slot[k]; ok {
			added[i] = r
			stats.Skipped++
			continue
		}
		slot[k] = len(added)
		added = append(added, r)
		stats.Inserted++
	}
	return added, stats
}

// CoalesceByKey keeps one row per key at the position where the key first appears. Between
// repeats, prefer(candidate, current) decides whether the candidate replaces the kept row. It
// returns the kept rows and how many were dropped.
func CoalesceByKey[T any](rows []T, key func(T) string, prefer func(candidate, current T) bool) ([]T, int) {
	slot := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if i, ok := slot[k]; ok {
			if prefer(r, out[i]) {
				out[i] = r
			}
			continue
		}
		slot[k] = len(out)
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

// MergeSurveyRows overlays freshly aggregated rows on the history so each (week_key, param)
// is counted once, fresh values first.
func MergeSurveyRows(history, fresh []SurveyMetricRow) []SurveyMetricRow {
	out, _ := UpsertByKey(history, fresh, SurveyMetricRow.PartitionKey)
	return out
}

// MergeReviewRows reconciles history with fresh rows by review key. Inside currentWeek fresh rows
// win; for closed weeks the stored row wins. Keys present on one side only are kept.
func MergeReviewRows(history, fresh []ReviewHistoryRow, currentWeek string) []ReviewHistoryRow {
	var freshCurrent, freshClosed []ReviewHistoryRow
	for _, r := range fresh {
		if r.WeekKey == currentWeek {
			freshCurrent = append(freshCurrent, r)
		} else {
			freshClosed = append(freshClosed, r)
		}
	}
	merged, _ := UpsertByKey(history, freshCurrent, reviewKeyOf)
	added, _ := AppendMissing(merged, freshClosed, reviewKeyOf)
	return append(merged, added...)
}

func reviewKeyOf(r ReviewHistoryRow) string { return string(r.ReviewKey) }

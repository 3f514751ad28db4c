package pulse

import (
	"testing"
	"time"
)

type kv struct {
	k string
	v int
}

func keyOf(r kv) string { return r.k }

func TestUpsertByKey(t *testing.T) {
	t.Parallel()

	existing := []kv{{"a", 1}, {"b", 1}, {"a", 9}, {"c", 1}}
	incoming := []kv{{"b", 2}, {"d", 2}, {"b", 3}}

	out, stats := UpsertByKey(existing, incoming, keyOf)
	want := []kv{{"a", 1}, {"b", 3}, {"a", 9}, {"c", 1}, {"d", 2}}
	if len(out) != len(want) {
		t.Fatalf("out=%v", out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out=%v, want %v", out, want)
		}
	}
	if stats.Replaced != 1 || stats.Inserted != 1 || stats.Skipped != 1 || stats.Preserved != 3 {
		t.Fatalf("stats=%+v", stats)
	}

	again, _ := UpsertByKey(out, incoming, keyOf)
	if len(again) != len(out) {
		t.Fatalf("second upsert changed size: %d vs %d", len(again), len(out))
	}
}

func TestCoalesceByKey_PreferredRowKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	rows := []kv{{"w6", 4}, {"w5", 2}, {"w6", 7}, {"w6", 3}}
	out, dropped := CoalesceByKey(rows, keyOf, func(c, cur kv) bool { return c.v >= cur.v })
	if dropped != 2 || len(out) != 2 {
		t.Fatalf("out=%v dropped=%d", out, dropped)
	}
	if out[0] != (kv{"w6", 7}) || out[1] != (kv{"w5", 2}) {
		t.Fatalf("out=%v", out)
	}
}

func TestAppendMissing_LaterBatchRowWinsInPlace(t *testing.T) {
	t.Parallel()

	added, stats := AppendMissing(nil, []kv{{"a", 1}, {"b", 1}, {"a", 2}}, keyOf)
	if len(added) != 2 || added[0] != (kv{"a", 2}) || added[1] != (kv{"b", 1}) {
		t.Fatalf("added=%v", added)
	}
	if stats.Inserted != 2 || stats.Skipped != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestAppendMissing_Idempotent(t *testing.T) {
	t.Parallel()

	existing := []kv{{"a", 1}}
	incoming := []kv{{"a", 2}, {"b", 1}, {"b", 2}}

	added, stats := AppendMissing(existing, incoming, keyOf)
	if len(added) != 1 || added[0] != (kv{"b", 2}) {
		t.Fatalf("added=%v", added)
	}
	if stats.Inserted != 1 || stats.Skipped != 2 {
		t.Fatalf("stats=%+v", stats)
	}

	added, _ = AppendMissing(append(existing, added...), incoming, keyOf)
	if len(added) != 0 {
		t.Fatalf("second pass added %v", added)
	}
}

func TestMergeReviewRows_CurrentWeekFreshWins(t *testing.T) {
	t.Parallel()

	closed := ReviewHistoryRow{ReviewKey: "k1", WeekKey: "2025-W05", Date: date(2025, time.January, 28), SentimentScore: 0.5}
	current := ReviewHistoryRow{ReviewKey: "k2", WeekKey: "2025-W06", Date: date(2025, time.February, 4), SentimentScore: 0.5}
	history := []ReviewHistoryRow{closed, current}

	freshClosed := closed
	freshClosed.SentimentScore = -1
	freshCurrent := current
	freshCurrent.SentimentScore = -1
	newRow := ReviewHistoryRow{ReviewKey: "k3", WeekKey: "2025-W06", Date: date(2025, time.February, 5)}

	merged := MergeReviewRows(history, []ReviewHistoryRow{freshClosed, freshCurrent, newRow}, "2025-W06")
	if len(merged) != 3 {
		t.Fatalf("merged=%d", len(merged))
	}
	byKey := map[Identity]ReviewHistoryRow{}
	for _, r := range merged {
		byKey[r.ReviewKey] = r
	}
	if byKey["k1"].SentimentScore != 0.5 {
		t.Fatalf("closed week row replaced: %+v", byKey["k1"])
	}
	if byKey["k2"].SentimentScore != -1 {
		t.Fatalf("current week row not refreshed: %+v", byKey["k2"])
	}
	if _, ok := byKey["k3"]; !ok {
		t.Fatalf("new row missing")
	}
}

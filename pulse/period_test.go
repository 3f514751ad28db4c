package pulse

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeekKey_YearBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Time
		want string
	}{
		{date(2024, time.December, 30), "2025-W01"},
		{date(2024, time.December, 29), "2024-W52"},
		{date(2021, time.January, 3), "2020-W53"},
		{date(2025, time.February, 5), "2025-W06"},
		{date(2026, time.December, 31), "2026-W53"},
		{time.Date(2025, time.February, 9, 23, 59, 0, 0, time.UTC), "2025-W06"},
	}
	for _, tc := range cases {
		if got := WeekKey(tc.in); got != tc.want {
			t.Fatalf("WeekKey(%s)=%s, want %s", tc.in.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestISOWeekMonday_WithinSixDays(t *testing.T) {
	t.Parallel()

	start := date(2023, time.December, 20)
	for i := 0; i < 800; i++ {
		d := start.AddDate(0, 0, i)
		m := ISOWeekMonday(d)
		if m.Weekday() != time.Monday {
			t.Fatalf("monday(%s) is %s", d.Format("2006-01-02"), m.Weekday())
		}
		if m.After(d) || d.Sub(m) > 6*24*time.Hour {
			t.Fatalf("monday(%s)=%s out of window", d.Format("2006-01-02"), m.Format("2006-01-02"))
		}
		if WeekKey(d) != WeekKey(m) {
			t.Fatalf("key(%s)=%s != key(monday)=%s", d.Format("2006-01-02"), WeekKey(d), WeekKey(m))
		}
	}
}

func TestWeekKey_MonotoneAndRoundTrips(t *testing.T) {
	t.Parallel()

	prev := ""
	for d := date(2019, time.December, 23); d.Before(date(2027, time.January, 10)); d = d.AddDate(0, 0, 7) {
		k := WeekKey(d)
		if prev != "" && k <= prev {
			t.Fatalf("keys not increasing: %s after %s", k, prev)
		}
		prev = k
		monday, err := ParseWeekKey(k)
		if err != nil {
			t.Fatalf("ParseWeekKey(%s): %v", k, err)
		}
		if !monday.Equal(ISOWeekMonday(d)) {
			t.Fatalf("ParseWeekKey(%s)=%s, want %s", k, monday, ISOWeekMonday(d))
		}
	}
}

func TestParseWeekKey_Rejects(t *testing.T) {
	t.Parallel()

	for _, k := range []string{"2025-W6", "2025-W00", "2025-W54", "2025-W53", "2025W06", "25-W06", ""} {
		if _, err := ParseWeekKey(k); err == nil {
			t.Fatalf("ParseWeekKey(%q) accepted", k)
		}
	}
	if !ValidWeekKey("2020-W53") {
		t.Fatalf("2020-W53 should be valid")
	}
}

func TestPeriodRangesForWeek(t *testing.T) {
	t.Parallel()

	pr, err := PeriodRangesForWeek("2025-W06", DateRange{Start: date(2023, time.March, 15), End: date(2025, time.March, 1)})
	if err != nil {
		t.Fatalf("ranges: %v", err)
	}
	check := func(name string, r DateRange, start, end time.Time) {
		t.Helper()
		if !r.Start.Equal(start) || !r.End.Equal(end) {
			t.Fatalf("%s=%s, want %s..%s", name, r, start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
	}
	sunday := date(2025, time.February, 9)
	check("week", pr.Week, date(2025, time.February, 3), sunday)
	check("mtd", pr.MTD, date(2025, time.February, 1), sunday)
	check("qtd", pr.QTD, date(2025, time.January, 1), sunday)
	check("ytd", pr.YTD, date(2025, time.January, 1), sunday)
	check("all", pr.All, date(2023, time.March, 15), sunday)
	check("prev_month", pr.PrevMonth, date(2025, time.January, 1), date(2025, time.January, 31))
	check("prev_quarter", pr.PrevQuarter, date(2024, time.October, 1), date(2024, time.December, 31))
	check("prev_year", pr.PrevYear, date(2024, time.January, 1), date(2024, time.December, 31))

	if got := pr.Week.Label(); got != "3-9 Feb 2025" {
		t.Fatalf("week label=%q", got)
	}
}

func TestPeriodRanges_Nested(t *testing.T) {
	t.Parallel()

	for d := date(2024, time.December, 1); d.Before(date(2026, time.February, 1)); d = d.AddDate(0, 0, 7) {
		pr, err := PeriodRangesForWeek(WeekKey(d), DateRange{})
		if err != nil {
			t.Fatalf("ranges: %v", err)
		}
		if !pr.MTD.Covers(pr.Week) {
			t.Fatalf("%s: mtd %s does not cover week %s", pr.WeekKey, pr.MTD, pr.Week)
		}
		if !pr.QTD.Covers(pr.MTD) || !pr.YTD.Covers(pr.QTD) || !pr.All.Covers(pr.Week) {
			t.Fatalf("%s: ranges not nested: %+v", pr.WeekKey, pr)
		}
	}
}

func TestLastCompletedWeek(t *testing.T) {
	t.Parallel()

	if got := LastCompletedWeek(date(2025, time.February, 12)); got != "2025-W06" {
		t.Fatalf("got %s", got)
	}
	if got := LastCompletedWeek(date(2025, time.January, 1)); got != "2024-W52" {
		t.Fatalf("got %s", got)
	}
}

func TestDateRangeLabel(t *testing.T) {
	t.Parallel()

	r, _ := WeekRange("2025-W05")
	if got := r.Label(); got != "27 Jan - 2 Feb 2025" {
		t.Fatalf("label=%q", got)
	}
	r, _ = WeekRange("2025-W01")
	if got := r.Label(); got != "30 Dec 2024 - 5 Jan 2025" {
		t.Fatalf("label=%q", got)
	}
}

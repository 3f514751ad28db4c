package pulse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Period names a reporting window relative to an anchor week.
type Period string

const (
	PeriodWeek Period = "week"
	PeriodMTD  Period = "mtd"
	PeriodQTD  Period = "qtd"
	PeriodYTD  Period = "ytd"
	PeriodAll  Period = "all"
)

// ReportPeriods is the order periods appear in reports.
var ReportPeriods = []Period{PeriodWeek, PeriodMTD, PeriodQTD, PeriodYTD, PeriodAll}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// Contains reports whether the calendar day of t lies within the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return false
	}
	d := Day(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Covers reports whether o lies entirely within r.
func (r DateRange) Covers(o DateRange) bool {
	return !o.Start.Before(r.Start) && !o.End.After(r.End)
}

func (r DateRange) String() string {
	if r.IsZero() {
		return ""
	}
	return NormalizeDate(r.Start) + ".." + NormalizeDate(r.End)
}

// Label renders the range for humans, e.g. "3-9 Feb 2025" or "27 Jan - 2 Feb 2025".
func (r DateRange) Label() string {
	if r.IsZero() {
		return ""
	}
	s, e := r.Start, r.End
	switch {
	case s.Equal(e):
		return s.Format("2 Jan 2006")
	case s.Year() != e.Year():
		return s.Format("2 Jan 2006") + " - " + e.Format("2 Jan 2006")
	case s.Month() != e.Month():
		return s.Format("2 Jan") + " - " + e.Format("2 Jan 2006")
	default:
		return fmt.Sprintf("%d-%s", s.Day(), e.Format("2 Jan 2006"))
	}
}

// Day truncates t to its calendar day in UTC, keeping the wall-clock date of t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ISOWeekMonday returns the Monday that starts the ISO week containing t.
func ISOWeekMonday(t time.Time) time.Time {
	d := Day(t)
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDate(0, 0, -(wd - 1))
}

// WeekKey returns the canonical YYYY-W## key of the ISO week containing t.
func WeekKey(t time.Time) string {
	y, w := Day(t).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

var weekKeyRe = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// ParseWeekKey returns the Monday of the week named by key. It rejects keys that are not in
// canonical form or that name a week the ISO year does not have.
func ParseWeekKey(key string) (time.Time, error) {
	m := weekKeyRe.FindStringSubmatch(key)
	if m == nil {
		return time.Time{}, fmt.Errorf("ParseWeekKey: %q is not YYYY-W##", key)
	}
	year, _ := strconv.Atoi(m[1])
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("ParseWeekKey: %q: week out of range", key)
	}
	// January 4th always falls in ISO week 1.
	monday := ISOWeekMonday(time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)).AddDate(0, 0, 7*(week-1))
	if WeekKey(monday) != key {
		return time.Time{}, fmt.Errorf("ParseWeekKey: %q: year %d has no week %d", key, year, week)
	}
	return monday, nil
}

// ValidWeekKey reports whether key is a canonical, existing ISO week key.
func ValidWeekKey(key string) bool {
	_, err := ParseWeekKey(key)
	return err == nil
}

// WeekRange returns the Monday..Sunday range of the named week.
func WeekRange(key string) (DateRange, error) {
	monday, err := ParseWeekKey(key)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{Start: monday, End: monday.AddDate(0, 0, 6)}, nil
}

// LastCompletedWeek is the default anchor: the ISO week before the one containing now.
func LastCompletedWeek(now time.Time) string {
	return WeekKey(ISOWeekMonday(now).AddDate(0, 0, -7))
}

// ShiftWeek returns the key n weeks after key (n may be negative).
func ShiftWeek(key string, n int) (string, error) {
	monday, err := ParseWeekKey(key)
	if err != nil {
		return "", err
	}
	return WeekKey(monday.AddDate(0, 0, 7*n)), nil
}

// PeriodRanges holds every range derived from one anchor week.
type PeriodRanges struct {
	WeekKey string `json:"week_key"`

	Week DateRange `json:"week"`
	MTD  DateRange `json:"mtd"`
	QTD  DateRange `json:"qtd"`
	YTD  DateRange `json:"ytd"`
	All  DateRange `json:"all"`

	// Full calendar periods containing the week's Monday and their predecessors.
	Month       DateRange `json:"month"`
	Quarter     DateRange `json:"quarter"`
	Year        DateRange `json:"year"`
	PrevWeek    DateRange `json:"prev_week"`
	PrevMonth   DateRange `json:"prev_month"`
	PrevQuarter DateRange `json:"prev_quarter"`
	PrevYear    DateRange `json:"prev_year"`
}

// PeriodRangesForWeek derives the reporting ranges for weekKey. MTD, QTD and YTD start on the
// first day of the month, quarter and year containing the week's Monday and end on the week's
// Sunday. All starts at the earliest day of data (or the week start when data is empty or later)
// and ends on the week's Sunday.
func PeriodRangesForWeek(weekKey string, data DateRange) (PeriodRanges, error) {
	monday, err := ParseWeekKey(weekKey)
	if err != nil {
		return PeriodRanges{}, err
	}
	sunday := monday.AddDate(0, 0, 6)

	monthStart := time.Date(monday.Year(), monday.Month(), 1, 0, 0, 0, 0, time.UTC)
	qMonth := time.Month((int(monday.Month())-1)/3*3 + 1)
	quarterStart := time.Date(monday.Year(), qMonth, 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(monday.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	allStart := monday
	if !data.IsZero() && data.Start.Before(allStart) {
		allStart = Day(data.Start)
	}

	pr := PeriodRanges{
		WeekKey: weekKey,
		Week:    DateRange{Start: monday, End: sunday},
		MTD:     DateRange{Start: monthStart, End: sunday},
		QTD:     DateRange{Start: quarterStart, End: sunday},
		YTD:     DateRange{Start: yearStart, End: sunday},
		All:     DateRange{Start: allStart, End: sunday},

		Month:    DateRange{Start: monthStart, End: monthStart.AddDate(0, 1, -1)},
		Quarter:  DateRange{Start: quarterStart, End: quarterStart.AddDate(0, 3, -1)},
		Year:     DateRange{Start: yearStart, End: yearStart.AddDate(1, 0, -1)},
		PrevWeek: DateRange{Start: monday.AddDate(0, 0, -7), End: monday.AddDate(0, 0, -1)},
	}
	pr.PrevMonth = DateRange{Start: monthStart.AddDate(0, -1, 0), End: monthStart.AddDate(0, 0, -1)}
	pr.PrevQuarter = DateRange{Start: quarterStart.AddDate(0, -3, 0), End: quarterStart.AddDate(0, 0, -1)}
	pr.PrevYear = DateRange{Start: yearStart.AddDate(-1, 0, 0), End: yearStart.AddDate(0, 0, -1)}
	return pr, nil
}

// Range returns the range for a report period.
func (p PeriodRanges) Range(period Period) (DateRange, bool) {
	switch period {
	case PeriodWeek:
		return p.Week, true
	case PeriodMTD:
		return p.MTD, true
	case PeriodQTD:
		return p.QTD, true
	case PeriodYTD:
		return p.YTD, true
	case PeriodAll:
		return p.All, true
	}
	return DateRange{}, false
}

// Label renders a human title for a report period.
func (p PeriodRanges) Label(period Period) string {
	switch period {
	case PeriodWeek:
		return fmt.Sprintf("Week %s (%s)", p.WeekKey, p.Week.Label())
	case PeriodMTD:
		return p.Week.Start.Format("January 2006") + " to date"
	case PeriodQTD:
		return fmt.Sprintf("%s to date", QuarterKey(p.Week.Start))
	case PeriodYTD:
		return fmt.Sprintf("%d to date", p.Week.Start.Year())
	case PeriodAll:
		return "All time since " + p.All.Start.Format("2 Jan 2006")
	}
	return string(period)
}

// MonthKey returns YYYY-MM.
func MonthKey(t time.Time) string { return t.Format("2006-01") }

// QuarterKey returns e.g. "Q1 2025".
func QuarterKey(t time.Time) string {
	return fmt.Sprintf("Q%d %d", (int(t.Month())-1)/3+1, t.Year())
}

// DataSpan returns the smallest range covering every date, or a zero range when dates is empty.
func DataSpan(dates []time.Time) DateRange {
	var r DateRange
	for _, t := range dates {
		if t.IsZero() {
			continue
		}
		d := Day(t)
		if r.IsZero() {
			r = DateRange{Start: d, End: d}
			continue
		}
		if d.Before(r.Start) {
			r.Start = d
		}
		if d.After(r.End) {
			r.End = d
		}
	}
	return r
}

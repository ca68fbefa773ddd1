package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - A calendar day (the engine's only time resolution)
// =============================================================================

// TimePoint is a calendar day at UTC midnight. Build it with NewTimePoint or
// DateOf so two TimePoints for the same day compare equal with ==.
type TimePoint struct {
	Time time.Time
}

const DateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates any instant to its calendar day.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, &InvalidInputError{Field: "date", Reason: fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s)}
	}
	return DateOf(t), nil
}

func Today() TimePoint {
	return DateOf(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return DateOf(tp.Time.AddDate(0, 0, n)) }

// Properties
func (tp TimePoint) Year() int            { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month    { return tp.Time.Month() }
func (tp TimePoint) Day() int             { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool         { return tp.Time.IsZero() }
func (tp TimePoint) String() string       { return tp.Time.Format(DateLayout) }
func (tp TimePoint) MonthOf() Month       { return Month{Year: tp.Year(), Month: tp.Month()} }

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + tp.String() + `"`), nil
}

func (tp *TimePoint) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return &InvalidInputError{Field: "date", Reason: "expected quoted YYYY-MM-DD"}
	}
	parsed, err := ParseDate(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// DaysBetween counts whole days from -> to (negative when to is earlier).
func DaysBetween(from, to TimePoint) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// =============================================================================
// MONTH - Granularity of the slush-fund policy
// =============================================================================

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

const MonthLayout = "2006-01"

func NewMonth(year int, month time.Month) Month { return Month{Year: year, Month: month} }

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return Month{}, &InvalidInputError{Field: "month", Reason: fmt.Sprintf("invalid month %q (use YYYY-MM)", s)}
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) First() TimePoint { return NewTimePoint(m.Year, m.Month, 1) }
func (m Month) Last() TimePoint  { return m.Next().First().AddDays(-1) }
func (m Month) Next() Month      { return DateOf(m.First().Time.AddDate(0, 1, 0)).MonthOf() }
func (m Month) Prev() Month      { return DateOf(m.First().Time.AddDate(0, -1, 0)).MonthOf() }
func (m Month) String() string   { return m.First().Time.Format(MonthLayout) }
func (m Month) Period() Period   { return Period{Start: m.First(), End: m.Last()} }

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MonthPair keys a transition between two consecutive months.
type MonthPair struct {
	From Month
	To   Month
}

func (p MonthPair) String() string { return p.From.String() + "->" + p.To.String() }

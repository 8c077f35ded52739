package aggregates

import (
	"fmt"
	"time"
)

// DateLayout is the storage format of aggregate dates.
const DateLayout = "2006-01-02"

// DayKey returns the UTC day containing t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DateRange is an inclusive range of UTC days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange truncates both ends to their UTC day and rejects reversed ranges.
func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: startOfDay(from), To: startOfDay(to)}
	if r.To.Before(r.From) {
		return DateRange{}, fmt.Errorf("invalid date range: %s is after %s", DayKey(from), DayKey(to))
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	return NewDateRange(f, t)
}

// LastDays returns the range of n days ending on the day containing now.
func LastDays(now time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	to := startOfDay(now)
	return DateRange{From: to.AddDate(0, 0, -(n - 1)), To: to}
}

// Days returns every day key in the range, in order.
func (r DateRange) Days() []string {
	var days []string
	for d := startOfDay(r.From); !d.After(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, DayKey(d))
	}
	return days
}

// End is the first instant after the range.
func (r DateRange) End() time.Time {
	return startOfDay(r.To).AddDate(0, 0, 1)
}

func (r DateRange) fromKey() string { return DayKey(r.From) }
func (r DateRange) toKey() string   { return DayKey(r.To) }

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

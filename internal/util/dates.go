package util

import "time"

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// DayKey returns the UTC calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// MonthKey returns the UTC calendar month of t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// PreviousMonth returns the month key of the UTC month before t.
func PreviousMonth(t time.Time) string {
	return PreviousMonthIn(t, time.UTC)
}

// PreviousMonthIn returns the key of the month before the one containing t
// on the wall clock of loc. A nil loc means UTC.
func PreviousMonthIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	first := time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0).Format(monthLayout)
}

// DaysInMonth returns the number of days in the month identified by key.
func DaysInMonth(month string) (int, error) {
	first, err := time.Parse(monthLayout, month)
	if err != nil {
		return 0, err
	}
	return first.AddDate(0, 1, -1).Day(), nil
}

// ValidMonth reports whether s is a YYYY-MM month key.
func ValidMonth(s string) bool {
	_, err := time.Parse(monthLayout, s)
	return err == nil
}

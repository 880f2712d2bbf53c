// Package dates holds calendar-date helpers. Delivery dates carry no time-of-day, so every value
// handled here is normalised to midnight UTC and compared as a whole day.
package dates

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Layout is the wire format for calendar dates.
const Layout = "2006-01-02"

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Normalize truncates t to its calendar date at midnight UTC, keeping the wall-clock date of t's
// own location.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a normalised calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Parse reads a YYYY-MM-DD string. Full RFC3339 timestamps are accepted and truncated to their
// date so older clients that send ISO strings keep working.
func Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(Layout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return Normalize(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
}

// Format renders a calendar date as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// AddDays shifts a date by n whole days.
func AddDays(t time.Time, n int) time.Time {
	return Normalize(t).AddDate(0, 0, n)
}

// Equal compares two values by calendar date only.
func Equal(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}

// WeekOfMonth returns the ordinal of t's weekday within its month (1..5), i.e. ceil(day/7).
func WeekOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// DaysInMonth returns the number of days of the month containing t.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthBounds returns the first and last day of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	first := Date(t.Year(), t.Month(), 1)
	return first, first.AddDate(0, 1, -1)
}

// Range returns every date from start to end inclusive.
func Range(start, end time.Time) []time.Time {
	start, end = Normalize(start), Normalize(end)
	if end.Before(start) {
		return nil
	}
	out := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// SortUnique normalises, sorts ascending and de-duplicates a date list.
func SortUnique(in []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(in))
	out := make([]time.Time, 0, len(in))
	for _, t := range in {
		d := Normalize(t)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// WeekdayName returns the lowercase English weekday name.
func WeekdayName(w time.Weekday) string {
	return weekdayNames[w]
}

// ParseWeekday accepts a weekday name (any case, full or three-letter) or its index 0..6.
func ParseWeekday(raw string) (time.Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range weekdayNames {
		if value == name || value == name[:3] || value == fmt.Sprint(i) {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", raw)
}

// Ordinal renders n with its English suffix ("1st", "2nd", "11th", "23rd").
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

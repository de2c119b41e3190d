// Package calendar implements Mon-Fri business-day arithmetic.
//
// Holidays are not modelled. All counting happens on calendar dates: the
// time of day of the inputs is ignored.
package calendar

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// StartOfDay truncates t to midnight in t's own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// BusinessDaysBetween counts the business days in the closed interval
// [start, end], both endpoints included. A reversed range yields 0.
func BusinessDaysBetween(start, end time.Time) int {
	s := civil(start)
	e := civil(end)
	if e.Before(s) {
		return 0
	}
	days := int(e.Sub(s).Hours()/24) + 1
	count := (days / 7) * 5
	wd := s.Weekday()
	for i := 0; i < days%7; i++ {
		if wd != time.Saturday && wd != time.Sunday {
			count++
		}
		wd = (wd + 1) % 7
	}
	return count
}

// AddBusinessDays walks forward from start until n business days have been
// added. The start date is never counted. n <= 0 returns start unchanged.
func AddBusinessDays(start time.Time, n int) time.Time {
	d := start
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if IsBusinessDay(d) {
			added++
		}
	}
	return d
}

// ParseDate accepts YYYY-MM-DD or RFC3339 text and returns the date at
// midnight in loc. ok is false for empty or unparseable input.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	}
	if len(s) > len(DateLayout) {
		// Timestamps such as "2024-06-28 00:00:00" or "2024-06-28T00:00:00".
		if t, err := time.ParseInLocation(DateLayout, s[:len(DateLayout)], loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// civil maps t's calendar date onto UTC so day differences are not skewed
// by DST transitions.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

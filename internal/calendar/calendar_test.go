package calendar

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBusinessDaysBetween(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		want       int
	}{
		{"same weekday", "2024-07-01", "2024-07-01", 1},
		{"same saturday", "2024-06-29", "2024-06-29", 0},
		{"same sunday", "2024-06-30", "2024-06-30", 0},
		{"across weekend", "2024-06-28", "2024-07-02", 3},
		{"full week", "2024-07-01", "2024-07-07", 5},
		{"two weeks", "2024-07-01", "2024-07-12", 10},
		{"weekend to weekend", "2024-06-29", "2024-07-07", 5},
		{"reversed", "2024-07-02", "2024-06-28", 0},
		{"long span", "2024-01-01", "2024-12-31", 262},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BusinessDaysBetween(date(tc.start), date(tc.end)); got != tc.want {
				t.Fatalf("BusinessDaysBetween(%s, %s) = %d, want %d", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestBusinessDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2024, 6, 28, 23, 59, 0, 0, time.UTC)
	end := time.Date(2024, 7, 2, 0, 1, 0, 0, time.UTC)
	if got := BusinessDaysBetween(start, end); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestBusinessDaysBetweenMonotonic(t *testing.T) {
	start := date("2024-06-26")
	prev := 0
	for i := 0; i < 60; i++ {
		got := BusinessDaysBetween(start, start.AddDate(0, 0, i))
		if got < prev {
			t.Fatalf("count decreased at offset %d: %d < %d", i, got, prev)
		}
		prev = got
	}
}

func TestAddBusinessDays(t *testing.T) {
	cases := []struct {
		start string
		n     int
		want  string
	}{
		{"2024-06-28", 1, "2024-07-01"},
		{"2024-06-28", 0, "2024-06-28"},
		{"2024-06-28", -3, "2024-06-28"},
		{"2024-07-01", 4, "2024-07-05"},
		{"2024-07-01", 5, "2024-07-08"},
		{"2024-06-29", 1, "2024-07-01"},
		{"2024-07-01", 10, "2024-07-15"},
	}
	for _, tc := range cases {
		if got := FormatDate(AddBusinessDays(date(tc.start), tc.n)); got != tc.want {
			t.Fatalf("AddBusinessDays(%s, %d) = %s, want %s", tc.start, tc.n, got, tc.want)
		}
	}
}

func TestAddBusinessDaysRoundTrip(t *testing.T) {
	start := date("2024-07-01")
	for d := 0; d < 14; d++ {
		day := start.AddDate(0, 0, d)
		if !IsBusinessDay(day) {
			continue
		}
		for n := 0; n < 30; n++ {
			end := AddBusinessDays(day, n)
			if got := BusinessDaysBetween(day, end); got != n+1 {
				t.Fatalf("round trip from %s with n=%d: got %d", FormatDate(day), n, got)
			}
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-06-28", "2024-06-28", true},
		{" 2024-06-28 ", "2024-06-28", true},
		{"2024-06-28T15:04:05Z", "2024-06-28", true},
		{"2024-06-28 10:00:00", "2024-06-28", true},
		{"", "", false},
		{"not a date", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.in, time.UTC)
		if ok != tc.ok || FormatDate(got) != tc.want {
			t.Fatalf("ParseDate(%q) = %s,%v want %s,%v", tc.in, FormatDate(got), ok, tc.want, tc.ok)
		}
	}
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	in := time.Date(2024, 6, 28, 22, 30, 0, 0, loc)
	got := StartOfDay(in)
	if got.Hour() != 0 || got.Day() != 28 || got.Location() != loc {
		t.Fatalf("unexpected start of day %v", got)
	}
}

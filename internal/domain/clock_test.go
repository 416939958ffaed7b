package domain

import "testing"

func TestParseClock(t *testing.T) {
	cases := []struct {
		in  string
		min int
		ok  bool
	}{
		{"00:00", 0, true},
		{"23:59", 1439, true},
		{"24:00", 1440, true},
		{"07:30:15", 450, true},
		{"7:05", 425, true},
		{" 09:15 ", 555, true},
		{"25:00", 0, false},
		{"12:60", 0, false},
		{"", 0, false},
		{"noon", 0, false},
		{"12", 0, false},
		{"12:3a", 0, false},
	}
	for _, tc := range cases {
		min, ok := ParseClock(tc.in)
		if ok != tc.ok || (ok && min != tc.min) {
			t.Fatalf("ParseClock(%q) = (%d,%v), ожидали (%d,%v)", tc.in, min, ok, tc.min, tc.ok)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(1439); got != "23:59" {
		t.Fatalf("ожидали 23:59, получили %s", got)
	}
	if got := FormatClock(1440); got != "23:59" {
		t.Fatalf("полночь не сохраняется, ожидали 23:59, получили %s", got)
	}
	if got := FormatClock(0); got != "00:00" {
		t.Fatalf("ожидали 00:00, получили %s", got)
	}
	if got := FormatClock(435); got != "07:15" {
		t.Fatalf("ожидали 07:15, получили %s", got)
	}
}

func TestPreviousDate(t *testing.T) {
	prev, err := PreviousDate("2025-01-01")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if prev != "2024-12-31" {
		t.Fatalf("ожидали 2024-12-31, получили %s", prev)
	}
	if _, err := PreviousDate("вчера"); err == nil {
		t.Fatalf("ожидали ошибку для мусорной даты")
	}
}

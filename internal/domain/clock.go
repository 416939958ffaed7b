package domain

import (
	"fmt"
	"strings"
)

// MinutesPerDay длина суток в минутах.
const MinutesPerDay = 1440

// ParseClock разбирает настенное время "HH:MM" или "HH:MM:SS" в минуты
// от полуночи. "24:00" принимается как 1440 на входе, но никогда не
// сохраняется. Секунды отбрасываются.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}
	h, ok := parseTwoDigits(parts[0])
	if !ok {
		return 0, false
	}
	m, ok := parseTwoDigits(parts[1])
	if !ok {
		return 0, false
	}
	if len(parts) == 3 {
		if _, ok := parseTwoDigits(parts[2]); !ok {
			return 0, false
		}
	}
	if m > 59 {
		return 0, false
	}
	total := h*60 + m
	if total > MinutesPerDay {
		return 0, false
	}
	return total, true
}

func parseTwoDigits(s string) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// FormatClock печатает минуты от полуночи как "HH:MM", зажимая
// значение в сохраняемый диапазон [00:00, 23:59].
func FormatClock(min int) string {
	if min < 0 {
		min = 0
	}
	if min >= MinutesPerDay {
		min = MinutesPerDay - 1
	}
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

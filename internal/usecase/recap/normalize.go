package recap

import (
	"strings"

	"recap-board/internal/domain"
)

// NormalizedDay результат темпоральной нормализации кандидата.
type NormalizedDay struct {
	Events       []domain.Event
	Metrics      domain.Metrics
	PrevSegments []domain.SleepSegment
}

// NormalizeDay приводит день от суммаризатора к инвариантам хранения:
// события не пересекают полночь, sleepHours считается только из
// авторитетного утреннего блока, перенос на предыдущий день собирается
// отдельным списком. Ответ суммаризатора недоверенный, поэтому метрики
// дополнительно зажимаются в допустимые диапазоны.
func NormalizeDay(candidate domain.CandidateDay) NormalizedDay {
	out := NormalizedDay{
		Events:  make([]domain.Event, 0, len(candidate.Events)),
		Metrics: clipMetrics(candidate.Metrics),
	}

	type segment struct {
		startMin int
		endMin   int
	}
	var sameDay []segment

	for _, ev := range candidate.Events {
		stored := domain.Event{
			Label:     strings.TrimSpace(ev.Label),
			Category:  ev.Category,
			StartTime: strings.TrimSpace(ev.StartTime),
			EndTime:   strings.TrimSpace(ev.EndTime),
			Notes:     strings.TrimSpace(ev.Notes),
		}
		if !domain.KnownCategory(stored.Category) {
			stored.Category = domain.CategoryUntracked
		}

		if stored.Category != domain.CategorySleep {
			out.Events = append(out.Events, stored)
			continue
		}

		start, okStart := domain.ParseClock(stored.StartTime)
		end, okEnd := domain.ParseClock(stored.EndTime)
		if !okStart || !okEnd {
			// нечитаемое время: событие остаётся в списке, но не
			// участвует ни в метрике, ни в переносе
			out.Events = append(out.Events, stored)
			continue
		}

		if start <= end {
			if start < end {
				sameDay = append(sameDay, segment{startMin: start, endMin: end})
			}
			if end == domain.MinutesPerDay {
				// "24:00" участвует в расчёте, но не сохраняется
				stored.EndTime = "23:59"
			}
			out.Events = append(out.Events, stored)
			continue
		}

		// интервал через полночь: [start,1440) уходит предыдущему дню,
		// [0,end) остаётся текущему, событие переписывается с начала суток
		out.PrevSegments = append(out.PrevSegments, domain.SleepSegment{StartMin: start, EndMin: domain.MinutesPerDay})
		stored.StartTime = "00:00"
		if end > 0 {
			sameDay = append(sameDay, segment{startMin: 0, endMin: end})
		}
		out.Events = append(out.Events, stored)
	}

	// авторитетный сон дня — сегмент с самым ранним окончанием: он
	// надёжнее всего указывает на ночной блок, а не на дневной сон
	out.Metrics.SleepHours = 0
	if len(sameDay) > 0 {
		main := sameDay[0]
		for _, s := range sameDay[1:] {
			if s.endMin < main.endMin {
				main = s
			}
		}
		out.Metrics.SleepHours = float64(main.endMin-main.startMin) / 60.0
	}

	return out
}

func clipMetrics(m domain.CandidateMetrics) domain.Metrics {
	return domain.Metrics{
		ProductiveHours: clampHours(m.ProductiveHours),
		NeutralHours:    clampHours(m.NeutralHours),
		WastedHours:     clampHours(m.WastedHours),
		SleepHours:      clampHours(m.SleepHours),
		FocusBlocks:     clampCount(m.FocusBlocks),
		ContextSwitches: clampCount(m.ContextSwitches),
	}
}

func clampHours(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 24 {
		return 24
	}
	return v
}

func clampCount(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

package recap

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"recap-board/internal/domain"
)

// memDayRepo повторяет контракт domain.DayRepo в памяти, включая
// дельта-семантику патча предыдущего дня: минуты переноса хранятся
// отдельно от события, как carryover_minutes в БД.
type memDayRepo struct {
	days       map[string]*domain.Day
	carried    map[string]int
	nextID     int64
	applyCalls int
	failApply  bool
}

func newMemDayRepo() *memDayRepo {
	return &memDayRepo{days: make(map[string]*domain.Day), carried: make(map[string]int)}
}

func (m *memDayRepo) GetDay(_ context.Context, ownerID int64, date string) (domain.Day, error) {
	day, ok := m.days[date]
	if !ok {
		return domain.Day{}, domain.ErrNotFound
	}
	copied := *day
	copied.OwnerID = ownerID
	copied.Events = append([]domain.Event(nil), day.Events...)
	copied.Transcripts = append([]string(nil), day.Transcripts...)
	return copied, nil
}

func (m *memDayRepo) ListDays(_ context.Context, _ int64, from, to string) ([]domain.Day, error) {
	var out []domain.Day
	for date, day := range m.days {
		if date >= from && date <= to {
			out = append(out, *day)
		}
	}
	return out, nil
}

func (m *memDayRepo) ApplyIngestion(_ context.Context, ownerID int64, upd domain.DayUpdate, patch *domain.PrevDayPatch) (domain.Day, error) {
	m.applyCalls++
	if m.failApply {
		return domain.Day{}, errors.New("хранилище недоступно")
	}

	if patch != nil {
		prev, ok := m.days[patch.Date]
		if !ok {
			m.nextID++
			prev = &domain.Day{ID: m.nextID, OwnerID: ownerID, Date: patch.Date, Transcripts: []string{}}
			m.days[patch.Date] = prev
		}
		previousMinutes := m.carried[patch.Date]
		kept := prev.Events[:0:0]
		for _, ev := range prev.Events {
			if ev.Label != patch.Label {
				kept = append(kept, ev)
			}
		}
		delta := float64(patch.CarryMinutes-previousMinutes) / 60.0
		m.carried[patch.Date] = patch.CarryMinutes
		prev.Metrics.SleepHours += delta
		if prev.Metrics.SleepHours < 0 {
			prev.Metrics.SleepHours = 0
		}
		prev.Events = append(kept, domain.Event{
			DayID:     prev.ID,
			Label:     patch.Label,
			Category:  domain.CategorySleep,
			StartTime: patch.StartTime,
			EndTime:   patch.EndTime,
		})
	}

	day, ok := m.days[upd.Date]
	if !ok {
		m.nextID++
		day = &domain.Day{ID: m.nextID, OwnerID: ownerID, Date: upd.Date}
		m.days[upd.Date] = day
	}
	day.Transcripts = append([]string(nil), upd.Transcripts...)
	day.Summary = upd.Summary
	day.Suggestions = append([]string(nil), upd.Suggestions...)
	day.Metrics = upd.Metrics
	day.Metrics.DayID = day.ID
	day.Events = append([]domain.Event(nil), upd.Events...)
	// полная запись стирает событие переноса, запомненные минуты тоже
	m.carried[upd.Date] = 0
	copied := *day
	return copied, nil
}

func (m *memDayRepo) DeleteDay(_ context.Context, _ int64, date string) error {
	if _, ok := m.days[date]; !ok {
		return domain.ErrNotFound
	}
	delete(m.days, date)
	return nil
}

type fakeSummarizer struct {
	candidate domain.CandidateDay
	err       error
	lastReq   domain.SummarizeRequest
	calls     int
}

func (f *fakeSummarizer) SummarizeRecap(_ context.Context, req domain.SummarizeRequest) (domain.CandidateDay, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return domain.CandidateDay{}, f.err
	}
	return f.candidate, nil
}

type noopLock struct{}

func (noopLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

type busyLock struct{}

func (busyLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrIngestBusy
}

func newTestService(repo *memDayRepo, sum *fakeSummarizer, locks domain.KeyLock) *Service {
	if locks == nil {
		locks = noopLock{}
	}
	return NewService(repo, sum, locks, time.Minute, zerolog.Nop())
}

func TestIngestValidation(t *testing.T) {
	repo := newMemDayRepo()
	svc := newTestService(repo, &fakeSummarizer{}, nil)

	cases := []IngestRequest{
		{Date: "", Transcript: "текст"},
		{Date: "2025-01-10", Transcript: "   "},
		{Date: "10.01.2025", Transcript: "текст"},
		{Date: "2025-01-10", Transcript: "текст", NowLocalTime: "вечер"},
	}
	for i, req := range cases {
		_, err := svc.Ingest(context.Background(), 1, req)
		if domain.KindOf(err) != domain.FaultValidation {
			t.Fatalf("вариант %d: ожидали validation, получили %v", i, err)
		}
	}
	if repo.applyCalls != 0 {
		t.Fatalf("при ошибке валидации записей быть не должно")
	}
}

func TestIngestSummarizerFailureNoWrites(t *testing.T) {
	repo := newMemDayRepo()
	sum := &fakeSummarizer{err: errors.New("модель недоступна")}
	svc := newTestService(repo, sum, nil)

	_, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-10", Transcript: "день прошёл"})
	if domain.KindOf(err) != domain.FaultUpstream {
		t.Fatalf("ожидали upstream, получили %v", err)
	}
	if repo.applyCalls != 0 {
		t.Fatalf("при сбое суммаризатора записей быть не должно")
	}
}

func TestIngestBusy(t *testing.T) {
	repo := newMemDayRepo()
	svc := newTestService(repo, &fakeSummarizer{}, busyLock{})

	_, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-10", Transcript: "день"})
	if domain.KindOf(err) != domain.FaultBusy {
		t.Fatalf("ожидали busy, получили %v", err)
	}
}

func TestIngestPersistenceFailure(t *testing.T) {
	repo := newMemDayRepo()
	repo.failApply = true
	sum := &fakeSummarizer{candidate: domain.CandidateDay{Events: []domain.CandidateEvent{}}}
	svc := newTestService(repo, sum, nil)

	_, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-10", Transcript: "день"})
	if domain.KindOf(err) != domain.FaultPersistence {
		t.Fatalf("ожидали persistence, получили %v", err)
	}
}

func TestIngestAppendsTranscripts(t *testing.T) {
	repo := newMemDayRepo()
	repo.days["2025-01-10"] = &domain.Day{ID: 7, Date: "2025-01-10", Transcripts: []string{"утро прошло за почтой"}}
	sum := &fakeSummarizer{candidate: domain.CandidateDay{Events: []domain.CandidateEvent{}}}
	svc := newTestService(repo, sum, nil)

	day, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-10", Transcript: "вечером читал"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sum.lastReq.Transcripts) != 2 || sum.lastReq.Transcripts[0] != "утро прошло за почтой" || sum.lastReq.Transcripts[1] != "вечером читал" {
		t.Fatalf("суммаризатор должен видеть всю историю по порядку: %v", sum.lastReq.Transcripts)
	}
	if sum.lastReq.ExistingState == nil {
		t.Fatalf("существующее состояние должно передаваться")
	}
	if len(day.Transcripts) != 2 {
		t.Fatalf("история дополняется, не затирается: %v", day.Transcripts)
	}
}

func TestIngestFirstRecapNoExistingState(t *testing.T) {
	repo := newMemDayRepo()
	sum := &fakeSummarizer{candidate: domain.CandidateDay{Events: []domain.CandidateEvent{}}}
	svc := newTestService(repo, sum, nil)

	if _, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-10", Transcript: "первый день"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sum.lastReq.ExistingState != nil {
		t.Fatalf("для первого рекапа состояния быть не должно")
	}
}

// Сценарий A: событие сна в пределах суток не меняется, метрика равна
// его длительности.
func TestIngestScenarioSameDaySleep(t *testing.T) {
	repo := newMemDayRepo()
	repo.days["2025-01-10"] = &domain.Day{ID: 1, Date: "2025-01-10", Transcripts: []string{}}
	sum := &fakeSummarizer{candidate: domain.CandidateDay{
		Date: "2025-01-10",
		Events: []domain.CandidateEvent{
			{Label: "Сон", Category: domain.CategorySleep, StartTime: "23:00", EndTime: "23:59"},
		},
	}}
	svc := newTestService(repo, sum, nil)

	day, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-10", Transcript: "лёг в 23:00"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(day.Events) != 1 || day.Events[0].StartTime != "23:00" || day.Events[0].EndTime != "23:59" {
		t.Fatalf("событие должно сохраниться как есть: %+v", day.Events)
	}
	want := 59.0 / 60.0
	if math.Abs(day.Metrics.SleepHours-want) > 1e-9 {
		t.Fatalf("ожидали %v часов сна, получили %v", want, day.Metrics.SleepHours)
	}
}

// Сценарий B: сон 23:00–07:00 режется по полуночи, предыдущий день
// получает час сна и событие переноса.
func TestIngestScenarioCrossMidnight(t *testing.T) {
	repo := newMemDayRepo()
	sum := &fakeSummarizer{candidate: domain.CandidateDay{
		Date: "2025-01-11",
		Events: []domain.CandidateEvent{
			{Label: "Сон", Category: domain.CategorySleep, StartTime: "23:00", EndTime: "07:00"},
		},
	}}
	svc := newTestService(repo, sum, nil)

	day, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-11", Transcript: "проснулся в 7, спал 8 часов"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(day.Events) != 1 || day.Events[0].StartTime != "00:00" || day.Events[0].EndTime != "07:00" {
		t.Fatalf("событие D должно стать 00:00–07:00: %+v", day.Events)
	}
	if math.Abs(day.Metrics.SleepHours-7) > 1e-9 {
		t.Fatalf("ожидали 7 часов сна на D, получили %v", day.Metrics.SleepHours)
	}

	prev, ok := repo.days["2025-01-10"]
	if !ok {
		t.Fatalf("предыдущий день должен быть создан заглушкой")
	}
	if math.Abs(prev.Metrics.SleepHours-1) > 1e-9 {
		t.Fatalf("ожидали +1 час на D-1, получили %v", prev.Metrics.SleepHours)
	}
	if len(prev.Events) != 1 {
		t.Fatalf("ожидали одно событие переноса, получили %d", len(prev.Events))
	}
	carry := prev.Events[0]
	if carry.Label != CarryoverLabel("2025-01-11") {
		t.Fatalf("метка должна кодировать целевую дату: %s", carry.Label)
	}
	if carry.StartTime != "23:00" || carry.EndTime != "23:59" {
		t.Fatalf("событие переноса должно быть 23:00–23:59: %+v", carry)
	}
	if carry.Category != domain.CategorySleep {
		t.Fatalf("событие переноса должно быть сном")
	}

	// заглушка D-1 — полноценная строка, читается сразу после патча
	got, err := svc.GetDay(context.Background(), 1, "2025-01-10")
	if err != nil {
		t.Fatalf("день-заглушка должен читаться: %v", err)
	}
	if len(got.Transcripts) != 0 {
		t.Fatalf("история заглушки пуста: %v", got.Transcripts)
	}
}

// Повторная обработка того же D не удваивает перенос.
func TestIngestCrossMidnightIdempotent(t *testing.T) {
	repo := newMemDayRepo()
	sum := &fakeSummarizer{candidate: domain.CandidateDay{
		Date: "2025-01-11",
		Events: []domain.CandidateEvent{
			{Label: "Сон", Category: domain.CategorySleep, StartTime: "23:00", EndTime: "07:00"},
		},
	}}
	svc := newTestService(repo, sum, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-11", Transcript: "спал 8 часов"}); err != nil {
			t.Fatalf("итерация %d: %v", i, err)
		}
	}

	prev := repo.days["2025-01-10"]
	if math.Abs(prev.Metrics.SleepHours-1) > 1e-9 {
		t.Fatalf("перенос не должен накапливаться: %v", prev.Metrics.SleepHours)
	}
	count := 0
	for _, ev := range prev.Events {
		if ev.Label == CarryoverLabel("2025-01-11") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("событие переноса должно быть ровно одно, получили %d", count)
	}
}

// Несколько отрезков через полночь: перенос равен их сумме и не
// накапливается при повторной обработке того же D.
func TestIngestMultiSegmentCarryoverIdempotent(t *testing.T) {
	repo := newMemDayRepo()
	sum := &fakeSummarizer{candidate: domain.CandidateDay{
		Date: "2025-01-11",
		Events: []domain.CandidateEvent{
			{Label: "Сон", Category: domain.CategorySleep, StartTime: "23:00", EndTime: "06:00"},
			{Label: "Задремал у телевизора", Category: domain.CategorySleep, StartTime: "23:20", EndTime: "00:00"},
		},
	}}
	svc := newTestService(repo, sum, nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-11", Transcript: "спал урывками"}); err != nil {
			t.Fatalf("итерация %d: %v", i, err)
		}
	}

	prev := repo.days["2025-01-10"]
	want := 100.0 / 60.0 // 60 минут + 40 минут
	if math.Abs(prev.Metrics.SleepHours-want) > 1e-9 {
		t.Fatalf("перенос должен равняться сумме отрезков и не расти: ожидали %v, получили %v", want, prev.Metrics.SleepHours)
	}
	count := 0
	for _, ev := range prev.Events {
		if ev.Label == CarryoverLabel("2025-01-11") {
			count++
			if ev.StartTime != "23:00" {
				t.Fatalf("событие переноса начинается с самого раннего отрезка: %s", ev.StartTime)
			}
		}
	}
	if count != 1 {
		t.Fatalf("событие переноса должно быть ровно одно, получили %d", count)
	}
}

// Сценарий C: главный сон — блок с самым ранним окончанием, дневной
// сон остаётся в списке и не влияет на метрику.
func TestIngestScenarioNap(t *testing.T) {
	repo := newMemDayRepo()
	sum := &fakeSummarizer{candidate: domain.CandidateDay{
		Date: "2025-01-12",
		Events: []domain.CandidateEvent{
			{Label: "Дневной сон", Category: domain.CategorySleep, StartTime: "14:00", EndTime: "15:00"},
			{Label: "Ночной сон", Category: domain.CategorySleep, StartTime: "01:00", EndTime: "07:00"},
		},
		Metrics: domain.CandidateMetrics{SleepHours: 12},
	}}
	svc := newTestService(repo, sum, nil)

	day, err := svc.Ingest(context.Background(), 1, IngestRequest{Date: "2025-01-12", Transcript: "спал ночью и днём"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if math.Abs(day.Metrics.SleepHours-6) > 1e-9 {
		t.Fatalf("метрика считается от ночного блока: %v", day.Metrics.SleepHours)
	}
	if len(day.Events) != 2 {
		t.Fatalf("дневной сон остаётся в списке")
	}
	// круговой инвариант: после записи все события внутри суток
	for _, ev := range day.Events {
		start, _ := domain.ParseClock(ev.StartTime)
		end, _ := domain.ParseClock(ev.EndTime)
		if start > end {
			t.Fatalf("событие %q нарушает start<=end", ev.Label)
		}
	}
}

func TestGetDayNotFound(t *testing.T) {
	svc := newTestService(newMemDayRepo(), &fakeSummarizer{}, nil)
	_, err := svc.GetDay(context.Background(), 1, "2025-01-10")
	if domain.KindOf(err) != domain.FaultNotFound {
		t.Fatalf("ожидали not_found, получили %v", err)
	}
}

func TestListDaysValidatesRange(t *testing.T) {
	svc := newTestService(newMemDayRepo(), &fakeSummarizer{}, nil)
	_, err := svc.ListDays(context.Background(), 1, "2025-01-20", "2025-01-10")
	if domain.KindOf(err) != domain.FaultValidation {
		t.Fatalf("ожидали validation, получили %v", err)
	}
}

func TestDeleteDay(t *testing.T) {
	repo := newMemDayRepo()
	repo.days["2025-01-10"] = &domain.Day{ID: 1, Date: "2025-01-10"}
	svc := newTestService(repo, &fakeSummarizer{}, nil)

	if err := svc.DeleteDay(context.Background(), 1, "2025-01-10"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.DeleteDay(context.Background(), 1, "2025-01-10"); domain.KindOf(err) != domain.FaultNotFound {
		t.Fatalf("повторное удаление — not_found, получили %v", err)
	}
}

package recap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"recap-board/internal/domain"
	"recap-board/internal/infra/metrics"
)

// IngestRequest запрос на обработку рекапа за день.
type IngestRequest struct {
	Date         string
	Transcript   string
	NowLocalTime string // необязательная подсказка для разрешения относительных фраз
}

// Service реализует конвейер обработки рекапов: загрузка состояния,
// суммаризация, нормализация, перенос сна и атомарная запись.
type Service struct {
	days       domain.DayRepo
	summarizer domain.RecapSummarizer
	locks      domain.KeyLock
	lockTTL    time.Duration
	log        zerolog.Logger
}

// NewService создаёт сервис рекапов.
func NewService(days domain.DayRepo, summarizer domain.RecapSummarizer, locks domain.KeyLock, lockTTL time.Duration, logger zerolog.Logger) *Service {
	if lockTTL <= 0 {
		lockTTL = 90 * time.Second
	}
	return &Service{days: days, summarizer: summarizer, locks: locks, lockTTL: lockTTL, log: logger}
}

func ingestLockKey(ownerID int64, date string) string {
	return fmt.Sprintf("ingest:%d:%s", ownerID, date)
}

// Ingest обрабатывает новый рекап за дату. Порядок строго один:
// загрузка → суммаризатор → нормализация → патч D-1 → запись D,
// последние два шага атомарны на стороне репозитория.
func (s *Service) Ingest(ctx context.Context, ownerID int64, req IngestRequest) (domain.Day, error) {
	metrics.RecapRequestsTotal.Inc()
	started := time.Now()

	transcript := strings.TrimSpace(req.Transcript)
	if req.Date == "" || transcript == "" {
		return domain.Day{}, domain.Validation("нужны дата и текст рекапа")
	}
	if !domain.ValidDate(req.Date) {
		return domain.Day{}, domain.Validation("дата должна быть в формате YYYY-MM-DD")
	}
	now := strings.TrimSpace(req.NowLocalTime)
	if now != "" {
		if _, ok := domain.ParseClock(now); !ok {
			return domain.Day{}, domain.Validation("nowLocalTime должно быть временем HH:MM")
		}
	}
	prevDate, err := domain.PreviousDate(req.Date)
	if err != nil {
		return domain.Day{}, domain.Validation("дата должна быть в формате YYYY-MM-DD")
	}

	// обе даты под локом: патч D-1 не должен гоняться с прямой
	// обработкой D-1; порядок захвата фиксирован от ранней даты к поздней
	releasePrev, err := s.locks.Acquire(ctx, ingestLockKey(ownerID, prevDate), s.lockTTL)
	if err != nil {
		return domain.Day{}, busyOrInternal(err, prevDate)
	}
	defer releasePrev()
	releaseCur, err := s.locks.Acquire(ctx, ingestLockKey(ownerID, req.Date), s.lockTTL)
	if err != nil {
		return domain.Day{}, busyOrInternal(err, req.Date)
	}
	defer releaseCur()

	var existing *domain.Day
	day, err := s.days.GetDay(ctx, ownerID, req.Date)
	switch {
	case err == nil:
		existing = &day
	case errors.Is(err, domain.ErrNotFound):
		// первого рекапа за дату ещё не было, день будет создан
	default:
		metrics.IncRecapFailure(string(domain.FaultPersistence))
		return domain.Day{}, domain.NewFault(domain.FaultPersistence, "загрузка дня", err)
	}

	transcripts := make([]string, 0, 1)
	if existing != nil {
		transcripts = append(transcripts, existing.Transcripts...)
	}
	transcripts = append(transcripts, transcript)

	candidate, err := s.summarizer.SummarizeRecap(ctx, domain.SummarizeRequest{
		Date:          req.Date,
		NowLocalTime:  now,
		ExistingState: existing,
		Transcripts:   transcripts,
	})
	if err != nil {
		metrics.IncRecapFailure(string(domain.FaultUpstream))
		return domain.Day{}, domain.NewFault(domain.FaultUpstream, "суммаризатор", err)
	}

	normalized := NormalizeDay(candidate)
	patch := buildPrevDayPatch(req.Date, prevDate, normalized.PrevSegments)

	upd := domain.DayUpdate{
		Date:        req.Date,
		Transcripts: transcripts,
		Summary:     strings.TrimSpace(candidate.Summary),
		Suggestions: trimAll(candidate.Suggestions),
		Metrics:     normalized.Metrics,
		Events:      normalized.Events,
	}

	saved, err := s.days.ApplyIngestion(ctx, ownerID, upd, patch)
	if err != nil {
		metrics.IncRecapFailure(string(domain.FaultPersistence))
		return domain.Day{}, domain.NewFault(domain.FaultPersistence, "сохранение дня", err)
	}
	if patch != nil {
		metrics.RecapCarryoverTotal.Inc()
		s.log.Debug().Str("date", req.Date).Int("carry_minutes", patch.CarryMinutes).Msg("recap: сон перенесён на предыдущий день")
	}
	metrics.RecapBuildSeconds.Observe(time.Since(started).Seconds())
	return saved, nil
}

// GetDay возвращает день владельца.
func (s *Service) GetDay(ctx context.Context, ownerID int64, date string) (domain.Day, error) {
	if !domain.ValidDate(date) {
		return domain.Day{}, domain.Validation("дата должна быть в формате YYYY-MM-DD")
	}
	day, err := s.days.GetDay(ctx, ownerID, date)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Day{}, domain.NewFault(domain.FaultNotFound, "день не найден", err)
	}
	if err != nil {
		return domain.Day{}, domain.NewFault(domain.FaultPersistence, "загрузка дня", err)
	}
	return day, nil
}

// ListDays возвращает дни диапазона для календаря и трендов.
func (s *Service) ListDays(ctx context.Context, ownerID int64, from, to string) ([]domain.Day, error) {
	if !domain.ValidDate(from) || !domain.ValidDate(to) {
		return nil, domain.Validation("границы диапазона должны быть датами YYYY-MM-DD")
	}
	if from > to {
		return nil, domain.Validation("from не может быть позже to")
	}
	days, err := s.days.ListDays(ctx, ownerID, from, to)
	if err != nil {
		return nil, domain.NewFault(domain.FaultPersistence, "выборка дней", err)
	}
	return days, nil
}

// DeleteDay удаляет день каскадом.
func (s *Service) DeleteDay(ctx context.Context, ownerID int64, date string) error {
	if !domain.ValidDate(date) {
		return domain.Validation("дата должна быть в формате YYYY-MM-DD")
	}
	err := s.days.DeleteDay(ctx, ownerID, date)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewFault(domain.FaultNotFound, "день не найден", err)
	}
	if err != nil {
		return domain.NewFault(domain.FaultPersistence, "удаление дня", err)
	}
	return nil
}

// CarryoverLabel детерминированная метка события переноса: кодирует
// целевую дату, чтобы повторная обработка того же D заменяла событие,
// а не плодила дубликаты.
func CarryoverLabel(targetDate string) string {
	return "Сон накануне " + targetDate
}

func buildPrevDayPatch(targetDate, prevDate string, segments []domain.SleepSegment) *domain.PrevDayPatch {
	if len(segments) == 0 {
		return nil
	}
	total := 0
	earliest := segments[0].StartMin
	for _, seg := range segments {
		total += seg.Minutes()
		if seg.StartMin < earliest {
			earliest = seg.StartMin
		}
	}
	return &domain.PrevDayPatch{
		Date:         prevDate,
		TargetDate:   targetDate,
		Label:        CarryoverLabel(targetDate),
		CarryMinutes: total,
		StartTime:    domain.FormatClock(earliest),
		EndTime:      "23:59",
	}
}

func busyOrInternal(err error, date string) error {
	if errors.Is(err, domain.ErrIngestBusy) {
		return domain.NewFault(domain.FaultBusy, "рекап за "+date+" уже обрабатывается", err)
	}
	return domain.NewFault(domain.FaultInternal, "захват лока", err)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

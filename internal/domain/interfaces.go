package domain

import (
	"context"
	"time"
)

// SummarizeRequest вход внешнего суммаризатора.
type SummarizeRequest struct {
	Date          string
	NowLocalTime  string // "HH:MM", пустая строка если подсказки нет
	ExistingState *Day   // nil означает «состояния ещё нет»
	Transcripts   []string
}

// RecapSummarizer превращает свободный текст в структурированный день.
// Ответ считается недоверенным: согласованность проверяет нормализатор.
type RecapSummarizer interface {
	SummarizeRecap(ctx context.Context, req SummarizeRequest) (CandidateDay, error)
}

// DayRepo управляет днями, их метриками и событиями.
type DayRepo interface {
	// GetDay возвращает день с метриками и упорядоченными событиями.
	// Отсутствие записи — ErrNotFound.
	GetDay(ctx context.Context, ownerID int64, date string) (Day, error)
	// ListDays возвращает дни диапазона [from, to] по возрастанию даты.
	ListDays(ctx context.Context, ownerID int64, from, to string) ([]Day, error)
	// ApplyIngestion атомарно применяет патч D-1 (если есть) и полную
	// запись D: патч выполняется строго до записи D, обе в одной
	// транзакции. Возвращает сохранённый день D.
	ApplyIngestion(ctx context.Context, ownerID int64, upd DayUpdate, patch *PrevDayPatch) (Day, error)
	// DeleteDay удаляет день каскадом вместе с метриками и событиями.
	DeleteDay(ctx context.Context, ownerID int64, date string) error
}

// GoalRepo управляет целями владельца.
type GoalRepo interface {
	ListGoals(ctx context.Context, ownerID int64) ([]Goal, error)
	CreateGoal(ctx context.Context, ownerID int64, text string) (Goal, error)
	UpdateGoal(ctx context.Context, ownerID, goalID int64, text *string, done *bool) (Goal, error)
	DeleteGoal(ctx context.Context, ownerID, goalID int64) error
	ReorderGoals(ctx context.Context, ownerID int64, orderedIDs []int64) error
}

// PrefsRepo хранит настройки дашборда.
type PrefsRepo interface {
	GetPinnedMetrics(ctx context.Context, ownerID int64) ([]string, error)
	SetPinnedMetrics(ctx context.Context, ownerID int64, pinned []string) error
}

// KeyLock взаимное исключение по строковому ключу. Занятый ключ
// возвращает ErrIngestBusy, а не блокирует вызывающего.
type KeyLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

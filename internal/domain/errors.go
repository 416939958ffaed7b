package domain

import (
	"errors"
	"fmt"
)

// FaultKind категория ошибки, видимая клиенту.
type FaultKind string

const (
	// FaultValidation некорректные поля запроса, записи не выполнялись.
	FaultValidation FaultKind = "validation"
	// FaultUpstream суммаризатор недоступен или вернул мусор.
	FaultUpstream FaultKind = "upstream"
	// FaultPersistence сбой хранилища после успешной суммаризации.
	FaultPersistence FaultKind = "persistence"
	// FaultNotFound адресуемая запись не принадлежит владельцу или отсутствует.
	FaultNotFound FaultKind = "not_found"
	// FaultBusy идёт конкурирующая обработка той же (owner, date).
	FaultBusy FaultKind = "busy"
	// FaultInternal всё остальное.
	FaultInternal FaultKind = "internal"
)

// Fault ошибка с категорией и деталью для клиента.
type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

// Unwrap отдаёт вложенную ошибку для errors.Is/As.
func (f *Fault) Unwrap() error { return f.Err }

// NewFault создаёт ошибку указанной категории.
func NewFault(kind FaultKind, message string, err error) *Fault {
	return &Fault{Kind: kind, Message: message, Err: err}
}

// Validation помечает ошибку как пользовательскую.
func Validation(message string) *Fault {
	return &Fault{Kind: FaultValidation, Message: message}
}

// KindOf возвращает категорию ошибки, FaultInternal если она не размечена.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultInternal
}

// ErrNotFound возвращается репозиториями, когда записи нет.
var ErrNotFound = errors.New("запись не найдена")

// ErrIngestBusy возвращается, когда лок на (owner, date) уже занят.
var ErrIngestBusy = errors.New("дата уже обрабатывается")

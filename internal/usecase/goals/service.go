package goals

import (
	"context"
	"errors"
	"strings"

	"recap-board/internal/domain"
)

// Service реализует работу с целями владельца.
type Service struct {
	repo domain.GoalRepo
}

// NewService создаёт сервис целей.
func NewService(repo domain.GoalRepo) *Service {
	return &Service{repo: repo}
}

// List возвращает цели в пользовательском порядке.
func (s *Service) List(ctx context.Context, ownerID int64) ([]domain.Goal, error) {
	goals, err := s.repo.ListGoals(ctx, ownerID)
	if err != nil {
		return nil, domain.NewFault(domain.FaultPersistence, "выборка целей", err)
	}
	return goals, nil
}

// Create добавляет цель.
func (s *Service) Create(ctx context.Context, ownerID int64, text string) (domain.Goal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Goal{}, domain.Validation("текст цели не может быть пустым")
	}
	goal, err := s.repo.CreateGoal(ctx, ownerID, text)
	if err != nil {
		return domain.Goal{}, domain.NewFault(domain.FaultPersistence, "создание цели", err)
	}
	return goal, nil
}

// Update меняет текст и/или флаг выполнения.
func (s *Service) Update(ctx context.Context, ownerID, goalID int64, text *string, done *bool) (domain.Goal, error) {
	if text == nil && done == nil {
		return domain.Goal{}, domain.Validation("нечего обновлять")
	}
	if text != nil {
		trimmed := strings.TrimSpace(*text)
		if trimmed == "" {
			return domain.Goal{}, domain.Validation("текст цели не может быть пустым")
		}
		text = &trimmed
	}
	goal, err := s.repo.UpdateGoal(ctx, ownerID, goalID, text, done)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Goal{}, domain.NewFault(domain.FaultNotFound, "цель не найдена", err)
	}
	if err != nil {
		return domain.Goal{}, domain.NewFault(domain.FaultPersistence, "обновление цели", err)
	}
	return goal, nil
}

// Delete удаляет цель.
func (s *Service) Delete(ctx context.Context, ownerID, goalID int64) error {
	err := s.repo.DeleteGoal(ctx, ownerID, goalID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewFault(domain.FaultNotFound, "цель не найдена", err)
	}
	if err != nil {
		return domain.NewFault(domain.FaultPersistence, "удаление цели", err)
	}
	return nil
}

// Reorder применяет порядок после перетаскивания.
func (s *Service) Reorder(ctx context.Context, ownerID int64, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return domain.Validation("пустой список порядка")
	}
	seen := make(map[int64]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return domain.Validation("id в списке порядка повторяются")
		}
		seen[id] = struct{}{}
	}
	if err := s.repo.ReorderGoals(ctx, ownerID, orderedIDs); err != nil {
		return domain.NewFault(domain.FaultPersistence, "перестановка целей", err)
	}
	return nil
}

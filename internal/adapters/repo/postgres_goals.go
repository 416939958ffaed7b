package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"recap-board/internal/domain"
	"recap-board/internal/infra/metrics"
)

// ListGoals возвращает цели владельца: сначала ручной порядок,
// при равенстве — новые выше.
func (p *Postgres) ListGoals(ctx context.Context, ownerID int64) ([]domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, text, done, sort_order, created_at
FROM goals WHERE owner_id=$1
ORDER BY sort_order, created_at DESC
`, ownerID)
	metrics.ObserveNetworkRequest("postgres", "goals_list", "goals", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g := domain.Goal{OwnerID: ownerID}
		if err := rows.Scan(&g.ID, &g.Text, &g.Done, &g.SortOrder, &g.CreatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// CreateGoal добавляет цель в конец списка.
func (p *Postgres) CreateGoal(ctx context.Context, ownerID int64, text string) (domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	g := domain.Goal{OwnerID: ownerID, Text: text}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO goals (owner_id, text, sort_order)
VALUES ($1, $2, COALESCE((SELECT MAX(sort_order)+1 FROM goals WHERE owner_id=$1), 0))
RETURNING id, done, sort_order, created_at
`, ownerID, text).Scan(&g.ID, &g.Done, &g.SortOrder, &g.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "goals_insert", "goals", start, err)
	return g, err
}

// UpdateGoal меняет текст и/или флаг выполнения. nil оставляет поле как есть.
func (p *Postgres) UpdateGoal(ctx context.Context, ownerID, goalID int64, text *string, done *bool) (domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	g := domain.Goal{ID: goalID, OwnerID: ownerID}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE goals
SET text = COALESCE($3, text), done = COALESCE($4, done)
WHERE id=$1 AND owner_id=$2
RETURNING text, done, sort_order, created_at
`, goalID, ownerID, text, done).Scan(&g.Text, &g.Done, &g.SortOrder, &g.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "goals_update", "goals", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Goal{}, domain.ErrNotFound
	}
	return g, err
}

// DeleteGoal удаляет цель владельца.
func (p *Postgres) DeleteGoal(ctx context.Context, ownerID, goalID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM goals WHERE id=$1 AND owner_id=$2`, goalID, ownerID)
	metrics.ObserveNetworkRequest("postgres", "goals_delete", "goals", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReorderGoals применяет ручной порядок: позиция в списке становится
// sort_order. Цели вне списка не трогаются.
func (p *Postgres) ReorderGoals(ctx context.Context, ownerID int64, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "goals", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, id := range orderedIDs {
		batch.Queue(`UPDATE goals SET sort_order=$3 WHERE id=$1 AND owner_id=$2`, id, ownerID, i)
	}
	start = time.Now()
	br := tx.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "goals_send_batch", "goals", start, nil)
	for range orderedIDs {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "goals_batch_reorder", "goals", start, err)
		if err != nil {
			_ = br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "goals", start, err)
	return err
}

// GetPinnedMetrics возвращает закреплённые карточки метрик.
func (p *Postgres) GetPinnedMetrics(ctx context.Context, ownerID int64) ([]string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var pinned []string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT pinned FROM dashboard_prefs WHERE owner_id=$1`, ownerID).Scan(&pinned)
	metrics.ObserveNetworkRequest("postgres", "prefs_get_pinned", "dashboard_prefs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return pinned, nil
}

// SetPinnedMetrics сохраняет закреплённые карточки.
func (p *Postgres) SetPinnedMetrics(ctx context.Context, ownerID int64, pinned []string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if pinned == nil {
		pinned = []string{}
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO dashboard_prefs (owner_id, pinned)
VALUES ($1, $2)
ON CONFLICT (owner_id) DO UPDATE SET pinned = EXCLUDED.pinned
`, ownerID, pinned)
	metrics.ObserveNetworkRequest("postgres", "prefs_set_pinned", "dashboard_prefs", start, err)
	return err
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"recap-board/internal/domain"
	"recap-board/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.DayRepo   = (*Postgres)(nil)
	_ domain.GoalRepo  = (*Postgres)(nil)
	_ domain.PrefsRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// querier объединяет пул и транзакцию.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// GetDay возвращает день с метриками и упорядоченными событиями.
func (p *Postgres) GetDay(ctx context.Context, ownerID int64, date string) (domain.Day, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	day, err := p.selectDay(ctx, p.pool, ownerID, date)
	if err != nil {
		return domain.Day{}, err
	}
	byDay, err := p.selectEvents(ctx, p.pool, []int64{day.ID})
	if err != nil {
		return domain.Day{}, err
	}
	day.Events = byDay[day.ID]
	return day, nil
}

// ListDays возвращает дни диапазона [from, to] по возрастанию даты.
func (p *Postgres) ListDays(ctx context.Context, ownerID int64, from, to string) ([]domain.Day, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT d.id, d.date, d.transcripts, d.summary, d.suggestions, d.created_at, d.updated_at,
       m.id, m.productive_hours, m.neutral_hours, m.wasted_hours, m.sleep_hours, m.focus_blocks, m.context_switches
FROM days d LEFT JOIN day_metrics m ON m.day_id = d.id
WHERE d.owner_id=$1 AND d.date BETWEEN $2 AND $3
ORDER BY d.date
`, ownerID, from, to)
	metrics.ObserveNetworkRequest("postgres", "days_list_range", "days", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []domain.Day
	var ids []int64
	for rows.Next() {
		day, err := scanDay(rows, ownerID)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
		ids = append(ids, day.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return days, nil
	}

	byDay, err := p.selectEvents(ctx, p.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range days {
		days[i].Events = byDay[days[i].ID]
	}
	return days, nil
}

// ApplyIngestion атомарно применяет патч предыдущего дня и полную
// запись текущего. Патч идёт первым: если он не прошёл, D не трогается.
func (p *Postgres) ApplyIngestion(ctx context.Context, ownerID int64, upd domain.DayUpdate, patch *domain.PrevDayPatch) (domain.Day, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "days", start, err)
	if err != nil {
		return domain.Day{}, err
	}
	defer tx.Rollback(ctx)

	if patch != nil {
		if err := p.applyPrevDayPatch(ctx, tx, ownerID, patch); err != nil {
			return domain.Day{}, fmt.Errorf("патч предыдущего дня: %w", err)
		}
	}

	day, err := p.writeDay(ctx, tx, ownerID, upd)
	if err != nil {
		return domain.Day{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "days", start, err)
	if err != nil {
		return domain.Day{}, err
	}
	return day, nil
}

// applyPrevDayPatch добавляет переносимый сон к метрике D-1 и заменяет
// событие переноса по детерминированной метке. Минуты переноса хранятся
// в day_metrics.carryover_minutes отдельно от события: отрезков через
// полночь может быть несколько, и их сумма не восстанавливается из
// одного маркера. Приращение считается как дельта относительно
// сохранённых минут, поэтому повторная обработка D не удваивает сон.
func (p *Postgres) applyPrevDayPatch(ctx context.Context, tx pgx.Tx, ownerID int64, patch *domain.PrevDayPatch) error {
	// заглушка дня: полноценная запись с пустой историей
	var dayID int64
	start := time.Now()
	err := tx.QueryRow(ctx, `
INSERT INTO days (owner_id, date, transcripts, suggestions)
VALUES ($1, $2, '[]', '[]')
ON CONFLICT (owner_id, date) DO UPDATE SET updated_at = now()
RETURNING id
`, ownerID, patch.Date).Scan(&dayID)
	metrics.ObserveNetworkRequest("postgres", "days_upsert_stub", "days", start, err)
	if err != nil {
		return err
	}

	var metricsID int64
	previousMinutes := 0
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO day_metrics (day_id)
VALUES ($1)
ON CONFLICT (day_id) DO UPDATE SET day_id = EXCLUDED.day_id
RETURNING id, carryover_minutes
`, dayID).Scan(&metricsID, &previousMinutes)
	metrics.ObserveNetworkRequest("postgres", "day_metrics_ensure", "day_metrics", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE days SET metrics_id=$2 WHERE id=$1 AND metrics_id IS DISTINCT FROM $2`, dayID, metricsID)
	metrics.ObserveNetworkRequest("postgres", "days_relink_metrics", "days", start, err)
	if err != nil {
		return err
	}

	deltaHours := float64(patch.CarryMinutes-previousMinutes) / 60.0
	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE day_metrics SET sleep_hours = GREATEST(0, sleep_hours + $2), carryover_minutes = $3 WHERE day_id=$1
`, dayID, deltaHours, patch.CarryMinutes)
	metrics.ObserveNetworkRequest("postgres", "day_metrics_add_carryover", "day_metrics", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM day_events WHERE day_id=$1 AND label=$2`, dayID, patch.Label)
	metrics.ObserveNetworkRequest("postgres", "day_events_delete_carryover", "day_events", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO day_events (day_id, label, category, start_time, end_time, notes)
VALUES ($1, $2, $3, $4, $5, '')
`, dayID, patch.Label, domain.CategorySleep, patch.StartTime, patch.EndTime)
	metrics.ObserveNetworkRequest("postgres", "day_events_insert_carryover", "day_events", start, err)
	return err
}

// writeDay выполняет полную запись дня D: upsert дня по (owner, date),
// upsert метрик по day_id, перелинковка ссылки и полная замена событий.
// Замена стирает и событие переноса, поэтому carryover_minutes обнуляются:
// следующий патч от D+1 применит перенос заново целиком.
func (p *Postgres) writeDay(ctx context.Context, tx pgx.Tx, ownerID int64, upd domain.DayUpdate) (domain.Day, error) {
	day := domain.Day{
		OwnerID:     ownerID,
		Date:        upd.Date,
		Transcripts: upd.Transcripts,
		Summary:     upd.Summary,
		Suggestions: upd.Suggestions,
	}

	var summary any
	if upd.Summary != "" {
		summary = upd.Summary
	}
	start := time.Now()
	err := tx.QueryRow(ctx, `
INSERT INTO days (owner_id, date, transcripts, summary, suggestions)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (owner_id, date) DO UPDATE
SET transcripts = EXCLUDED.transcripts,
    summary = EXCLUDED.summary,
    suggestions = EXCLUDED.suggestions,
    updated_at = now()
RETURNING id, created_at, updated_at
`, ownerID, upd.Date, upd.Transcripts, summary, upd.Suggestions).Scan(&day.ID, &day.CreatedAt, &day.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "days_upsert", "days", start, err)
	if err != nil {
		return domain.Day{}, err
	}

	m := upd.Metrics
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO day_metrics (day_id, productive_hours, neutral_hours, wasted_hours, sleep_hours, focus_blocks, context_switches)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (day_id) DO UPDATE
SET productive_hours = EXCLUDED.productive_hours,
    neutral_hours = EXCLUDED.neutral_hours,
    wasted_hours = EXCLUDED.wasted_hours,
    sleep_hours = EXCLUDED.sleep_hours,
    focus_blocks = EXCLUDED.focus_blocks,
    context_switches = EXCLUDED.context_switches,
    carryover_minutes = 0
RETURNING id
`, day.ID, m.ProductiveHours, m.NeutralHours, m.WastedHours, m.SleepHours, m.FocusBlocks, m.ContextSwitches).Scan(&m.ID)
	metrics.ObserveNetworkRequest("postgres", "day_metrics_upsert", "day_metrics", start, err)
	if err != nil {
		return domain.Day{}, err
	}
	m.DayID = day.ID
	day.Metrics = m

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE days SET metrics_id=$2 WHERE id=$1 AND metrics_id IS DISTINCT FROM $2`, day.ID, m.ID)
	metrics.ObserveNetworkRequest("postgres", "days_relink_metrics", "days", start, err)
	if err != nil {
		return domain.Day{}, err
	}

	// полная замена: суммаризатор каждый раз генерирует день целиком
	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM day_events WHERE day_id=$1`, day.ID)
	metrics.ObserveNetworkRequest("postgres", "day_events_delete_all", "day_events", start, err)
	if err != nil {
		return domain.Day{}, err
	}

	if len(upd.Events) > 0 {
		batch := &pgx.Batch{}
		for _, ev := range upd.Events {
			batch.Queue(`
INSERT INTO day_events (day_id, label, category, start_time, end_time, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, day.ID, ev.Label, ev.Category, ev.StartTime, ev.EndTime, ev.Notes)
		}
		start = time.Now()
		br := tx.SendBatch(ctx, batch)
		metrics.ObserveNetworkRequest("postgres", "day_events_send_batch", "day_events", start, nil)
		for _, ev := range upd.Events {
			start = time.Now()
			err := br.QueryRow().Scan(&ev.ID)
			metrics.ObserveNetworkRequest("postgres", "day_events_batch_insert", "day_events", start, err)
			if err != nil {
				_ = br.Close()
				return domain.Day{}, err
			}
			ev.DayID = day.ID
			day.Events = append(day.Events, ev)
		}
		if err := br.Close(); err != nil {
			return domain.Day{}, err
		}
	}

	return day, nil
}

// DeleteDay удаляет день, метрики и события уходят каскадом.
func (p *Postgres) DeleteDay(ctx context.Context, ownerID int64, date string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM days WHERE owner_id=$1 AND date=$2`, ownerID, date)
	metrics.ObserveNetworkRequest("postgres", "days_delete", "days", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) selectDay(ctx context.Context, q querier, ownerID int64, date string) (domain.Day, error) {
	start := time.Now()
	row := q.QueryRow(ctx, `
SELECT d.id, d.date, d.transcripts, d.summary, d.suggestions, d.created_at, d.updated_at,
       m.id, m.productive_hours, m.neutral_hours, m.wasted_hours, m.sleep_hours, m.focus_blocks, m.context_switches
FROM days d LEFT JOIN day_metrics m ON m.day_id = d.id
WHERE d.owner_id=$1 AND d.date=$2
`, ownerID, date)
	day, err := scanDay(row, ownerID)
	metrics.ObserveNetworkRequest("postgres", "days_get", "days", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Day{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Day{}, err
	}
	return day, nil
}

func scanDay(row pgx.Row, ownerID int64) (domain.Day, error) {
	var (
		day       domain.Day
		summary   sql.NullString
		metricsID sql.NullInt64
		prodH     sql.NullFloat64
		neutH     sql.NullFloat64
		wasteH    sql.NullFloat64
		sleepH    sql.NullFloat64
		focus     sql.NullInt64
		switches  sql.NullInt64
	)
	err := row.Scan(&day.ID, &day.Date, &day.Transcripts, &summary, &day.Suggestions, &day.CreatedAt, &day.UpdatedAt,
		&metricsID, &prodH, &neutH, &wasteH, &sleepH, &focus, &switches)
	if err != nil {
		return domain.Day{}, err
	}
	day.OwnerID = ownerID
	if summary.Valid {
		day.Summary = summary.String
	}
	if metricsID.Valid {
		day.Metrics = domain.Metrics{
			ID:              metricsID.Int64,
			DayID:           day.ID,
			ProductiveHours: prodH.Float64,
			NeutralHours:    neutH.Float64,
			WastedHours:     wasteH.Float64,
			SleepHours:      sleepH.Float64,
			FocusBlocks:     int(focus.Int64),
			ContextSwitches: int(switches.Int64),
		}
	}
	return day, nil
}

func (p *Postgres) selectEvents(ctx context.Context, q querier, dayIDs []int64) (map[int64][]domain.Event, error) {
	start := time.Now()
	rows, err := q.Query(ctx, `
SELECT id, day_id, label, category, start_time, end_time, notes
FROM day_events WHERE day_id = ANY($1)
ORDER BY id
`, dayIDs)
	metrics.ObserveNetworkRequest("postgres", "day_events_list", "day_events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[int64][]domain.Event)
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.DayID, &ev.Label, &ev.Category, &ev.StartTime, &ev.EndTime, &ev.Notes); err != nil {
			return nil, err
		}
		byDay[ev.DayID] = append(byDay[ev.DayID], ev)
	}
	return byDay, rows.Err()
}

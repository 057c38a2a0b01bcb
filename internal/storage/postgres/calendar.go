package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const weekColumns = `week_start, lunch, dinner, created_at, last_updated`

type calendarStorage struct {
	pool *pgxpool.Pool
}

func newCalendarStorage(pool *pgxpool.Pool) *calendarStorage {
	return &calendarStorage{pool: pool}
}

func (s *calendarStorage) GetWeek(ctx context.Context, weekStart civil.Date) (storage.WeekEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM calendar_weeks WHERE week_start = $1", weekColumns)

	w, err := scanWeek(s.pool.QueryRow(ctx, query, weekStart.In(time.UTC)))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.WeekEntry{}, fmt.Errorf("week %s: %w", weekStart, storage.ErrNotFound)
	}
	if err != nil {
		return storage.WeekEntry{}, unavailable("get week", err)
	}
	return w, nil
}

func (s *calendarStorage) SaveWeek(ctx context.Context, entry *storage.WeekEntry) error {
	return upsertWeek(ctx, s.pool, entry)
}

// SaveWeeks writes all entries in one transaction so a cross-week swap lands together.
func (s *calendarStorage) SaveWeeks(ctx context.Context, entries []*storage.WeekEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if err := upsertWeek(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit weeks", err)
	}
	return nil
}

func upsertWeek(ctx context.Context, q querier, entry *storage.WeekEntry) error {
	lunch, err := json.Marshal(nonNil(entry.Lunch))
	if err != nil {
		return fmt.Errorf("failed to encode lunch: %w", err)
	}
	dinner, err := json.Marshal(nonNil(entry.Dinner))
	if err != nil {
		return fmt.Errorf("failed to encode dinner: %w", err)
	}

	query := `
		INSERT INTO calendar_weeks (week_start, lunch, dinner)
		VALUES ($1, $2, $3)
		ON CONFLICT (week_start) DO UPDATE
		SET lunch = EXCLUDED.lunch, dinner = EXCLUDED.dinner, last_updated = now()
		RETURNING created_at, last_updated
	`
	err = q.QueryRow(ctx, query, entry.WeekStart.In(time.UTC), lunch, dinner).
		Scan(&entry.CreatedAt, &entry.LastUpdated)
	if err != nil {
		return unavailable("save week", err)
	}
	return nil
}

func (s *calendarStorage) CreateWeekIfMissing(ctx context.Context, weekStart civil.Date) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO calendar_weeks (week_start) VALUES ($1)
		ON CONFLICT (week_start) DO NOTHING
	`, weekStart.In(time.UTC))
	if err != nil {
		return false, unavailable("create week", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *calendarStorage) ListWeeksDescending(ctx context.Context, filter storage.WeekFilter) ([]storage.WeekEntry, error) {
	var conds []string
	var args []any

	if !filter.From.IsZero() {
		args = append(args, filter.From.In(time.UTC))
		conds = append(conds, fmt.Sprintf("week_start >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.In(time.UTC))
		conds = append(conds, fmt.Sprintf("week_start <= $%d", len(args)))
	}
	if filter.NonEmptyOnly {
		conds = append(conds, "(lunch <> '{}'::jsonb OR dinner <> '{}'::jsonb)")
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	query := fmt.Sprintf("SELECT %s FROM calendar_weeks %s ORDER BY week_start DESC", weekColumns, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list weeks", err)
	}
	defer rows.Close()

	weeks := []storage.WeekEntry{}
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, unavailable("scan week", err)
		}
		weeks = append(weeks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate weeks", err)
	}
	return weeks, nil
}

func scanWeek(row pgx.Row) (storage.WeekEntry, error) {
	var (
		w             storage.WeekEntry
		weekStart     time.Time
		lunch, dinner []byte
	)
	if err := row.Scan(&weekStart, &lunch, &dinner, &w.CreatedAt, &w.LastUpdated); err != nil {
		return storage.WeekEntry{}, err
	}
	w.WeekStart = civil.DateOf(weekStart)
	w.Lunch = storage.SlotMap{}
	w.Dinner = storage.SlotMap{}
	if err := json.Unmarshal(lunch, &w.Lunch); err != nil {
		return storage.WeekEntry{}, fmt.Errorf("decode lunch for %s: %w", w.WeekStart, err)
	}
	if err := json.Unmarshal(dinner, &w.Dinner); err != nil {
		return storage.WeekEntry{}, fmt.Errorf("decode dinner for %s: %w", w.WeekStart, err)
	}
	return w, nil
}

func nonNil(m storage.SlotMap) storage.SlotMap {
	if m == nil {
		return storage.SlotMap{}
	}
	return m
}

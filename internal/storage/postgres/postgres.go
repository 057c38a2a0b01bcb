package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage is the pgx-backed Storage.
type PostgresStorage struct {
	pool     *pgxpool.Pool
	dishes   *dishesStorage
	calendar *calendarStorage
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStorage{
		pool:     pool,
		dishes:   newDishesStorage(pool),
		calendar: newCalendarStorage(pool),
	}, nil
}

func (p *PostgresStorage) GetDishesStorage() storage.DishesStorage {
	return p.dishes
}

func (p *PostgresStorage) GetCalendarStorage() storage.CalendarStorage {
	return p.calendar
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, storage.ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

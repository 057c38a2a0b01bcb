// Package sqlite persists the in-memory store to a single SQLite file. Every
// successful write snapshots the full state as JSON buckets, which suits a
// household-sized catalogue without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/fdg312/meal-calendar/internal/storage/memory"
	"github.com/google/uuid"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const (
	bucketDishes = "dishes"
	bucketWeeks  = "weeks"
)

// Store wraps a memory store and snapshots it to SQLite after each write.
type Store struct {
	mem  *memory.MemoryStorage
	db   *sql.DB
	mu   sync.Mutex
	path string

	dishes   *dishesStore
	calendar *calendarStore
}

// New opens (or creates) the database at path and loads the last snapshot.
func New(path string) (*Store, error) {
	if path == "" {
		path = "meal-calendar.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	s := &Store{mem: memory.New(), db: db, path: path}
	s.dishes = &dishesStore{DishesStorage: s.mem.GetDishesStorage(), store: s}
	s.calendar = &calendarStore{CalendarStorage: s.mem.GetCalendarStorage(), store: s}

	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) GetDishesStorage() storage.DishesStorage {
	return s.dishes
}

func (s *Store) GetCalendarStorage() storage.CalendarStorage {
	return s.calendar
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var st memory.State
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		found = true
		switch bucket {
		case bucketDishes:
			if err := json.Unmarshal(payload, &st.Dishes); err != nil {
				return fmt.Errorf("decode dishes: %w", err)
			}
		case bucketWeeks:
			if err := json.Unmarshal(payload, &st.Weeks); err != nil {
				return fmt.Errorf("decode weeks: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if found {
		s.mem.Restore(st)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.mem.Snapshot()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w: %w", storage.ErrUnavailable, err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	buckets := map[string]any{
		bucketDishes: st.Dishes,
		bucketWeeks:  st.Weeks,
	}
	for bucket, v := range buckets {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w: %w", bucket, storage.ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

type dishesStore struct {
	storage.DishesStorage
	store *Store
}

func (d *dishesStore) CreateDish(ctx context.Context, dish *storage.Dish) error {
	if err := d.DishesStorage.CreateDish(ctx, dish); err != nil {
		return err
	}
	return d.store.persist(ctx)
}

func (d *dishesStore) UpdateDish(ctx context.Context, id uuid.UUID, patch storage.DishPatch) (storage.Dish, error) {
	out, err := d.DishesStorage.UpdateDish(ctx, id, patch)
	if err != nil {
		return out, err
	}
	return out, d.store.persist(ctx)
}

func (d *dishesStore) SetLastEaten(ctx context.Context, id uuid.UUID, date *civil.Date) (storage.Dish, error) {
	out, err := d.DishesStorage.SetLastEaten(ctx, id, date)
	if err != nil {
		return out, err
	}
	return out, d.store.persist(ctx)
}

func (d *dishesStore) DeleteDish(ctx context.Context, id uuid.UUID) error {
	if err := d.DishesStorage.DeleteDish(ctx, id); err != nil {
		return err
	}
	return d.store.persist(ctx)
}

type calendarStore struct {
	storage.CalendarStorage
	store *Store
}

func (c *calendarStore) SaveWeek(ctx context.Context, entry *storage.WeekEntry) error {
	if err := c.CalendarStorage.SaveWeek(ctx, entry); err != nil {
		return err
	}
	return c.store.persist(ctx)
}

func (c *calendarStore) SaveWeeks(ctx context.Context, entries []*storage.WeekEntry) error {
	if err := c.CalendarStorage.SaveWeeks(ctx, entries); err != nil {
		return err
	}
	return c.store.persist(ctx)
}

func (c *calendarStore) CreateWeekIfMissing(ctx context.Context, weekStart civil.Date) (bool, error) {
	created, err := c.CalendarStorage.CreateWeekIfMissing(ctx, weekStart)
	if err != nil || !created {
		return created, err
	}
	return created, c.store.persist(ctx)
}

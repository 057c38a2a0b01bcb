package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/fdg312/meal-calendar/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dishColumns = `id, name, cuisine, ingredients, preferences, last_eaten, created_at, updated_at`

type dishesStorage struct {
	pool *pgxpool.Pool
}

func newDishesStorage(pool *pgxpool.Pool) *dishesStorage {
	return &dishesStorage{pool: pool}
}

// buildDishWhere renders the filter predicates as a WHERE clause with positional args.
func buildDishWhere(filter storage.DishFilter) (string, []any) {
	var conds []string
	var args []any

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		conds = append(conds, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}
	if filter.Cuisine != "" {
		args = append(args, string(filter.Cuisine))
		conds = append(conds, fmt.Sprintf("cuisine = $%d", len(args)))
	}
	if len(filter.Ingredients) > 0 {
		args = append(args, ingredientStrings(filter.Ingredients))
		conds = append(conds, fmt.Sprintf("ingredients @> $%d::text[]", len(args)))
	}
	if len(filter.Preferences) > 0 {
		args = append(args, preferenceStrings(filter.Preferences))
		conds = append(conds, fmt.Sprintf("preferences @> $%d::text[]", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (s *dishesStorage) ListDishes(ctx context.Context, filter storage.DishFilter) ([]storage.Dish, int, error) {
	where, args := buildDishWhere(filter)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM dishes %s", where)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, unavailable("count dishes", err)
	}

	listQuery := fmt.Sprintf("SELECT %s FROM dishes %s ORDER BY LOWER(name) ASC", dishColumns, where)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		listQuery += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, filter.Offset)
	listQuery += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, unavailable("list dishes", err)
	}
	defer rows.Close()

	dishes := []storage.Dish{}
	for rows.Next() {
		d, err := scanDish(rows)
		if err != nil {
			return nil, 0, unavailable("scan dish", err)
		}
		dishes = append(dishes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("iterate dishes", err)
	}

	return dishes, total, nil
}

func (s *dishesStorage) GetDish(ctx context.Context, id uuid.UUID) (storage.Dish, error) {
	query := fmt.Sprintf("SELECT %s FROM dishes WHERE id = $1", dishColumns)

	d, err := scanDish(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Dish{}, fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Dish{}, unavailable("get dish", err)
	}
	return d, nil
}

func (s *dishesStorage) CreateDish(ctx context.Context, dish *storage.Dish) error {
	if dish.ID == uuid.Nil {
		dish.ID = uuid.New()
	}

	query := `
		INSERT INTO dishes (id, name, cuisine, ingredients, preferences, last_eaten)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		dish.ID,
		dish.Name,
		string(dish.Cuisine),
		ingredientStrings(dish.Ingredients),
		preferenceStrings(dish.Preferences),
		dateParam(dish.LastEaten),
	).Scan(&dish.CreatedAt, &dish.UpdatedAt)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateName
	}
	if err != nil {
		return unavailable("create dish", err)
	}
	return nil
}

func (s *dishesStorage) UpdateDish(ctx context.Context, id uuid.UUID, patch storage.DishPatch) (storage.Dish, error) {
	var sets []string
	var args []any

	if patch.Name != nil {
		args = append(args, *patch.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.Cuisine != nil {
		args = append(args, string(*patch.Cuisine))
		sets = append(sets, fmt.Sprintf("cuisine = $%d", len(args)))
	}
	if patch.Ingredients != nil {
		args = append(args, ingredientStrings(patch.Ingredients))
		sets = append(sets, fmt.Sprintf("ingredients = $%d", len(args)))
	}
	if patch.Preferences != nil {
		args = append(args, preferenceStrings(patch.Preferences))
		sets = append(sets, fmt.Sprintf("preferences = $%d", len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE dishes SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), dishColumns)

	d, err := scanDish(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Dish{}, fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return storage.Dish{}, storage.ErrDuplicateName
	}
	if err != nil {
		return storage.Dish{}, unavailable("update dish", err)
	}
	return d, nil
}

func (s *dishesStorage) SetLastEaten(ctx context.Context, id uuid.UUID, date *civil.Date) (storage.Dish, error) {
	query := fmt.Sprintf(`
		UPDATE dishes SET last_eaten = $1, updated_at = now()
		WHERE id = $2
		RETURNING %s`, dishColumns)

	d, err := scanDish(s.pool.QueryRow(ctx, query, dateParam(date), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Dish{}, fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Dish{}, unavailable("set last eaten", err)
	}
	return d, nil
}

func (s *dishesStorage) DeleteDish(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dishes WHERE id = $1`, id)
	if err != nil {
		return unavailable("delete dish", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dish %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func scanDish(row pgx.Row) (storage.Dish, error) {
	var (
		d         storage.Dish
		cuisine   string
		ings      []string
		prefs     []string
		lastEaten *time.Time
	)
	if err := row.Scan(&d.ID, &d.Name, &cuisine, &ings, &prefs, &lastEaten, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return storage.Dish{}, err
	}

	d.Cuisine = storage.Cuisine(cuisine)
	d.Ingredients = make([]storage.Ingredient, len(ings))
	for i, v := range ings {
		d.Ingredients[i] = storage.Ingredient(v)
	}
	d.Preferences = make([]storage.FamilyMember, len(prefs))
	for i, v := range prefs {
		d.Preferences[i] = storage.FamilyMember(v)
	}
	if lastEaten != nil {
		day := civil.DateOf(*lastEaten)
		d.LastEaten = &day
	}
	return d, nil
}

func dateParam(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func ingredientStrings(in []storage.Ingredient) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func preferenceStrings(in []storage.FamilyMember) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

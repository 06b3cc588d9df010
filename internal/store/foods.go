package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pbaille/nutrilog/internal/domain"
)

const (
	DefaultUsageWindowDays = 30
	DefaultUsageLimit      = 15
)

const foodColumns = `id, name, brand, is_custom_entry, is_custom_food, serving_quantity,
	energy_100g, protein_100g, carbs_100g, fat_100g, is_favorite`

// FoodRepo is the append-only repository of food records. Foods are never updated or deleted
// once stored, so historical diary entries keep their meaning.
type FoodRepo struct {
	store *Store
}

func NewFoodRepo(s *Store) *FoodRepo {
	return &FoodRepo{store: s}
}

// Get returns the food with its favorite status resolved
func (r *FoodRepo) Get(ctx context.Context, id string) (*domain.Food, error) {
	db, err := r.store.conn()
	if err != nil {
		return nil, err
	}
	return getFood(ctx, db, id)
}

// UpsertIfAbsent inserts food unless a record with its id exists. It reports whether a row
// was written. Existing nutritional facts are never overwritten.
func (r *FoodRepo) UpsertIfAbsent(ctx context.Context, food domain.Food) (bool, error) {
	db, err := r.store.conn()
	if err != nil {
		return false, err
	}
	return insertFoodIfAbsent(ctx, db, food)
}

// MostUsed returns the foods logged most often in the windowDays days up to and including today.
// Foods with a zero serving quantity are skipped. Ties are ordered by name, then id.
func (r *FoodRepo) MostUsed(ctx context.Context, today domain.Date, windowDays, limit int) ([]domain.Food, error) {
	db, err := r.store.conn()
	if err != nil {
		return nil, err
	}
	today, err = domain.ParseDate(string(today))
	if err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = DefaultUsageWindowDays
	}
	if limit <= 0 {
		limit = DefaultUsageLimit
	}
	from := today.AddDays(-windowDays)

	rows, err := db.QueryContext(ctx, `
		SELECT fv.id, fv.name, fv.brand, fv.is_custom_entry, fv.is_custom_food, fv.serving_quantity,
			fv.energy_100g, fv.protein_100g, fv.carbs_100g, fv.fat_100g, fv.is_favorite
		FROM food_view fv
		JOIN diary_entries de ON de.food_id = fv.id
		WHERE de.date >= ? AND de.date <= ?
			AND fv.serving_quantity > 0
		GROUP BY fv.id
		ORDER BY COUNT(de.id) DESC, fv.name ASC, fv.id ASC
		LIMIT ?
	`, string(from), string(today), limit)
	if err != nil {
		return nil, fmt.Errorf("most used foods: %w", err)
	}
	return scanFoods(rows)
}

func getFood(ctx context.Context, q querier, id string) (*domain.Food, error) {
	row := q.QueryRowContext(ctx, "SELECT "+foodColumns+" FROM food_view WHERE id = ?", id)
	f, err := scanFood(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFoodNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get food: %w", err)
	}
	return f, nil
}

func insertFoodIfAbsent(ctx context.Context, q querier, food domain.Food) (bool, error) {
	if err := food.Validate(); err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO food (id, name, brand, is_custom_entry, is_custom_food, serving_quantity,
			energy_100g, protein_100g, carbs_100g, fat_100g)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		food.ID, food.Name, food.Brand, food.IsCustomEntry, food.IsCustomFood, food.ServingQuantity,
		food.CaloriesPer100g, food.ProteinPer100g, food.CarbsPer100g, food.FatPer100g,
	)
	if err != nil {
		return false, fmt.Errorf("insert food: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert food: %w", err)
	}
	return n > 0, nil
}

// ensureFood stores food if needed and returns the canonical stored record
func ensureFood(ctx context.Context, q querier, food domain.Food) (*domain.Food, error) {
	if _, err := insertFoodIfAbsent(ctx, q, food); err != nil {
		return nil, err
	}
	return getFood(ctx, q, food.ID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFood(row rowScanner) (*domain.Food, error) {
	var (
		f        domain.Food
		brand    sql.NullString
		favorite bool
	)
	err := row.Scan(&f.ID, &f.Name, &brand, &f.IsCustomEntry, &f.IsCustomFood, &f.ServingQuantity,
		&f.CaloriesPer100g, &f.ProteinPer100g, &f.CarbsPer100g, &f.FatPer100g, &favorite)
	if err != nil {
		return nil, err
	}
	if brand.Valid {
		f.Brand = &brand.String
	}
	f.IsFavorite = &favorite
	return &f, nil
}

func scanFoods(rows *sql.Rows) ([]domain.Food, error) {
	defer rows.Close()

	foods := []domain.Food{}
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("scan food: %w", err)
		}
		foods = append(foods, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foods: %w", err)
	}
	return foods, nil
}

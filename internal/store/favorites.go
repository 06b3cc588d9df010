package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pbaille/nutrilog/internal/domain"
)

// Favorites is the index of user-marked foods
type Favorites struct {
	store *Store
}

func NewFavorites(s *Store) *Favorites {
	return &Favorites{store: s}
}

// IsFavorite reports whether foodID has been favorited
func (f *Favorites) IsFavorite(ctx context.Context, foodID string) (bool, error) {
	db, err := f.store.conn()
	if err != nil {
		return false, err
	}
	var ok bool
	err = db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM favorite_food WHERE food_id = ?)", foodID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return ok, nil
}

// Add stores the food if it is new and marks it as favorite. Adding twice is a no-op.
func (f *Favorites) Add(ctx context.Context, food domain.Food) error {
	err := f.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := insertFoodIfAbsent(ctx, tx, food); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO favorite_food (food_id)
			SELECT ? WHERE NOT EXISTS (SELECT 1 FROM favorite_food WHERE food_id = ?)`,
			food.ID, food.ID,
		)
		if err != nil {
			return fmt.Errorf("insert favorite: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	f.store.log.Debug("Added favorite food", "food_id", food.ID)
	return nil
}

// Remove unmarks a food. Removing a food that is not a favorite is not an error.
func (f *Favorites) Remove(ctx context.Context, foodID string) error {
	db, err := f.store.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM favorite_food WHERE food_id = ?", foodID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	f.store.log.Debug("Removed favorite food", "food_id", foodID)
	return nil
}

// List returns every favorite food once, ordered by name
func (f *Favorites) List(ctx context.Context) ([]domain.Food, error) {
	db, err := f.store.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+foodColumns+" FROM food_view WHERE is_favorite = 1 ORDER BY name, id",
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	foods, err := scanFoods(rows)
	if err != nil {
		return nil, err
	}
	for i := range foods {
		t := true
		foods[i].IsFavorite = &t
	}
	return foods, nil
}

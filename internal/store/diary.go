package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/nutrition"
)

const entryColumns = `id, quantity, is_servings, date, meal_type,
	kcal_total, protein_total, carbs_total, fat_total,
	food_id, food_name, food_brand, food_is_custom_entry, food_is_custom_food, food_serving_quantity,
	food_energy_100g, food_protein_100g, food_carbs_100g, food_fat_100g, food_is_favorite`

// NewEntry describes a consumption to log
type NewEntry struct {
	Date       domain.Date
	MealType   domain.MealType
	Food       domain.Food
	Quantity   float64
	IsServings bool
	Overrides  nutrition.Overrides
}

// EntryUpdate fully replaces an entry's quantity, unit, meal and food. Totals are recomputed.
type EntryUpdate struct {
	ID         int64
	MealType   domain.MealType
	Food       domain.Food
	Quantity   float64
	IsServings bool
	Overrides  nutrition.Overrides
}

// Diary is the ledger of diary entries
type Diary struct {
	store *Store
}

func NewDiary(s *Store) *Diary {
	return &Diary{store: s}
}

// Add stores the food if it is new, then records the entry with frozen totals. Both steps
// share one transaction.
func (d *Diary) Add(ctx context.Context, e NewEntry) (int64, error) {
	if _, err := d.store.conn(); err != nil {
		return 0, err
	}
	date, err := domain.ParseDate(string(e.Date))
	if err != nil {
		return 0, err
	}
	e.Date = date
	if err := validateEntry(e.MealType, e.Quantity); err != nil {
		return 0, err
	}

	var id int64
	err = d.store.withTx(ctx, func(tx *sql.Tx) error {
		food, err := ensureFood(ctx, tx, e.Food)
		if err != nil {
			return err
		}
		m := e.Overrides.Apply(nutrition.ComputeMacros(*food, e.Quantity, e.IsServings))

		res, err := tx.ExecContext(ctx, `
			INSERT INTO diary_entries (quantity, is_servings, date, meal_type,
				kcal_total, protein_total, carbs_total, fat_total, food_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Quantity, e.IsServings, string(e.Date), int(e.MealType),
			m.Calories, m.Protein, m.Carbs, m.Fat, food.ID,
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update replaces an entry and recomputes its totals. A missing id yields ErrEntryNotFound.
func (d *Diary) Update(ctx context.Context, u EntryUpdate) error {
	if _, err := d.store.conn(); err != nil {
		return err
	}
	if err := validateEntry(u.MealType, u.Quantity); err != nil {
		return err
	}

	return d.store.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM diary_entries WHERE id = ?)", u.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("find entry: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %d", ErrEntryNotFound, u.ID)
		}

		food, err := ensureFood(ctx, tx, u.Food)
		if err != nil {
			return err
		}
		m := u.Overrides.Apply(nutrition.ComputeMacros(*food, u.Quantity, u.IsServings))

		_, err = tx.ExecContext(ctx, `
			UPDATE diary_entries
			SET quantity = ?, is_servings = ?, meal_type = ?,
				kcal_total = ?, protein_total = ?, carbs_total = ?, fat_total = ?, food_id = ?
			WHERE id = ?`,
			u.Quantity, u.IsServings, int(u.MealType),
			m.Calories, m.Protein, m.Carbs, m.Fat, food.ID, u.ID,
		)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		return nil
	})
}

// Delete removes an entry. Deleting an unknown id is not an error.
func (d *Diary) Delete(ctx context.Context, id int64) error {
	db, err := d.store.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM diary_entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Get returns one entry joined with its food
func (d *Diary) Get(ctx context.Context, id int64) (*domain.DiaryEntry, error) {
	db, err := d.store.conn()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM diary_entries_view WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// EntriesForDate returns the day's entries in insertion order, partitioned by meal slot
func (d *Diary) EntriesForDate(ctx context.Context, date domain.Date) (domain.DayEntries, error) {
	db, err := d.store.conn()
	if err != nil {
		return domain.DayEntries{}, err
	}
	date, err = domain.ParseDate(string(date))
	if err != nil {
		return domain.DayEntries{}, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM diary_entries_view WHERE date = ? ORDER BY id",
		string(date),
	)
	if err != nil {
		return domain.DayEntries{}, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.DiaryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return domain.DayEntries{}, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return domain.DayEntries{}, fmt.Errorf("iterate entries: %w", err)
	}

	return domain.GroupByMeal(date, entries), nil
}

func validateEntry(meal domain.MealType, quantity float64) error {
	if !meal.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidMealType, int(meal))
	}
	return domain.ValidateQuantity(quantity)
}

func scanEntry(row rowScanner) (*domain.DiaryEntry, error) {
	var (
		e        domain.DiaryEntry
		date     string
		meal     int
		brand    sql.NullString
		favorite bool
	)
	err := row.Scan(&e.ID, &e.Quantity, &e.IsServings, &date, &meal,
		&e.KcalTotal, &e.ProteinTotal, &e.CarbsTotal, &e.FatTotal,
		&e.Food.ID, &e.Food.Name, &brand, &e.Food.IsCustomEntry, &e.Food.IsCustomFood, &e.Food.ServingQuantity,
		&e.Food.CaloriesPer100g, &e.Food.ProteinPer100g, &e.Food.CarbsPer100g, &e.Food.FatPer100g, &favorite)
	if err != nil {
		return nil, err
	}
	e.Date = domain.Date(date)
	e.MealType = domain.MealType(meal)
	if brand.Valid {
		e.Food.Brand = &brand.String
	}
	e.Food.IsFavorite = &favorite
	return &e, nil
}

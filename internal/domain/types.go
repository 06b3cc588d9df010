package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidMealType = errors.New("invalid meal type")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidFood     = errors.New("invalid food")
)

// DefaultServingQuantity is used when a source has no gram-based serving size
const DefaultServingQuantity = 100

// Food is a nutritional reference record, densities are per 100g
type Food struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Brand           *string `json:"brand"`
	IsCustomEntry   bool    `json:"is_custom_entry"`
	IsCustomFood    bool    `json:"is_custom_food"`
	ServingQuantity float64 `json:"serving_quantity"`
	CaloriesPer100g float64 `json:"calories_per_100g"`
	ProteinPer100g  float64 `json:"protein_per_100g"`
	CarbsPer100g    float64 `json:"carbs_per_100g"`
	FatPer100g      float64 `json:"fat_per_100g"`
	// IsFavorite is nil until resolved against the favorites index
	IsFavorite *bool `json:"is_favorite"`
}

// Validate checks the id format and that every density is a non-negative number
func (f Food) Validate() error {
	if _, _, err := ParseFoodID(f.ID); err != nil {
		return err
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFood)
	}
	fields := map[string]float64{
		"serving_quantity":  f.ServingQuantity,
		"calories_per_100g": f.CaloriesPer100g,
		"protein_per_100g":  f.ProteinPer100g,
		"carbs_per_100g":    f.CarbsPer100g,
		"fat_per_100g":      f.FatPer100g,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidFood, name)
		}
	}
	return nil
}

// BrandOr returns the brand or def when the food has none
func (f Food) BrandOr(def string) string {
	if f.Brand == nil {
		return def
	}
	return *f.Brand
}

// WithDefaultServing fills in DefaultServingQuantity when a regular food has no serving size.
// Custom entries keep 0.
func (f Food) WithDefaultServing() Food {
	if !f.IsCustomEntry && f.ServingQuantity == 0 {
		f.ServingQuantity = DefaultServingQuantity
	}
	return f
}

// CustomEntryFood builds the zero-density food backing a free-text diary entry
func CustomEntryFood(name string) Food {
	brand := "Custom entry"
	favorite := false
	return Food{
		ID:            NewCustomFoodID(),
		Name:          name,
		Brand:         &brand,
		IsCustomEntry: true,
		IsFavorite:    &favorite,
	}
}

// MealType is the meal slot of a diary entry
type MealType int

const (
	Breakfast MealType = 1
	Lunch     MealType = 2
	Dinner    MealType = 3
	Snacks    MealType = 4
)

// MealTypes lists every meal slot in display order
var MealTypes = []MealType{Breakfast, Lunch, Dinner, Snacks}

func (m MealType) Valid() bool {
	return m >= Breakfast && m <= Snacks
}

func (m MealType) String() string {
	switch m {
	case Breakfast:
		return "breakfast"
	case Lunch:
		return "lunch"
	case Dinner:
		return "dinner"
	case Snacks:
		return "snacks"
	}
	return fmt.Sprintf("meal(%d)", int(m))
}

// ParseMealType accepts a label ("lunch") or its number ("2")
func ParseMealType(s string) (MealType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range MealTypes {
		if s == m.String() {
			return m, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !MealType(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMealType, s)
	}
	return MealType(n), nil
}

// Date is a calendar day in ISO YYYY-MM-DD form
type Date string

const dateLayout = "2006-01-02"

// ParseDate validates an ISO calendar day
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date(t.Format(dateLayout)), nil
}

// DateOf returns the calendar day of t in t's location
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// Today returns the local calendar day
func Today() Date {
	return DateOf(time.Now())
}

func (d Date) Time() (time.Time, error) {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, string(d))
	}
	return t, nil
}

// AddDays shifts the day, d must be valid
func (d Date) AddDays(n int) Date {
	t, err := d.Time()
	if err != nil {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

func (d Date) String() string { return string(d) }

// DiaryEntry is one consumption of a food. The totals are frozen at write time.
type DiaryEntry struct {
	ID           int64    `json:"id"`
	Quantity     float64  `json:"quantity"`
	IsServings   bool     `json:"is_servings"`
	Date         Date     `json:"date"`
	MealType     MealType `json:"meal_type"`
	KcalTotal    float64  `json:"kcal_total"`
	ProteinTotal float64  `json:"protein_total"`
	CarbsTotal   float64  `json:"carbs_total"`
	FatTotal     float64  `json:"fat_total"`
	Food         Food     `json:"food"`
}

// ValidateQuantity rejects negative and non-finite quantities. Zero is allowed for custom entries.
func ValidateQuantity(q float64) error {
	if math.IsNaN(q) || math.IsInf(q, 0) || q < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, q)
	}
	return nil
}

// DayEntries holds one day's entries partitioned by meal slot, plus every entry in All
type DayEntries struct {
	Date  Date                      `json:"date"`
	Meals map[MealType][]DiaryEntry `json:"meals"`
	All   []DiaryEntry              `json:"all"`
}

// GroupByMeal partitions entries into the four meal slots, keeping their order
func GroupByMeal(date Date, entries []DiaryEntry) DayEntries {
	day := DayEntries{
		Date:  date,
		Meals: make(map[MealType][]DiaryEntry, len(MealTypes)),
		All:   entries,
	}
	if day.All == nil {
		day.All = []DiaryEntry{}
	}
	for _, m := range MealTypes {
		day.Meals[m] = []DiaryEntry{}
	}
	for _, e := range entries {
		day.Meals[e.MealType] = append(day.Meals[e.MealType], e)
	}
	return day
}

// Meal returns the entries logged for a meal slot
func (d DayEntries) Meal(m MealType) []DiaryEntry {
	return d.Meals[m]
}

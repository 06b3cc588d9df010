package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestParseFoodID(t *testing.T) {
	cases := []struct {
		id     string
		source Source
		native string
		ok     bool
	}{
		{"USDA_1001", SourceUSDA, "1001", true},
		{"OPENFOODFACTS_3017620422003", SourceOpenFoodFacts, "3017620422003", true},
		{"CUSTOM_a_b_c", SourceCustom, "a_b_c", true},
		{"USDA_", "", "", false},
		{"1001", "", "", false},
		{"FATSECRET_12", "", "", false},
	}
	for _, c := range cases {
		source, native, err := ParseFoodID(c.id)
		if !c.ok {
			if !errors.Is(err, ErrInvalidFoodID) {
				t.Fatalf("ParseFoodID(%q): expected ErrInvalidFoodID, got %v", c.id, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFoodID(%q): %v", c.id, err)
		}
		if source != c.source || native != c.native {
			t.Fatalf("ParseFoodID(%q) = %s, %s", c.id, source, native)
		}
		if got := NewFoodID(source, native); got != c.id {
			t.Fatalf("NewFoodID round trip: %q != %q", got, c.id)
		}
	}
}

func TestNewCustomFoodID(t *testing.T) {
	a, b := NewCustomFoodID(), NewCustomFoodID()
	if a == b {
		t.Fatalf("expected unique ids, got %q twice", a)
	}
	if !strings.HasPrefix(a, "CUSTOM_") {
		t.Fatalf("unexpected prefix: %q", a)
	}
}

func TestParseMealType(t *testing.T) {
	cases := map[string]MealType{
		"breakfast": Breakfast,
		" Lunch ":   Lunch,
		"3":         Dinner,
		"snacks":    Snacks,
	}
	for in, want := range cases {
		got, err := ParseMealType(in)
		if err != nil {
			t.Fatalf("ParseMealType(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMealType(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"0", "5", "brunch", ""} {
		if _, err := ParseMealType(in); !errors.Is(err, ErrInvalidMealType) {
			t.Fatalf("ParseMealType(%q): expected ErrInvalidMealType, got %v", in, err)
		}
	}
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got := d.AddDays(1); got != "2024-02-29" {
		t.Fatalf("AddDays(1) = %s", got)
	}
	if got := d.AddDays(-30); got != "2024-01-29" {
		t.Fatalf("AddDays(-30) = %s", got)
	}
	for _, bad := range []string{"2024-13-01", "24-01-01", "2024-01-01T10:00:00Z", ""} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("ParseDate(%q): expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestFoodValidate(t *testing.T) {
	f := Food{ID: "USDA_1", Name: "Oats", ServingQuantity: 40, CaloriesPer100g: 389}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := f
	bad.FatPer100g = -1
	if err := bad.Validate(); !errors.Is(err, ErrInvalidFood) {
		t.Fatalf("negative density: expected ErrInvalidFood, got %v", err)
	}

	bad = f
	bad.ProteinPer100g = math.NaN()
	if err := bad.Validate(); !errors.Is(err, ErrInvalidFood) {
		t.Fatalf("NaN density: expected ErrInvalidFood, got %v", err)
	}

	bad = f
	bad.ID = "oats"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidFoodID) {
		t.Fatalf("bad id: expected ErrInvalidFoodID, got %v", err)
	}

	custom := CustomEntryFood("Birthday cake")
	if err := custom.Validate(); err != nil {
		t.Fatalf("custom entry food: %v", err)
	}
	if !custom.IsCustomEntry || custom.ServingQuantity != 0 || custom.BrandOr("") != "Custom entry" {
		t.Fatalf("unexpected custom entry food: %+v", custom)
	}
}

func TestGroupByMeal(t *testing.T) {
	entries := []DiaryEntry{
		{ID: 1, MealType: Lunch},
		{ID: 2, MealType: Breakfast},
		{ID: 3, MealType: Lunch},
	}
	day := GroupByMeal("2024-01-01", entries)

	if len(day.All) != 3 {
		t.Fatalf("All: expected 3 entries, got %d", len(day.All))
	}
	lunch := day.Meal(Lunch)
	if len(lunch) != 2 || lunch[0].ID != 1 || lunch[1].ID != 3 {
		t.Fatalf("Lunch: unexpected entries %+v", lunch)
	}
	if day.Meal(Dinner) == nil || len(day.Meal(Dinner)) != 0 {
		t.Fatalf("Dinner: expected empty non-nil bucket")
	}

	total := 0
	for _, m := range MealTypes {
		total += len(day.Meal(m))
	}
	if total != len(day.All) {
		t.Fatalf("buckets hold %d entries, All holds %d", total, len(day.All))
	}

	empty := GroupByMeal("2024-01-02", nil)
	if empty.All == nil || len(empty.Meals) != 4 {
		t.Fatalf("empty day: unexpected %+v", empty)
	}
}

func TestWithDefaultServing(t *testing.T) {
	f := Food{ID: "USDA_1", Name: "Oats"}.WithDefaultServing()
	if f.ServingQuantity != DefaultServingQuantity {
		t.Fatalf("regular food: serving %v", f.ServingQuantity)
	}
	f = Food{ID: "USDA_1", Name: "Oats", ServingQuantity: 40}.WithDefaultServing()
	if f.ServingQuantity != 40 {
		t.Fatalf("explicit serving overwritten: %v", f.ServingQuantity)
	}
	if c := CustomEntryFood("Cake").WithDefaultServing(); c.ServingQuantity != 0 {
		t.Fatalf("custom entry got a serving: %v", c.ServingQuantity)
	}
}

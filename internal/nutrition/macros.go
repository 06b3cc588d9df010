package nutrition

import (
	"math"

	"github.com/pbaille/nutrilog/internal/domain"
)

// Macros holds absolute amounts: kcal and grams
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Add returns the elementwise sum
func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		Protein:  m.Protein + o.Protein,
		Carbs:    m.Carbs + o.Carbs,
		Fat:      m.Fat + o.Fat,
	}
}

// Overrides replace computed values. A nil field keeps the computed value, a set field wins even when 0.
type Overrides struct {
	Calories *float64 `json:"calories,omitempty"`
	Protein  *float64 `json:"protein,omitempty"`
	Carbs    *float64 `json:"carbs,omitempty"`
	Fat      *float64 `json:"fat,omitempty"`
}

func (o Overrides) Empty() bool {
	return o.Calories == nil && o.Protein == nil && o.Carbs == nil && o.Fat == nil
}

// Apply replaces the overridden fields of m
func (o Overrides) Apply(m Macros) Macros {
	if o.Calories != nil {
		m.Calories = *o.Calories
	}
	if o.Protein != nil {
		m.Protein = *o.Protein
	}
	if o.Carbs != nil {
		m.Carbs = *o.Carbs
	}
	if o.Fat != nil {
		m.Fat = *o.Fat
	}
	return m
}

// Multiplier converts a quantity into a factor of the per-100g densities
func Multiplier(food domain.Food, quantity float64, isServings bool) float64 {
	if isServings {
		return quantity * food.ServingQuantity / 100
	}
	return quantity / 100
}

// ComputeMacros returns the absolute macros of quantity grams (or servings) of food. No rounding.
func ComputeMacros(food domain.Food, quantity float64, isServings bool) Macros {
	k := Multiplier(food, quantity, isServings)
	return Macros{
		Calories: food.CaloriesPer100g * k,
		Protein:  food.ProteinPer100g * k,
		Carbs:    food.CarbsPer100g * k,
		Fat:      food.FatPer100g * k,
	}
}

// CaloriesFromMacros uses the 4/4/9 kcal per gram factors
func CaloriesFromMacros(protein, carbs, fat float64) float64 {
	return protein*4 + carbs*4 + fat*9
}

// Round is for presentation only, rounded values are never stored
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

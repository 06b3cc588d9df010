package nutrition

import "github.com/pbaille/nutrilog/internal/domain"

// Targets are the user's daily goals. Percentages split the calorie target across macros.
type Targets struct {
	Calories   float64 `json:"calories" yaml:"calories"`
	CarbsPct   float64 `json:"carbs_pct" yaml:"carbs_pct"`
	ProteinPct float64 `json:"protein_pct" yaml:"protein_pct"`
	FatPct     float64 `json:"fat_pct" yaml:"fat_pct"`
}

var mealShare = map[domain.MealType]float64{
	domain.Breakfast: 0.3,
	domain.Lunch:     0.3,
	domain.Dinner:    0.3,
	domain.Snacks:    0.1,
}

func (t Targets) Set() bool {
	return t.Calories > 0
}

// MacroGrams converts the percentage split into grams
func (t Targets) MacroGrams() Macros {
	return Macros{
		Calories: t.Calories,
		Carbs:    t.Calories * t.CarbsPct / 100 / 4,
		Protein:  t.Calories * t.ProteinPct / 100 / 4,
		Fat:      t.Calories * t.FatPct / 100 / 9,
	}
}

// MealCalories is the share of the calorie target allotted to a meal slot
func (t Targets) MealCalories(m domain.MealType) float64 {
	return t.Calories * mealShare[m]
}

// MealReport is one meal slot of a day
type MealReport struct {
	Meal           domain.MealType `json:"meal"`
	Label          string          `json:"label"`
	Summary        Summary         `json:"summary"`
	TargetCalories float64         `json:"target_calories,omitempty"`
}

// DayReport summarizes a day against the targets
type DayReport struct {
	Date      domain.Date  `json:"date"`
	Meals     []MealReport `json:"meals"`
	Total     Summary      `json:"total"`
	Target    *Macros      `json:"target,omitempty"`
	Remaining *Macros      `json:"remaining,omitempty"`
}

// Report builds per-meal and whole-day summaries. Remaining is negative when a goal is exceeded.
func Report(day domain.DayEntries, targets Targets) DayReport {
	r := DayReport{
		Date:  day.Date,
		Meals: make([]MealReport, 0, len(domain.MealTypes)),
		Total: Summarize(day.All),
	}
	for _, m := range domain.MealTypes {
		mr := MealReport{Meal: m, Label: m.String(), Summary: Summarize(day.Meal(m))}
		if targets.Set() {
			mr.TargetCalories = targets.MealCalories(m)
		}
		r.Meals = append(r.Meals, mr)
	}
	if targets.Set() {
		goal := targets.MacroGrams()
		eaten := r.Total.Macros()
		r.Target = &goal
		r.Remaining = &Macros{
			Calories: goal.Calories - eaten.Calories,
			Protein:  goal.Protein - eaten.Protein,
			Carbs:    goal.Carbs - eaten.Carbs,
			Fat:      goal.Fat - eaten.Fat,
		}
	}
	return r
}

package nutrition

import (
	"strings"

	"github.com/pbaille/nutrilog/internal/domain"
)

// Summary totals a list of diary entries
type Summary struct {
	Calories  float64  `json:"calories"`
	Protein   float64  `json:"protein"`
	Carbs     float64  `json:"carbs"`
	Fat       float64  `json:"fat"`
	FoodNames []string `json:"food_names"`
}

// Summarize folds the stored totals of each entry. Food densities are never consulted, so the
// result matches what was shown at logging time.
func Summarize(entries []domain.DiaryEntry) Summary {
	s := Summary{FoodNames: make([]string, 0, len(entries))}
	for _, e := range entries {
		s.Calories += e.KcalTotal
		s.Protein += e.ProteinTotal
		s.Carbs += e.CarbsTotal
		s.Fat += e.FatTotal
		s.FoodNames = append(s.FoodNames, e.Food.Name)
	}
	return s
}

// Merge returns the elementwise sum, names of s first
func (s Summary) Merge(o Summary) Summary {
	names := make([]string, 0, len(s.FoodNames)+len(o.FoodNames))
	names = append(names, s.FoodNames...)
	names = append(names, o.FoodNames...)
	return Summary{
		Calories:  s.Calories + o.Calories,
		Protein:   s.Protein + o.Protein,
		Carbs:     s.Carbs + o.Carbs,
		Fat:       s.Fat + o.Fat,
		FoodNames: names,
	}
}

func (s Summary) Macros() Macros {
	return Macros{Calories: s.Calories, Protein: s.Protein, Carbs: s.Carbs, Fat: s.Fat}
}

// Foods renders the "today you ate" line
func (s Summary) Foods() string {
	return strings.Join(s.FoodNames, ", ")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/nutrition"
	"github.com/pbaille/nutrilog/internal/sources"
	"github.com/pbaille/nutrilog/internal/store"
)

// overrideFlags registers --kcal, --protein, --carbs and --fat. Only flags given on the command
// line become overrides, so an explicit 0 is kept.
type overrideFlags struct {
	kcal, protein, carbs, fat float64
}

func (o *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&o.kcal, "kcal", 0, "override calories")
	cmd.Flags().Float64Var(&o.protein, "protein", 0, "override protein (g)")
	cmd.Flags().Float64Var(&o.carbs, "carbs", 0, "override carbs (g)")
	cmd.Flags().Float64Var(&o.fat, "fat", 0, "override fat (g)")
}

func (o *overrideFlags) overrides(cmd *cobra.Command) nutrition.Overrides {
	var ov nutrition.Overrides
	if cmd.Flags().Changed("kcal") {
		ov.Calories = &o.kcal
	}
	if cmd.Flags().Changed("protein") {
		ov.Protein = &o.protein
	}
	if cmd.Flags().Changed("carbs") {
		ov.Carbs = &o.carbs
	}
	if cmd.Flags().Changed("fat") {
		ov.Fat = &o.fat
	}
	return ov
}

func parseDateFlag(v string) (domain.Date, error) {
	if v == "" {
		return domain.Today(), nil
	}
	return domain.ParseDate(v)
}

// findFood reads the local repository, then asks the food's source
func findFood(ctx context.Context, s *store.Store, id string) (*domain.Food, error) {
	f, err := store.NewFoodRepo(s).Get(ctx, id)
	if !errors.Is(err, store.ErrFoodNotFound) {
		return f, err
	}
	f, err = getSources(ctx).Resolve(ctx, id)
	if errors.Is(err, sources.ErrUnsupported) {
		return nil, fmt.Errorf("%w: %s", store.ErrFoodNotFound, id)
	}
	return f, err
}

func addCmd() *cobra.Command {
	var (
		meal     string
		date     string
		servings bool
		ov       overrideFlags
	)

	cmd := &cobra.Command{
		Use:   "add [food-id] [quantity]",
		Short: "Log a food (grams, or servings with --servings)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			quantity, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("%w: %q", domain.ErrInvalidQuantity, args[1])
			}
			mealType, err := domain.ParseMealType(meal)
			if err != nil {
				return err
			}
			day, err := parseDateFlag(date)
			if err != nil {
				return err
			}

			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			food, err := findFood(ctx, s, args[0])
			if err != nil {
				return err
			}

			diary := store.NewDiary(s)
			id, err := diary.Add(ctx, store.NewEntry{
				Date:       day,
				MealType:   mealType,
				Food:       *food,
				Quantity:   quantity,
				IsServings: servings,
				Overrides:  ov.overrides(cmd),
			})
			if err != nil {
				return err
			}
			entry, err := diary.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Added entry %d to %s on %s\n", entry.ID, entry.MealType, entry.Date)
			printEntry(*entry)
			return nil
		},
	}

	cmd.Flags().StringVarP(&meal, "meal", "m", "snacks", "meal: breakfast, lunch, dinner, snacks")
	cmd.Flags().StringVarP(&date, "date", "d", "", "day (YYYY-MM-DD), default today")
	cmd.Flags().BoolVarP(&servings, "servings", "s", false, "quantity is a number of servings")
	ov.register(cmd)
	return cmd
}

func customCmd() *cobra.Command {
	var (
		meal string
		date string
		ov   overrideFlags
	)

	cmd := &cobra.Command{
		Use:   "custom [name]",
		Short: "Log a free-text entry with absolute values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mealType, err := domain.ParseMealType(meal)
			if err != nil {
				return err
			}
			day, err := parseDateFlag(date)
			if err != nil {
				return err
			}

			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			diary := store.NewDiary(s)
			id, err := diary.Add(ctx, store.NewEntry{
				Date:      day,
				MealType:  mealType,
				Food:      domain.CustomEntryFood(strings.Join(args, " ")),
				Overrides: ov.overrides(cmd),
			})
			if err != nil {
				return err
			}
			entry, err := diary.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Added custom entry %d to %s on %s\n", entry.ID, entry.MealType, entry.Date)
			printEntry(*entry)
			return nil
		},
	}

	cmd.Flags().StringVarP(&meal, "meal", "m", "snacks", "meal: breakfast, lunch, dinner, snacks")
	cmd.Flags().StringVarP(&date, "date", "d", "", "day (YYYY-MM-DD), default today")
	ov.register(cmd)
	return cmd
}

func editCmd() *cobra.Command {
	var (
		meal     string
		foodID   string
		quantity float64
		servings bool
		ov       overrideFlags
	)

	cmd := &cobra.Command{
		Use:   "edit [entry-id]",
		Short: "Change an entry; unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}

			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			diary := store.NewDiary(s)
			current, err := diary.Get(ctx, id)
			if err != nil {
				return err
			}

			u := store.EntryUpdate{
				ID:         id,
				MealType:   current.MealType,
				Food:       current.Food,
				Quantity:   current.Quantity,
				IsServings: current.IsServings,
				Overrides:  ov.overrides(cmd),
			}
			if cmd.Flags().Changed("meal") {
				if u.MealType, err = domain.ParseMealType(meal); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("food") {
				f, err := findFood(ctx, s, foodID)
				if err != nil {
					return err
				}
				u.Food = *f
			}
			if cmd.Flags().Changed("quantity") {
				u.Quantity = quantity
			}
			if cmd.Flags().Changed("servings") {
				u.IsServings = servings
			}
			// custom entries carry no densities, keep their totals unless replaced
			if current.Food.IsCustomEntry && u.Food.ID == current.Food.ID {
				keep := nutrition.Overrides{
					Calories: &current.KcalTotal,
					Protein:  &current.ProteinTotal,
					Carbs:    &current.CarbsTotal,
					Fat:      &current.FatTotal,
				}
				u.Overrides = mergeOverrides(keep, u.Overrides)
			}

			if err := diary.Update(ctx, u); err != nil {
				return err
			}
			entry, err := diary.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Updated entry %d\n", entry.ID)
			printEntry(*entry)
			return nil
		},
	}

	cmd.Flags().StringVarP(&meal, "meal", "m", "", "new meal")
	cmd.Flags().StringVarP(&foodID, "food", "f", "", "new food id")
	cmd.Flags().Float64VarP(&quantity, "quantity", "q", 0, "new quantity")
	cmd.Flags().BoolVarP(&servings, "servings", "s", false, "quantity is a number of servings")
	ov.register(cmd)
	return cmd
}

// mergeOverrides returns base with the fields set in top replaced
func mergeOverrides(base, top nutrition.Overrides) nutrition.Overrides {
	if top.Calories != nil {
		base.Calories = top.Calories
	}
	if top.Protein != nil {
		base.Protein = top.Protein
	}
	if top.Carbs != nil {
		base.Carbs = top.Carbs
	}
	if top.Fat != nil {
		base.Fat = top.Fat
	}
	return base
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [entry-id]",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}

			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := store.NewDiary(s).Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted entry %d\n", id)
			return nil
		},
	}
}

func dayCmd() *cobra.Command {
	var suggest bool

	cmd := &cobra.Command{
		Use:   "day [date]",
		Short: "Show a day's entries and totals",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			date := domain.Today()
			if len(args) == 1 {
				d, err := domain.ParseDate(args[0])
				if err != nil {
					return err
				}
				date = d
			}

			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			var (
				day       domain.DayEntries
				favorites []domain.Food
				frequent  []domain.Food
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				day, err = store.NewDiary(s).EntriesForDate(gctx, date)
				return err
			})
			if suggest {
				g.Go(func() error {
					var err error
					favorites, err = store.NewFavorites(s).List(gctx)
					return err
				})
				g.Go(func() error {
					var err error
					frequent, err = store.NewFoodRepo(s).MostUsed(gctx, date, store.DefaultUsageWindowDays, store.DefaultUsageLimit)
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			printReport(nutrition.Report(day, cfg.Targets), day)

			if suggest {
				fmt.Println("\nFavorites:")
				printFoods(favorites)
				fmt.Println("\nFrequent:")
				printFoods(frequent)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&suggest, "suggest", false, "also list favorites and frequent foods")
	return cmd
}

func printEntry(e domain.DiaryEntry) {
	unit := "g"
	if e.IsServings {
		unit = " serving(s)"
	}
	qty := fmt.Sprintf("%g%s", e.Quantity, unit)
	if e.Food.IsCustomEntry {
		qty = "custom"
	}
	fmt.Printf("  #%-5d %-40s %-14s %6.0f kcal  P %5.1f  C %5.1f  F %5.1f\n",
		e.ID, truncate(e.Food.Name, 40), qty,
		e.KcalTotal, e.ProteinTotal, e.CarbsTotal, e.FatTotal)
}

func printReport(r nutrition.DayReport, day domain.DayEntries) {
	fmt.Printf("%s\n", r.Date)
	for _, m := range r.Meals {
		header := fmt.Sprintf("%s: %.0f kcal", strings.ToUpper(m.Label[:1])+m.Label[1:], m.Summary.Calories)
		if m.TargetCalories > 0 {
			header += fmt.Sprintf(" / %.0f", m.TargetCalories)
		}
		fmt.Println(header)
		for _, e := range day.Meal(m.Meal) {
			printEntry(e)
		}
	}

	t := r.Total
	fmt.Printf("\nTotal: %.0f kcal  P %.1f  C %.1f  F %.1f\n", t.Calories, t.Protein, t.Carbs, t.Fat)
	if len(t.FoodNames) > 0 {
		fmt.Printf("Ate: %s\n", truncate(t.Foods(), 120))
	}
	if r.Remaining != nil {
		rem := r.Remaining
		fmt.Printf("Remaining: %.0f kcal  P %.1f  C %.1f  F %.1f\n",
			nutrition.Round(rem.Calories, 0), rem.Protein, rem.Carbs, rem.Fat)
	}
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/store"
)

func favCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fav",
		Short: "Manage favorite foods",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [food-id]",
		Short: "Mark a food as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			food, err := findFood(ctx, s, args[0])
			if err != nil {
				return err
			}
			if err := store.NewFavorites(s).Add(ctx, *food); err != nil {
				return err
			}
			fmt.Printf("Favorited %s (%s)\n", food.Name, food.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [food-id]",
		Short: "Unmark a favorite food",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := store.NewFavorites(s).Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s from favorites\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List favorite foods",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			foods, err := store.NewFavorites(s).List(ctx)
			if err != nil {
				return err
			}
			if len(foods) == 0 {
				fmt.Println("No favorites yet. Use 'nutrilog fav add' to create one.")
				return nil
			}
			printFoods(foods)
			return nil
		},
	})

	return cmd
}

func frequentCmd() *cobra.Command {
	var days, limit int

	cmd := &cobra.Command{
		Use:   "frequent",
		Short: "List the foods logged most often recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			foods, err := store.NewFoodRepo(s).MostUsed(ctx, domain.Today(), days, limit)
			if err != nil {
				return err
			}
			if len(foods) == 0 {
				fmt.Println("Nothing logged in that window.")
				return nil
			}
			printFoods(foods)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", store.DefaultUsageWindowDays, "window in days")
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultUsageLimit, "number of foods to show")
	return cmd
}

func searchCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search foods at USDA or Open Food Facts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			searcher, ok := getSources(ctx).Searcher(domain.Source(strings.ToUpper(source)))
			if !ok {
				return fmt.Errorf("unknown source %q (usda, openfoodfacts)", source)
			}

			foods, err := searcher.SearchByName(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(foods) == 0 {
				fmt.Println("No matching foods found.")
				return nil
			}
			printFoods(foods)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "usda", "usda or openfoodfacts")
	return cmd
}

func barcodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "barcode [code]",
		Short: "Look up a packaged product on Open Food Facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			food, err := getSources(ctx).Barcode(ctx, args[0])
			if err != nil {
				return err
			}
			printFoods([]domain.Food{*food})
			return nil
		},
	}
}

func printFoods(foods []domain.Food) {
	for _, f := range foods {
		star := " "
		if f.IsFavorite != nil && *f.IsFavorite {
			star = "*"
		}
		fmt.Printf("%s %-34s %-40s %-16s %5.0f kcal  P %5.1f  C %5.1f  F %5.1f  /100g  serving %gg\n",
			star, truncate(f.ID, 34), truncate(f.Name, 40), truncate(f.BrandOr(""), 16),
			f.CaloriesPer100g, f.ProteinPer100g, f.CarbsPer100g, f.FatPer100g, f.ServingQuantity)
	}
}

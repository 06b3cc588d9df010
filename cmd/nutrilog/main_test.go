package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/pbaille/nutrilog/internal/nutrition"
)

func TestOverrideFlagsOnlyChanged(t *testing.T) {
	var ov overrideFlags
	cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
	ov.register(cmd)
	if err := cmd.ParseFlags([]string{"--kcal", "0", "--fat", "3.5"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	got := ov.overrides(cmd)
	if got.Calories == nil || *got.Calories != 0 {
		t.Fatalf("explicit 0 kcal must be an override: %+v", got)
	}
	if got.Fat == nil || *got.Fat != 3.5 {
		t.Fatalf("fat override: %+v", got)
	}
	if got.Protein != nil || got.Carbs != nil {
		t.Fatalf("unset flags must not override: %+v", got)
	}
}

func TestMergeOverrides(t *testing.T) {
	one, two, three := 1.0, 2.0, 3.0
	base := nutrition.Overrides{Calories: &one, Protein: &one}
	top := nutrition.Overrides{Protein: &two, Fat: &three}

	got := mergeOverrides(base, top)
	if *got.Calories != 1 || *got.Protein != 2 || got.Carbs != nil || *got.Fat != 3 {
		t.Fatalf("unexpected merge: %+v", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("a rather long line\nof text", 10); got != "a rathe..." {
		t.Fatalf("got %q", got)
	}
}

package model

import (
	"slices"
	"time"
)

// Recipe is an immutable catalog entry.
type Recipe struct {
	Name        string
	Description string
	Tags        IngredientSet   // canonical ingredient tags used for matching
	Ingredients []string        // human-readable ingredient list
	Steps       []string
	Nutrition   []NutritionFact // declaration order preserved
	PrepTime    time.Duration
	Servings    int
	Image       string // file name relative to the recipe image directory
}

// NutritionFact is one nutrition entry, e.g. {"Calories", "260 kcal"}.
type NutritionFact struct {
	Key   string
	Value string
}

// NutritionMap returns the nutrition facts as a key→value mapping.
func (r Recipe) NutritionMap() map[string]string {
	m := make(map[string]string, len(r.Nutrition))
	for _, f := range r.Nutrition {
		m[f.Key] = f.Value
	}
	return m
}

// Clone returns a copy of r that shares no slices with it.
func (r Recipe) Clone() Recipe {
	r.Ingredients = slices.Clone(r.Ingredients)
	r.Steps = slices.Clone(r.Steps)
	r.Nutrition = slices.Clone(r.Nutrition)
	return r
}

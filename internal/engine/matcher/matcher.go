// Package matcher ranks catalog recipes against a detected ingredient set.
package matcher

import (
	"cmp"
	"slices"

	"github.com/crimson-sun/wastenot/internal/catalog"
	"github.com/crimson-sun/wastenot/internal/model"
)

// Result is a recipe with its match score. Score is the number of the
// recipe's tags present in the detected set and is always at least 1.
type Result struct {
	Score  int
	Recipe model.Recipe
}

// Match scores every catalog recipe against detected, drops recipes with
// score 0, and returns the rest by descending score. Equal scores keep
// catalog declaration order. The result is never truncated. Match is pure.
func Match(cat *catalog.Catalog, detected model.IngredientSet) []Result {
	if detected.Empty() {
		return []Result{}
	}

	results := make([]Result, 0, cat.Len())
	cat.Each(func(_ int, r *model.Recipe) {
		if score := r.Tags.Intersect(detected).Len(); score > 0 {
			results = append(results, Result{Score: score, Recipe: r.Clone()})
		}
	})

	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return results
}

// Recipes strips the scores from results, keeping order.
func Recipes(results []Result) []model.Recipe {
	out := make([]model.Recipe, len(results))
	for i, r := range results {
		out[i] = r.Recipe
	}
	return out
}

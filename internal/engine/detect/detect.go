// Package detect folds per-image classification results into the set of
// detected ingredients for a batch.
package detect

import "github.com/crimson-sun/wastenot/internal/model"

// Fold returns the union of all known labels in results. Unknown results
// contribute nothing; duplicates collapse. Order does not matter.
func Fold(results ...model.ClassificationResult) model.IngredientSet {
	var set model.IngredientSet
	for _, r := range results {
		if lbl, ok := r.Label(); ok {
			set = set.With(lbl)
		}
	}
	return set
}

// Merge unions partial sets, e.g. ones folded by parallel workers.
func Merge(sets ...model.IngredientSet) model.IngredientSet {
	var out model.IngredientSet
	for _, s := range sets {
		out = out.Union(s)
	}
	return out
}

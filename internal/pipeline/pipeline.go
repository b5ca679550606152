// Package pipeline turns a batch of ingredient photos into ranked recipe
// recommendations.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/crimson-sun/wastenot/internal/catalog"
	"github.com/crimson-sun/wastenot/internal/engine"
	"github.com/crimson-sun/wastenot/internal/engine/detect"
	"github.com/crimson-sun/wastenot/internal/engine/matcher"
	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
	"github.com/crimson-sun/wastenot/internal/model"
)

// Classifier classifies a batch of images. Satisfied by *engine.Engine.
type Classifier interface {
	ClassifyBatch(ctx context.Context, imgs []model.ImageInput) []engine.Outcome
}

// Recommendation is the result of one batch.
type Recommendation struct {
	// Outcomes holds one entry per input image, in input order.
	Outcomes []engine.Outcome
	// Detected is the union of known labels across the batch.
	Detected model.IngredientSet
	// Matches are the catalog recipes sharing at least one ingredient with
	// Detected, best first.
	Matches []matcher.Result
	// Skipped counts images that failed to classify.
	Skipped int
}

// Pipeline connects a classifier and a catalog.
type Pipeline struct {
	classifier Classifier
	catalog    *catalog.Catalog
}

// New creates a Pipeline from the given components.
func New(cls Classifier, cat *catalog.Catalog) *Pipeline {
	return &Pipeline{classifier: cls, catalog: cat}
}

// Catalog returns the catalog recommendations are drawn from.
func (p *Pipeline) Catalog() *catalog.Catalog { return p.catalog }

// Recommend classifies every image, folds the known labels into a detected
// set and ranks the catalog against it. Images that fail to classify are
// logged and skipped. An error is returned only when ctx ends first.
func (p *Pipeline) Recommend(ctx context.Context, imgs []model.ImageInput) (Recommendation, error) {
	outcomes := p.classifier.ClassifyBatch(ctx, imgs)
	if err := ctx.Err(); err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		rec.Skipped++
		var inErr *preprocess.InputError
		if errors.As(o.Err, &inErr) {
			slog.Warn("skipping unreadable image", "image", o.Name, "error", o.Err)
		} else {
			slog.Error("classification failed", "image", o.Name, "error", o.Err)
		}
	}

	rec.Detected = Detected(outcomes)
	rec.Matches = matcher.Match(p.catalog, rec.Detected)

	slog.Debug("recommendation built",
		"images", len(imgs),
		"skipped", rec.Skipped,
		"detected", rec.Detected.String(),
		"matches", len(rec.Matches),
	)
	return rec, nil
}

// Detected folds the successful outcomes of a batch into an ingredient set.
// Errored outcomes contribute nothing.
func Detected(outcomes []engine.Outcome) model.IngredientSet {
	results := make([]model.ClassificationResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			results = append(results, o.Result)
		}
	}
	return detect.Fold(results...)
}

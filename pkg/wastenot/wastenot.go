package wastenot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crimson-sun/wastenot/internal/catalog"
	"github.com/crimson-sun/wastenot/internal/engine"
	"github.com/crimson-sun/wastenot/internal/engine/classifier"
	"github.com/crimson-sun/wastenot/internal/engine/inference"
	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
	"github.com/crimson-sun/wastenot/internal/model"
	"github.com/crimson-sun/wastenot/internal/pipeline"
)

// WasteNot classifies ingredient photos and ranks recipes against them.
// Safe for concurrent use.
type WasteNot struct {
	engine   *engine.Engine
	pipeline *pipeline.Pipeline
	catalog  *catalog.Catalog
}

// New loads the recipe catalog and the classification model. Loading the
// model is expensive; create once and reuse.
func New(opts ...Option) (*WasteNot, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cat, err := loadCatalog(o.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("wastenot: %w", err)
	}

	m, err := inference.NewONNX(inference.ONNXConfig{
		ModelPath:   resolveModelPath(o),
		LibraryPath: o.libraryPath,
		Classes:     len(model.Vocabulary),
	})
	if err != nil {
		return nil, fmt.Errorf("wastenot: %w", err)
	}

	w, err := build(m, cat, o)
	if err != nil {
		m.Close()
		return nil, err
	}
	return w, nil
}

// describedModel is a model that reports its own input geometry.
type describedModel interface {
	inference.Model
	inference.Describer
}

func build(m describedModel, cat *catalog.Catalog, o options) (*WasteNot, error) {
	pre, err := preprocess.New(inference.InputConfig(m,
		preprocess.Normalization(o.normalization),
		preprocess.Interpolation(o.interpolation),
	))
	if err != nil {
		return nil, fmt.Errorf("wastenot: %w", err)
	}
	if o.confidenceThreshold < 0 || o.confidenceThreshold > 1 {
		return nil, fmt.Errorf("wastenot: confidence threshold %v outside [0, 1]", o.confidenceThreshold)
	}

	cls := classifier.New(o.confidenceThreshold)
	cls.Logits = o.logits
	eng := engine.New(pre, m, cls, nil, engine.WithWorkers(o.workers))

	return &WasteNot{
		engine:   eng,
		pipeline: pipeline.New(eng, cat),
		catalog:  cat,
	}, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// Classify classifies a single image.
func (w *WasteNot) Classify(ctx context.Context, img Image) (Prediction, error) {
	res, err := w.engine.Classify(ctx, model.ImageInput{Name: img.Name, Data: img.Data})
	if err != nil {
		return Prediction{}, err
	}
	return predictionFrom(img.Name, res), nil
}

// ClassifyFile reads and classifies an image file.
func (w *WasteNot) ClassifyFile(ctx context.Context, path string) (Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Prediction{}, fmt.Errorf("wastenot: %w", err)
	}
	return w.Classify(ctx, Image{Name: filepath.Base(path), Data: data})
}

// Recommend classifies every image and ranks the catalog against the
// detected ingredients. Images that cannot be classified carry an Err in
// their Prediction and contribute nothing.
func (w *WasteNot) Recommend(ctx context.Context, imgs []Image) (Recommendation, error) {
	inputs := make([]model.ImageInput, len(imgs))
	for i, img := range imgs {
		inputs[i] = model.ImageInput{Name: img.Name, Data: img.Data}
	}

	rec, err := w.pipeline.Recommend(ctx, inputs)
	if err != nil {
		return Recommendation{}, err
	}

	out := Recommendation{
		Predictions: make([]Prediction, len(rec.Outcomes)),
		Detected:    rec.Detected.Names(),
		Recipes:     matchesFrom(rec.Matches),
	}
	for i, o := range rec.Outcomes {
		if o.Err != nil {
			out.Predictions[i] = Prediction{Name: o.Name, Err: o.Err}
			continue
		}
		out.Predictions[i] = predictionFrom(o.Name, o.Result)
	}
	return out, nil
}

// RecommendFiles reads the image files and calls Recommend. A file that
// cannot be read fails the call.
func (w *WasteNot) RecommendFiles(ctx context.Context, paths ...string) (Recommendation, error) {
	imgs := make([]Image, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return Recommendation{}, fmt.Errorf("wastenot: %w", err)
		}
		imgs[i] = Image{Name: filepath.Base(p), Data: data}
	}
	return w.Recommend(ctx, imgs)
}

// Recipes returns the catalog in declaration order.
func (w *WasteNot) Recipes() []Recipe {
	recipes := w.catalog.Recipes()
	out := make([]Recipe, len(recipes))
	for i, r := range recipes {
		out[i] = recipeFrom(r)
	}
	return out
}

// Ingredients returns the recognizable ingredient labels in model order.
func (w *WasteNot) Ingredients() []string {
	out := make([]string, len(model.Vocabulary))
	for i, ing := range model.Vocabulary {
		out[i] = ing.String()
	}
	return out
}

// Close releases the model.
func (w *WasteNot) Close() error {
	return w.engine.Close()
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crimson-sun/wastenot/internal/engine/classifier"
	"github.com/crimson-sun/wastenot/internal/engine/inference"
	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
	"github.com/crimson-sun/wastenot/internal/metrics"
	"github.com/crimson-sun/wastenot/internal/model"
)

const defaultWorkers = 4

// Engine orchestrates the decode → preprocess → infer → threshold pipeline
// for single images and batches. Safe for concurrent use.
type Engine struct {
	pre        *preprocess.Preprocessor
	model      inference.Model
	classifier *classifier.Classifier
	sink       metrics.Sink
	workers    int

	// mu serializes forward passes on the shared model.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many images of a batch are processed at once.
// Default: 4.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an Engine with the provided components. A nil sink discards
// observations.
func New(pre *preprocess.Preprocessor, m inference.Model, cls *classifier.Classifier, sink metrics.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = metrics.Nop{}
	}
	e := &Engine{
		pre:        pre,
		model:      m,
		classifier: cls,
		sink:       sink,
		workers:    defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify classifies a single image. An unreadable image fails with a
// *preprocess.InputError and records no metrics.
func (e *Engine) Classify(ctx context.Context, img model.ImageInput) (model.ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ClassificationResult{}, err
	}

	start := time.Now()
	tensor, err := e.pre.Prepare(img.Name, img.Data)
	if err != nil {
		return model.ClassificationResult{}, err
	}

	e.mu.Lock()
	scores, err := e.model.Predict(tensor)
	e.mu.Unlock()
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("engine: classify %q: %w", img.Name, err)
	}

	result, err := e.classifier.Classify(scores)
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("engine: classify %q: %w", img.Name, err)
	}

	e.sink.ObservePrediction(result.Resolved(), result.Confidence(), time.Since(start))
	return result, nil
}

// Outcome is the per-image result of a batch.
type Outcome struct {
	Name   string
	Result model.ClassificationResult
	Err    error
}

// ClassifyBatch classifies every image independently. A failure on one image
// is recorded in its Outcome and does not affect the others. Outcomes are
// returned in input order.
func (e *Engine) ClassifyBatch(ctx context.Context, imgs []model.ImageInput) []Outcome {
	outcomes := make([]Outcome, len(imgs))
	if len(imgs) == 0 {
		return outcomes
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, img := range imgs {
		outcomes[i].Name = img.Name
		wg.Add(1)
		sem <- struct{}{}
		i, img := i, img
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i].Result, outcomes[i].Err = e.Classify(ctx, img)
		}()
	}
	wg.Wait()
	return outcomes
}

// Close releases the model.
func (e *Engine) Close() error {
	return e.model.Close()
}

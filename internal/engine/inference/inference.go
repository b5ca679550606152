// Package inference runs the ingredient classification model.
package inference

import (
	"errors"

	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
)

// ErrModelUnavailable wraps every failure to load the model. The service
// must not accept classification requests when it is returned.
var ErrModelUnavailable = errors.New("model unavailable")

// Model produces one score per vocabulary entry for a single preprocessed
// image tensor.
type Model interface {
	Predict(input []float32) ([]float32, error)
	Close() error
}

// Describer is implemented by models that know their expected input.
type Describer interface {
	InputSize() int
	Layout() preprocess.Layout
}

// InputConfig returns the preprocessing config that produces tensors d
// accepts. Size and layout always come from the model.
func InputConfig(d Describer, normalization preprocess.Normalization, interpolation preprocess.Interpolation) preprocess.Config {
	return preprocess.Config{
		Size:          d.InputSize(),
		Normalization: normalization,
		Interpolation: interpolation,
		Layout:        d.Layout(),
	}
}

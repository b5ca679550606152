package wastenot

import "path/filepath"

const defaultModelFile = "ingredient_classifier.onnx"

type options struct {
	modelDir            string
	modelPath           string
	libraryPath         string
	catalogPath         string
	confidenceThreshold float64
	normalization       string
	interpolation       string
	logits              bool
	workers             int
}

// Option configures a WasteNot instance.
type Option func(*options)

// WithModelDir sets the directory containing ingredient_classifier.onnx
// (and, by default, libonnxruntime.so).
func WithModelDir(dir string) Option {
	return func(o *options) {
		o.modelDir = dir
	}
}

// WithModelPath sets an explicit model file path.
func WithModelPath(path string) Option {
	return func(o *options) {
		o.modelPath = path
	}
}

// WithLibraryPath sets the ONNX Runtime shared library path.
func WithLibraryPath(path string) Option {
	return func(o *options) {
		o.libraryPath = path
	}
}

// WithCatalogFile replaces the built-in recipe catalog with a YAML file.
func WithCatalogFile(path string) Option {
	return func(o *options) {
		o.catalogPath = path
	}
}

// WithConfidenceThreshold sets the minimum confidence for a known label.
// Below it, predictions are "unknown". Default: 0.6.
func WithConfidenceThreshold(t float64) Option {
	return func(o *options) {
		o.confidenceThreshold = t
	}
}

// WithPreprocessing sets pixel normalization ("raw", "unit", "imagenet")
// and resize interpolation ("nearest", "bilinear", "catmullrom").
// Default: raw, nearest.
func WithPreprocessing(normalization, interpolation string) Option {
	return func(o *options) {
		o.normalization = normalization
		o.interpolation = interpolation
	}
}

// WithLogits applies softmax to the model output before thresholding.
func WithLogits() Option {
	return func(o *options) {
		o.logits = true
	}
}

// WithWorkers bounds how many images of a batch are processed at once.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func defaultOptions() options {
	return options{
		confidenceThreshold: 0.6,
		normalization:       "raw",
		interpolation:       "nearest",
		workers:             4,
	}
}

// resolveModelPath picks the model file. An explicit path wins over modelDir.
func resolveModelPath(o options) string {
	if o.modelPath != "" {
		return o.modelPath
	}
	dir := o.modelDir
	if dir == "" {
		dir = "models"
	}
	return filepath.Join(dir, defaultModelFile)
}

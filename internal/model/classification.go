package model

// ClassificationResult is the outcome of classifying one image: either a
// known ingredient with its confidence, or unknown with the top probability
// that failed the threshold. Construct with Known or Unknown.
type ClassificationResult struct {
	label      Ingredient
	confidence float64
}

// Known returns a result for a recognized ingredient. An invalid label
// yields an Unknown result so the sentinel can never leak into a set.
func Known(label Ingredient, confidence float64) ClassificationResult {
	if !label.Valid() {
		return Unknown(confidence)
	}
	return ClassificationResult{label: label, confidence: confidence}
}

// Unknown returns a result for an image whose top confidence was too low.
func Unknown(confidence float64) ClassificationResult {
	return ClassificationResult{confidence: confidence}
}

// Label returns the recognized ingredient and true, or false for Unknown.
func (r ClassificationResult) Label() (Ingredient, bool) {
	return r.label, r.label.Valid()
}

// IsKnown reports whether the result names an ingredient.
func (r ClassificationResult) IsKnown() bool { return r.label.Valid() }

// Confidence returns the top probability observed for the image.
func (r ClassificationResult) Confidence() float64 { return r.confidence }

// Resolved returns the ingredient name, or UnknownLabel.
func (r ClassificationResult) Resolved() string {
	if !r.IsKnown() {
		return UnknownLabel
	}
	return r.label.String()
}

// ImageInput is a single uploaded image.
type ImageInput struct {
	Name string
	Data []byte
}

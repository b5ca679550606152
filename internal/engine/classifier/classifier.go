package classifier

import (
	"fmt"
	"math"

	"github.com/crimson-sun/wastenot/internal/model"
)

// DefaultThreshold is the minimum confidence for a known classification.
const DefaultThreshold = 0.60

// Classifier turns a model's per-class scores into a ClassificationResult.
type Classifier struct {
	// Threshold is an inclusive lower bound: confidence == Threshold is known.
	Threshold float64
	// Logits applies a softmax before thresholding, for models whose final
	// layer has no activation.
	Logits bool
}

// New creates a Classifier with the given confidence threshold.
func New(threshold float64) *Classifier {
	return &Classifier{Threshold: threshold}
}

// Classify picks the highest-scoring vocabulary entry. If its confidence is
// below the threshold the result is Unknown. scores must have one entry per
// vocabulary ingredient, in vocabulary order. Without Logits every score
// must already be a probability in [0, 1].
func (c *Classifier) Classify(scores []float32) (model.ClassificationResult, error) {
	if len(scores) != len(model.Vocabulary) {
		return model.ClassificationResult{}, fmt.Errorf("classifier: got %d scores, want %d", len(scores), len(model.Vocabulary))
	}

	probs := make([]float64, len(scores))
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.ClassificationResult{}, fmt.Errorf("classifier: non-finite score %v at index %d", s, i)
		}
		if !c.Logits && (v < 0 || v > 1) {
			return model.ClassificationResult{}, fmt.Errorf("classifier: score %v at index %d outside [0, 1]", s, i)
		}
		probs[i] = v
	}
	if c.Logits {
		softmax(probs)
	}

	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	confidence := probs[best]
	if confidence < c.Threshold {
		return model.Unknown(confidence), nil
	}
	return model.Known(model.Vocabulary[best], confidence), nil
}

// softmax normalizes v in place.
func softmax(v []float64) {
	maxV := math.Inf(-1)
	for _, x := range v {
		maxV = math.Max(maxV, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxV)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

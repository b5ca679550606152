package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crimson-sun/wastenot/internal/engine"
	"github.com/crimson-sun/wastenot/internal/engine/classifier"
	"github.com/crimson-sun/wastenot/internal/engine/inference"
	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
	"github.com/crimson-sun/wastenot/internal/metrics"
	"github.com/crimson-sun/wastenot/internal/model"
)

// Model path relative to internal/pipeline/.
const integrationModelPath = "../../models/ingredient_classifier.onnx"

// skipWithoutModel skips the test when the ONNX model is not present.
func skipWithoutModel(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(integrationModelPath); os.IsNotExist(err) {
		t.Skip("ONNX model not available, skipping integration test")
	}
}

// newIntegrationEngine creates a real ONNX-backed engine for integration tests.
func newIntegrationEngine(t *testing.T, sink metrics.Sink) *engine.Engine {
	t.Helper()
	skipWithoutModel(t)

	m, err := inference.NewONNX(inference.ONNXConfig{
		ModelPath: integrationModelPath,
		Classes:   len(model.Vocabulary),
	})
	if err != nil {
		t.Fatalf("failed to load model: %v", err)
	}
	pre, err := preprocess.New(inference.InputConfig(m, preprocess.NormalizeRaw, preprocess.InterpolateNearest))
	if err != nil {
		t.Fatalf("failed to create preprocessor: %v", err)
	}
	eng := engine.New(pre, m, classifier.New(classifier.DefaultThreshold), sink)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func solidImage(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIntegrationRecommend(t *testing.T) {
	rec := metrics.NewRecorder()
	p := New(newIntegrationEngine(t, rec), defaultCatalog(t))

	imgs := []model.ImageInput{
		{Name: "red.png", Data: solidImage(t, color.RGBA{200, 30, 30, 255})},
		{Name: "broken.jpg", Data: []byte("not an image")},
		{Name: "yellow.png", Data: solidImage(t, color.RGBA{230, 200, 60, 255})},
	}
	got, err := p.Recommend(context.Background(), imgs)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}

	if got.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", got.Skipped)
	}
	for _, m := range got.Matches {
		if m.Score < 1 || m.Recipe.Tags.Intersect(got.Detected).Len() != m.Score {
			t.Errorf("inconsistent match %s score %d", m.Recipe.Name, m.Score)
		}
	}

	// Two images classified; the broken one records nothing.
	if n := testutil.CollectAndCount(rec.Registry(), "wastenot_prediction_request_seconds"); n != 1 {
		t.Errorf("latency series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(rec.Registry(), "wastenot_predictions_total"); n < 1 || n > 2 {
		t.Errorf("prediction label series = %d, want 1 or 2", n)
	}
	t.Logf("detected %s, %d matches", got.Detected, len(got.Matches))
}

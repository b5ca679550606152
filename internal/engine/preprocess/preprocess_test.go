package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []Config{
		{Size: 0},
		{Size: 224, Normalization: "zscore"},
		{Size: 224, Interpolation: "lanczos"},
	}
	for _, cfg := range tests {
		if _, err := New(cfg); err == nil {
			t.Errorf("New(%+v) expected error", cfg)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	p, err := New(Config{Size: 224})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	cfg := p.Config()
	if cfg.Normalization != NormalizeRaw || cfg.Interpolation != InterpolateNearest || cfg.Layout != NHWC {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if p.TensorLen() != 3*224*224 {
		t.Errorf("TensorLen() = %d", p.TensorLen())
	}
}

func TestTensorNHWCRaw(t *testing.T) {
	p, _ := New(Config{Size: 4})
	data := encodePNG(t, 10, 6, color.RGBA{R: 255, G: 128, B: 0, A: 255})

	out, err := p.Prepare("red.png", data)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if len(out) != 3*4*4 {
		t.Fatalf("len = %d, want 48", len(out))
	}
	for px := 0; px < 16; px++ {
		r, g, b := out[px*3], out[px*3+1], out[px*3+2]
		if r != 255 || g != 128 || b != 0 {
			t.Fatalf("pixel %d = (%v,%v,%v), want (255,128,0)", px, r, g, b)
		}
	}
}

func TestTensorNCHWUnit(t *testing.T) {
	p, _ := New(Config{Size: 2, Normalization: NormalizeUnit, Layout: NCHW})
	data := encodePNG(t, 2, 2, color.RGBA{R: 255, G: 0, B: 51, A: 255})

	out, err := p.Prepare("", data)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	// Planes: R R R R | G G G G | B B B B
	for i := 0; i < 4; i++ {
		if out[i] != 1 {
			t.Errorf("R[%d] = %v, want 1", i, out[i])
		}
		if out[4+i] != 0 {
			t.Errorf("G[%d] = %v, want 0", i, out[4+i])
		}
		if math.Abs(float64(out[8+i])-0.2) > 1e-6 {
			t.Errorf("B[%d] = %v, want 0.2", i, out[8+i])
		}
	}
}

func TestTensorImageNet(t *testing.T) {
	p, _ := New(Config{Size: 1, Normalization: NormalizeImageNet})
	data := encodePNG(t, 1, 1, color.RGBA{A: 255})

	out, err := p.Prepare("black.png", data)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	for c := 0; c < 3; c++ {
		want := -imagenetMean[c] / imagenetStd[c]
		if math.Abs(float64(out[c]-want)) > 1e-6 {
			t.Errorf("channel %d = %v, want %v", c, out[c], want)
		}
	}
}

func TestTensorDeterministic(t *testing.T) {
	data := encodePNG(t, 13, 7, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	for _, interp := range []Interpolation{InterpolateBilinear, InterpolateCatmullRom} {
		p, _ := New(Config{Size: 8, Interpolation: interp})
		a, err := p.Prepare("a", data)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := p.Prepare("a", data)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s: tensor differs at %d: %v vs %v", interp, i, a[i], b[i])
			}
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("empty.jpg", nil)
	var ie *InputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InputError, got %v", err)
	}
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
	if ie.Name != "empty.jpg" {
		t.Errorf("Name = %q", ie.Name)
	}

	_, err = Decode("junk.png", []byte("definitely not an image"))
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InputError, got %v", err)
	}
}

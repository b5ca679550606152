// Package preprocess turns encoded images into model input tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// InputError reports an image that could not be read or decoded.
type InputError struct {
	Name string
	Err  error
}

func (e *InputError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("preprocess: unreadable image: %v", e.Err)
	}
	return fmt.Sprintf("preprocess: unreadable image %q: %v", e.Name, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ErrEmptyImage is wrapped in an InputError when no bytes were supplied.
var ErrEmptyImage = errors.New("empty image data")

// Normalization selects how 0..255 channel values are scaled.
type Normalization string

const (
	// NormalizeRaw passes 0..255 through unchanged (EfficientNet models carry
	// their own rescaling layer).
	NormalizeRaw Normalization = "raw"
	// NormalizeUnit scales to 0..1.
	NormalizeUnit Normalization = "unit"
	// NormalizeImageNet scales to 0..1 then applies ImageNet mean/std.
	NormalizeImageNet Normalization = "imagenet"
)

// Interpolation selects the resampling kernel used for resizing.
type Interpolation string

const (
	InterpolateNearest    Interpolation = "nearest"
	InterpolateBilinear   Interpolation = "bilinear"
	InterpolateCatmullRom Interpolation = "catmullrom"
)

// Layout is the tensor memory layout expected by the model.
type Layout int

const (
	NHWC Layout = iota // channels last
	NCHW               // channels first
)

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Config controls tensor construction.
type Config struct {
	Size          int // square edge length in pixels
	Normalization Normalization
	Interpolation Interpolation
	Layout        Layout
}

// Preprocessor converts images into flat float32 tensors of shape
// [1, Size, Size, 3] (NHWC) or [1, 3, Size, Size] (NCHW). Safe for
// concurrent use.
type Preprocessor struct {
	cfg    Config
	scaler draw.Scaler
}

// New validates cfg and returns a Preprocessor.
func New(cfg Config) (*Preprocessor, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("preprocess: invalid size %d", cfg.Size)
	}
	switch cfg.Normalization {
	case "":
		cfg.Normalization = NormalizeRaw
	case NormalizeRaw, NormalizeUnit, NormalizeImageNet:
	default:
		return nil, fmt.Errorf("preprocess: unknown normalization %q", cfg.Normalization)
	}

	var scaler draw.Scaler
	switch cfg.Interpolation {
	case "", InterpolateNearest:
		cfg.Interpolation = InterpolateNearest
		scaler = draw.NearestNeighbor
	case InterpolateBilinear:
		scaler = draw.BiLinear
	case InterpolateCatmullRom:
		scaler = draw.CatmullRom
	default:
		return nil, fmt.Errorf("preprocess: unknown interpolation %q", cfg.Interpolation)
	}
	return &Preprocessor{cfg: cfg, scaler: scaler}, nil
}

// Config returns the effective configuration.
func (p *Preprocessor) Config() Config { return p.cfg }

// TensorLen is the number of float32 values in one image tensor.
func (p *Preprocessor) TensorLen() int { return 3 * p.cfg.Size * p.cfg.Size }

// Decode parses an encoded image. Any failure is an *InputError.
func Decode(name string, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &InputError{Name: name, Err: ErrEmptyImage}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &InputError{Name: name, Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &InputError{Name: name, Err: fmt.Errorf("degenerate bounds %v", b)}
	}
	return img, nil
}

// Prepare decodes data and builds its tensor.
func (p *Preprocessor) Prepare(name string, data []byte) ([]float32, error) {
	img, err := Decode(name, data)
	if err != nil {
		return nil, err
	}
	return p.Tensor(img), nil
}

// Tensor resizes img to the configured square size and returns the
// normalized pixel tensor. Alpha is discarded.
func (p *Preprocessor) Tensor(img image.Image) []float32 {
	n := p.cfg.Size
	dst := image.NewRGBA(image.Rect(0, 0, n, n))
	p.scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float32, 3*n*n)
	plane := n * n
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			off := dst.PixOffset(x, y)
			px := y*n + x
			for c := 0; c < 3; c++ {
				v := p.normalize(c, float32(dst.Pix[off+c]))
				if p.cfg.Layout == NCHW {
					out[c*plane+px] = v
				} else {
					out[px*3+c] = v
				}
			}
		}
	}
	return out
}

func (p *Preprocessor) normalize(channel int, v float32) float32 {
	switch p.cfg.Normalization {
	case NormalizeUnit:
		return v / 255
	case NormalizeImageNet:
		return (v/255 - imagenetMean[channel]) / imagenetStd[channel]
	default:
		return v
	}
}

package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXConfig locates the model and the runtime library.
type ONNXConfig struct {
	ModelPath string
	// LibraryPath is the ONNX Runtime shared library. When empty,
	// libonnxruntime.so next to the model file is used.
	LibraryPath string
	// Classes is the expected number of output scores.
	Classes int
	// IntraOpThreads bounds the per-inference thread pool. 0 keeps the
	// runtime default.
	IntraOpThreads int
}

// ONNXModel wraps a DynamicAdvancedSession for an image classifier with a
// 4-D float input ([batch, H, W, 3] or [batch, 3, H, W]) and a 2-D
// [batch, classes] output.
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputShape ort.Shape
	classes    int64
	size       int
	layout     preprocess.Layout
}

// NewONNX loads the model and creates an inference session. Every failure is
// wrapped in ErrModelUnavailable.
func NewONNX(cfg ONNXConfig) (*ONNXModel, error) {
	m, err := newONNX(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return m, nil
}

func newONNX(cfg ONNXConfig) (*ONNXModel, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(cfg.ModelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected 1 input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}

	size, layout, err := inspectInput(inputs[0])
	if err != nil {
		return nil, err
	}
	classes, err := inspectOutput(outputs[0], cfg.Classes)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.IntraOpThreads > 0 {
		opts.SetIntraOpNumThreads(cfg.IntraOpThreads)
	}
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	var shape ort.Shape
	if layout == preprocess.NCHW {
		shape = ort.NewShape(1, 3, int64(size), int64(size))
	} else {
		shape = ort.NewShape(1, int64(size), int64(size), 3)
	}

	return &ONNXModel{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputShape: shape,
		classes:    classes,
		size:       size,
		layout:     layout,
	}, nil
}

// inspectInput derives the square edge length and channel layout from the
// model's input tensor.
func inspectInput(info ort.InputOutputInfo) (int, preprocess.Layout, error) {
	if info.DataType != ort.TensorElementDataTypeFloat {
		return 0, 0, fmt.Errorf("onnx: input %q is %v, want float32", info.Name, info.DataType)
	}
	dims := info.Dimensions
	if len(dims) != 4 {
		return 0, 0, fmt.Errorf("onnx: expected 4D input tensor, got %v", dims)
	}
	switch {
	case dims[3] == 3 && dims[1] > 0 && dims[1] == dims[2]:
		return int(dims[1]), preprocess.NHWC, nil
	case dims[1] == 3 && dims[2] > 0 && dims[2] == dims[3]:
		return int(dims[2]), preprocess.NCHW, nil
	default:
		return 0, 0, fmt.Errorf("onnx: input %q has unsupported shape %v", info.Name, dims)
	}
}

func inspectOutput(info ort.InputOutputInfo, want int) (int64, error) {
	dims := info.Dimensions
	if len(dims) != 2 {
		return 0, fmt.Errorf("onnx: expected 2D output tensor, got %v", dims)
	}
	classes := dims[1]
	if classes < 0 {
		classes = int64(want)
	}
	if want > 0 && classes != int64(want) {
		return 0, fmt.Errorf("onnx: model emits %d classes, vocabulary has %d", classes, want)
	}
	if classes <= 0 {
		return 0, fmt.Errorf("onnx: cannot determine class count from %v", dims)
	}
	return classes, nil
}

// InputSize returns the square edge length the model expects.
func (m *ONNXModel) InputSize() int { return m.size }

// Layout returns the channel layout the model expects.
func (m *ONNXModel) Layout() preprocess.Layout { return m.layout }

// Predict runs a single forward pass. input must hold exactly one image
// tensor in the model's layout.
func (m *ONNXModel) Predict(input []float32) ([]float32, error) {
	if int64(len(input)) != m.inputShape.FlattenedSize() {
		return nil, fmt.Errorf("onnx: input has %d values, want %d", len(input), m.inputShape.FlattenedSize())
	}

	tIn, err := ort.NewTensor(m.inputShape, input)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, m.classes))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := m.session.Run([]ort.Value{tIn}, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before tensor is destroyed.
	src := tOut.GetData()
	scores := make([]float32, len(src))
	copy(scores, src)
	return scores, nil
}

// Close releases the ONNX session resources.
func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}

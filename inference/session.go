package inference

import (
	"os"
	"sync"

	"github.com/nvr-ai/go-targeting/inference/providers"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// environment guards the process-wide ONNX Runtime environment.
var environment sync.Mutex

// Session represents a model session from the onnxruntime.
//
// The session owns a single input and output tensor pair, so Run must not be
// called concurrently. Callers serialize access with their own lock.
type Session struct {
	Session     *ort.AdvancedSession
	Input       *ort.Tensor[float32]
	Output      *ort.Tensor[float32]
	InputShape  ort.Shape
	OutputShape ort.Shape
}

// SessionArgs represents the arguments for creating a new ONNX Runtime session.
type SessionArgs struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string
	// LibraryPath is the onnxruntime shared library. Empty selects the platform default.
	LibraryPath string
	// InputWidth and InputHeight replace dynamic spatial input dimensions.
	InputWidth, InputHeight int64
	// Optimization holds the session options and execution providers.
	Optimization providers.OptimizationConfig
}

// InitializeEnvironment loads the onnxruntime shared library once per process.
//
// Arguments:
//   - libraryPath: The shared library path. Empty selects the platform default.
//
// Returns:
//   - error: An error wrapping ErrModelUnavailable when the runtime cannot be loaded.
func InitializeEnvironment(libraryPath string) error {
	environment.Lock()
	defer environment.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	libPath := providers.GetSharedLibPath(libraryPath)
	if libPath == "" {
		return errors.Wrap(ErrModelUnavailable, "no onnxruntime library for this platform")
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(ErrModelUnavailable, "onnxruntime library not found at %s: %v", libPath, err)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(ErrModelUnavailable, "error initializing ORT environment: %v", err)
	}
	return nil
}

// NewSession creates a new ONNX Runtime session with preallocated input and output tensors.
//
// Tensor shapes are read from the model. A dynamic batch dimension becomes 1 and
// dynamic spatial input dimensions take InputHeight and InputWidth.
//
// Arguments:
//   - args: The arguments for the session.
//   - log: The logger for execution provider warnings.
//
// Returns:
//   - *Session: The session. The caller must Close it.
//   - error: An error wrapping ErrModelUnavailable if the model cannot be loaded.
func NewSession(args SessionArgs, log logrus.FieldLogger) (*Session, error) {
	if _, err := os.Stat(args.ModelPath); err != nil {
		return nil, errors.Wrapf(ErrModelUnavailable, "model file %s: %v", args.ModelPath, err)
	}
	if err := InitializeEnvironment(args.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(ErrModelUnavailable, "read model info: %v", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Wrapf(ErrModelUnavailable,
			"expected a single input and at least one output, got %d and %d", len(inputs), len(outputs))
	}

	inputShape := resolveShape(inputs[0].Dimensions, args.InputHeight, args.InputWidth)
	outputShape := resolveShape(outputs[0].Dimensions, 0, 0)
	if err := validateShape(inputShape); err != nil {
		return nil, errors.Wrapf(ErrModelUnavailable, "input %s: %v", inputs[0].Name, err)
	}
	if err := validateShape(outputShape); err != nil {
		return nil, errors.Wrapf(ErrModelUnavailable, "output %s: %v", outputs[0].Name, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := providers.OptimizedSessionOptions(args.Optimization, log)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrapf(ErrModelUnavailable, "error creating ORT session: %v", err)
	}

	return &Session{
		Session:     session,
		Input:       inputTensor,
		Output:      outputTensor,
		InputShape:  inputShape,
		OutputShape: outputShape,
	}, nil
}

// resolveShape fills dynamic dimensions. For a 4-D NCHW input, height and width
// replace dynamic spatial dims; everything else dynamic becomes 1.
func resolveShape(dims ort.Shape, height, width int64) ort.Shape {
	shape := dims.Clone()
	for i, d := range shape {
		if d > 0 {
			continue
		}
		switch {
		case len(shape) == 4 && i == 2 && height > 0:
			shape[i] = height
		case len(shape) == 4 && i == 3 && width > 0:
			shape[i] = width
		case i == 0:
			shape[i] = 1
		default:
			shape[i] = -1
		}
	}
	return shape
}

func validateShape(shape ort.Shape) error {
	for _, d := range shape {
		if d <= 0 {
			return errors.Errorf("dynamic shape %v is not supported, export the model with static shapes", shape)
		}
	}
	return nil
}

// Run executes the model on the current contents of Input.
func (s *Session) Run() error {
	if s.Session == nil {
		return errors.New("session is closed")
	}
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}

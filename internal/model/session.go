package model

import (
	"errors"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrIncompatible is returned for artifacts whose inputs or outputs do not
// match what the classifier expects.
var ErrIncompatible = errors.New("incompatible model artifact")

// Options control how the artifact is loaded.
type Options struct {
	// Path to the .onnx artifact.
	Path string
	// SharedLibraryPath overrides the onnxruntime shared library location.
	SharedLibraryPath string
	// InputName and OutputName select graph endpoints. When empty the
	// artifact's first input and first output are used.
	InputName  string
	OutputName string
}

// Session is a loaded ONNX classifier. Tensors are allocated per call, so
// Infer is safe for concurrent use.
type Session struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
}

var _ Inferencer = (*Session)(nil)

// Load initializes the runtime and opens the artifact.
func Load(opts Options) (*Session, error) {
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("model artifact not found at %s: %w", opts.Path, err)
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	return loadWith(opts, ort.IsInitialized, ort.InitializeEnvironment, ort.DestroyEnvironment, openSession)
}

// loadWith owns the environment only if it initialized it: a failed open
// tears down an environment this call created and leaves a pre-existing one alone.
func loadWith(opts Options,
	isInitialized func() bool,
	initialize func() error,
	destroy func() error,
	open func(Options) (*Session, error),
) (*Session, error) {
	initializedHere := false
	if !isInitialized() {
		if err := initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		initializedHere = true
	}

	s, err := open(opts)
	if err != nil {
		if initializedHere {
			destroy()
		}
		return nil, err
	}
	return s, nil
}

func openSession(opts Options) (*Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	input, err := pickEndpoint(inputs, opts.InputName)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	output, err := pickEndpoint(outputs, opts.OutputName)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	if err := checkOutputDims(output.Dimensions); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(opts.Path,
		[]string{input.Name}, []string{output.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:    session,
		inputName:  input.Name,
		outputName: output.Name,
	}, nil
}

func pickEndpoint(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("%w: graph declares none", ErrIncompatible)
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("%w: no endpoint named %q", ErrIncompatible, name)
}

// checkOutputDims accepts a dynamic last dimension; a fixed one must be NumClasses.
func checkOutputDims(dims ort.Shape) error {
	if len(dims) == 0 {
		return fmt.Errorf("%w: scalar output", ErrIncompatible)
	}
	last := dims[len(dims)-1]
	if last > 0 && last != int64(NumClasses) {
		return fmt.Errorf("%w: output has %d classes, want %d", ErrIncompatible, last, NumClasses)
	}
	return nil
}

// Infer runs a single-image forward pass.
func (s *Session) Infer(input []float32) ([]float32, error) {
	inputShape := ort.NewShape(InputShape...)
	if int64(len(input)) != inputShape.FlattenedSize() {
		return nil, fmt.Errorf("input has %d values, want %d", len(input), inputShape.FlattenedSize())
	}

	inputTensor, err := ort.NewTensor(inputShape, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(NumClasses)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, NumClasses)
	copy(scores, outputTensor.GetData())
	return scores, nil
}

// Endpoints reports the graph input and output the session is bound to.
func (s *Session) Endpoints() (input, output string) {
	return s.inputName, s.outputName
}

// Close releases the session and the runtime environment.
func (s *Session) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

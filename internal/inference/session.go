package inference

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facecascade/internal/detector"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize sets up the ONNX Runtime environment (call once at startup).
// An empty libPath leaves the library lookup to onnxruntime_go.
func Initialize(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Layout names the input and output tensors of one stage model.
type Layout struct {
	Input       string
	Scores      string
	Regressions string
	Landmarks   string // output stage only
}

// Tensor names of the published MTCNN models, kept by most ONNX conversions.
var (
	ProposalLayout = Layout{Input: "data", Scores: "prob1", Regressions: "conv4-2"}
	RefineLayout   = Layout{Input: "data", Scores: "prob1", Regressions: "conv5-2"}
	OutputLayout   = Layout{Input: "data", Scores: "prob1", Regressions: "conv6-2", Landmarks: "conv6-3"}
)

func (l Layout) outputs() []string {
	names := []string{l.Scores, l.Regressions}
	if l.Landmarks != "" {
		names = append(names, l.Landmarks)
	}
	return names
}

// Session wraps an ONNX Runtime session for one cascade stage.
// Forward is safe for concurrent use, so a Session can back a detector.Network directly.
type Session struct {
	session   *ort.DynamicAdvancedSession
	modelPath string
	layout    Layout
}

// NewSession loads an ONNX stage model. threads limits intra-op parallelism, 0 keeps the default.
func NewSession(modelPath string, layout Layout, threads int, log logrus.FieldLogger) (*Session, error) {
	if !initialized {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{layout.Input},
		layout.outputs(),
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	log.WithFields(logrus.Fields{
		"model":   modelPath,
		"outputs": layout.outputs(),
	}).Debug("onnx session ready")

	return &Session{
		session:   session,
		modelPath: modelPath,
		layout:    layout,
	}, nil
}

// Forward runs the model on one input batch. Output tensors are allocated by
// ONNX Runtime, copied out and released before returning.
func (s *Session) Forward(in detector.Tensor) (detector.Output, error) {
	input, err := CreateTensor(int64Shape(in.Shape), in.Data)
	if err != nil {
		return detector.Output{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, len(s.layout.outputs()))
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return detector.Output{}, fmt.Errorf("inference failed for %s: %w", s.modelPath, err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	tensors := make([]detector.Tensor, len(outputs))
	for i, v := range outputs {
		if tensors[i], err = copyTensor(v); err != nil {
			return detector.Output{}, fmt.Errorf("%s output %d: %w", s.modelPath, i, err)
		}
	}

	out := detector.Output{Scores: tensors[0], Regressions: tensors[1]}
	if len(tensors) > 2 {
		out.Landmarks = tensors[2]
	}
	return out, nil
}

// Close releases session resources
func (s *Session) Close() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

func copyTensor(v ort.Value) (detector.Tensor, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return detector.Tensor{}, fmt.Errorf("%w: expected a float32 tensor", detector.ErrBadOutput)
	}
	shape := t.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	return detector.Tensor{
		Shape: dims,
		Data:  append([]float32(nil), t.GetData()...),
	}, nil
}

func int64Shape(shape []int) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		out[i] = int64(d)
	}
	return out
}

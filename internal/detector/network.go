package detector

import (
	"fmt"
	"runtime"
)

// Tensor is a dense float32 array in NCHW order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, size)}
}

// Size returns the number of elements implied by the shape.
func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// Dim returns dimension i, or 0 if the tensor has fewer dimensions.
func (t Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

// Output holds what a stage network predicts for a batch.
//
// Proposal networks return Scores as [N,2,H,W] and Regressions as [N,4,H,W].
// Refine and output networks return Scores as [N,2] and Regressions as [N,4];
// the output network also returns Landmarks as [N,10] laid out as x0..x4 then y0..y4,
// each relative to the input box. Channel 1 of Scores is the face probability.
type Output struct {
	Scores      Tensor
	Regressions Tensor
	Landmarks   Tensor
}

// Network is an opaque scoring function for one cascade stage.
// Implementations must allow concurrent Forward calls.
type Network interface {
	Forward(input Tensor) (Output, error)
}

// NetworkFunc adapts a function to the Network interface.
type NetworkFunc func(input Tensor) (Output, error)

// Forward calls f(input).
func (f NetworkFunc) Forward(input Tensor) (Output, error) {
	return f(input)
}

// StageConfig describes one cascade stage. It is read-only once the cascade is built.
type StageConfig struct {
	Network   Network
	Threshold float32
	InputSize int

	// Proposal stage only.
	Stride   int
	CellSize int
	Workers  int

	// Refine and output stages: candidates per forward pass, 0 for all at once.
	BatchSize int
}

// Default stage geometry of the MTCNN networks.
var (
	DefaultProposalConfig = StageConfig{Threshold: 0.6, InputSize: 12, Stride: 2, CellSize: 12}
	DefaultRefineConfig   = StageConfig{Threshold: 0.7, InputSize: 24}
	DefaultOutputConfig   = StageConfig{Threshold: 0.7, InputSize: 48}
)

func (c StageConfig) validate(name string, proposal bool) error {
	if c.Network == nil {
		return wrapf(ErrModel, "%s stage has no network", name)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%s stage threshold %v outside [0,1]", name, c.Threshold)
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("%s stage input size must be positive", name)
	}
	if proposal && (c.Stride <= 0 || c.CellSize <= 0) {
		return fmt.Errorf("%s stage stride and cell size must be positive", name)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%s stage batch size must not be negative", name)
	}
	return nil
}

func (c StageConfig) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

package inference

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name       string
	Dimensions []int64 // -1 marks a dynamic axis
	DataType   string
}

// ModelInfo is what the inspect command prints about an ONNX model.
type ModelInfo struct {
	Inputs      []TensorInfo
	Outputs     []TensorInfo
	Producer    string
	Version     int64
	Domain      string
	Description string
}

// Describe reads the inputs, outputs and metadata of an ONNX model.
// Initialize must have been called.
func Describe(modelPath string) (ModelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to get model info: %w", err)
	}

	info := ModelInfo{
		Inputs:  convertInfo(inputs),
		Outputs: convertInfo(outputs),
	}

	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		// metadata is optional, the tensor layout is what matters
		return info, nil
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		info.Producer = producer
	}
	if version, err := metadata.GetVersion(); err == nil {
		info.Version = version
	}
	if domain, err := metadata.GetDomain(); err == nil {
		info.Domain = domain
	}
	if desc, err := metadata.GetDescription(); err == nil {
		info.Description = desc
	}

	return info, nil
}

// Check reports whether the model exposes the tensors named by layout.
func (m ModelInfo) Check(layout Layout) error {
	has := func(list []TensorInfo, name string) bool {
		for _, t := range list {
			if t.Name == name {
				return true
			}
		}
		return false
	}

	if !has(m.Inputs, layout.Input) {
		return fmt.Errorf("model has no input %q", layout.Input)
	}
	for _, name := range layout.outputs() {
		if !has(m.Outputs, name) {
			return fmt.Errorf("model has no output %q", name)
		}
	}
	return nil
}

func convertInfo(list []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, len(list))
	for i, info := range list {
		out[i] = TensorInfo{
			Name:       info.Name,
			Dimensions: append([]int64(nil), info.Dimensions...),
			DataType:   info.DataType.String(),
		}
	}
	return out
}

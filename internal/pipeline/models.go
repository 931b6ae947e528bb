package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dudu/facecascade/internal/detector"
)

// StageFiles locates one stage model. Weights is only used by the Caffe backend.
type StageFiles struct {
	Model   string
	Weights string
}

// ModelFiles locates the three stage models, named det1..det3 as in the MTCNN release.
type ModelFiles struct {
	Proposal StageFiles
	Refine   StageFiles
	Output   StageFiles
}

func (m ModelFiles) stages() []StageFiles {
	return []StageFiles{m.Proposal, m.Refine, m.Output}
}

// ResolveModels returns the model paths under dir for the backend and checks that they exist.
func ResolveModels(dir string, backend Backend) (ModelFiles, error) {
	stage := func(name string) StageFiles {
		base := filepath.Join(dir, name)
		if backend == BackendCaffe {
			return StageFiles{Model: base + ".prototxt", Weights: base + ".caffemodel"}
		}
		return StageFiles{Model: base + ".onnx"}
	}

	switch backend {
	case BackendONNX, BackendCaffe:
	default:
		return ModelFiles{}, fmt.Errorf("invalid backend: %s (use 'onnx' or 'caffe')", backend)
	}

	files := ModelFiles{
		Proposal: stage("det1"),
		Refine:   stage("det2"),
		Output:   stage("det3"),
	}

	for _, s := range files.stages() {
		for _, path := range []string{s.Model, s.Weights} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				return ModelFiles{}, fmt.Errorf("%w: %v", detector.ErrModel, err)
			}
		}
	}

	return files, nil
}

package pipeline

import (
	"image"

	"github.com/dudu/facecascade/internal/detector"
)

// Backend represents the inference backend to use
type Backend string

const (
	BackendONNX  Backend = "onnx"
	BackendCaffe Backend = "caffe"
)

// FaceDetector is what the command line and the HTTP service need from a pipeline.
type FaceDetector interface {
	DetectTimed(img image.Image, params detector.ScanParams) ([]detector.Face, detector.Timing, error)
	Close() error
}

// stageNetwork is a loaded model backing one cascade stage.
type stageNetwork interface {
	detector.Network
	Close() error
}

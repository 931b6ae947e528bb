package inference

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facecascade/internal/detector"
)

// CaffeNet runs a Caffe stage model through the OpenCV dnn module.
// cv::dnn::Net keeps its input blob between calls, so Forward is serialised.
type CaffeNet struct {
	mu     sync.Mutex
	net    gocv.Net
	proto  string
	layout Layout
}

// NewCaffeNet loads a prototxt/caffemodel pair.
func NewCaffeNet(prototxt, weights string, layout Layout, log logrus.FieldLogger) (*CaffeNet, error) {
	net := gocv.ReadNetFromCaffe(prototxt, weights)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load caffe model %s", weights)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to select dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to select dnn target: %w", err)
	}

	log.WithFields(logrus.Fields{
		"prototxt": prototxt,
		"weights":  weights,
	}).Debug("caffe net ready")

	return &CaffeNet{net: net, proto: prototxt, layout: layout}, nil
}

// Forward runs the network on one NCHW batch.
func (c *CaffeNet) Forward(in detector.Tensor) (detector.Output, error) {
	blob, err := gocv.NewMatWithSizesFromBytes(in.Shape, gocv.MatTypeCV32F, float32ToBytes(in.Data))
	if err != nil {
		return detector.Output{}, fmt.Errorf("failed to create input blob: %w", err)
	}
	defer blob.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.net.SetInput(blob, c.layout.Input)
	mats := c.net.ForwardLayers(c.layout.outputs())
	defer func() {
		for i := range mats {
			mats[i].Close()
		}
	}()

	if len(mats) != len(c.layout.outputs()) {
		return detector.Output{}, fmt.Errorf("%w: %s returned %d outputs", detector.ErrBadOutput, c.proto, len(mats))
	}

	tensors := make([]detector.Tensor, len(mats))
	for i := range mats {
		data, err := mats[i].DataPtrFloat32()
		if err != nil {
			return detector.Output{}, fmt.Errorf("%s output %d: %w", c.proto, i, err)
		}
		tensors[i] = detector.Tensor{
			Shape: mats[i].Size(),
			Data:  append([]float32(nil), data...),
		}
	}

	out := detector.Output{Scores: tensors[0], Regressions: tensors[1]}
	if len(tensors) > 2 {
		out.Landmarks = tensors[2]
	}
	return out, nil
}

// Close releases the network
func (c *CaffeNet) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}

func float32ToBytes(data []float32) []byte {
	result := make([]byte, len(data)*4)
	for i, v := range data {
		bits := math.Float32bits(v)
		result[i*4] = byte(bits)
		result[i*4+1] = byte(bits >> 8)
		result[i*4+2] = byte(bits >> 16)
		result[i*4+3] = byte(bits >> 24)
	}
	return result
}

package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// ErrStopped is returned by a frame callback to end Stream without an error.
var ErrStopped = errors.New("capture stopped")

// Capture reads frames from a local camera device.
type Capture struct {
	mu      sync.Mutex
	dev     *gocv.VideoCapture
	id      int
	width   int
	height  int
	dropped int
}

// NewCapture opens a camera, asking for the given resolution and frame rate.
// The device may settle on another resolution; Size reports the actual one.
func NewCapture(deviceID, width, height, fps int) (*Capture, error) {
	dev, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}
	if !dev.IsOpened() {
		dev.Close()
		return nil, fmt.Errorf("camera %d is not available", deviceID)
	}

	props := []struct {
		prop  gocv.VideoCaptureProperties
		value int
	}{
		{gocv.VideoCaptureFrameWidth, width},
		{gocv.VideoCaptureFrameHeight, height},
		{gocv.VideoCaptureFPS, fps},
	}
	for _, p := range props {
		if p.value > 0 {
			dev.Set(p.prop, float64(p.value))
		}
	}

	return &Capture{
		dev:    dev,
		id:     deviceID,
		width:  int(dev.Get(gocv.VideoCaptureFrameWidth)),
		height: int(dev.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

func (c *Capture) read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev != nil && c.dev.Read(frame)
}

// Stream hands every non-empty frame to fn until ctx is cancelled or fn fails.
// The Mat is reused between calls. Returning ErrStopped ends the stream cleanly.
func (c *Capture) Stream(ctx context.Context, fn func(frame *gocv.Mat) error) error {
	frame := gocv.NewMat()
	defer frame.Close()

	for ctx.Err() == nil {
		if !c.read(&frame) {
			return fmt.Errorf("camera %d stopped delivering frames", c.id)
		}
		if frame.Empty() {
			c.dropped++
			continue
		}

		if err := fn(&frame); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Size is the resolution the device actually delivers.
func (c *Capture) Size() (width, height int) {
	return c.width, c.height
}

// Dropped counts the empty frames Stream skipped.
func (c *Capture) Dropped() int {
	return c.dropped
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}

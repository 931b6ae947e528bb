package detector

import (
	"image"
	"math"
)

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box. The right and bottom edges are exclusive.
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area, zero for empty boxes
func (b BoundingBox) Area() float32 {
	if b.Empty() {
		return 0
	}
	return b.Width() * b.Height()
}

// Empty reports whether the box has no positive extent.
func (b BoundingBox) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// Scale multiplies every coordinate by s.
func (b BoundingBox) Scale(s float32) BoundingBox {
	return BoundingBox{X1: b.X1 * s, Y1: b.Y1 * s, X2: b.X2 * s, Y2: b.Y2 * s}
}

// Regress moves each edge by its delta scaled by the box size.
func (b BoundingBox) Regress(r Regression) BoundingBox {
	w, h := b.Width(), b.Height()
	return BoundingBox{
		X1: b.X1 + r.DX1*w,
		Y1: b.Y1 + r.DY1*h,
		X2: b.X2 + r.DX2*w,
		Y2: b.Y2 + r.DY2*h,
	}
}

// Square extends the shorter side to match the longer one, keeping the center.
func (b BoundingBox) Square() BoundingBox {
	w, h := b.Width(), b.Height()
	side := max32(w, h)
	x1 := b.X1 + (w-side)/2
	y1 := b.Y1 + (h-side)/2
	return BoundingBox{X1: x1, Y1: y1, X2: x1 + side, Y2: y1 + side}
}

// Clamp cuts the box to [0,width) x [0,height). The result may be empty.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	return BoundingBox{
		X1: clamp(b.X1, 0, float32(width)),
		Y1: clamp(b.Y1, 0, float32(height)),
		X2: clamp(b.X2, 0, float32(width)),
		Y2: clamp(b.Y2, 0, float32(height)),
	}
}

// Fit moves a square box inside [0,width) x [0,height) without changing its shape.
// A box larger than the shorter image side is shrunk to it around its center first.
func (b BoundingBox) Fit(width, height int) BoundingBox {
	side := b.Width()
	if limit := float32(min(width, height)); side > limit {
		c := b.Center()
		side = limit
		b = BoundingBox{X1: c.X - side/2, Y1: c.Y - side/2, X2: c.X + side/2, Y2: c.Y + side/2}
	}
	shift := func(lo, hi, limit float32) (float32, float32) {
		if lo < 0 {
			hi -= lo
			lo = 0
		}
		if hi > limit {
			lo -= hi - limit
			hi = limit
		}
		return lo, hi
	}
	b.X1, b.X2 = shift(b.X1, b.X2, float32(width))
	b.Y1, b.Y2 = shift(b.Y1, b.Y2, float32(height))
	return b
}

// Rect rounds the box to integer pixel coordinates.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(float64(b.X1))),
		int(math.Round(float64(b.Y1))),
		int(math.Round(float64(b.X2))),
		int(math.Round(float64(b.Y2))),
	)
}

// Regression holds the calibration deltas predicted for a box, relative to its size.
type Regression struct {
	DX1, DY1, DX2, DY2 float32
}

// NumLandmarks is the number of landmark points predicted per face.
const NumLandmarks = 5

// Landmarks represents 5 facial landmark points
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// AsSlice returns landmarks as a flat slice [x0,y0,x1,y1,...]
func (l Landmarks) AsSlice() []float32 {
	return []float32{
		l.LeftEye.X, l.LeftEye.Y,
		l.RightEye.X, l.RightEye.Y,
		l.Nose.X, l.Nose.Y,
		l.LeftMouth.X, l.LeftMouth.Y,
		l.RightMouth.X, l.RightMouth.Y,
	}
}

// Points returns the landmarks in index order.
func (l Landmarks) Points() [NumLandmarks]Point {
	return [NumLandmarks]Point{l.LeftEye, l.RightEye, l.Nose, l.LeftMouth, l.RightMouth}
}

// landmarksFromPoints is the inverse of Points.
func landmarksFromPoints(p [NumLandmarks]Point) Landmarks {
	return Landmarks{
		LeftEye:    p[0],
		RightEye:   p[1],
		Nose:       p[2],
		LeftMouth:  p[3],
		RightMouth: p[4],
	}
}

// Face represents a detected face
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks
	Score       float32
}

// Candidate is a scored box moving through the cascade. Landmarks is only set by the output stage.
type Candidate struct {
	Box        BoundingBox
	Score      float32
	Regression Regression
	Landmarks  *Landmarks
}

// ScanParams controls a single detection call.
type ScanParams struct {
	MinFaceSize float64
	ScaleFactor float64
}

// DefaultScanParams mirrors the values used by the reference driver.
var DefaultScanParams = ScanParams{
	MinFaceSize: 10,
	ScaleFactor: 0.709,
}

// Validate checks the scan preconditions.
func (p ScanParams) Validate() error {
	if !(p.MinFaceSize > 0) || math.IsInf(p.MinFaceSize, 1) {
		return wrapf(ErrInvalidParams, "min face size must be positive and finite, got %v", p.MinFaceSize)
	}
	if !(p.ScaleFactor > 0 && p.ScaleFactor < 1) {
		return wrapf(ErrInvalidParams, "scale factor must be in (0,1), got %v", p.ScaleFactor)
	}
	return nil
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

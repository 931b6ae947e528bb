package inference

import (
	"fmt"

	"github.com/dudu/facecascade/internal/detector"
)

// Transposed adapts a model trained on column-major images, such as the MATLAB
// release of MTCNN, to the row-major tensors the cascade produces. The input is
// transposed before the forward pass and every spatial output is mapped back:
// score and regression maps are transposed, regression x/y channels swapped and
// the landmark x and y halves exchanged.
type Transposed struct {
	Network detector.Network
}

// Forward implements detector.Network.
func (t Transposed) Forward(in detector.Tensor) (detector.Output, error) {
	tin, err := transposeHW(in)
	if err != nil {
		return detector.Output{}, err
	}

	out, err := t.Network.Forward(tin)
	if err != nil {
		return detector.Output{}, err
	}

	if len(out.Scores.Shape) == 4 {
		if out.Scores, err = transposeHW(out.Scores); err != nil {
			return detector.Output{}, err
		}
		if out.Regressions, err = transposeHW(out.Regressions); err != nil {
			return detector.Output{}, err
		}
	}
	if err := swapRegressionAxes(out.Regressions); err != nil {
		return detector.Output{}, err
	}
	if len(out.Landmarks.Data) > 0 {
		if err := swapLandmarkHalves(out.Landmarks); err != nil {
			return detector.Output{}, err
		}
	}

	return out, nil
}

// transposeHW swaps the last two axes of an NCHW tensor.
func transposeHW(t detector.Tensor) (detector.Tensor, error) {
	if len(t.Shape) != 4 || len(t.Data) != t.Size() {
		return detector.Tensor{}, fmt.Errorf("%w: cannot transpose shape %v", detector.ErrBadOutput, t.Shape)
	}
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := detector.NewTensor(n, c, w, h)
	for p := 0; p < n*c; p++ {
		src := t.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*h*w : (p+1)*h*w]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst[x*h+y] = src[y*w+x]
			}
		}
	}
	return out, nil
}

// swapRegressionAxes turns (dy1, dx1, dy2, dx2) into (dx1, dy1, dx2, dy2), in place.
// It accepts both [N,4] rows and [N,4,H,W] maps.
func swapRegressionAxes(t detector.Tensor) error {
	if t.Dim(1) != 4 || len(t.Data) != t.Size() {
		return fmt.Errorf("%w: regressions shape %v", detector.ErrBadOutput, t.Shape)
	}
	plane := 1
	for _, d := range t.Shape[2:] {
		plane *= d
	}
	for n := 0; n < t.Dim(0); n++ {
		base := n * 4 * plane
		for i := 0; i < plane; i++ {
			a, b, c, d := base+i, base+plane+i, base+2*plane+i, base+3*plane+i
			t.Data[a], t.Data[b] = t.Data[b], t.Data[a]
			t.Data[c], t.Data[d] = t.Data[d], t.Data[c]
		}
	}
	return nil
}

// swapLandmarkHalves exchanges the x and y blocks of each [N,10] row, in place.
func swapLandmarkHalves(t detector.Tensor) error {
	const k = detector.NumLandmarks
	if len(t.Data) != t.Dim(0)*2*k {
		return fmt.Errorf("%w: landmarks shape %v", detector.ErrBadOutput, t.Shape)
	}
	for n := 0; n < t.Dim(0); n++ {
		row := t.Data[n*2*k : (n+1)*2*k]
		for i := 0; i < k; i++ {
			row[i], row[i+k] = row[i+k], row[i]
		}
	}
	return nil
}

package inference

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facecascade/internal/detector"
)

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestTransposeHW(t *testing.T) {
	in := detector.Tensor{Shape: []int{1, 1, 2, 3}, Data: seq(6)}

	out, err := transposeHW(in)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3, 2}, out.Shape)
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, out.Data)

	back, err := transposeHW(out)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}

func TestTransposeHW_BadShape(t *testing.T) {
	_, err := transposeHW(detector.Tensor{Shape: []int{2, 3}, Data: seq(6)})
	assert.ErrorIs(t, err, detector.ErrBadOutput)
}

func TestTransposed_PatchOutputs(t *testing.T) {
	assert := assert.New(t)

	var seen detector.Tensor
	net := Transposed{Network: detector.NetworkFunc(func(in detector.Tensor) (detector.Output, error) {
		seen = in
		return detector.Output{
			Scores:      detector.Tensor{Shape: []int{1, 2}, Data: []float32{0.1, 0.9}},
			Regressions: detector.Tensor{Shape: []int{1, 4}, Data: []float32{1, 2, 3, 4}},
			Landmarks:   detector.Tensor{Shape: []int{1, 10}, Data: seq(10)},
		}, nil
	})}

	out, err := net.Forward(detector.Tensor{Shape: []int{1, 3, 2, 4}, Data: seq(24)})
	require.NoError(t, err)

	assert.Equal([]int{1, 3, 4, 2}, seen.Shape)
	assert.Equal([]float32{0.1, 0.9}, out.Scores.Data)
	assert.Equal([]float32{2, 1, 4, 3}, out.Regressions.Data)
	assert.Equal([]float32{5, 6, 7, 8, 9, 0, 1, 2, 3, 4}, out.Landmarks.Data)
}

func TestTransposed_Maps(t *testing.T) {
	assert := assert.New(t)

	// a map network whose output cell (row r, col c) reports r in channel 0 and c in channel 1
	net := Transposed{Network: detector.NetworkFunc(func(in detector.Tensor) (detector.Output, error) {
		h, w := in.Dim(2), in.Dim(3)
		scores := detector.NewTensor(1, 2, h, w)
		regs := detector.NewTensor(1, 4, h, w)
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				regs.Data[r*w+c] = float32(r)
				regs.Data[h*w+r*w+c] = float32(c)
				scores.Data[h*w+r*w+c] = float32(r*10 + c)
			}
		}
		return detector.Output{Scores: scores, Regressions: regs}, nil
	})}

	out, err := net.Forward(detector.NewTensor(1, 3, 2, 3))
	require.NoError(t, err)

	assert.Equal([]int{1, 2, 2, 3}, out.Scores.Shape)
	assert.Equal([]int{1, 4, 2, 3}, out.Regressions.Shape)

	// in the caller's frame, cell (y, x) was the network's (row x, col y)
	plane := 6
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			i := y*3 + x
			assert.Equal(float32(x*10+y), out.Scores.Data[plane+i])
			assert.Equal(float32(y), out.Regressions.Data[i], "dx1 holds the network's column")
			assert.Equal(float32(x), out.Regressions.Data[plane+i], "dy1 holds the network's row")
		}
	}
}

func TestTransposed_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	net := Transposed{Network: detector.NetworkFunc(func(detector.Tensor) (detector.Output, error) {
		return detector.Output{}, boom
	})}

	_, err := net.Forward(detector.NewTensor(1, 3, 12, 12))
	assert.ErrorIs(t, err, boom)

	_, err = net.Forward(detector.NewTensor(3, 12))
	assert.ErrorIs(t, err, detector.ErrBadOutput)
}

func TestFloat32ToBytes(t *testing.T) {
	b := float32ToBytes([]float32{1, -2})
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0xc0}, b)
}

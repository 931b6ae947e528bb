package render

import (
	"bytes"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facecascade/internal/detector"
)

func testFace() detector.Face {
	return detector.Face{
		BoundingBox: detector.BoundingBox{X1: 20, Y1: 10, X2: 60, Y2: 50},
		Score:       0.98,
		Landmarks: detector.Landmarks{
			LeftEye:    detector.Point{X: 30, Y: 22},
			RightEye:   detector.Point{X: 50, Y: 22},
			Nose:       detector.Point{X: 40, Y: 32},
			LeftMouth:  detector.Point{X: 32, Y: 42},
			RightMouth: detector.Point{X: 48, Y: 42},
		},
	}
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 > 200 && g>>8 < 60 && b>>8 < 60
}

func TestFaces(t *testing.T) {
	assert := assert.New(t)
	src := imaging.New(80, 64, color.NRGBA{A: 255})

	out := Faces(src, []detector.Face{testFace()}, DefaultStyle)

	assert.Equal(image.Rect(0, 0, 80, 64), out.Bounds())
	assert.True(isRed(out.At(40, 10)), "top edge")
	assert.True(isRed(out.At(20, 30)), "left edge")
	assert.True(isRed(out.At(40, 32)), "nose dot")
	assert.False(isRed(out.At(40, 27)), "inside the box")
	assert.False(isRed(out.At(5, 5)), "background")

	// the source is left untouched
	assert.False(isRed(src.At(40, 10)))
}

func TestFaces_OffsetImage(t *testing.T) {
	src := imaging.New(80, 64, color.NRGBA{A: 255}).SubImage(image.Rect(10, 10, 70, 60))

	out := Faces(src, nil, DefaultStyle)
	assert.Equal(t, image.Rect(0, 0, 60, 50), out.Bounds())
}

func TestNewResult(t *testing.T) {
	assert := assert.New(t)

	timing := detector.Timing{Proposal: 3 * time.Millisecond, Total: 10 * time.Millisecond}
	res := NewResult(80, 64, []detector.Face{testFace()}, &timing)

	assert.Equal(1, res.Count)
	assert.Equal(Box{X1: 20, Y1: 10, X2: 60, Y2: 50}, res.Faces[0].Box)
	assert.Equal(Point{X: 40, Y: 32}, res.Faces[0].Landmarks.Nose)
	require.NotNil(t, res.Timing)
	assert.InDelta(3.0, res.Timing.ProposalMS, 1e-9)
	assert.InDelta(10.0, res.Timing.TotalMS, 1e-9)

	assert.Nil(NewResult(1, 1, nil, nil).Timing)
}

func TestWriteJSON(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewResult(80, 64, []detector.Face{testFace()}, nil)))

	var doc map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &doc))
	assert.EqualValues(1, doc["count"])
	assert.NotContains(doc, "timing")

	faces := doc["faces"].([]any)
	face := faces[0].(map[string]any)
	assert.Contains(face, "box")
	assert.Contains(face["landmarks"], "left_eye")

	// no faces still yields an array, not null
	data, err := Marshal(NewResult(10, 10, nil, nil))
	require.NoError(t, err)
	assert.Contains(string(data), `"faces":[]`)
}

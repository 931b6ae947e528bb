package detector

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scan = ScanParams{MinFaceSize: 20, ScaleFactor: 0.709}

func newTestCascade(t testing.TB, f *fakeCascade) *Cascade {
	p, r, o := f.configs()
	c, err := NewCascade(p, r, o)
	require.NoError(t, err)
	return c
}

func assertFaceMatches(t *testing.T, face Face, truth image.Rectangle) {
	t.Helper()
	gt := boxOf(truth)

	assert.Greater(t, IoU(face.BoundingBox, gt), float32(0.5), "face %v truth %v", face.BoundingBox, gt)
	for i, p := range face.Landmarks.Points() {
		assert.True(t, p.X >= gt.X1 && p.X < gt.X2 && p.Y >= gt.Y1 && p.Y < gt.Y2,
			"landmark %d at %v outside %v", i, p, gt)
	}
}

func TestCascade_SingleFace(t *testing.T) {
	truth := image.Rect(80, 70, 120, 110)
	img := syntheticImage(200, 200, truth)

	faces, err := newTestCascade(t, newFakeCascade(0.95)).Detect(img, scan)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assertFaceMatches(t, faces[0], truth)
	assert.InDelta(t, 0.97, faces[0].Score, 1e-6)
}

func TestCascade_BlankImage(t *testing.T) {
	f := newFakeCascade(0.95)
	img := imaging.New(160, 120, color.NRGBA{R: 40, G: 40, B: 40, A: 255})

	faces, err := newTestCascade(t, f).Detect(img, scan)
	require.NoError(t, err)
	assert.Empty(t, faces)

	// nothing survived the first stage, so the later networks never ran
	assert.NotZero(t, f.proposal.Calls())
	assert.Zero(t, f.refine.Calls())
	assert.Zero(t, f.output.Calls())
}

func TestCascade_TwoFacesFarApart(t *testing.T) {
	left := image.Rect(40, 60, 80, 100)
	right := image.Rect(240, 60, 280, 100)
	img := syntheticImage(320, 160, left, right)

	faces, err := newTestCascade(t, newFakeCascade(0.95)).Detect(img, scan)
	require.NoError(t, err)
	require.Len(t, faces, 2)

	if faces[0].BoundingBox.X1 > faces[1].BoundingBox.X1 {
		faces[0], faces[1] = faces[1], faces[0]
	}
	assertFaceMatches(t, faces[0], left)
	assertFaceMatches(t, faces[1], right)
	assert.Zero(t, IoU(faces[0].BoundingBox, faces[1].BoundingBox))
}

func TestCascade_ImageTooSmall(t *testing.T) {
	f := newFakeCascade(0.95)
	img := syntheticImage(30, 30, image.Rect(10, 10, 20, 20))

	faces, err := newTestCascade(t, f).Detect(img, ScanParams{MinFaceSize: 40, ScaleFactor: 0.709})
	require.NoError(t, err)
	assert.Empty(t, faces)
	assert.Zero(t, f.proposal.Calls())
}

func TestCascade_ThresholdSensitivity(t *testing.T) {
	truth := image.Rect(60, 50, 100, 90)
	img := syntheticImage(180, 160, truth)

	count := func(threshold float32) int {
		f := newFakeCascade(0.8)
		p, r, o := f.configs()
		p.Threshold = threshold
		c, err := NewCascade(p, r, o)
		require.NoError(t, err)

		faces, err := c.Detect(img, scan)
		require.NoError(t, err)
		return len(faces)
	}

	loose, strict := count(0.6), count(0.99)
	assert.Equal(t, 1, loose)
	assert.Zero(t, strict)
	assert.LessOrEqual(t, strict, loose)
}

func TestCascade_ParallelScalesMatchSequential(t *testing.T) {
	truth := image.Rect(50, 40, 95, 85)
	img := syntheticImage(220, 180, truth)

	run := func(workers int) []Face {
		f := newFakeCascade(0.95)
		p, r, o := f.configs()
		p.Workers = workers
		r.BatchSize, o.BatchSize = 1, 2
		c, err := NewCascade(p, r, o)
		require.NoError(t, err)
		faces, err := c.Detect(img, scan)
		require.NoError(t, err)
		return faces
	}

	assert.Equal(t, run(1), run(8))
}

func TestCascade_ConcurrentCalls(t *testing.T) {
	truth := image.Rect(80, 70, 120, 110)
	img := syntheticImage(200, 200, truth)
	c := newTestCascade(t, newFakeCascade(0.95))

	want, err := c.Detect(img, scan)
	require.NoError(t, err)

	results := make(chan []Face, 4)
	for i := 0; i < cap(results); i++ {
		go func() {
			faces, _ := c.Detect(img, scan)
			results <- faces
		}()
	}
	for i := 0; i < cap(results); i++ {
		assert.Equal(t, want, <-results)
	}
}

func TestCascade_InvalidInput(t *testing.T) {
	assert := assert.New(t)
	c := newTestCascade(t, newFakeCascade(0.95))

	_, err := c.Detect(nil, scan)
	assert.True(errors.Is(err, ErrInvalidImage))

	_, err = c.Detect(image.NewNRGBA(image.Rect(0, 0, 0, 10)), scan)
	assert.True(errors.Is(err, ErrInvalidImage))

	_, err = c.Detect(syntheticImage(50, 50), ScanParams{MinFaceSize: 20, ScaleFactor: 1.2})
	assert.True(errors.Is(err, ErrInvalidParams))
}

func TestCascade_RejectsRunawayPyramid(t *testing.T) {
	f := newFakeCascade(0.95)
	c := newTestCascade(t, f)

	for _, params := range []ScanParams{
		{MinFaceSize: 1e-310, ScaleFactor: 0.709},
		{MinFaceSize: 0.001, ScaleFactor: 0.709},
		{MinFaceSize: 20, ScaleFactor: 0.999999},
	} {
		done := make(chan error, 1)
		go func() {
			_, err := c.Detect(syntheticImage(200, 200), params)
			done <- err
		}()

		select {
		case err := <-done:
			assert.True(t, errors.Is(err, ErrInvalidParams), "%+v: %v", params, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("Detect(%+v) did not return", params)
		}
	}
	assert.Zero(t, f.proposal.Calls())
}

func TestCascade_OffsetImageBounds(t *testing.T) {
	truth := image.Rect(80, 70, 120, 110)
	base := syntheticImage(200, 200, truth)
	// same pixels, but the image does not start at the origin
	sub := image.NewNRGBA(image.Rect(10, 10, 210, 210))
	for y := 0; y < 200; y++ {
		copy(sub.Pix[y*sub.Stride:], base.Pix[y*base.Stride:(y+1)*base.Stride])
	}

	faces, err := newTestCascade(t, newFakeCascade(0.95)).Detect(sub, scan)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assertFaceMatches(t, faces[0], truth)
}

func TestCascade_NetworkFailure(t *testing.T) {
	f := newFakeCascade(0.95)
	p, r, o := f.configs()
	boom := errors.New("boom")
	r.Network = NetworkFunc(func(Tensor) (Output, error) { return Output{}, boom })

	c, err := NewCascade(p, r, o)
	require.NoError(t, err)

	_, err = c.Detect(syntheticImage(200, 200, image.Rect(80, 70, 120, 110)), scan)
	assert.ErrorIs(t, err, boom)
}

func TestCascade_MalformedOutput(t *testing.T) {
	f := newFakeCascade(0.95)
	p, r, o := f.configs()
	p.Network = NetworkFunc(func(in Tensor) (Output, error) {
		return Output{Scores: NewTensor(1, 2, 3, 3), Regressions: NewTensor(1, 4, 2, 2)}, nil
	})

	c, err := NewCascade(p, r, o)
	require.NoError(t, err)

	_, err = c.Detect(syntheticImage(100, 100), scan)
	assert.ErrorIs(t, err, ErrBadOutput)
}

func TestNewCascade_MissingNetwork(t *testing.T) {
	f := newFakeCascade(0.95)
	p, r, o := f.configs()
	o.Network = nil

	_, err := NewCascade(p, r, o)
	assert.ErrorIs(t, err, ErrModel)
}

func TestCascade_DetectTimed(t *testing.T) {
	img := syntheticImage(200, 200, image.Rect(80, 70, 120, 110))

	faces, timing, err := newTestCascade(t, newFakeCascade(0.95)).DetectTimed(img, scan)
	require.NoError(t, err)
	assert.Len(t, faces, 1)
	assert.GreaterOrEqual(t, timing.Total, timing.Proposal+timing.Refine+timing.Output)
}

func BenchmarkCascade(b *testing.B) {
	img := syntheticImage(320, 240, image.Rect(60, 50, 110, 100), image.Rect(200, 120, 250, 170))
	c := newTestCascade(b, newFakeCascade(0.95))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Detect(img, scan); err != nil {
			b.Fatal(err)
		}
	}
}

package detector

import (
	"image"
	"image/color"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// The networks below stand in for the trained MTCNN models. They look for a single bright
// blob on a dark background: a window is a face when it fully contains the blob with some
// room around it, and the regression moves the window onto the blob grown by a margin.

const (
	fakeProposalMargin = 0.25
	fakeRefineMargin   = 0.25
	fakeOutputMargin   = 0.05
)

// relative position of the landmarks inside a blob
var fakeLandmarkLayout = [NumLandmarks]Point{
	{0.3, 0.35}, {0.7, 0.35}, {0.5, 0.55}, {0.35, 0.75}, {0.65, 0.75},
}

type blob struct {
	x1, y1, x2, y2 int // inclusive
	count          int
}

// findBlob returns the extent of the bright pixels of sample n inside the w x h window at (x0,y0).
func findBlob(t Tensor, n, x0, y0, w, h int) blob {
	th, tw := t.Dim(2), t.Dim(3)
	base := n * 3 * th * tw
	b := blob{x1: w, y1: h, x2: -1, y2: -1}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if t.Data[base+(y0+y)*tw+x0+x] <= 0 {
				continue
			}
			b.count++
			b.x1, b.x2 = min(b.x1, x), max(b.x2, x)
			b.y1, b.y2 = min(b.y1, y), max(b.y2, y)
		}
	}
	return b
}

func (b blob) accepted(w, h int) bool {
	if b.count == 0 {
		return false
	}
	if b.x1 == 0 || b.y1 == 0 || b.x2 == w-1 || b.y2 == h-1 {
		return false
	}
	bw, bh := b.x2-b.x1+1, b.y2-b.y1+1
	side := float32(max(bw, bh)) / float32(min(w, h))
	if side < 0.3 || side > 0.95 {
		return false
	}
	return float32(b.count)/float32(bw*bh) >= 0.6
}

// regression towards the blob grown by margin, in units of the window size.
func (b blob) regression(w, h int, margin float32) Regression {
	bw, bh := float32(b.x2-b.x1+1), float32(b.y2-b.y1+1)
	fw, fh := float32(w), float32(h)
	return Regression{
		DX1: (float32(b.x1) - margin*bw) / fw,
		DY1: (float32(b.y1) - margin*bh) / fh,
		DX2: (float32(b.x2+1) + margin*bw - fw) / fw,
		DY2: (float32(b.y2+1) + margin*bh - fh) / fh,
	}
}

type fakeNet struct {
	calls atomic.Int32
	score float32
}

func (f *fakeNet) Calls() int { return int(f.calls.Load()) }

// fakeProposal scores every 12x12 window at stride 2.
type fakeProposal struct{ fakeNet }

func (f *fakeProposal) Forward(in Tensor) (Output, error) {
	f.calls.Add(1)
	const cell, stride = 12, 2
	h, w := in.Dim(2), in.Dim(3)
	mh, mw := 0, 0
	if h >= cell && w >= cell {
		mh, mw = (h-cell)/stride+1, (w-cell)/stride+1
	}
	plane := mh * mw
	scores := NewTensor(1, 2, mh, mw)
	regs := NewTensor(1, 4, mh, mw)

	for y := 0; y < mh; y++ {
		for x := 0; x < mw; x++ {
			i := y*mw + x
			p := float32(0.01)
			b := findBlob(in, 0, x*stride, y*stride, cell, cell)
			if b.accepted(cell, cell) {
				p = f.score
				r := b.regression(cell, cell, fakeProposalMargin)
				regs.Data[i], regs.Data[i+plane], regs.Data[i+2*plane], regs.Data[i+3*plane] = r.DX1, r.DY1, r.DX2, r.DY2
			}
			scores.Data[i] = 1 - p
			scores.Data[i+plane] = p
		}
	}
	return Output{Scores: scores, Regressions: regs}, nil
}

// fakePatchNet scores whole patches, as the refine and output networks do.
type fakePatchNet struct {
	fakeNet
	margin    float32
	landmarks bool
}

func (f *fakePatchNet) Forward(in Tensor) (Output, error) {
	f.calls.Add(1)
	n, h, w := in.Dim(0), in.Dim(2), in.Dim(3)
	out := Output{
		Scores:      NewTensor(n, 2),
		Regressions: NewTensor(n, 4),
	}
	if f.landmarks {
		out.Landmarks = NewTensor(n, 2*NumLandmarks)
	}

	for i := 0; i < n; i++ {
		p := float32(0.01)
		b := findBlob(in, i, 0, 0, w, h)
		if b.accepted(w, h) {
			p = f.score
			r := b.regression(w, h, f.margin)
			copy(out.Regressions.Data[i*4:], []float32{r.DX1, r.DY1, r.DX2, r.DY2})
			if f.landmarks {
				bw, bh := float32(b.x2-b.x1+1), float32(b.y2-b.y1+1)
				for k, pt := range fakeLandmarkLayout {
					out.Landmarks.Data[i*2*NumLandmarks+k] = (float32(b.x1) + pt.X*bw) / float32(w)
					out.Landmarks.Data[i*2*NumLandmarks+NumLandmarks+k] = (float32(b.y1) + pt.Y*bh) / float32(h)
				}
			}
		}
		out.Scores.Data[i*2] = 1 - p
		out.Scores.Data[i*2+1] = p
	}
	return out, nil
}

type fakeCascade struct {
	proposal *fakeProposal
	refine   *fakePatchNet
	output   *fakePatchNet
}

func newFakeCascade(proposalScore float32) *fakeCascade {
	return &fakeCascade{
		proposal: &fakeProposal{fakeNet{score: proposalScore}},
		refine:   &fakePatchNet{fakeNet: fakeNet{score: 0.95}, margin: fakeRefineMargin},
		output:   &fakePatchNet{fakeNet: fakeNet{score: 0.97}, margin: fakeOutputMargin, landmarks: true},
	}
}

func (f *fakeCascade) configs() (StageConfig, StageConfig, StageConfig) {
	p, r, o := DefaultProposalConfig, DefaultRefineConfig, DefaultOutputConfig
	p.Network, r.Network, o.Network = f.proposal, f.refine, f.output
	return p, r, o
}

// syntheticImage draws white squares (the faces) on a black canvas.
func syntheticImage(width, height int, faces ...image.Rectangle) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{A: 255})
	for _, r := range faces {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}

func boxOf(r image.Rectangle) BoundingBox {
	return BoundingBox{X1: float32(r.Min.X), Y1: float32(r.Min.Y), X2: float32(r.Max.X), Y2: float32(r.Max.Y)}
}

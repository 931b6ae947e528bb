package detector

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	proposalScaleNMS = 0.5
	proposalMergeNMS = 0.7
)

// ProposalStage scans the scale pyramid with the proposal network.
type ProposalStage struct {
	config StageConfig
	log    logrus.FieldLogger
}

// NewProposalStage creates the first cascade stage
func NewProposalStage(config StageConfig, log logrus.FieldLogger) (*ProposalStage, error) {
	if err := config.validate("proposal", true); err != nil {
		return nil, err
	}
	return &ProposalStage{config: config, log: log}, nil
}

// Run returns square candidate boxes fitted into the image. Scales are scanned
// concurrently and merged in pyramid order.
func (s *ProposalStage) Run(img *image.NRGBA, scales []float64) ([]Candidate, error) {
	if len(scales) == 0 {
		return nil, nil
	}

	perScale := make([][]Candidate, len(scales))
	errs := make([]error, len(scales))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(s.config.workers(), len(scales)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				perScale[i], errs[i] = s.scan(img, scales[i])
			}
		}()
	}
	for i := range scales {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var merged []Candidate
	for _, c := range perScale {
		merged = append(merged, c...)
	}
	if len(merged) == 0 {
		return nil, nil
	}

	merged = NMS(merged, proposalMergeNMS, Union)

	width, height := img.Rect.Dx(), img.Rect.Dy()
	candidates := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		box := c.Box.Regress(c.Regression).Square().Fit(width, height)
		if box.Empty() {
			continue
		}
		candidates = append(candidates, Candidate{Box: box, Score: c.Score})
	}

	s.log.WithFields(logrus.Fields{
		"scales":     len(scales),
		"candidates": len(candidates),
	}).Debug("proposal stage finished")

	return candidates, nil
}

// scan runs the network over one pyramid level and suppresses overlaps inside it.
func (s *ProposalStage) scan(img *image.NRGBA, scale float64) ([]Candidate, error) {
	w := int(math.Ceil(float64(img.Rect.Dx()) * scale))
	h := int(math.Ceil(float64(img.Rect.Dy()) * scale))

	out, err := s.config.Network.Forward(packTensor(resize(img, w, h)))
	if err != nil {
		return nil, fmt.Errorf("proposal network at scale %.4f: %w", scale, err)
	}

	candidates, err := s.generate(out, scale)
	if err != nil {
		return nil, fmt.Errorf("proposal network at scale %.4f: %w", scale, err)
	}

	return NMS(candidates, proposalScaleNMS, Union), nil
}

// generate maps every map cell scoring above the threshold back to original image coordinates.
func (s *ProposalStage) generate(out Output, scale float64) ([]Candidate, error) {
	scores, regs := out.Scores, out.Regressions
	if len(scores.Shape) != 4 || scores.Dim(0) != 1 || scores.Dim(1) < 2 || len(scores.Data) != scores.Size() {
		return nil, wrapf(ErrBadOutput, "scores: shape %v, want [1,2,H,W]", scores.Shape)
	}
	mh, mw := scores.Dim(2), scores.Dim(3)
	plane := mh * mw
	if len(regs.Shape) != 4 || regs.Dim(1) != 4 || regs.Dim(2) != mh || regs.Dim(3) != mw || len(regs.Data) != 4*plane {
		return nil, wrapf(ErrBadOutput, "regressions: shape %v, want [1,4,%d,%d]", regs.Shape, mh, mw)
	}

	probs := scores.Data[plane : 2*plane]
	stride := float64(s.config.Stride)
	cell := float64(s.config.CellSize)

	var candidates []Candidate
	for y := 0; y < mh; y++ {
		for x := 0; x < mw; x++ {
			i := y*mw + x
			if probs[i] < s.config.Threshold {
				continue
			}
			candidates = append(candidates, Candidate{
				Box: BoundingBox{
					X1: float32(stride * float64(x) / scale),
					Y1: float32(stride * float64(y) / scale),
					X2: float32((stride*float64(x) + cell) / scale),
					Y2: float32((stride*float64(y) + cell) / scale),
				},
				Score: probs[i],
				Regression: Regression{
					DX1: regs.Data[i],
					DY1: regs.Data[i+plane],
					DX2: regs.Data[i+2*plane],
					DY2: regs.Data[i+3*plane],
				},
			})
		}
	}

	return candidates, nil
}

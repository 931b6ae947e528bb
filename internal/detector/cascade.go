package detector

import (
	"image"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Timing holds the wall time spent in each stage of one detection call
type Timing struct {
	Proposal time.Duration
	Refine   time.Duration
	Output   time.Duration
	Total    time.Duration
}

// Cascade runs the proposal, refine and output stages in sequence.
// It keeps no per-call state, so concurrent Detect calls are safe as long as the
// stage networks are.
type Cascade struct {
	proposal  *ProposalStage
	refine    *RefineStage
	output    *OutputStage
	inputSize int
	log       logrus.FieldLogger
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithLogger sets the logger used for per-stage debug output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cascade) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCascade validates the three stage configurations and builds the detector.
func NewCascade(proposal, refine, output StageConfig, opts ...Option) (*Cascade, error) {
	c := &Cascade{log: silentLogger()}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.proposal, err = NewProposalStage(proposal, c.log); err != nil {
		return nil, err
	}
	if c.refine, err = NewRefineStage(refine, c.log); err != nil {
		return nil, err
	}
	if c.output, err = NewOutputStage(output, c.log); err != nil {
		return nil, err
	}
	c.inputSize = proposal.InputSize

	return c, nil
}

// Detect finds faces in an image
func (c *Cascade) Detect(img image.Image, params ScanParams) ([]Face, error) {
	faces, _, err := c.DetectTimed(img, params)
	return faces, err
}

// DetectTimed finds faces and reports the time spent in each stage.
// An empty stage result skips the remaining stages.
func (c *Cascade) DetectTimed(img image.Image, params ScanParams) ([]Face, Timing, error) {
	var timing Timing
	start := time.Now()

	if img == nil || img.Bounds().Empty() {
		return nil, timing, ErrInvalidImage
	}
	if err := CheckPyramid(img.Bounds().Dx(), img.Bounds().Dy(), params, c.inputSize); err != nil {
		return nil, timing, err
	}

	src := toNRGBA(img)
	scales := ScalePyramid(src.Rect.Dx(), src.Rect.Dy(), params.MinFaceSize, params.ScaleFactor, c.inputSize)

	proposals, err := c.proposal.Run(src, scales)
	timing.Proposal = time.Since(start)
	if err != nil || len(proposals) == 0 {
		timing.Total = time.Since(start)
		return nil, timing, err
	}

	stageStart := time.Now()
	refined, err := c.refine.Run(src, proposals)
	timing.Refine = time.Since(stageStart)
	if err != nil || len(refined) == 0 {
		timing.Total = time.Since(start)
		return nil, timing, err
	}

	stageStart = time.Now()
	faces, err := c.output.Run(src, refined)
	timing.Output = time.Since(stageStart)
	timing.Total = time.Since(start)
	if err != nil {
		return nil, timing, err
	}

	return faces, timing, nil
}

func silentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

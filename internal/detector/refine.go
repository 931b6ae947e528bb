package detector

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
)

const refineNMS = 0.7

// RefineStage re-scores proposals at a higher input resolution.
type RefineStage struct {
	config StageConfig
	log    logrus.FieldLogger
}

// NewRefineStage creates the second cascade stage
func NewRefineStage(config StageConfig, log logrus.FieldLogger) (*RefineStage, error) {
	if err := config.validate("refine", false); err != nil {
		return nil, err
	}
	return &RefineStage{config: config, log: log}, nil
}

// Run keeps the proposals the refine network accepts, calibrated, suppressed and squared.
func (s *RefineStage) Run(img *image.NRGBA, proposals []Candidate) ([]Candidate, error) {
	if len(proposals) == 0 {
		return nil, nil
	}

	preds, err := scorePatches(s.config, img, proposals, false)
	if err != nil {
		return nil, fmt.Errorf("refine network: %w", err)
	}

	kept := make([]Candidate, 0, len(proposals))
	for i, p := range preds {
		if p.score < s.config.Threshold {
			continue
		}
		box := proposals[i].Box.Regress(p.regression)
		if box.Empty() {
			continue
		}
		kept = append(kept, Candidate{Box: box, Score: p.score})
	}

	kept = NMS(kept, refineNMS, Union)

	width, height := img.Rect.Dx(), img.Rect.Dy()
	candidates := kept[:0]
	for _, c := range kept {
		c.Box = c.Box.Square().Fit(width, height)
		if c.Box.Empty() {
			continue
		}
		candidates = append(candidates, c)
	}

	s.log.WithFields(logrus.Fields{
		"proposals":  len(proposals),
		"candidates": len(candidates),
	}).Debug("refine stage finished")

	return candidates, nil
}

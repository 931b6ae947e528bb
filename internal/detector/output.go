package detector

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
)

const outputNMS = 0.7

// OutputStage produces the final faces with their landmark points.
type OutputStage struct {
	config StageConfig
	log    logrus.FieldLogger
}

// NewOutputStage creates the last cascade stage
func NewOutputStage(config StageConfig, log logrus.FieldLogger) (*OutputStage, error) {
	if err := config.validate("output", false); err != nil {
		return nil, err
	}
	return &OutputStage{config: config, log: log}, nil
}

// Run scores the refined boxes and returns the accepted faces in original image coordinates.
func (s *OutputStage) Run(img *image.NRGBA, refined []Candidate) ([]Face, error) {
	if len(refined) == 0 {
		return nil, nil
	}

	preds, err := scorePatches(s.config, img, refined, true)
	if err != nil {
		return nil, fmt.Errorf("output network: %w", err)
	}

	kept := make([]Candidate, 0, len(refined))
	for i, p := range preds {
		if p.score < s.config.Threshold {
			continue
		}
		in := refined[i].Box
		points := mapLandmarks(in, p.landmarks)
		kept = append(kept, Candidate{
			Box:       in.Regress(p.regression),
			Score:     p.score,
			Landmarks: &points,
		})
	}

	kept = NMS(kept, outputNMS, Min)

	width, height := img.Rect.Dx(), img.Rect.Dy()
	faces := make([]Face, 0, len(kept))
	for _, c := range kept {
		box := c.Box.Clamp(width, height)
		if box.Empty() {
			continue
		}
		faces = append(faces, Face{
			BoundingBox: box,
			Landmarks:   *c.Landmarks,
			Score:       c.Score,
		})
	}

	s.log.WithFields(logrus.Fields{
		"candidates": len(refined),
		"faces":      len(faces),
	}).Debug("output stage finished")

	return faces, nil
}

// mapLandmarks converts box-relative offsets (x0..x4, y0..y4) to image coordinates.
func mapLandmarks(box BoundingBox, offsets [2 * NumLandmarks]float32) Landmarks {
	w, h := box.Width(), box.Height()
	var pts [NumLandmarks]Point
	for i := range pts {
		pts[i] = Point{
			X: box.X1 + w*offsets[i],
			Y: box.Y1 + h*offsets[i+NumLandmarks],
		}
	}
	return landmarksFromPoints(pts)
}

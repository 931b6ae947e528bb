package detector

import (
	"image"
)

// prediction is what a refine or output network says about one patch.
type prediction struct {
	score      float32
	regression Regression
	landmarks  [2 * NumLandmarks]float32
}

// scorePatches crops every candidate box out of src and runs the stage network over them
// in batches of cfg.BatchSize.
func scorePatches(cfg StageConfig, src *image.NRGBA, candidates []Candidate, landmarks bool) ([]prediction, error) {
	patches := make([]*image.NRGBA, len(candidates))
	for i, c := range candidates {
		patches[i] = patch(src, c.Box, cfg.InputSize)
	}

	batch := cfg.BatchSize
	if batch <= 0 || batch > len(patches) {
		batch = len(patches)
	}

	preds := make([]prediction, 0, len(patches))
	for start := 0; start < len(patches); start += batch {
		end := min(start+batch, len(patches))
		out, err := cfg.Network.Forward(packTensor(patches[start:end]...))
		if err != nil {
			return nil, err
		}
		decoded, err := decodeBatch(out, end-start, landmarks)
		if err != nil {
			return nil, err
		}
		preds = append(preds, decoded...)
	}

	return preds, nil
}

// decodeBatch splits a batched network output into per-patch predictions.
func decodeBatch(out Output, n int, landmarks bool) ([]prediction, error) {
	if err := expectSize(out.Scores, "scores", n, 2); err != nil {
		return nil, err
	}
	if err := expectSize(out.Regressions, "regressions", n, 4); err != nil {
		return nil, err
	}
	if landmarks {
		if err := expectSize(out.Landmarks, "landmarks", n, 2*NumLandmarks); err != nil {
			return nil, err
		}
	}

	preds := make([]prediction, n)
	for i := range preds {
		r := out.Regressions.Data[i*4 : i*4+4]
		preds[i] = prediction{
			score:      out.Scores.Data[i*2+1],
			regression: Regression{DX1: r[0], DY1: r[1], DX2: r[2], DY2: r[3]},
		}
		if landmarks {
			copy(preds[i].landmarks[:], out.Landmarks.Data[i*2*NumLandmarks:])
		}
	}
	return preds, nil
}

// expectSize checks that t carries n rows of width values each.
func expectSize(t Tensor, name string, n, width int) error {
	if t.Dim(0) != n || len(t.Data) != n*width {
		return wrapf(ErrBadOutput, "%s: shape %v with %d values, want %d x %d", name, t.Shape, len(t.Data), n, width)
	}
	return nil
}

package detector

import "math"

const (
	// MaxPyramidPixels bounds the area of the first, largest pyramid level.
	MaxPyramidPixels = 1 << 26
	// MaxPyramidLevels bounds the number of scales scanned per image.
	MaxPyramidLevels = 256
)

// ScalePyramid returns the resize factors scanned by the proposal stage, largest first.
// At every scale the network window of inputSize pixels covers minFace original pixels or
// more, and the pyramid stops once the shorter scaled side drops below inputSize.
// An image too small for minFace yields no scales, and so does a first scale that is not
// finite. At most MaxPyramidLevels scales are returned.
func ScalePyramid(width, height int, minFace, factor float64, inputSize int) []float64 {
	if width <= 0 || height <= 0 || minFace <= 0 || inputSize <= 0 || factor <= 0 || factor >= 1 {
		return nil
	}

	var scales []float64
	scale := float64(inputSize) / minFace
	minLayer := float64(min(width, height)) * scale
	if !finite(scale) || !finite(minLayer) {
		return nil
	}

	for minLayer >= float64(inputSize) && len(scales) < MaxPyramidLevels {
		scales = append(scales, scale)
		scale *= factor
		minLayer *= factor
	}

	return scales
}

// CheckPyramid rejects scan parameters whose pyramid for a width x height image would
// upscale past MaxPyramidPixels or need more than MaxPyramidLevels scales.
func CheckPyramid(width, height int, params ScanParams, inputSize int) error {
	if err := params.Validate(); err != nil {
		return err
	}

	scale := float64(inputSize) / params.MinFaceSize
	first := float64(width) * scale * float64(height) * scale
	if !finite(first) || first > MaxPyramidPixels {
		return wrapf(ErrInvalidParams, "min face size %v upscales a %dx%d image past %d pixels",
			params.MinFaceSize, width, height, MaxPyramidPixels)
	}

	ratio := float64(min(width, height)) * scale / float64(inputSize)
	if ratio < 1 {
		return nil
	}
	// levels = floor(log(ratio) / -log(factor)) + 1
	levels := math.Floor(math.Log(ratio)/-math.Log(params.ScaleFactor)) + 1
	if levels > MaxPyramidLevels {
		return wrapf(ErrInvalidParams, "scale factor %v needs %.0f pyramid levels, at most %d allowed",
			params.ScaleFactor, levels, MaxPyramidLevels)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

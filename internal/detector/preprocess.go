package detector

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	pixelMean   = 127.5
	pixelInvStd = 0.0078125
)

var padColor = color.NRGBA{A: 255}

// toNRGBA returns img as a zero-origin NRGBA image, copying only when needed.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// resize scales the image to exactly width x height.
func resize(img *image.NRGBA, width, height int) *image.NRGBA {
	if img.Rect.Dx() == width && img.Rect.Dy() == height {
		return img
	}
	return imaging.Resize(img, width, height, imaging.Linear)
}

// cropPadded cuts r out of src. Pixels of r outside src are filled with black.
func cropPadded(src *image.NRGBA, r image.Rectangle) *image.NRGBA {
	inter := r.Intersect(src.Rect)
	if inter == r {
		return imaging.Crop(src, r)
	}

	dst := imaging.New(r.Dx(), r.Dy(), padColor)
	if inter.Empty() {
		return dst
	}
	return imaging.Paste(dst, imaging.Crop(src, inter), inter.Min.Sub(r.Min))
}

// patch crops the box from src and resizes it to a size x size network input.
func patch(src *image.NRGBA, box BoundingBox, size int) *image.NRGBA {
	r := box.Rect()
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return imaging.New(size, size, padColor)
	}
	return resize(cropPadded(src, r), size, size)
}

// packTensor converts equally sized images to a normalised [N,3,H,W] RGB tensor.
func packTensor(imgs ...*image.NRGBA) Tensor {
	if len(imgs) == 0 {
		return Tensor{}
	}
	w, h := imgs[0].Rect.Dx(), imgs[0].Rect.Dy()
	t := NewTensor(len(imgs), 3, h, w)
	plane := w * h

	for n, img := range imgs {
		base := n * 3 * plane
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				px := row[x*4 : x*4+3]
				idx := base + y*w + x
				t.Data[idx] = (float32(px[0]) - pixelMean) * pixelInvStd
				t.Data[idx+plane] = (float32(px[1]) - pixelMean) * pixelInvStd
				t.Data[idx+2*plane] = (float32(px[2]) - pixelMean) * pixelInvStd
			}
		}
	}

	return t
}

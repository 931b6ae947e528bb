// Package render draws detections onto images and exports them as JSON.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/dudu/facecascade/internal/detector"
)

// Style controls how faces are marked.
type Style struct {
	Color          color.Color
	LineWidth      float64
	LandmarkRadius float64
}

// DefaultStyle marks faces with a red rectangle and red landmark dots.
var DefaultStyle = Style{
	Color:          color.RGBA{R: 255, A: 255},
	LineWidth:      2,
	LandmarkRadius: 3,
}

// Faces returns a copy of img with every face box and landmark drawn on it.
func Faces(img image.Image, faces []detector.Face, style Style) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)

	dc.SetLineWidth(style.LineWidth)
	dc.SetStrokeStyle(gg.NewSolidPattern(style.Color))
	dc.SetFillStyle(gg.NewSolidPattern(style.Color))

	for _, face := range faces {
		box := face.BoundingBox
		dc.DrawRectangle(float64(box.X1), float64(box.Y1), float64(box.Width()), float64(box.Height()))
		dc.Stroke()

		for _, p := range face.Landmarks.Points() {
			dc.DrawArc(float64(p.X), float64(p.Y), style.LandmarkRadius, 0, 2*math.Pi)
			dc.Fill()
		}
	}

	return dc.Image()
}

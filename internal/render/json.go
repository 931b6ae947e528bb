package render

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/dudu/facecascade/internal/detector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Point is a JSON landmark position.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Box is a JSON bounding box with exclusive right and bottom edges.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Landmarks are the five JSON facial points.
type Landmarks struct {
	LeftEye    Point `json:"left_eye"`
	RightEye   Point `json:"right_eye"`
	Nose       Point `json:"nose"`
	LeftMouth  Point `json:"left_mouth"`
	RightMouth Point `json:"right_mouth"`
}

// Face is one detection as exported.
type Face struct {
	Box       Box       `json:"box"`
	Score     float32   `json:"score"`
	Landmarks Landmarks `json:"landmarks"`
}

// Timing is the per-stage wall time in milliseconds.
type Timing struct {
	ProposalMS float64 `json:"proposal_ms"`
	RefineMS   float64 `json:"refine_ms"`
	OutputMS   float64 `json:"output_ms"`
	TotalMS    float64 `json:"total_ms"`
}

// Result is the JSON document for one detection call.
type Result struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Count  int     `json:"count"`
	Faces  []Face  `json:"faces"`
	Timing *Timing `json:"timing,omitempty"`
}

// NewResult converts detector output into its JSON form. A nil timing is omitted.
func NewResult(width, height int, faces []detector.Face, timing *detector.Timing) Result {
	res := Result{
		Width:  width,
		Height: height,
		Count:  len(faces),
		Faces:  make([]Face, len(faces)),
	}
	for i, f := range faces {
		l := f.Landmarks
		res.Faces[i] = Face{
			Box:   Box{X1: f.BoundingBox.X1, Y1: f.BoundingBox.Y1, X2: f.BoundingBox.X2, Y2: f.BoundingBox.Y2},
			Score: f.Score,
			Landmarks: Landmarks{
				LeftEye:    point(l.LeftEye),
				RightEye:   point(l.RightEye),
				Nose:       point(l.Nose),
				LeftMouth:  point(l.LeftMouth),
				RightMouth: point(l.RightMouth),
			},
		}
	}
	if timing != nil {
		res.Timing = &Timing{
			ProposalMS: ms(timing.Proposal.Seconds()),
			RefineMS:   ms(timing.Refine.Seconds()),
			OutputMS:   ms(timing.Output.Seconds()),
			TotalMS:    ms(timing.Total.Seconds()),
		}
	}
	return res
}

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, res Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Marshal encodes the result compactly.
func Marshal(res Result) ([]byte, error) {
	return json.Marshal(res)
}

func point(p detector.Point) Point {
	return Point{X: p.X, Y: p.Y}
}

func ms(seconds float64) float64 {
	return seconds * 1000
}

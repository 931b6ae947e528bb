package detector

import "sort"

// OverlapMode selects the denominator used when comparing two boxes.
type OverlapMode int

const (
	// Union divides the intersection by the union of both areas.
	Union OverlapMode = iota
	// Min divides the intersection by the smaller of both areas.
	Min
)

func (m OverlapMode) String() string {
	if m == Min {
		return "min"
	}
	return "union"
}

// NMS performs Non-Maximum Suppression on scored candidates.
// The input slice is not modified; survivors are returned in descending score order.
func NMS(candidates []Candidate, threshold float32, mode OverlapMode) []Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	// Sort by score (descending), ties keep input order
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].Score > candidates[order[j]].Score
	})

	keep := make([]bool, len(order))
	for i := range keep {
		keep[i] = true
	}

	result := make([]Candidate, 0, len(candidates))
	for i, oi := range order {
		if !keep[i] {
			continue
		}
		result = append(result, candidates[oi])
		for j := i + 1; j < len(order); j++ {
			if !keep[j] {
				continue
			}
			if Overlap(candidates[oi].Box, candidates[order[j]].Box, mode) > threshold {
				keep[j] = false
			}
		}
	}

	return result
}

// Overlap calculates the intersection of two boxes over their union or their smaller area.
func Overlap(a, b BoundingBox, mode OverlapMode) float32 {
	// Intersection
	x1 := max32(a.X1, b.X1)
	y1 := max32(a.Y1, b.Y1)
	x2 := min32(a.X2, b.X2)
	y2 := min32(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)

	var denom float32
	if mode == Min {
		denom = min32(a.Area(), b.Area())
	} else {
		denom = a.Area() + b.Area() - intersection
	}

	if denom <= 0 {
		return 0
	}

	return intersection / denom
}

// IoU calculates Intersection over Union of two bounding boxes
func IoU(a, b BoundingBox) float32 {
	return Overlap(a, b, Union)
}

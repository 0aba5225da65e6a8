package facematch

// Box is a face bounding box in pixels, top-left corner plus size.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width * height. Degenerate boxes have zero area.
func (b Box) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Corners returns the box as [x1, y1, x2, y2].
func (b Box) Corners() []float64 {
	return []float64{b.X, b.Y, b.X + b.Width, b.Y + b.Height}
}

// BoxFromCorners converts a detector bbox [x1, y1, x2, y2] into a Box.
// Malformed input yields the zero Box.
func BoxFromCorners(bbox []float64) Box {
	if len(bbox) != 4 {
		return Box{}
	}
	return Box{
		X:      bbox[0],
		Y:      bbox[1],
		Width:  bbox[2] - bbox[0],
		Height: bbox[3] - bbox[1],
	}
}

// Scale multiplies every coordinate by factor. Used to map boxes detected on a
// downscaled frame back to the original pixel space.
func (b Box) Scale(factor float64) Box {
	if factor <= 0 {
		return b
	}
	return Box{
		X:      b.X * factor,
		Y:      b.Y * factor,
		Width:  b.Width * factor,
		Height: b.Height * factor,
	}
}

// ComputeIoU calculates Intersection over Union between two boxes.
func ComputeIoU(a, b Box) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.Width, b.X+b.Width)
	y2 := min(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// SuppressOverlaps drops detections whose box overlaps an earlier, higher
// scoring detection by more than threshold IoU. Input order is preserved for
// the survivors.
func SuppressOverlaps(dets []Detection, threshold float64) []Detection {
	if len(dets) < 2 || threshold <= 0 {
		return dets
	}

	keep := make([]bool, len(dets))
	for i := range keep {
		keep[i] = true
	}
	for i := range dets {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if !keep[j] || ComputeIoU(dets[i].Box, dets[j].Box) <= threshold {
				continue
			}
			if dets[j].Score > dets[i].Score {
				keep[i] = false
				break
			}
			keep[j] = false
		}
	}

	result := make([]Detection, 0, len(dets))
	for i, d := range dets {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

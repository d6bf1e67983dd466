package ssd

// Box is an axis-aligned bounding box in corner format, normalized to [0,1]
// image coordinates.
type Box struct {
	XMin, YMin, XMax, YMax float64
}

// Width returns the box width.
func (b Box) Width() float64 { return b.XMax - b.XMin }

// Height returns the box height.
func (b Box) Height() float64 { return b.YMax - b.YMin }

// Area returns the box area.
func (b Box) Area() float64 { return b.Width() * b.Height() }

// Detection is one decoded object: a class, a confidence and a box.
type Detection struct {
	Class int
	Score float64
	Box   Box
}

// Detections groups decoded detections by class index; the background class
// slot stays empty.
type Detections [][]Detection

// Count returns the total number of detections across classes.
func (d Detections) Count() int {
	n := 0
	for _, cls := range d {
		n += len(cls)
	}
	return n
}

// Flatten returns all detections in class order.
func (d Detections) Flatten() []Detection {
	out := make([]Detection, 0, d.Count())
	for _, cls := range d {
		out = append(out, cls...)
	}
	return out
}

// Postprocessor filters or modifies a decoded detection list.
type Postprocessor func([]Detection) []Detection

// NewScoreFilter returns a function that drops detections below a confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Score >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewAreaFilter returns a function that drops detections below a normalized area.
func NewAreaFilter(area float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Box.Area() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

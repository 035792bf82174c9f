package types

import (
	"image"
	"time"
)

// UnknownLabel is the identity label given to a face that matched no enrolled identity.
const UnknownLabel = "Unknown"

// Frame is a single JPEG sample read from the camera. It belongs to one tick only.
type Frame struct {
	Seq        int
	Data       []byte
	CapturedAt time.Time
}

// FaceResult matches the structure coming back from the Python sidecar
type FaceResult struct {
	Loc []int     `msgpack:"loc"` // [top, right, bottom, left]
	Vec []float64 `msgpack:"vec"` // 128-d face encoding
}

// Box converts the sidecar's [top, right, bottom, left] location into a rectangle.
func (f FaceResult) Box() image.Rectangle {
	if len(f.Loc) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(f.Loc[3], f.Loc[0], f.Loc[1], f.Loc[2])
}

// Candidate is one raw region proposal from the object detector:
// a [x, y, w, h] box plus one score per class in the class-name list.
type Candidate struct {
	Box    []int     `msgpack:"box"`
	Scores []float32 `msgpack:"scores"`
}

// FaceObservation is a detected face after matching against the enrolled set.
type FaceObservation struct {
	Box       image.Rectangle
	Embedding []float64
	Matched   bool
	Label     string
}

// ObjectDetection is a watch-listed object that cleared the confidence threshold.
type ObjectDetection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
}

// FocusEvent records a change of the foreground window between two ticks.
type FocusEvent struct {
	Previous string
	Current  string
}

// Identity is an enrolled reference embedding.
type Identity struct {
	ID        int
	Name      string
	Embedding []float64
	CreatedAt time.Time
}

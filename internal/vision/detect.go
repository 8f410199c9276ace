package vision

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/kerbside-data/sentinel.report/internal/monitoring"
)

// BBox is an axis-aligned bounding box in pixel space.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Centroid returns the box centre point.
func (b BBox) Centroid() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Rect converts the box to an image.Rectangle, rounding outward.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)), int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.W)), int(math.Ceil(b.Y+b.H)),
	)
}

func (b BBox) finite() bool {
	return isFinite(b.X) && isFinite(b.Y) && isFinite(b.W) && isFinite(b.H)
}

// Detection is one detector output for one frame: ephemeral, consumed once
// by the tracker and not retained.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Frame is one video frame handed through the pipeline. Image may be nil
// when the source carries no pixels (e.g. detection-log replay); evidence
// capture then degrades to events without snapshots.
type Frame struct {
	Index int64
	Time  time.Time
	Image image.Image
}

// Detector turns a frame into detections. The neural-network detector is an
// external collaborator behind this boundary; the engine treats its output
// as an opaque, per-frame input.
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]Detection, error)
}

// SanitizeDetections drops malformed detections before matching so they
// never become track state: non-finite coordinates always, and boxes wholly
// outside the frame when bounds are known. An empty bounds rectangle means
// the source carries no pixels (detection-log replay) and the frame extent
// is unknowable, so only the finiteness check applies. Dropped detections
// are logged at debug level and are not an error.
func SanitizeDetections(dets []Detection, bounds image.Rectangle) []Detection {
	clean := dets[:0]
	for i, d := range dets {
		if !d.BBox.finite() || !isFinite(d.Confidence) {
			monitoring.Debugf("dropped malformed detection %d: bbox=%+v confidence=%v", i, d.BBox, d.Confidence)
			continue
		}
		if !bounds.Empty() && !d.BBox.Rect().Overlaps(bounds) {
			monitoring.Debugf("dropped out-of-frame detection %d: bbox=%+v bounds=%v", i, d.BBox, bounds)
			continue
		}
		clean = append(clean, d)
	}
	return clean
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

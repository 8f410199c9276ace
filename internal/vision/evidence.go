package vision

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/kerbside-data/sentinel.report/internal/fsutil"
)

// snapshotMargin is the padding, in pixels, added around the violating
// object's bounding box when cropping evidence.
const snapshotMargin = 40

// SnapshotCapturer crops evidence images around violating objects and
// writes them as JPEG files. Capture is best-effort: failures are reported
// to the caller for logging but must never block or suppress an alert.
type SnapshotCapturer struct {
	fs  fsutil.FileSystem
	dir string
}

// NewSnapshotCapturer creates a capturer writing into dir, creating it if
// needed.
func NewSnapshotCapturer(fs fsutil.FileSystem, dir string) (*SnapshotCapturer, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory %s: %w", dir, err)
	}
	return &SnapshotCapturer{fs: fs, dir: dir}, nil
}

// Dir returns the directory snapshots are written into.
func (c *SnapshotCapturer) Dir() string {
	return c.dir
}

// Capture crops the frame image around the bounding box (with margin,
// clamped to the frame) and writes it as a JPEG. Returns the path of the
// written file. A frame with no image data is not an error condition worth
// alarming over; the caller gets ErrNoFrameImage and the alert proceeds
// without evidence.
func (c *SnapshotCapturer) Capture(frame *Frame, bbox BBox, violationType ViolationType, objectID int64, at time.Time) (string, error) {
	if frame == nil || frame.Image == nil {
		return "", ErrNoFrameImage
	}

	bounds := frame.Image.Bounds()
	crop := bbox.Rect().Inset(-snapshotMargin).Intersect(bounds)
	if crop.Empty() {
		return "", fmt.Errorf("bounding box %v lies outside frame %v", bbox.Rect(), bounds)
	}

	name := snapshotFilename(violationType, objectID, at)
	path := filepath.Join(c.dir, name)

	f, err := c.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	cropped := imaging.Crop(frame.Image, crop)
	if err := imaging.Encode(f, cropped, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		f.Close()
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing snapshot file: %w", err)
	}
	return path, nil
}

// ErrNoFrameImage indicates the frame carried no pixel data to crop.
var ErrNoFrameImage = errors.New("frame has no image data")

// snapshotFilename builds a collision-resistant evidence filename:
// TYPE_objectID_timestamp_shortuuid.jpg.
func snapshotFilename(t ViolationType, objectID int64, at time.Time) string {
	short := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s_%d_%s_%s.jpg",
		string(t), objectID, at.UTC().Format("20060102T150405"), short)
}

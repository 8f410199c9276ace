package vision

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kerbside-data/sentinel.report/internal/timeutil"
)

// replayRecord is one line of a detection log: a frame index plus the
// detections observed on it. Frames absent from the log are treated as
// empty, so tracker miss counting stays faithful to the recording.
type replayRecord struct {
	Frame      int64             `json:"frame"`
	Detections []replayDetection `json:"detections"`
}

type replayDetection struct {
	BBox       [4]float64 `json:"bbox"` // x, y, w, h
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
}

// ReplaySource replays a JSON-lines detection log as a frame stream. It is
// both the FrameSource and the Detector for development runs without live
// camera input: frames carry no image data, and Detect returns the
// recorded detections for the current frame.
//
// With a nonzero frame rate the replay paces itself to wall-clock speed;
// zero replays as fast as the loop can consume.
type ReplaySource struct {
	records   []replayRecord
	byFrame   map[int64][]Detection
	lastFrame int64
	frameRate float64
	clock     timeutil.Clock

	next    int64
	started bool
	ticker  timeutil.Ticker
}

// NewReplaySource parses a detection log. Records must be ordered by frame
// index; duplicate or regressing indices are rejected.
func NewReplaySource(r io.Reader, frameRate float64, clock timeutil.Clock) (*ReplaySource, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &ReplaySource{
		byFrame:   make(map[int64][]Detection),
		lastFrame: -1,
		frameRate: frameRate,
		clock:     clock,
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	prev := int64(-1)
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec replayRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("detection log line %d: %w", line, err)
		}
		if rec.Frame <= prev {
			return nil, fmt.Errorf("detection log line %d: frame %d out of order (previous %d)", line, rec.Frame, prev)
		}
		prev = rec.Frame

		dets := make([]Detection, len(rec.Detections))
		for i, d := range rec.Detections {
			dets[i] = Detection{
				BBox:       BBox{X: d.BBox[0], Y: d.BBox[1], W: d.BBox[2], H: d.BBox[3]},
				Class:      d.Class,
				Confidence: d.Confidence,
			}
		}
		s.records = append(s.records, rec)
		s.byFrame[rec.Frame] = dets
		s.lastFrame = rec.Frame
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading detection log: %w", err)
	}
	if len(s.records) == 0 {
		return nil, fmt.Errorf("detection log is empty")
	}
	opsf("loaded detection log: %d records over %d frames", len(s.records), s.lastFrame+1)
	return s, nil
}

// Next emits frame indices 0..lastFrame inclusive, paced to the configured
// frame rate. Frames carry no image, so evidence capture is skipped.
func (s *ReplaySource) Next(ctx context.Context) (*Frame, bool) {
	if s.next > s.lastFrame {
		return nil, false
	}
	if s.frameRate > 0 {
		if !s.started {
			s.ticker = s.clock.NewTicker(time.Duration(float64(time.Second) / s.frameRate))
			s.started = true
		} else {
			select {
			case <-ctx.Done():
				s.ticker.Stop()
				return nil, false
			case <-s.ticker.C():
			}
		}
	} else if ctx.Err() != nil {
		return nil, false
	}

	frame := &Frame{Index: s.next, Time: s.clock.Now()}
	s.next++
	return frame, true
}

// Detect returns the recorded detections for the frame.
func (s *ReplaySource) Detect(_ context.Context, frame *Frame) ([]Detection, error) {
	return s.byFrame[frame.Index], nil
}

package vision

import (
	"context"
	"errors"
	"testing"
)

// sliceSource emits a fixed sequence of frames.
type sliceSource struct {
	frames []*Frame
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (*Frame, bool) {
	if ctx.Err() != nil || s.pos >= len(s.frames) {
		return nil, false
	}
	f := s.frames[s.pos]
	s.pos++
	return f, true
}

// scriptDetector returns per-frame detections keyed by frame index, and an
// error on listed frames.
type scriptDetector struct {
	byFrame map[int64][]Detection
	failOn  map[int64]bool
}

func (d *scriptDetector) Detect(_ context.Context, f *Frame) ([]Detection, error) {
	if d.failOn[f.Index] {
		return nil, errors.New("inference timeout")
	}
	return d.byFrame[f.Index], nil
}

func framesN(n int) []*Frame {
	out := make([]*Frame, n)
	for i := range out {
		out[i] = &Frame{Index: int64(i)}
	}
	return out
}

func TestPipelineRunsToSourceEnd(t *testing.T) {
	det := &scriptDetector{byFrame: map[int64][]Detection{
		0: {detAt(100, 100)},
		1: {detAt(105, 100)},
		2: {detAt(110, 100)},
	}}
	tr := NewTracker(DefaultTrackerConfig())
	m := parkingManager(t, 1000, 4)
	p := NewPipeline(&sliceSource{frames: framesN(3)}, det, tr, m)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stats := p.Stats()
	if stats.FramesProcessed != 3 {
		t.Errorf("FramesProcessed = %d, want 3", stats.FramesProcessed)
	}
	if stats.DetectionsSeen != 3 {
		t.Errorf("DetectionsSeen = %d, want 3", stats.DetectionsSeen)
	}
	if stats.TracksCreated != 1 {
		t.Errorf("TracksCreated = %d, want 1", stats.TracksCreated)
	}
	if stats.ActiveTracks != 1 {
		t.Errorf("ActiveTracks = %d, want 1", stats.ActiveTracks)
	}
}

func TestPipelineDetectorErrorAgesTracks(t *testing.T) {
	// Frames 1..4 fail detection; with a miss budget of 2 the track must
	// retire during the outage instead of freezing.
	det := &scriptDetector{
		byFrame: map[int64][]Detection{0: {detAt(100, 100)}},
		failOn:  map[int64]bool{1: true, 2: true, 3: true, 4: true},
	}
	cfg := DefaultTrackerConfig()
	cfg.MaxMissedFrames = 2
	tr := NewTracker(cfg)
	m := parkingManager(t, 1000, 4)
	p := NewPipeline(&sliceSource{frames: framesN(5)}, det, tr, m)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stats := p.Stats()
	if stats.DetectorErrors != 4 {
		t.Errorf("DetectorErrors = %d, want 4", stats.DetectorErrors)
	}
	if stats.ActiveTracks != 0 {
		t.Errorf("ActiveTracks = %d, want 0 (retired during outage)", stats.ActiveTracks)
	}
}

func TestPipelineStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	det := &scriptDetector{}
	tr := NewTracker(DefaultTrackerConfig())
	m := parkingManager(t, 1000, 4)
	p := NewPipeline(&sliceSource{frames: framesN(100)}, det, tr, m)

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if got := p.Stats().FramesProcessed; got != 0 {
		t.Errorf("FramesProcessed = %d after pre-cancelled ctx, want 0", got)
	}
}

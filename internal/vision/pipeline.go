package vision

import (
	"context"
	"image"
	"sync"
)

// FrameSource produces frames in capture order. Next blocks until a frame
// is available and returns ok=false when the stream ends or ctx is done.
type FrameSource interface {
	Next(ctx context.Context) (*Frame, bool)
}

// PipelineStats is a point-in-time snapshot of the frame loop's counters.
type PipelineStats struct {
	FramesProcessed int64 `json:"frames_processed"`
	DetectionsSeen  int64 `json:"detections_seen"`
	DetectorErrors  int64 `json:"detector_errors"`
	ActiveTracks    int   `json:"active_tracks"`
	TracksCreated   int64 `json:"tracks_created"`
}

// Pipeline is the per-frame processing loop: detect, associate, evaluate.
// One pipeline owns its tracker exclusively; frames are processed strictly
// in order on a single goroutine.
type Pipeline struct {
	source   FrameSource
	detector Detector
	tracker  *Tracker
	manager  *ViolationManager

	mu    sync.Mutex
	stats PipelineStats
}

// NewPipeline assembles the frame loop.
func NewPipeline(source FrameSource, detector Detector, tracker *Tracker, manager *ViolationManager) *Pipeline {
	return &Pipeline{
		source:   source,
		detector: detector,
		tracker:  tracker,
		manager:  manager,
	}
}

// Run consumes frames until the source is exhausted or ctx is cancelled.
// A detector failure on a frame is treated as an empty detection set so
// live tracks still age toward retirement rather than freezing.
func (p *Pipeline) Run(ctx context.Context) error {
	opsf("pipeline started")
	defer opsf("pipeline stopped")

	for {
		frame, ok := p.source.Next(ctx)
		if !ok {
			return ctx.Err()
		}

		detections, err := p.detector.Detect(ctx, frame)
		if err != nil {
			diagf("detector failed on frame %d: %v", frame.Index, err)
			p.mu.Lock()
			p.stats.DetectorErrors++
			p.mu.Unlock()
			detections = nil
		}
		var bounds image.Rectangle
		if frame.Image != nil {
			bounds = frame.Image.Bounds()
		}
		detections = SanitizeDetections(detections, bounds)

		before := p.tracker.nextID
		matched := p.tracker.Update(frame.Index, detections)
		p.manager.CheckFrame(frame, matched)

		p.mu.Lock()
		p.stats.FramesProcessed++
		p.stats.DetectionsSeen += int64(len(detections))
		p.stats.TracksCreated += p.tracker.nextID - before
		p.stats.ActiveTracks = p.tracker.ActiveCount()
		frames := p.stats.FramesProcessed
		p.mu.Unlock()

		if frames%300 == 0 {
			diagf("frame %d: %d detections, %d active tracks", frame.Index, len(detections), p.tracker.ActiveCount())
		}
	}
}

// Stats returns a snapshot of the frame loop's counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

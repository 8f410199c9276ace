package vision

import (
	"sort"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	MaxMatchDistance float64 // Max centroid distance (pixels) for association
	MaxMissedFrames  int     // Consecutive misses before retirement
	HistoryLength    int     // Bounded centroid history capacity
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxMatchDistance: 80.0,
		MaxMissedFrames:  30,
		HistoryLength:    30,
	}
}

// Track is the durable entity representing one physical object across
// frames. The tracker owns every Track exclusively; rule evaluators and the
// violation manager borrow references during a frame's processing pass and
// must not retain them across frames.
type Track struct {
	// Identity, assigned at creation and never changed or reused.
	ID int64

	// Latest matched detection state.
	Centroid   Point
	BBox       BBox
	Class      string
	Confidence float64

	// Lifecycle counters.
	FirstFrame int64
	LastSeen   int64 // frame index of the last matched detection
	Misses     int   // consecutive missed frames
	FrameCount int   // total frames this track was matched

	// Bounded centroid history, oldest first. Used for direction estimation.
	history []Point
	histCap int

	// Per-rule accumulator state. Dwell counters are per zone; a track can
	// violate multiple zones independently.
	zoneDwell      map[string]int
	wrongWayFrames int

	// Sticky fired flags, one per violation type. Once set, never reset:
	// this is the at-most-one-alert guarantee for the track's lifetime.
	fired [numViolationTypes]bool
}

// appendHistory records a centroid, evicting the oldest on overflow.
func (trk *Track) appendHistory(p Point) {
	if len(trk.history) == trk.histCap {
		copy(trk.history, trk.history[1:])
		trk.history[len(trk.history)-1] = p
		return
	}
	trk.history = append(trk.history, p)
}

// History returns the track's centroid history, oldest first. The returned
// slice is the track's own buffer and must not be retained across frames.
func (trk *Track) History() []Point {
	return trk.history
}

// Fired reports whether the given violation type has already fired.
func (trk *Track) Fired(t ViolationType) bool {
	i := violationIndex(t)
	return i >= 0 && trk.fired[i]
}

func (trk *Track) setFired(t ViolationType) {
	if i := violationIndex(t); i >= 0 {
		trk.fired[i] = true
	}
}

// ZoneDwell returns the continuous in-zone frame count for a zone.
func (trk *Track) ZoneDwell(zoneID string) int {
	return trk.zoneDwell[zoneID]
}

// WrongWayFrames returns the consecutive wrong-direction frame count.
func (trk *Track) WrongWayFrames() int {
	return trk.wrongWayFrames
}

// Tracker assigns stable identities to detections across frames using
// centroid-distance nearest-neighbor association.
type Tracker struct {
	tracks map[int64]*Track
	nextID int64
	cfg    TrackerConfig
}

// NewTracker creates a tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.HistoryLength < 2 {
		cfg.HistoryLength = DefaultTrackerConfig().HistoryLength
	}
	return &Tracker{
		tracks: make(map[int64]*Track),
		nextID: 1,
		cfg:    cfg,
	}
}

// matchPair is one candidate (track, detection) association.
type matchPair struct {
	d2       float64
	trackPos int // position in the sorted live-track list
	detIdx   int
}

// Update consumes one frame's detections and returns the tracks that were
// matched or created this frame, in a deterministic order. Unmatched tracks
// age by one miss and are retired once the miss counter exceeds the
// threshold; their rule accumulators are left untouched so a single dropped
// detection during an otherwise continuous violation does not reset them.
func (t *Tracker) Update(frameIdx int64, detections []Detection) []*Track {
	ids := t.sortedIDs()

	// No detections: every live track ages by one miss.
	if len(detections) == 0 {
		for _, id := range ids {
			t.miss(id)
		}
		return nil
	}

	centroids := make([]Point, len(detections))
	for i, d := range detections {
		centroids[i] = d.BBox.Centroid()
	}

	// Candidate pairs under the gate, greedily assigned closest-first.
	// Equal distances tie-break by lower detection index, then by track
	// creation order, so matching is reproducible.
	gate2 := t.cfg.MaxMatchDistance * t.cfg.MaxMatchDistance
	pairs := make([]matchPair, 0, len(ids)*len(detections))
	for pos, id := range ids {
		trk := t.tracks[id]
		for di, c := range centroids {
			if d2 := dist2(trk.Centroid, c); d2 <= gate2 {
				pairs = append(pairs, matchPair{d2: d2, trackPos: pos, detIdx: di})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].d2 != pairs[j].d2 {
			return pairs[i].d2 < pairs[j].d2
		}
		if pairs[i].detIdx != pairs[j].detIdx {
			return pairs[i].detIdx < pairs[j].detIdx
		}
		return pairs[i].trackPos < pairs[j].trackPos
	})

	usedTrack := make([]bool, len(ids))
	usedDet := make([]bool, len(detections))
	matched := make([]*Track, 0, len(detections))

	for _, p := range pairs {
		if usedTrack[p.trackPos] || usedDet[p.detIdx] {
			continue
		}
		usedTrack[p.trackPos] = true
		usedDet[p.detIdx] = true

		trk := t.tracks[ids[p.trackPos]]
		t.hit(trk, detections[p.detIdx], centroids[p.detIdx], frameIdx)
		matched = append(matched, trk)
	}

	// Unmatched existing tracks age by one miss.
	for pos, id := range ids {
		if !usedTrack[pos] {
			t.miss(id)
		}
	}

	// Unmatched detections spawn new tracks.
	for di := range detections {
		if !usedDet[di] {
			matched = append(matched, t.spawn(detections[di], centroids[di], frameIdx))
		}
	}

	return matched
}

func (t *Tracker) hit(trk *Track, det Detection, centroid Point, frameIdx int64) {
	trk.Centroid = centroid
	trk.BBox = det.BBox
	trk.Class = det.Class
	trk.Confidence = det.Confidence
	trk.Misses = 0
	trk.FrameCount++
	trk.LastSeen = frameIdx
	trk.appendHistory(centroid)
}

func (t *Tracker) miss(id int64) {
	trk := t.tracks[id]
	trk.Misses++
	if trk.Misses > t.cfg.MaxMissedFrames {
		tracef("retired track %d after %d consecutive misses", id, trk.Misses)
		delete(t.tracks, id)
	}
}

func (t *Tracker) spawn(det Detection, centroid Point, frameIdx int64) *Track {
	trk := &Track{
		ID:         t.nextID,
		Centroid:   centroid,
		BBox:       det.BBox,
		Class:      det.Class,
		Confidence: det.Confidence,
		FirstFrame: frameIdx,
		LastSeen:   frameIdx,
		FrameCount: 1,
		history:    make([]Point, 0, t.cfg.HistoryLength),
		histCap:    t.cfg.HistoryLength,
		zoneDwell:  make(map[string]int),
	}
	trk.appendHistory(centroid)
	t.tracks[trk.ID] = trk
	t.nextID++
	tracef("spawned track %d at (%.1f, %.1f)", trk.ID, centroid.X, centroid.Y)
	return trk
}

// sortedIDs returns live track IDs in ascending (creation) order.
func (t *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ActiveTracks returns all live tracks in creation order.
func (t *Tracker) ActiveTracks() []*Track {
	ids := t.sortedIDs()
	out := make([]*Track, len(ids))
	for i, id := range ids {
		out[i] = t.tracks[id]
	}
	return out
}

// ActiveCount returns the number of live tracks.
func (t *Tracker) ActiveCount() int {
	return len(t.tracks)
}

// Track returns a live track by ID, or nil if retired or unknown.
func (t *Tracker) Track(id int64) *Track {
	return t.tracks[id]
}

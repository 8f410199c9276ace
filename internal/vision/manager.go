package vision

import (
	"sync"

	"github.com/kerbside-data/sentinel.report/internal/timeutil"
)

// pendingEvent carries an emitted violation plus everything the dispatcher
// needs for best-effort evidence capture. The frame reference is safe to
// retain: frame images are immutable once produced by the source.
type pendingEvent struct {
	event ViolationEvent
	frame *Frame
	bbox  BBox
}

// ManagerStats is a point-in-time snapshot of the manager's counters.
type ManagerStats struct {
	TotalFired int64            `json:"total_fired"`
	ByType     map[string]int64 `json:"by_type"`
	Dropped    int64            `json:"dropped"`
}

// ViolationManager runs the rule evaluators over each frame's tracks and
// emits at most one event per (track, violation type) pair. The sticky
// per-track fired flag is the debounce: it is set before the event is
// offered to the queue, so a full queue drops the alert rather than
// re-arming it.
type ViolationManager struct {
	zoneRule *ZoneRule
	dirRule  *DirectionRule
	clock    timeutil.Clock
	queue    chan pendingEvent

	mu      sync.Mutex
	total   int64
	byType  map[ViolationType]int64
	dropped int64
	closed  bool
}

// NewViolationManager builds a manager with a bounded dispatch queue.
// Either rule may be nil to disable it.
func NewViolationManager(zoneRule *ZoneRule, dirRule *DirectionRule, queueSize int, clock timeutil.Clock) *ViolationManager {
	if queueSize < 1 {
		queueSize = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ViolationManager{
		zoneRule: zoneRule,
		dirRule:  dirRule,
		clock:    clock,
		queue:    make(chan pendingEvent, queueSize),
		byType:   make(map[ViolationType]int64),
	}
}

// CheckFrame evaluates every rule against the tracks matched in this frame.
// Tracks that missed their detection this frame are not evaluated, so a
// brief detector dropout freezes dwell and direction counters instead of
// resetting them.
func (m *ViolationManager) CheckFrame(frame *Frame, tracks []*Track) {
	for _, trk := range tracks {
		if m.zoneRule != nil {
			m.zoneRule.Observe(trk)
			if !trk.Fired(ViolationIllegalParking) {
				if zoneID, dwell, ok := m.zoneRule.Breached(trk); ok {
					m.emit(frame, trk, ViolationEvent{
						Type:       ViolationIllegalParking,
						Confidence: trk.Confidence,
						ObjectID:   trk.ID,
						ZoneID:     zoneID,
						Metadata: map[string]interface{}{
							"dwell_frames": dwell,
							"class":        trk.Class,
						},
					})
				}
			}
		}
		if m.dirRule != nil {
			m.dirRule.Observe(trk)
			if !trk.Fired(ViolationWrongWay) {
				if frames, ok := m.dirRule.Breached(trk); ok {
					m.emit(frame, trk, ViolationEvent{
						Type:       ViolationWrongWay,
						Confidence: trk.Confidence,
						ObjectID:   trk.ID,
						Metadata: map[string]interface{}{
							"wrong_way_frames": frames,
							"class":            trk.Class,
						},
					})
				}
			}
		}
	}
}

// emit marks the track's flag, then offers the event to the dispatch queue
// without blocking. The flag is set first: a drop under backpressure loses
// the alert once rather than firing it again next frame.
func (m *ViolationManager) emit(frame *Frame, trk *Track, ev ViolationEvent) {
	trk.setFired(ev.Type)
	ev.CreatedAt = m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.byType[ev.Type]++
	if m.closed {
		m.dropped++
		opsf("dropping %s alert for object %d: queue closed", ev.Type, ev.ObjectID)
		return
	}
	select {
	case m.queue <- pendingEvent{event: ev, frame: frame, bbox: trk.BBox}:
		diagf("queued %s alert for object %d", ev.Type, ev.ObjectID)
	default:
		m.dropped++
		opsf("dropping %s alert for object %d: dispatch queue full", ev.Type, ev.ObjectID)
	}
}

// Stats returns a snapshot of the manager's counters.
func (m *ViolationManager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType := make(map[string]int64, len(m.byType))
	for t, n := range m.byType {
		byType[string(t)] = n
	}
	return ManagerStats{TotalFired: m.total, ByType: byType, Dropped: m.dropped}
}

// CloseQueue stops accepting new events and closes the dispatch queue so
// the dispatcher goroutine can drain and exit. Safe to call once during
// shutdown, after the frame loop has stopped.
func (m *ViolationManager) CloseQueue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
}

package vision

import (
	"fmt"
	"math"
)

// DirectionRule accumulates, per track, the number of consecutive frames the
// track has moved against the lane's expected direction of travel, and flags
// a violation once that count reaches the threshold.
type DirectionRule struct {
	dirX, dirY      float64 // normalized expected direction
	threshold       int
	minDisplacement float64
}

// NewDirectionRule builds the wrong-way rule. The expected direction vector
// is normalized internally; a zero vector is rejected.
func NewDirectionRule(dir [2]float64, threshold int, minDisplacement float64) (*DirectionRule, error) {
	n := math.Hypot(dir[0], dir[1])
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("lane direction must be a nonzero finite vector, got [%v, %v]", dir[0], dir[1])
	}
	return &DirectionRule{
		dirX:            dir[0] / n,
		dirY:            dir[1] / n,
		threshold:       threshold,
		minDisplacement: minDisplacement,
	}, nil
}

// Observe updates the track's wrong-way counter from its centroid history.
// Heading is estimated as the displacement from the oldest to the newest
// retained centroid. Tracks with fewer than two history entries, or whose
// displacement magnitude is under the stationary cutoff, are neutral: the
// counter neither increments nor resets. Only confirmed movement along the
// lane direction resets it.
func (r *DirectionRule) Observe(trk *Track) {
	h := trk.History()
	if len(h) < 2 {
		return
	}
	disp := h[len(h)-1].Sub(h[0])
	if disp.Norm() < r.minDisplacement {
		return
	}
	if disp.X*r.dirX+disp.Y*r.dirY < 0 {
		trk.wrongWayFrames++
	} else if trk.wrongWayFrames != 0 {
		tracef("track %d resumed expected direction after %d wrong-way frames", trk.ID, trk.wrongWayFrames)
		trk.wrongWayFrames = 0
	}
}

// Breached reports whether the track's consecutive wrong-way count has
// reached the threshold.
func (r *DirectionRule) Breached(trk *Track) (frames int, ok bool) {
	if trk.wrongWayFrames >= r.threshold {
		return trk.wrongWayFrames, true
	}
	return 0, false
}

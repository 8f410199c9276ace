package vision

import (
	"fmt"
)

// Zone is a closed polygonal region of the camera frame, in pixel
// coordinates. Vertices are taken in order; the closing edge back to the
// first vertex is implicit.
type Zone struct {
	ID      string
	Polygon []Point
}

// NewZone validates and builds a zone from raw vertex pairs.
func NewZone(id string, vertices [][]float64) (*Zone, error) {
	if id == "" {
		return nil, fmt.Errorf("zone id must not be empty")
	}
	if len(vertices) < 3 {
		return nil, fmt.Errorf("zone %q: polygon needs at least 3 vertices, got %d", id, len(vertices))
	}
	poly := make([]Point, len(vertices))
	for i, v := range vertices {
		if len(v) != 2 {
			return nil, fmt.Errorf("zone %q: vertex %d has %d coordinates, want 2", id, i, len(v))
		}
		poly[i] = Point{X: v[0], Y: v[1]}
	}
	return &Zone{ID: id, Polygon: poly}, nil
}

// Contains reports whether a point lies inside the zone. Points exactly on
// a polygon edge or vertex count as inside.
func (z *Zone) Contains(p Point) bool {
	return pointInPolygon(p, z.Polygon)
}

// ZoneRule accumulates per-track dwell time inside restricted zones and
// flags a violation once a track has stayed in one zone continuously for
// the configured number of frames.
type ZoneRule struct {
	zones          []*Zone
	dwellThreshold int
}

// NewZoneRule builds the dwell rule over a set of zones.
func NewZoneRule(zones []*Zone, dwellThreshold int) *ZoneRule {
	return &ZoneRule{zones: zones, dwellThreshold: dwellThreshold}
}

// Observe updates the track's per-zone dwell counters from its current
// centroid. A counter measures continuous presence: the frame a centroid
// falls outside a zone, that zone's counter resets to zero. Counters for
// zones the track is inside keep incrementing even after the rule has
// fired, so the dwell recorded at fire time reflects the threshold exactly.
func (r *ZoneRule) Observe(trk *Track) {
	for _, z := range r.zones {
		if z.Contains(trk.Centroid) {
			trk.zoneDwell[z.ID]++
		} else if trk.zoneDwell[z.ID] != 0 {
			tracef("track %d left zone %s after %d frames", trk.ID, z.ID, trk.zoneDwell[z.ID])
			trk.zoneDwell[z.ID] = 0
		}
	}
}

// Breached reports whether the track's dwell in some zone has reached the
// threshold. When multiple zones qualify on the same frame the first
// configured zone wins; the violation manager's sticky flag makes the
// choice moot after the first fire.
func (r *ZoneRule) Breached(trk *Track) (zoneID string, dwell int, ok bool) {
	for _, z := range r.zones {
		if d := trk.zoneDwell[z.ID]; d >= r.dwellThreshold {
			return z.ID, d, true
		}
	}
	return "", 0, false
}

package vision

import (
	"testing"
)

func mustZone(t *testing.T, id string, verts [][]float64) *Zone {
	t.Helper()
	z, err := NewZone(id, verts)
	if err != nil {
		t.Fatalf("NewZone(%s): %v", id, err)
	}
	return z
}

// testZone is the rectangle (100,400)-(500,600).
func testZone(t *testing.T) *Zone {
	return mustZone(t, "zone_1", [][]float64{{100, 400}, {500, 400}, {500, 600}, {100, 600}})
}

func TestNewZoneValidation(t *testing.T) {
	if _, err := NewZone("", [][]float64{{0, 0}, {1, 0}, {0, 1}}); err == nil {
		t.Error("empty zone ID accepted")
	}
	if _, err := NewZone("z", [][]float64{{0, 0}, {1, 0}}); err == nil {
		t.Error("2-vertex polygon accepted")
	}
	if _, err := NewZone("z", [][]float64{{0, 0}, {1, 0}, {0, 1, 5}}); err == nil {
		t.Error("3-coordinate vertex accepted")
	}
}

func TestZoneContains(t *testing.T) {
	z := testZone(t)
	cases := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{300, 500}, true},
		{"outside left", Point{50, 500}, false},
		{"outside above", Point{300, 100}, false},
		{"on edge", Point{100, 500}, true},
		{"on vertex", Point{100, 400}, true},
		{"on top edge", Point{300, 400}, true},
		{"just outside edge", Point{99.999, 500}, false},
	}
	for _, c := range cases {
		if got := z.Contains(c.p); got != c.want {
			t.Errorf("%s: Contains(%v) = %v, want %v", c.name, c.p, got, c.want)
		}
	}
}

func TestZoneContainsConcavePolygon(t *testing.T) {
	// L-shape: the notch at the top right is outside.
	z := mustZone(t, "L", [][]float64{{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10}})
	if !z.Contains(Point{2, 8}) {
		t.Error("point in the L's vertical arm should be inside")
	}
	if z.Contains(Point{8, 8}) {
		t.Error("point in the notch should be outside")
	}
}

// track at a fixed centroid, for rule tests.
func trackAt(id int64, x, y float64) *Track {
	return &Track{
		ID:         id,
		Centroid:   Point{x, y},
		Confidence: 0.9,
		Class:      "car",
		zoneDwell:  make(map[string]int),
		histCap:    30,
	}
}

func TestZoneRuleDwellAccumulates(t *testing.T) {
	rule := NewZoneRule([]*Zone{testZone(t)}, 150)
	trk := trackAt(1, 300, 500)

	for f := 0; f < 149; f++ {
		rule.Observe(trk)
		if _, _, ok := rule.Breached(trk); ok {
			t.Fatalf("breached after %d frames, threshold is 150", f+1)
		}
	}
	rule.Observe(trk)
	zoneID, dwell, ok := rule.Breached(trk)
	if !ok {
		t.Fatal("not breached at threshold")
	}
	if zoneID != "zone_1" || dwell != 150 {
		t.Errorf("breach = (%s, %d), want (zone_1, 150)", zoneID, dwell)
	}
}

func TestZoneRuleExitResetsDwell(t *testing.T) {
	rule := NewZoneRule([]*Zone{testZone(t)}, 150)
	trk := trackAt(1, 300, 500)

	// 149 frames inside, one frame out, then back in: the counter must
	// restart, so no breach until another full 150 frames.
	for f := 0; f < 149; f++ {
		rule.Observe(trk)
	}
	trk.Centroid = Point{50, 500}
	rule.Observe(trk)
	if trk.ZoneDwell("zone_1") != 0 {
		t.Fatalf("dwell = %d after exit, want 0", trk.ZoneDwell("zone_1"))
	}

	trk.Centroid = Point{300, 500}
	for f := 0; f < 149; f++ {
		rule.Observe(trk)
		if _, _, ok := rule.Breached(trk); ok {
			t.Fatalf("breached %d frames after re-entry, threshold is 150", f+1)
		}
	}
	rule.Observe(trk)
	if _, _, ok := rule.Breached(trk); !ok {
		t.Error("not breached after full continuous dwell post re-entry")
	}
}

func TestZoneRuleZonesIndependent(t *testing.T) {
	za := mustZone(t, "a", [][]float64{{0, 0}, {100, 0}, {100, 100}, {0, 100}})
	zb := mustZone(t, "b", [][]float64{{200, 0}, {300, 0}, {300, 100}, {200, 100}})
	rule := NewZoneRule([]*Zone{za, zb}, 10)
	trk := trackAt(1, 50, 50)

	for f := 0; f < 6; f++ {
		rule.Observe(trk)
	}
	// Move to zone b: a's counter resets, b's starts from zero.
	trk.Centroid = Point{250, 50}
	for f := 0; f < 9; f++ {
		rule.Observe(trk)
		if _, _, ok := rule.Breached(trk); ok {
			t.Fatalf("breached with a=%d b=%d, neither reached 10", trk.ZoneDwell("a"), trk.ZoneDwell("b"))
		}
	}
	rule.Observe(trk)
	zoneID, _, ok := rule.Breached(trk)
	if !ok || zoneID != "b" {
		t.Errorf("breach = (%s, %v), want zone b", zoneID, ok)
	}
	if trk.ZoneDwell("a") != 0 {
		t.Errorf("zone a dwell = %d, want 0 after exit", trk.ZoneDwell("a"))
	}
}

func TestZoneRuleSeparateTracksSeparateCounters(t *testing.T) {
	rule := NewZoneRule([]*Zone{testZone(t)}, 10)
	a := trackAt(1, 300, 500)
	b := trackAt(2, 350, 500)

	for f := 0; f < 9; f++ {
		rule.Observe(a)
	}
	rule.Observe(b)
	if _, _, ok := rule.Breached(b); ok {
		t.Error("track b breached off track a's dwell")
	}
	rule.Observe(a)
	if _, _, ok := rule.Breached(a); !ok {
		t.Error("track a should have breached")
	}
}

package vision

import "math"

// Point is a 2-D pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm returns the Euclidean length of the vector from the origin to p.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Dot returns the dot product of p and q treated as vectors.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

func dist2(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// pointInPolygon reports whether pt lies inside or on the boundary of the
// polygon. The boundary is inclusive for determinism: a centroid exactly on
// an edge counts as inside.
func pointInPolygon(pt Point, poly []Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	// Boundary check first: ray casting is unstable exactly on edges.
	for i := 0; i < n; i++ {
		if onSegment(pt, poly[i], poly[(i+1)%n]) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > pt.Y) != (pj.Y > pt.Y) {
			xCross := (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if pt.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether pt lies on the closed segment [a, b].
func onSegment(pt, a, b Point) bool {
	cross := (b.X-a.X)*(pt.Y-a.Y) - (b.Y-a.Y)*(pt.X-a.X)
	if math.Abs(cross) > 1e-9*math.Max(1, math.Max(b.Sub(a).Norm(), pt.Sub(a).Norm())) {
		return false
	}
	return pt.X >= math.Min(a.X, b.X)-1e-9 && pt.X <= math.Max(a.X, b.X)+1e-9 &&
		pt.Y >= math.Min(a.Y, b.Y)-1e-9 && pt.Y <= math.Max(a.Y, b.Y)+1e-9
}

package spaces

// Point is a pixel coordinate in the camera frame.
type Point struct {
	X, Y int
}

// Polygon is a closed quadrilateral; the last vertex connects back to the first.
type Polygon [4]Point

// Contains reports whether p lies inside the polygon or exactly on its
// boundary. Arithmetic is integer, so results are exact.
func (poly Polygon) Contains(p Point) bool {
	n := len(poly)
	for i := 0; i < n; i++ {
		if onSegment(poly[i], poly[(i+1)%n], p) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[j], poly[i]
		if (a.Y > p.Y) == (b.Y > p.Y) {
			continue
		}
		// Crossing test for the ray toward +X, kept in integers:
		// p.X < a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y).
		lhs := (p.X - a.X) * (b.Y - a.Y)
		rhs := (p.Y - a.Y) * (b.X - a.X)
		if b.Y > a.Y {
			if lhs < rhs {
				inside = !inside
			}
		} else if lhs > rhs {
			inside = !inside
		}
	}
	return inside
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (poly Polygon) Bounds() (lo, hi Point) {
	lo, hi = poly[0], poly[0]
	for _, v := range poly[1:] {
		lo.X, lo.Y = min(lo.X, v.X), min(lo.Y, v.Y)
		hi.X, hi.Y = max(hi.X, v.X), max(hi.Y, v.Y)
	}
	return lo, hi
}

func onSegment(a, b, p Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

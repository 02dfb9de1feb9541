package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidPolygon reports a polygon that cannot be sampled.
var ErrInvalidPolygon = errors.New("invalid polygon")

// Polygon is an immutable simple polygon with counter-clockwise winding.
//
// The ring is stored closed (first vertex repeated at the end) so that it can
// be handed directly to orb/planar helpers.
type Polygon struct {
	ring orb.Ring
	area float64
}

// NewPolygon validates vertices and builds a Polygon.
//
// A trailing vertex equal to the first one is treated as the closing vertex
// and dropped, as are consecutive duplicates. Clockwise input is reversed.
//
// Errors wrap ErrInvalidPolygon when fewer than three distinct vertices remain
// or the enclosed area is zero.
func NewPolygon(vertices []orb.Point) (Polygon, error) {
	pts := make([]orb.Point, 0, len(vertices)+1)
	for _, v := range vertices {
		if math.IsNaN(v[0]) || math.IsNaN(v[1]) || math.IsInf(v[0], 0) || math.IsInf(v[1], 0) {
			return Polygon{}, fmt.Errorf("%w: non-finite vertex %v", ErrInvalidPolygon, v)
		}
		if len(pts) > 0 && pts[len(pts)-1].Equal(v) {
			continue
		}
		pts = append(pts, v)
	}
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return Polygon{}, fmt.Errorf("%w: %d distinct vertices, need at least 3", ErrInvalidPolygon, len(pts))
	}

	ring := orb.Ring(append(pts, pts[0]))
	switch ring.Orientation() {
	case orb.CW:
		ring.Reverse()
	case orb.CCW:
	default:
		return Polygon{}, fmt.Errorf("%w: zero area", ErrInvalidPolygon)
	}

	area := planar.Area(ring)
	if area < 0 {
		area = -area
	}
	if area == 0 {
		return Polygon{}, fmt.Errorf("%w: zero area", ErrInvalidPolygon)
	}
	return Polygon{ring: ring, area: area}, nil
}

// Hexagon returns the regular hexagon centred on center with the given
// circumradius. The first vertex lies on the +X axis.
func Hexagon(center orb.Point, radius float64) (Polygon, error) {
	vertices := make([]orb.Point, 6)
	for i := range vertices {
		angle := 2 * math.Pi * float64(i) / 6
		vertices[i] = orb.Point{
			center[0] + radius*math.Cos(angle),
			center[1] + radius*math.Sin(angle),
		}
	}
	return NewPolygon(vertices)
}

// Ring returns a copy of the closed, counter-clockwise ring.
func (p Polygon) Ring() orb.Ring {
	return p.ring.Clone()
}

// Vertices returns the distinct vertices in counter-clockwise order, without
// the closing vertex.
func (p Polygon) Vertices() []orb.Point {
	if len(p.ring) == 0 {
		return nil
	}
	out := make([]orb.Point, len(p.ring)-1)
	copy(out, p.ring[:len(p.ring)-1])
	return out
}

// Area returns the enclosed area.
func (p Polygon) Area() float64 {
	return p.area
}

// Bound returns the axis-aligned bounding box.
func (p Polygon) Bound() orb.Bound {
	return p.ring.Bound()
}

// Contains reports whether pt lies inside the polygon or on its boundary.
func (p Polygon) Contains(pt orb.Point) bool {
	if len(p.ring) == 0 {
		return false
	}
	return planar.RingContains(p.ring, pt)
}

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (c[0]-a[0])*(b[1]-a[1])
}

package geometry

import (
	"image"
	"sort"
)

// ConvexHull returns the vertices of the convex hull of points using Andrew's
// monotone chain.
//
// Collinear points on hull edges are dropped, so the result only holds true
// corners. The walk starts at the smallest (X, then Y) point and has positive
// orientation in X/Y terms; in image space with Y pointing down this reads as
// clockwise. Fewer than three returned vertices means the input is empty,
// a single point, or collinear.
func ConvexHull(points []image.Point) []image.Point {
	pts := make([]image.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	// dedupe after sort
	uniq := pts[:0]
	for i, p := range pts {
		if i > 0 && p == pts[i-1] {
			continue
		}
		uniq = append(uniq, p)
	}
	pts = uniq

	if len(pts) < 3 {
		return pts
	}

	hull := make([]image.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// last point repeats the first
	return hull[:len(hull)-1]
}

func turn(o, a, b image.Point) int64 {
	return int64(a.X-o.X)*int64(b.Y-o.Y) - int64(a.Y-o.Y)*int64(b.X-o.X)
}

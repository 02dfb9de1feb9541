package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Triangle is one piece of a polygon decomposition.
type Triangle struct {
	A, B, C orb.Point

	// Area is cached at construction and always positive.
	Area float64
}

// Point maps barycentric-style coordinates (u, v) onto the triangle using the
// affine basis A + u(B-A) + v(C-A). With u, v >= 0 and u+v <= 1 the result lies
// inside or on the triangle.
func (t Triangle) Point(u, v float64) orb.Point {
	return orb.Point{
		t.A[0] + u*(t.B[0]-t.A[0]) + v*(t.C[0]-t.A[0]),
		t.A[1] + u*(t.B[1]-t.A[1]) + v*(t.C[1]-t.A[1]),
	}
}

// Contains reports whether pt lies inside the triangle or within eps of its
// boundary.
func (t Triangle) Contains(pt orb.Point, eps float64) bool {
	d1 := cross(t.A, t.B, pt)
	d2 := cross(t.B, t.C, pt)
	d3 := cross(t.C, t.A, pt)
	return d1 >= -eps && d2 >= -eps && d3 >= -eps
}

// Triangulate decomposes p into triangles by ear clipping.
//
// The union of the returned triangles is exactly the polygon for any simple
// polygon, convex or not. Collinear vertices are removed as they are met, so
// no zero-area sliver is ever returned. Self-intersecting input stops clipping
// at the first step where no ear exists; the triangles found so far are
// returned.
func Triangulate(p Polygon) []Triangle {
	verts := p.Vertices()
	n := len(verts)
	if n < 3 {
		return nil
	}

	eps := areaEpsilon(p.Bound())

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	tris := make([]Triangle, 0, n-2)
	for len(idx) > 3 {
		m := len(idx)
		clipped := false
		for i := 0; i < m; i++ {
			a := verts[idx[(i+m-1)%m]]
			b := verts[idx[i]]
			c := verts[idx[(i+1)%m]]

			cr := cross(a, b, c)
			if math.Abs(cr) <= eps {
				// b adds no area; dropping it leaves the outline unchanged
				idx = append(idx[:i], idx[i+1:]...)
				clipped = true
				break
			}
			if cr < 0 {
				continue
			}
			if !isEar(verts, idx, i, a, b, c) {
				continue
			}

			tris = append(tris, Triangle{A: a, B: b, C: c, Area: cr / 2})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return tris
		}
	}

	a, b, c := verts[idx[0]], verts[idx[1]], verts[idx[2]]
	if cr := cross(a, b, c); cr > eps {
		tris = append(tris, Triangle{A: a, B: b, C: c, Area: cr / 2})
	}
	return tris
}

// isEar reports whether no remaining vertex other than the corner's own lies
// inside or on triangle (a, b, c).
func isEar(verts []orb.Point, idx []int, i int, a, b, c orb.Point) bool {
	m := len(idx)
	prev, next := (i+m-1)%m, (i+1)%m
	t := Triangle{A: a, B: b, C: c}
	for j := 0; j < m; j++ {
		if j == prev || j == i || j == next {
			continue
		}
		q := verts[idx[j]]
		if q.Equal(a) || q.Equal(b) || q.Equal(c) {
			continue
		}
		if t.Contains(q, 0) {
			return false
		}
	}
	return true
}

// areaEpsilon scales the collinearity tolerance to the polygon's extent.
func areaEpsilon(b orb.Bound) float64 {
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	return 1e-12 * (w*w + h*h)
}

package geometry

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/paulmach/orb"
)

// Sampler draws points uniformly over the area of a polygon.
//
// The triangulation and cumulative weights are computed once, so a Sampler is
// the cheap way to draw several batches from the same polygon. A Sampler holds
// no random state of its own.
type Sampler struct {
	triangles  []Triangle
	cumulative []float64
	total      float64
}

// NewSampler triangulates p and prepares area weights.
//
// Returns an error wrapping ErrInvalidPolygon when no triangle carries
// positive weight.
func NewSampler(p Polygon) (*Sampler, error) {
	tris := Triangulate(p)
	s := &Sampler{
		triangles:  make([]Triangle, 0, len(tris)),
		cumulative: make([]float64, 0, len(tris)),
	}
	for _, t := range tris {
		if t.Area <= 0 {
			continue
		}
		s.total += t.Area
		s.triangles = append(s.triangles, t)
		s.cumulative = append(s.cumulative, s.total)
	}
	if s.total <= 0 {
		return nil, fmt.Errorf("%w: triangle weights sum to zero", ErrInvalidPolygon)
	}
	return s, nil
}

// Triangles returns the weighted triangles backing the sampler.
func (s *Sampler) Triangles() []Triangle {
	out := make([]Triangle, len(s.triangles))
	copy(out, s.triangles)
	return out
}

// Sample draws one point. It consumes exactly three values from rng: the
// triangle choice, then u, then v.
func (s *Sampler) Sample(rng *rand.Rand) orb.Point {
	t := s.triangles[s.pick(rng.Float64())]

	u, v := rng.Float64(), rng.Float64()
	if u+v > 1 {
		// reflect the far half of the unit square back into the triangle
		u, v = 1-u, 1-v
	}
	return t.Point(u, v)
}

// SampleK draws k points in order.
func (s *Sampler) SampleK(k int, rng *rand.Rand) []orb.Point {
	points := make([]orb.Point, 0, k)
	for i := 0; i < k; i++ {
		points = append(points, s.Sample(rng))
	}
	return points
}

// pick maps r in [0,1) onto a triangle index with probability proportional
// to area.
func (s *Sampler) pick(r float64) int {
	target := r * s.total
	i := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > target
	})
	if i >= len(s.cumulative) {
		i = len(s.cumulative) - 1
	}
	return i
}

// SampleK returns k points drawn uniformly at random inside p.
//
// Each point chooses a triangle of the decomposition with probability
// proportional to its area, so the spatial density does not depend on how the
// polygon was triangulated. k == 0 returns an empty slice.
//
// Errors wrap ErrInvalidPolygon for a negative k or a polygon with no
// positive-area triangle.
func SampleK(p Polygon, k int, rng *rand.Rand) ([]orb.Point, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: negative sample count %d", ErrInvalidPolygon, k)
	}
	s, err := NewSampler(p)
	if err != nil {
		return nil, err
	}
	return s.SampleK(k, rng), nil
}

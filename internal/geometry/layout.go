package geometry

import (
	"fmt"
	"math/rand"

	"github.com/fogleman/poissondisc"
	"github.com/paulmach/orb"
)

// poissonAttempts is the number of candidates tried around each active
// sample before it is retired.
const poissonAttempts = 30

// PoissonLayout fills p with points no closer than minDist to each other.
//
// Candidates are generated by Poisson-disc sampling over the polygon's
// bounding box and then filtered to those inside (or on) the polygon. The
// layout is reproducible for a given rng state.
func PoissonLayout(p Polygon, minDist float64, rng *rand.Rand) ([]orb.Point, error) {
	if minDist <= 0 {
		return nil, fmt.Errorf("poisson layout: minimum distance must be positive, got %g", minDist)
	}
	b := p.Bound()
	candidates := poissondisc.Sample(b.Min[0], b.Min[1], b.Max[0], b.Max[1], minDist, poissonAttempts, rng)

	points := make([]orb.Point, 0, len(candidates))
	for _, c := range candidates {
		pt := orb.Point{c.X, c.Y}
		if p.Contains(pt) {
			points = append(points, pt)
		}
	}
	return points, nil
}

package placement

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/paulmach/orb"

	"github.com/ironsheep/scene-tools-mcp/internal/geometry"
)

// Placement is one sampled cluster position with a heading.
type Placement struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	HeadingDegrees float64 `json:"heading_degrees"`
}

// PlaceCluster samples k positions inside p at z = 0 and gives each a heading
// in [0, 360).
//
// All k positions are drawn before any heading, so the order in which values
// are taken from rng is fixed for a given k.
func PlaceCluster(p geometry.Polygon, k int, rng *rand.Rand) ([]Placement, error) {
	points, err := geometry.SampleK(p, k, rng)
	if err != nil {
		return nil, fmt.Errorf("place cluster: %w", err)
	}

	return withHeadings(points, rng), nil
}

// PlaceSpaced lays positions out inside p no closer than minDist apart and
// gives each a heading. The count follows from the polygon and spacing.
func PlaceSpaced(p geometry.Polygon, minDist float64, rng *rand.Rand) ([]Placement, error) {
	points, err := geometry.PoissonLayout(p, minDist, rng)
	if err != nil {
		return nil, fmt.Errorf("place cluster: %w", err)
	}
	return withHeadings(points, rng), nil
}

func withHeadings(points []orb.Point, rng *rand.Rand) []Placement {
	placements := make([]Placement, len(points))
	for i, pt := range points {
		placements[i] = Placement{X: pt[0], Y: pt[1]}
	}
	for i := range placements {
		placements[i].HeadingDegrees = rng.Float64() * 360
	}
	return placements
}

// recordSize is the encoded size of one placement: six float64 values.
const recordSize = 6 * 8

// EncodeCluster writes placements as little-endian float64 records
// tx ty tz rx ry rz, with rotation (0, 0, heading).
func EncodeCluster(w io.Writer, placements []Placement) error {
	var rec [6]float64
	for _, p := range placements {
		rec = [6]float64{p.X, p.Y, p.Z, 0, 0, p.HeadingDegrees}
		if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
			return err
		}
	}
	return nil
}

// WriteClusterFile writes the batched placement file the renderer reads and
// returns the number of bytes written.
func WriteClusterFile(path string, placements []Placement) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create cluster file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := EncodeCluster(bw, placements); err != nil {
		return 0, fmt.Errorf("failed to write cluster file: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write cluster file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close cluster file: %w", err)
	}
	return int64(len(placements) * recordSize), nil
}
